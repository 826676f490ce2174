// Package validator registers the shop's custom binding tags on gin's
// go-playground validator.
package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/schedule"
)

// Tags maps each custom tag to its check.
var Tags = map[string]validator.Func{
	"clock":       isClock,
	"petsize":     isPetSize,
	"servicetype": isServiceType,
}

func isClock(fl validator.FieldLevel) bool {
	_, err := schedule.ParseClock(fl.Field().String())
	return err == nil
}

func isPetSize(fl validator.FieldLevel) bool {
	_, err := model.ParsePetSize(fl.Field().String())
	return err == nil
}

func isServiceType(fl validator.FieldLevel) bool {
	_, err := model.ParseServiceType(fl.Field().String())
	return err == nil
}

// Register installs the custom tags and json field naming on v.
func Register(v *validator.Validate) error {
	for tag, fn := range Tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", tag, err)
		}
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}

// RegisterWithGin installs the tags on the engine gin binds requests with.
func RegisterWithGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	return Register(v)
}

var messages = map[string]string{
	"required":    "is required",
	"uuid":        "must be a valid id",
	"datetime":    "must be a date in YYYY-MM-DD form",
	"clock":       "must be a time in HH:MM form",
	"petsize":     "must be small, medium or large",
	"servicetype": "must be bath or bath-and-cut",
	"gt":          "must be positive",
	"min":         "is too short",
	"max":         "is too long",
}

// Describe turns binding failures into one readable sentence.
func Describe(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = "failed " + e.Tag()
		}
		parts = append(parts, e.Field()+" "+msg)
	}
	return strings.Join(parts, "; ")
}
