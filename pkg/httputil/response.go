package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lessslie/Pelu-PetShop/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{Status: "success", Data: data}
}

func NewErrorResponse(message string) *Response {
	return &Response{Status: "error", Message: message}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// StatusCode maps an error to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrBadRequest:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrConflict:
		return http.StatusConflict
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError sends an error response. Messages of server-side failures
// are kept out of the body.
func RespondWithError(c *gin.Context, err error) {
	status := StatusCode(err)

	message := "internal server error"
	var appErr *errors.AppError
	if errors.As(err, &appErr) && (status < http.StatusInternalServerError || appErr.Code == errors.ErrDependency) {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		requestLogger(c).Error().Err(err).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, NewErrorResponse(message))
}

// requestLogger is the logger the request id middleware installed, or the
// global one tagged with whatever request id the context carries.
func requestLogger(c *gin.Context) *zerolog.Logger {
	if c.Request != nil {
		if l := zerolog.Ctx(c.Request.Context()); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	l := log.With().Str("request_id", c.GetString("request_id")).Logger()
	return &l
}
