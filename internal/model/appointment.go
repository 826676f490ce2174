package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lessslie/Pelu-PetShop/internal/schedule"
)

type PetSize string

const (
	PetSizeSmall  PetSize = "small"
	PetSizeMedium PetSize = "medium"
	PetSizeLarge  PetSize = "large"
)

var petSizeAliases = map[string]PetSize{
	"small":   PetSizeSmall,
	"medium":  PetSizeMedium,
	"large":   PetSizeLarge,
	"pequeño": PetSizeSmall,
	"pequeno": PetSizeSmall,
	"mediano": PetSizeMedium,
	"grande":  PetSizeLarge,
}

// ParsePetSize normalizes the accepted spellings of a pet size.
func ParsePetSize(s string) (PetSize, error) {
	if size, ok := petSizeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return size, nil
	}
	return "", fmt.Errorf("invalid pet size %q", s)
}

func (s PetSize) Label() string {
	switch s {
	case PetSizeSmall:
		return "pequeño"
	case PetSizeMedium:
		return "mediano"
	case PetSizeLarge:
		return "grande"
	}
	return string(s)
}

type ServiceType string

const (
	ServiceBath       ServiceType = "bath"
	ServiceBathAndCut ServiceType = "bath-and-cut"
)

var serviceTypeAliases = map[string]ServiceType{
	"bath":         ServiceBath,
	"bath-and-cut": ServiceBathAndCut,
	"bath and cut": ServiceBathAndCut,
	"bath_and_cut": ServiceBathAndCut,
	"baño":         ServiceBath,
	"bano":         ServiceBath,
	"baño y corte": ServiceBathAndCut,
	"bano y corte": ServiceBathAndCut,
}

func ParseServiceType(s string) (ServiceType, error) {
	if st, ok := serviceTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("invalid service type %q", s)
}

func (s ServiceType) Label() string {
	switch s {
	case ServiceBath:
		return "baño"
	case ServiceBathAndCut:
		return "baño y corte"
	}
	return string(s)
}

// Appointment is a 90-minute grooming booking ("turno") for one pet.
type Appointment struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	CustomerID    uuid.UUID      `db:"user_id" json:"customerId"`
	PetName       string         `db:"dog_name" json:"petName"`
	Date          time.Time      `db:"appointment_date" json:"-"`
	StartTime     schedule.Clock `db:"start_time" json:"startTime"`
	PetSize       PetSize        `db:"dog_size" json:"petSize"`
	ServiceType   ServiceType    `db:"service_type" json:"serviceType"`
	Price         float64        `db:"price" json:"price"`
	PaymentStatus PaymentStatus  `db:"payment_status" json:"paymentStatus"`
	PaymentID     *string        `db:"payment_id" json:"paymentId"`
	PaymentDate   *time.Time     `db:"payment_date" json:"paymentDate"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`

	// Populated from the users join.
	CustomerName  string `db:"customer_name" json:"customerName,omitempty"`
	CustomerEmail string `db:"customer_email" json:"customerEmail,omitempty"`
}

// DateString renders Date in the wire layout.
func (a *Appointment) DateString() string {
	return a.Date.Format(schedule.DateLayout)
}

func (a *Appointment) Booking() schedule.Booking {
	return schedule.Booking{Date: a.Date, Start: a.StartTime}
}

// EndTime is the clock reading when the appointment finishes.
func (a *Appointment) EndTime() schedule.Clock {
	return a.StartTime.Add(schedule.AppointmentDuration)
}

// MarshalJSON adds the calendar date in YYYY-MM-DD form.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(a), Date: a.DateString()})
}

type CreateAppointmentRequest struct {
	CustomerID  string   `json:"customerId" binding:"required,uuid"`
	PetName     string   `json:"petName" binding:"required,max=100"`
	Date        string   `json:"date" binding:"required,datetime=2006-01-02"`
	StartTime   string   `json:"startTime" binding:"required,clock"`
	PetSize     string   `json:"petSize" binding:"required,petsize"`
	ServiceType string   `json:"serviceType" binding:"required,servicetype"`
	Price       *float64 `json:"price" binding:"omitempty,gt=0"`
}

// UpdateAppointmentRequest carries only the fields the caller wants to change.
type UpdateAppointmentRequest struct {
	CustomerID  *string  `json:"customerId" binding:"omitempty,uuid"`
	PetName     *string  `json:"petName" binding:"omitempty,min=1,max=100"`
	Date        *string  `json:"date" binding:"omitempty,datetime=2006-01-02"`
	StartTime   *string  `json:"startTime" binding:"omitempty,clock"`
	PetSize     *string  `json:"petSize" binding:"omitempty,petsize"`
	ServiceType *string  `json:"serviceType" binding:"omitempty,servicetype"`
	Price       *float64 `json:"price" binding:"omitempty,gt=0"`
}

// IsEmpty reports whether the request changes nothing.
func (r *UpdateAppointmentRequest) IsEmpty() bool {
	return r.CustomerID == nil && r.PetName == nil && r.Date == nil && r.StartTime == nil &&
		r.PetSize == nil && r.ServiceType == nil && r.Price == nil
}

// AppointmentChanges is the validated, typed form of UpdateAppointmentRequest.
type AppointmentChanges struct {
	CustomerID  *uuid.UUID
	PetName     *string
	Date        *time.Time
	StartTime   *schedule.Clock
	PetSize     *PetSize
	ServiceType *ServiceType
	Price       *float64
}

func (c *AppointmentChanges) Apply(a *Appointment) {
	if c.CustomerID != nil {
		a.CustomerID = *c.CustomerID
	}
	if c.PetName != nil {
		a.PetName = *c.PetName
	}
	if c.Date != nil {
		a.Date = *c.Date
	}
	if c.StartTime != nil {
		a.StartTime = *c.StartTime
	}
	if c.PetSize != nil {
		a.PetSize = *c.PetSize
	}
	if c.ServiceType != nil {
		a.ServiceType = *c.ServiceType
	}
	if c.Price != nil {
		a.Price = *c.Price
	}
}

// Reschedules reports whether the booking rules must be re-run.
func (c *AppointmentChanges) Reschedules() bool {
	return c.Date != nil || c.StartTime != nil
}

// Reprices reports whether the stored price has to be resolved again.
func (c *AppointmentChanges) Reprices() bool {
	return c.Price == nil && (c.PetSize != nil || c.ServiceType != nil)
}

type AppointmentFilters struct {
	CustomerID *uuid.UUID
	Date       *time.Time
}

// AvailableSlotsResponse lists the free start times of a day.
type AvailableSlotsResponse struct {
	Date  string           `json:"date"`
	Slots []schedule.Clock `json:"slots"`
}

// CreatedAppointment is the answer to a booking: the stored appointment and,
// when the provider answered in time, where to pay for it.
type CreatedAppointment struct {
	Appointment *Appointment `json:"appointment"`
	CheckoutURL string       `json:"checkoutUrl,omitempty"`
}
