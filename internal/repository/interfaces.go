package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/schedule"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrSlotTaken is returned when the store refuses a booking that would
	// overlap another one on the same date.
	ErrSlotTaken = errors.New("time slot already booked")
)

// All repository interfaces in one file
type (
	AppointmentRepository interface {
		// CreateIfFree serializes bookings per date: the overlap check and the
		// insert run under one lock, and ErrSlotTaken is returned on conflict.
		CreateIfFree(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// GetWithCustomer joins the customer's name and email.
		GetWithCustomer(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// UpdateIfFree persists changes. When slot is non-nil the same per-date
		// lock and overlap check as CreateIfFree run against it, ignoring the
		// appointment itself.
		UpdateIfFree(ctx context.Context, id uuid.UUID, changes *model.AppointmentChanges, slot *schedule.Booking) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		ListByDate(ctx context.Context, date time.Time) ([]*model.Appointment, error)
		// UpdatePayment moves the payment state with a compare-and-set on the
		// allowed source statuses. It returns false when the row exists but its
		// current status does not allow the transition.
		UpdatePayment(ctx context.Context, id uuid.UUID, update *model.PaymentUpdate) (bool, error)
	}

	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	}

	OrderRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
		UpdatePayment(ctx context.Context, id uuid.UUID, update *model.PaymentUpdate) (bool, error)
	}

	PriceRepository interface {
		List(ctx context.Context) ([]model.PriceEntry, error)
		// ReplaceAll swaps the whole table inside one transaction.
		ReplaceAll(ctx context.Context, entries []model.PriceEntry) error
	}
)
