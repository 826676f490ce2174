package appointment

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/repository"
	"github.com/lessslie/Pelu-PetShop/internal/schedule"
	"github.com/lessslie/Pelu-PetShop/internal/service/notification"
	"github.com/lessslie/Pelu-PetShop/internal/service/pricing"
	"github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/logger"
	"github.com/lessslie/Pelu-PetShop/pkg/messaging"
	"github.com/lessslie/Pelu-PetShop/pkg/metrics"
)

// Checkout opens a payment for a freshly booked appointment.
type Checkout interface {
	PreferenceFor(ctx context.Context, appointment *model.Appointment, customer *model.User) (*model.Preference, error)
}

type Service interface {
	Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.CreatedAppointment, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error)
	// Remove reports false when there was nothing to delete.
	Remove(ctx context.Context, id uuid.UUID) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context) ([]*model.Appointment, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.Appointment, error)
	// ListAvailableSlots returns the free starts of date. With strict set only
	// starts whose whole 90 minutes are free are listed.
	ListAvailableSlots(ctx context.Context, date time.Time, strict bool) (*model.AvailableSlotsResponse, error)
}

type service struct {
	repo      repository.AppointmentRepository
	users     repository.UserRepository
	pricing   pricing.Service
	notifier  notification.Service
	checkout  Checkout
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	log       *logger.Logger
}

func NewService(
	repo repository.AppointmentRepository,
	users repository.UserRepository,
	pricingSvc pricing.Service,
	notifier notification.Service,
	checkout Checkout,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	log *logger.Logger,
) Service {
	return &service{
		repo:      repo,
		users:     users,
		pricing:   pricingSvc,
		notifier:  notifier,
		checkout:  checkout,
		publisher: publisher,
		metrics:   m,
		log:       log.Component("appointment"),
	}
}

// Create books a slot. The appointment is persisted as pending first; the
// checkout link and the confirmation mail are best-effort afterwards.
func (s *service) Create(ctx context.Context, req *model.CreateAppointmentRequest) (result *model.CreatedAppointment, err error) {
	defer func() { s.record("create", err) }()

	appointment, err := newAppointment(req)
	if err != nil {
		return nil, err
	}

	if err := schedule.Validate(appointment.Date, appointment.StartTime); err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}

	customer, err := s.customer(ctx, appointment.CustomerID)
	if err != nil {
		return nil, err
	}

	if req.Price != nil {
		appointment.Price = *req.Price
	} else {
		appointment.Price = s.pricing.GetPrice(ctx, appointment.ServiceType, appointment.PetSize)
	}
	if appointment.Price == 0 {
		s.log.Warn("Booking an unpriced appointment",
			"service_type", appointment.ServiceType, "pet_size", appointment.PetSize)
	}

	if err := s.repo.CreateIfFree(ctx, appointment); err != nil {
		return nil, s.storeError(err, "failed to save appointment")
	}
	s.metrics.AppointmentsCreated.Inc()
	appointment.CustomerName = customer.FullName()
	appointment.CustomerEmail = customer.Email

	result = &model.CreatedAppointment{Appointment: appointment}

	if appointment.Price > 0 {
		pref, err := s.checkout.PreferenceFor(ctx, appointment, customer)
		if err != nil {
			s.log.Error(err, "Checkout link could not be created", "appointment_id", appointment.ID)
		} else {
			result.CheckoutURL = pref.CheckoutURL
		}
	}

	if err := s.notifier.SendAppointmentConfirmation(ctx, customer, appointment, result.CheckoutURL); err != nil {
		s.log.Error(err, "Confirmation mail failed", "appointment_id", appointment.ID)
	}

	s.publish(ctx, messaging.EventAppointmentCreated, appointment)
	s.log.Info("Appointment booked", "appointment_id", appointment.ID,
		"date", appointment.DateString(), "start", appointment.StartTime.String())

	return result, nil
}

// Update applies the present fields. Moving the appointment re-runs every
// booking rule and the overlap check, ignoring the appointment itself.
func (s *service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateAppointmentRequest) (updated *model.Appointment, err error) {
	defer func() { s.record("update", err) }()

	if req.IsEmpty() {
		return nil, errors.BadRequest("no fields to update", nil)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "failed to load appointment")
	}

	changes, err := parseChanges(req)
	if err != nil {
		return nil, err
	}
	if changes.CustomerID != nil {
		if _, err := s.customer(ctx, *changes.CustomerID); err != nil {
			return nil, err
		}
	}

	next := *current
	changes.Apply(&next)

	var slot *schedule.Booking
	if changes.Reschedules() {
		if err := schedule.Validate(next.Date, next.StartTime); err != nil {
			return nil, errors.BadRequest(err.Error(), err)
		}
		booking := next.Booking()
		slot = &booking
	}

	if changes.Reprices() {
		price := s.pricing.GetPrice(ctx, next.ServiceType, next.PetSize)
		changes.Price = &price
	}

	if err := s.repo.UpdateIfFree(ctx, id, changes, slot); err != nil {
		return nil, s.storeError(err, "failed to update appointment")
	}

	updated, err = s.repo.GetWithCustomer(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "failed to reload appointment")
	}

	s.publish(ctx, messaging.EventAppointmentUpdated, updated)

	if err := s.notifier.SendAppointmentModified(ctx, updated.CustomerEmail, updated); err != nil {
		return nil, errors.Dependency("appointment updated but the notification could not be sent", err)
	}

	return updated, nil
}

func (s *service) Remove(ctx context.Context, id uuid.UUID) (removed bool, err error) {
	defer func() { s.record("delete", err) }()

	if err := s.repo.Delete(ctx, id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, errors.Dependency("failed to delete appointment", err)
	}

	s.publish(ctx, messaging.EventAppointmentDeleted, map[string]string{"id": id.String()})
	return true, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.repo.GetWithCustomer(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "failed to load appointment")
	}
	return appointment, nil
}

func (s *service) List(ctx context.Context) ([]*model.Appointment, error) {
	appointments, err := s.repo.List(ctx, &model.AppointmentFilters{})
	if err != nil {
		return nil, errors.Dependency("failed to list appointments", err)
	}
	return appointments, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.Appointment, error) {
	appointments, err := s.repo.List(ctx, &model.AppointmentFilters{CustomerID: &customerID})
	if err != nil {
		return nil, errors.Dependency("failed to list appointments", err)
	}
	return appointments, nil
}

func (s *service) ListAvailableSlots(ctx context.Context, date time.Time, strict bool) (*model.AvailableSlotsResponse, error) {
	date = schedule.Day(date)
	resp := &model.AvailableSlotsResponse{Date: date.Format(schedule.DateLayout), Slots: []schedule.Clock{}}
	if !schedule.IsBusinessDay(date) {
		return resp, nil
	}

	booked, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return nil, errors.Dependency("failed to load the day's appointments", err)
	}

	existing := make([]schedule.Booking, 0, len(booked))
	for _, a := range booked {
		existing = append(existing, a.Booking())
	}

	if strict {
		resp.Slots = schedule.BookableSlots(date, existing)
	} else {
		resp.Slots = schedule.AvailableSlots(date, existing)
	}
	return resp, nil
}

func (s *service) customer(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("customer", err)
		}
		return nil, errors.Dependency("failed to load customer", err)
	}
	return user, nil
}

func (s *service) storeError(err error, message string) error {
	switch {
	case stderrors.Is(err, repository.ErrNotFound):
		return errors.NotFound("appointment", err)
	case stderrors.Is(err, repository.ErrSlotTaken):
		s.metrics.BookingConflicts.Inc()
		return errors.Conflict(schedule.ErrSlotConflicts.Error(), err)
	default:
		return errors.Dependency(message, err)
	}
}

func (s *service) record(operation string, err error) {
	s.metrics.AppointmentOperations.WithLabelValues(operation, metrics.StatusLabel(err)).Inc()
}

func (s *service) publish(ctx context.Context, eventType string, payload interface{}) {
	err := s.publisher.Publish(ctx, eventType, payload)
	s.metrics.EventsPublished.WithLabelValues(eventType, metrics.StatusLabel(err)).Inc()
	if err != nil {
		s.log.Warn("Event not published", "type", eventType, "error", err.Error())
	}
}

func newAppointment(req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, errors.BadRequest("invalid customer id", err)
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}
	size, err := model.ParsePetSize(req.PetSize)
	if err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}
	serviceType, err := model.ParseServiceType(req.ServiceType)
	if err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}

	return &model.Appointment{
		ID:            uuid.New(),
		CustomerID:    customerID,
		PetName:       req.PetName,
		Date:          date,
		StartTime:     start,
		PetSize:       size,
		ServiceType:   serviceType,
		PaymentStatus: model.PaymentStatusPending,
	}, nil
}

func parseChanges(req *model.UpdateAppointmentRequest) (*model.AppointmentChanges, error) {
	changes := &model.AppointmentChanges{PetName: req.PetName, Price: req.Price}

	if req.CustomerID != nil {
		id, err := uuid.Parse(*req.CustomerID)
		if err != nil {
			return nil, errors.BadRequest("invalid customer id", err)
		}
		changes.CustomerID = &id
	}
	if req.Date != nil {
		date, err := schedule.ParseDate(*req.Date)
		if err != nil {
			return nil, errors.BadRequest(err.Error(), err)
		}
		changes.Date = &date
	}
	if req.StartTime != nil {
		start, err := schedule.ParseClock(*req.StartTime)
		if err != nil {
			return nil, errors.BadRequest(err.Error(), err)
		}
		changes.StartTime = &start
	}
	if req.PetSize != nil {
		size, err := model.ParsePetSize(*req.PetSize)
		if err != nil {
			return nil, errors.BadRequest(err.Error(), err)
		}
		changes.PetSize = &size
	}
	if req.ServiceType != nil {
		serviceType, err := model.ParseServiceType(*req.ServiceType)
		if err != nil {
			return nil, errors.BadRequest(err.Error(), err)
		}
		changes.ServiceType = &serviceType
	}

	return changes, nil
}
