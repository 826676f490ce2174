package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/provider/mercadopago"
	"github.com/lessslie/Pelu-PetShop/internal/repository"
	"github.com/lessslie/Pelu-PetShop/internal/service/notification"
	"github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/logger"
	"github.com/lessslie/Pelu-PetShop/pkg/messaging"
	"github.com/lessslie/Pelu-PetShop/pkg/metrics"
)

// Provider is the subset of the payment provider API the shop uses.
type Provider interface {
	CreatePreference(ctx context.Context, req *model.PreferenceRequest) (*model.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*model.ProviderPayment, error)
}

type Service interface {
	// HandleEvent reconciles one webhook delivery. Non-payment events yield a
	// nil summary. Only a failed provider lookup is reported as an error, so
	// the provider retries; storage problems are logged and swallowed.
	HandleEvent(ctx context.Context, event *model.PaymentEvent) (*model.ReconciliationSummary, error)
	CreatePreference(ctx context.Context, appointmentID uuid.UUID) (*model.Preference, error)
	PreferenceFor(ctx context.Context, appointment *model.Appointment, customer *model.User) (*model.Preference, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*model.ProviderPayment, error)
}

const (
	outcomeIgnored       = "ignored"
	outcomeApplied       = "applied"
	outcomeSkipped       = "skipped"
	outcomeProviderError = "provider_error"
	outcomeStoreError    = "store_error"
)

type service struct {
	appointments repository.AppointmentRepository
	orders       repository.OrderRepository
	users        repository.UserRepository
	provider     Provider
	notifier     notification.Service
	publisher    messaging.Publisher
	metrics      *metrics.Metrics
	log          *logger.Logger
	now          func() time.Time
}

func NewService(
	appointments repository.AppointmentRepository,
	orders repository.OrderRepository,
	users repository.UserRepository,
	provider Provider,
	notifier notification.Service,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	log *logger.Logger,
) Service {
	return &service{
		appointments: appointments,
		orders:       orders,
		users:        users,
		provider:     provider,
		notifier:     notifier,
		publisher:    publisher,
		metrics:      m,
		log:          log.Component("payment"),
		now:          time.Now,
	}
}

func (s *service) HandleEvent(ctx context.Context, event *model.PaymentEvent) (*model.ReconciliationSummary, error) {
	if event.Type != model.PaymentEventType {
		s.metrics.WebhookEvents.WithLabelValues(outcomeIgnored).Inc()
		s.log.Debug("Ignoring webhook event", "type", event.Type)
		return nil, nil
	}

	paymentID := event.PaymentID()
	if paymentID == "" {
		s.metrics.WebhookEvents.WithLabelValues(outcomeIgnored).Inc()
		return nil, errors.BadRequest("payment event carries no payment id", nil)
	}

	payment, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues(outcomeProviderError).Inc()
		return nil, errors.Dependency("failed to fetch payment from provider", err)
	}

	status := model.MapProviderStatus(payment.Status)
	summary := &model.ReconciliationSummary{
		AppointmentID:     payment.ExternalReference,
		Status:            status,
		ProviderPaymentID: payment.ID,
		ProviderStatus:    payment.Status,
	}
	log := s.log.WithFields(map[string]interface{}{
		"payment_id":         payment.ID,
		"external_reference": payment.ExternalReference,
		"status":             status,
	})

	ref, err := uuid.Parse(payment.ExternalReference)
	if err != nil {
		summary.Reason = "external reference is not a known id"
		log.Warn("Payment without a usable external reference")
		return s.finish(ctx, summary, outcomeSkipped), nil
	}

	update := &model.PaymentUpdate{Status: status, PaymentID: payment.ID, PaidAt: s.now().UTC()}

	appointment, err := s.appointments.Get(ctx, ref)
	switch {
	case err == nil:
		summary.Entity = model.ReconciledAppointment
		err = s.reconcileAppointment(ctx, appointment, update, summary)
	case stderrors.Is(err, repository.ErrNotFound):
		summary.Entity = model.ReconciledOrder
		err = s.reconcileOrder(ctx, ref, update, summary)
	}
	if err != nil {
		summary.Reason = "storage error"
		log.Error(err, "Payment could not be recorded")
		return s.finish(ctx, summary, outcomeStoreError), nil
	}

	outcome := outcomeSkipped
	if summary.Applied {
		outcome = outcomeApplied
	}
	log.Info("Payment reconciled", "entity", summary.Entity, "applied", summary.Applied, "reason", summary.Reason)
	return s.finish(ctx, summary, outcome), nil
}

func (s *service) reconcileAppointment(ctx context.Context, appointment *model.Appointment, update *model.PaymentUpdate, summary *model.ReconciliationSummary) error {
	applied, reason, err := s.transition(ctx, appointment.PaymentStatus, update, func() (bool, error) {
		return s.appointments.UpdatePayment(ctx, appointment.ID, update)
	}, func() (model.PaymentStatus, error) {
		current, err := s.appointments.Get(ctx, appointment.ID)
		if err != nil {
			return "", err
		}
		return current.PaymentStatus, nil
	})
	if err != nil {
		return err
	}
	summary.Applied, summary.Reason = applied, reason

	if applied && reason == "" && update.Status == model.PaymentStatusPaid {
		appointment.PaymentStatus = update.Status
		appointment.PaymentID = &update.PaymentID
		appointment.PaymentDate = &update.PaidAt
		s.notifyPaid(ctx, appointment, update.PaymentID)
	}
	return nil
}

func (s *service) reconcileOrder(ctx context.Context, id uuid.UUID, update *model.PaymentUpdate, summary *model.ReconciliationSummary) error {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			summary.Entity = ""
			summary.Reason = "no appointment or order matches the reference"
			return nil
		}
		return err
	}

	applied, reason, err := s.transition(ctx, order.PaymentStatus, update, func() (bool, error) {
		return s.orders.UpdatePayment(ctx, id, update)
	}, func() (model.PaymentStatus, error) {
		current, err := s.orders.Get(ctx, id)
		if err != nil {
			return "", err
		}
		return current.PaymentStatus, nil
	})
	summary.Applied, summary.Reason = applied, reason
	return err
}

// transition runs the guarded state machine. A delivery that finds the
// target status already in place counts as applied, with a reason.
func (s *service) transition(
	ctx context.Context,
	current model.PaymentStatus,
	update *model.PaymentUpdate,
	write func() (bool, error),
	reload func() (model.PaymentStatus, error),
) (bool, string, error) {
	if current == update.Status {
		return true, "already " + string(current), nil
	}
	if !current.CanTransition(update.Status) {
		return false, fmt.Sprintf("transition %s -> %s not allowed", current, update.Status), nil
	}

	ok, err := write()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}

	// Lost a race with another delivery; see where the row ended up.
	latest, err := reload()
	if err != nil {
		return false, "", err
	}
	if latest == update.Status {
		return true, "already " + string(latest), nil
	}
	return false, fmt.Sprintf("transition %s -> %s not allowed", latest, update.Status), nil
}

func (s *service) notifyPaid(ctx context.Context, appointment *model.Appointment, paymentID string) {
	customer, err := s.users.Get(ctx, appointment.CustomerID)
	if err != nil {
		s.log.Error(err, "Customer lookup for payment mail failed", "appointment_id", appointment.ID)
		return
	}
	if err := s.notifier.SendPaymentConfirmed(ctx, customer, appointment, paymentID); err != nil {
		s.log.Error(err, "Payment confirmation mail failed", "appointment_id", appointment.ID)
	}
}

func (s *service) finish(ctx context.Context, summary *model.ReconciliationSummary, outcome string) *model.ReconciliationSummary {
	s.metrics.WebhookEvents.WithLabelValues(outcome).Inc()

	err := s.publisher.Publish(ctx, messaging.EventPaymentReconciled, summary)
	s.metrics.EventsPublished.WithLabelValues(messaging.EventPaymentReconciled, metrics.StatusLabel(err)).Inc()
	if err != nil {
		s.log.Warn("Event not published", "type", messaging.EventPaymentReconciled, "error", err.Error())
	}
	return summary
}

func (s *service) CreatePreference(ctx context.Context, appointmentID uuid.UUID) (*model.Preference, error) {
	appointment, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("appointment", err)
		}
		return nil, errors.Dependency("failed to load appointment", err)
	}

	customer, err := s.users.Get(ctx, appointment.CustomerID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("customer", err)
		}
		return nil, errors.Dependency("failed to load customer", err)
	}

	return s.PreferenceFor(ctx, appointment, customer)
}

func (s *service) PreferenceFor(ctx context.Context, appointment *model.Appointment, customer *model.User) (*model.Preference, error) {
	if appointment.Price <= 0 {
		return nil, errors.Dependency("appointment is not priced", nil)
	}
	if appointment.PaymentStatus == model.PaymentStatusPaid {
		return nil, errors.Conflict("appointment is already paid", nil)
	}

	pref, err := s.provider.CreatePreference(ctx, &model.PreferenceRequest{
		Item: model.PreferenceItem{
			ID:          appointment.ID.String(),
			Title:       fmt.Sprintf("Servicio de %s para %s", appointment.ServiceType.Label(), appointment.PetName),
			Description: fmt.Sprintf("Turno para el %s a las %s", appointment.Date.Format("02/01/2006"), appointment.StartTime),
			UnitPrice:   appointment.Price,
		},
		PayerEmail:        customer.Email,
		ExternalReference: appointment.ID.String(),
	})
	if err != nil {
		return nil, errors.Dependency("failed to create payment preference", err)
	}
	return pref, nil
}

func (s *service) GetPaymentStatus(ctx context.Context, paymentID string) (*model.ProviderPayment, error) {
	payment, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		var apiErr *mercadopago.APIError
		if stderrors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusNotFound:
				return nil, errors.NotFound("payment", err)
			case http.StatusBadRequest:
				return nil, errors.BadRequest(apiErr.Message, err)
			}
		}
		return nil, errors.Dependency("failed to fetch payment from provider", err)
	}
	return payment, nil
}
