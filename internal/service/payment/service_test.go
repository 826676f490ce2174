package payment

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/provider/mercadopago"
	"github.com/lessslie/Pelu-PetShop/internal/repository"
	"github.com/lessslie/Pelu-PetShop/internal/schedule"
	"github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/logger"
	"github.com/lessslie/Pelu-PetShop/pkg/messaging"
	"github.com/lessslie/Pelu-PetShop/pkg/metrics"
)

type MockAppointmentRepository struct {
	repository.AppointmentRepository
	mock.Mock
}

func (m *MockAppointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) UpdatePayment(ctx context.Context, id uuid.UUID, update *model.PaymentUpdate) (bool, error) {
	args := m.Called(ctx, id, update)
	return args.Bool(0), args.Error(1)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdatePayment(ctx context.Context, id uuid.UUID, update *model.PaymentUpdate) (bool, error) {
	args := m.Called(ctx, id, update)
	return args.Bool(0), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreatePreference(ctx context.Context, req *model.PreferenceRequest) (*model.Preference, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Preference), args.Error(1)
}

func (m *MockProvider) GetPayment(ctx context.Context, paymentID string) (*model.ProviderPayment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderPayment), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendAppointmentConfirmation(ctx context.Context, customer *model.User, a *model.Appointment, checkoutURL string) error {
	return m.Called(ctx, customer, a, checkoutURL).Error(0)
}

func (m *MockNotifier) SendAppointmentModified(ctx context.Context, to string, a *model.Appointment) error {
	return m.Called(ctx, to, a).Error(0)
}

func (m *MockNotifier) SendPaymentConfirmed(ctx context.Context, customer *model.User, a *model.Appointment, paymentID string) error {
	return m.Called(ctx, customer, a, paymentID).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return m.Called(ctx, eventType, payload).Error(0)
}

type fixture struct {
	appointments *MockAppointmentRepository
	orders       *MockOrderRepository
	users        *MockUserRepository
	provider     *MockProvider
	notifier     *MockNotifier
	publisher    *MockPublisher
	svc          Service
	customer     *model.User
	paidAt       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		appointments: new(MockAppointmentRepository),
		orders:       new(MockOrderRepository),
		users:        new(MockUserRepository),
		provider:     new(MockProvider),
		notifier:     new(MockNotifier),
		publisher:    new(MockPublisher),
		customer:     &model.User{ID: uuid.New(), Email: "ana@example.com", FirstName: "Ana"},
		paidAt:       time.Date(2026, 10, 20, 15, 4, 5, 0, time.UTC),
	}
	svc := NewService(f.appointments, f.orders, f.users, f.provider, f.notifier, f.publisher, metrics.NewNop(), logger.Nop()).(*service)
	svc.now = func() time.Time { return f.paidAt }
	f.svc = svc
	f.users.On("Get", mock.Anything, f.customer.ID).Return(f.customer, nil).Maybe()
	f.publisher.On("Publish", mock.Anything, messaging.EventPaymentReconciled, mock.Anything).Return(nil).Maybe()
	return f
}

func (f *fixture) appointment(status model.PaymentStatus) *model.Appointment {
	return &model.Appointment{
		ID:            uuid.New(),
		CustomerID:    f.customer.ID,
		PetName:       "Firulais",
		Date:          time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC),
		StartTime:     schedule.NewClock(10, 0),
		PetSize:       model.PetSizeMedium,
		ServiceType:   model.ServiceBath,
		Price:         3000,
		PaymentStatus: status,
	}
}

func paymentEvent(id string) *model.PaymentEvent {
	event := &model.PaymentEvent{Type: model.PaymentEventType, Action: "payment.updated"}
	event.Data.ID = id
	return event
}

func TestHandleEvent_IgnoresOtherTypes(t *testing.T) {
	f := newFixture()

	summary, err := f.svc.HandleEvent(context.Background(), &model.PaymentEvent{Type: "merchant_order"})

	assert.NoError(t, err)
	assert.Nil(t, summary)
	f.provider.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)
}

func TestHandleEvent_ProviderFailurePropagates(t *testing.T) {
	f := newFixture()
	f.provider.On("GetPayment", mock.Anything, "99").Return(nil, stderrors.New("timeout"))

	_, err := f.svc.HandleEvent(context.Background(), paymentEvent("99"))

	assert.True(t, errors.Is(err, errors.ErrDependency))
}

func TestHandleEvent_ApprovedMarksPaidAndNotifies(t *testing.T) {
	f := newFixture()
	a := f.appointment(model.PaymentStatusPending)
	f.provider.On("GetPayment", mock.Anything, "123").Return(&model.ProviderPayment{
		ID: "123", Status: "approved", ExternalReference: a.ID.String(),
	}, nil)
	f.appointments.On("Get", mock.Anything, a.ID).Return(a, nil)
	f.appointments.On("UpdatePayment", mock.Anything, a.ID, &model.PaymentUpdate{
		Status: model.PaymentStatusPaid, PaymentID: "123", PaidAt: f.paidAt,
	}).Return(true, nil)
	f.notifier.On("SendPaymentConfirmed", mock.Anything, f.customer, a, "123").Return(nil)

	summary, err := f.svc.HandleEvent(context.Background(), paymentEvent("123"))

	require.NoError(t, err)
	assert.Equal(t, model.ReconciledAppointment, summary.Entity)
	assert.Equal(t, a.ID.String(), summary.AppointmentID)
	assert.Equal(t, model.PaymentStatusPaid, summary.Status)
	assert.Equal(t, "123", summary.ProviderPaymentID)
	assert.True(t, summary.Applied)
	assert.Empty(t, summary.Reason)
	assert.Equal(t, model.PaymentStatusPaid, a.PaymentStatus)
	f.notifier.AssertExpectations(t)
	f.publisher.AssertCalled(t, "Publish", mock.Anything, messaging.EventPaymentReconciled, summary)
}

func TestHandleEvent_DuplicateApprovedIsNoop(t *testing.T) {
	f := newFixture()
	a := f.appointment(model.PaymentStatusPaid)
	f.provider.On("GetPayment", mock.Anything, "123").Return(&model.ProviderPayment{
		ID: "123", Status: "approved", ExternalReference: a.ID.String(),
	}, nil)
	f.appointments.On("Get", mock.Anything, a.ID).Return(a, nil)

	summary, err := f.svc.HandleEvent(context.Background(), paymentEvent("123"))

	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, summary.Status)
	assert.True(t, summary.Applied)
	assert.Equal(t, "already paid", summary.Reason)
	f.appointments.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "SendPaymentConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_LostRaceToDuplicate(t *testing.T) {
	f := newFixture()
	a := f.appointment(model.PaymentStatusPending)
	paid := f.appointment(model.PaymentStatusPaid)
	paid.ID = a.ID
	f.provider.On("GetPayment", mock.Anything, "123").Return(&model.ProviderPayment{
		ID: "123", Status: "approved", ExternalReference: a.ID.String(),
	}, nil)
	f.appointments.On("Get", mock.Anything, a.ID).Return(a, nil).Once()
	f.appointments.On("Get", mock.Anything, a.ID).Return(paid, nil).Once()
	f.appointments.On("UpdatePayment", mock.Anything, a.ID, mock.Anything).Return(false, nil)

	summary, err := f.svc.HandleEvent(context.Background(), paymentEvent("123"))

	require.NoError(t, err)
	assert.True(t, summary.Applied)
	assert.Equal(t, "already paid", summary.Reason)
	f.notifier.AssertNotCalled(t, "SendPaymentConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_RejectsDisallowedTransition(t *testing.T) {
	f := newFixture()
	a := f.appointment(model.PaymentStatusPaid)
	f.provider.On("GetPayment", mock.Anything, "124").Return(&model.ProviderPayment{
		ID: "124", Status: "rejected", ExternalReference: a.ID.String(),
	}, nil)
	f.appointments.On("Get", mock.Anything, a.ID).Return(a, nil)

	summary, err := f.svc.HandleEvent(context.Background(), paymentEvent("124"))

	require.NoError(t, err)
	assert.False(t, summary.Applied)
	assert.Equal(t, model.PaymentStatusFailed, summary.Status)
	assert.Contains(t, summary.Reason, "paid -> failed")
	f.appointments.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_StorageErrorStillSucceeds(t *testing.T) {
	f := newFixture()
	a := f.appointment(model.PaymentStatusPending)
	f.provider.On("GetPayment", mock.Anything, "125").Return(&model.ProviderPayment{
		ID: "125", Status: "approved", ExternalReference: a.ID.String(),
	}, nil)
	f.appointments.On("Get", mock.Anything, a.ID).Return(a, nil)
	f.appointments.On("UpdatePayment", mock.Anything, a.ID, mock.Anything).Return(false, stderrors.New("connection reset"))

	summary, err := f.svc.HandleEvent(context.Background(), paymentEvent("125"))

	require.NoError(t, err)
	assert.False(t, summary.Applied)
	assert.Equal(t, "storage error", summary.Reason)
}

func TestHandleEvent_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	a := f.appointment(model.PaymentStatusFailed)
	f.provider.On("GetPayment", mock.Anything, "126").Return(&model.ProviderPayment{
		ID: "126", Status: "approved", ExternalReference: a.ID.String(),
	}, nil)
	f.appointments.On("Get", mock.Anything, a.ID).Return(a, nil)
	f.appointments.On("UpdatePayment", mock.Anything, a.ID, mock.Anything).Return(true, nil)
	f.notifier.On("SendPaymentConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(stderrors.New("smtp down"))

	summary, err := f.svc.HandleEvent(context.Background(), paymentEvent("126"))

	require.NoError(t, err)
	assert.True(t, summary.Applied)
}

func TestHandleEvent_FallsBackToOrders(t *testing.T) {
	f := newFixture()
	orderID := uuid.New()
	f.provider.On("GetPayment", mock.Anything, "200").Return(&model.ProviderPayment{
		ID: "200", Status: "approved", ExternalReference: orderID.String(),
	}, nil)
	f.appointments.On("Get", mock.Anything, orderID).Return(nil, repository.ErrNotFound)
	f.orders.On("Get", mock.Anything, orderID).Return(&model.Order{ID: orderID, PaymentStatus: model.PaymentStatusPending}, nil)
	f.orders.On("UpdatePayment", mock.Anything, orderID, mock.Anything).Return(true, nil)

	summary, err := f.svc.HandleEvent(context.Background(), paymentEvent("200"))

	require.NoError(t, err)
	assert.Equal(t, model.ReconciledOrder, summary.Entity)
	assert.True(t, summary.Applied)
	f.notifier.AssertNotCalled(t, "SendPaymentConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_UnknownReference(t *testing.T) {
	f := newFixture()
	ref := uuid.New()
	f.provider.On("GetPayment", mock.Anything, "201").Return(&model.ProviderPayment{
		ID: "201", Status: "approved", ExternalReference: ref.String(),
	}, nil)
	f.appointments.On("Get", mock.Anything, ref).Return(nil, repository.ErrNotFound)
	f.orders.On("Get", mock.Anything, ref).Return(nil, repository.ErrNotFound)

	summary, err := f.svc.HandleEvent(context.Background(), paymentEvent("201"))

	require.NoError(t, err)
	assert.False(t, summary.Applied)
	assert.NotEmpty(t, summary.Reason)
}

func TestPreferenceFor(t *testing.T) {
	t.Run("builds the checkout item", func(t *testing.T) {
		f := newFixture()
		a := f.appointment(model.PaymentStatusPending)
		f.provider.On("CreatePreference", mock.Anything, &model.PreferenceRequest{
			Item: model.PreferenceItem{
				ID:          a.ID.String(),
				Title:       "Servicio de baño para Firulais",
				Description: "Turno para el 21/10/2026 a las 10:00",
				UnitPrice:   3000,
			},
			PayerEmail:        "ana@example.com",
			ExternalReference: a.ID.String(),
		}).Return(&model.Preference{ID: "pref", CheckoutURL: "https://mp.example/pay"}, nil)

		pref, err := f.svc.PreferenceFor(context.Background(), a, f.customer)

		require.NoError(t, err)
		assert.Equal(t, "https://mp.example/pay", pref.CheckoutURL)
	})

	t.Run("unpriced appointment", func(t *testing.T) {
		f := newFixture()
		a := f.appointment(model.PaymentStatusPending)
		a.Price = 0

		_, err := f.svc.PreferenceFor(context.Background(), a, f.customer)

		assert.True(t, errors.Is(err, errors.ErrDependency))
		assert.Contains(t, err.Error(), "not priced")
	})
}

func TestCreatePreference_UnknownAppointment(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.appointments.On("Get", mock.Anything, id).Return(nil, repository.ErrNotFound)

	_, err := f.svc.CreatePreference(context.Background(), id)

	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestGetPaymentStatus_MapsProviderErrors(t *testing.T) {
	f := newFixture()
	f.provider.On("GetPayment", mock.Anything, "404").Return(nil, &mercadopago.APIError{StatusCode: http.StatusNotFound, Message: "not found"})
	f.provider.On("GetPayment", mock.Anything, "500").Return(nil, &mercadopago.APIError{StatusCode: http.StatusInternalServerError})

	_, err := f.svc.GetPaymentStatus(context.Background(), "404")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = f.svc.GetPaymentStatus(context.Background(), "500")
	assert.True(t, errors.Is(err, errors.ErrDependency))
}
