package model

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// paymentTransitions lists, per target status, the statuses it may be reached from.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPaid:     {PaymentStatusPending, PaymentStatusFailed},
	PaymentStatusRefunded: {PaymentStatusPending, PaymentStatusPaid},
	PaymentStatusFailed:   {PaymentStatusPending},
}

// AllowedSources returns the statuses from which s may be entered.
func (s PaymentStatus) AllowedSources() []PaymentStatus {
	return paymentTransitions[s]
}

// CanTransition reports whether a payment in status s may move to to.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, from := range paymentTransitions[to] {
		if from == s {
			return true
		}
	}
	return false
}

// Provider payment statuses as reported by MercadoPago.
const (
	ProviderStatusApproved  = "approved"
	ProviderStatusRefunded  = "refunded"
	ProviderStatusRejected  = "rejected"
	ProviderStatusCancelled = "cancelled"
	ProviderStatusPending   = "pending"
)

// MapProviderStatus translates a provider status into the internal one.
// Anything unrecognised keeps the booking pending.
func MapProviderStatus(providerStatus string) PaymentStatus {
	switch strings.ToLower(providerStatus) {
	case ProviderStatusApproved:
		return PaymentStatusPaid
	case ProviderStatusRefunded:
		return PaymentStatusRefunded
	case ProviderStatusRejected, ProviderStatusCancelled:
		return PaymentStatusFailed
	default:
		return PaymentStatusPending
	}
}

const PaymentEventType = "payment"

// PaymentEvent is the webhook notification body. Only the identifiers are
// trusted; the payment itself is always re-fetched from the provider.
type PaymentEvent struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// PaymentID returns the provider payment id carried by the event.
func (e *PaymentEvent) PaymentID() string {
	return e.Data.ID
}

// ProviderPayment is what the provider reports for a payment id.
type ProviderPayment struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	StatusDetail      string     `json:"statusDetail,omitempty"`
	ExternalReference string     `json:"externalReference"`
	Amount            float64    `json:"amount"`
	DateApproved      *time.Time `json:"dateApproved,omitempty"`
}

// PaymentUpdate is written onto an appointment or order.
type PaymentUpdate struct {
	Status    PaymentStatus
	PaymentID string
	PaidAt    time.Time
}

type ReconciledEntity string

const (
	ReconciledAppointment ReconciledEntity = "appointment"
	ReconciledOrder       ReconciledEntity = "order"
)

// ReconciliationSummary records the outcome of one webhook delivery.
type ReconciliationSummary struct {
	Entity            ReconciledEntity `json:"entity,omitempty"`
	AppointmentID     string           `json:"appointmentId"`
	Status            PaymentStatus    `json:"status"`
	ProviderPaymentID string           `json:"providerPaymentId"`
	ProviderStatus    string           `json:"providerStatus"`
	Applied           bool             `json:"applied"`
	Reason            string           `json:"reason,omitempty"`
}

// PreferenceItem describes the single item of a checkout preference.
type PreferenceItem struct {
	ID          string
	Title       string
	Description string
	UnitPrice   float64
}

type PreferenceRequest struct {
	Item              PreferenceItem
	PayerEmail        string
	ExternalReference string
}

type Preference struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
}
