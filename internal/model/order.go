package model

import (
	"time"

	"github.com/google/uuid"
)

// Order is a shop purchase paid through the same checkout as appointments.
type Order struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	CustomerID    uuid.UUID     `db:"user_id" json:"customerId"`
	Total         float64       `db:"total" json:"total"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"paymentStatus"`
	PaymentID     *string       `db:"payment_id" json:"paymentId"`
	PaymentDate   *time.Time    `db:"payment_date" json:"paymentDate"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`
}
