package model

import (
	"strings"

	"github.com/google/uuid"
)

// User is the slice of a customer record the scheduler reads for notifications.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
