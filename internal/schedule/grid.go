// Package schedule holds the single grooming line's daily slot grid and the
// rules that decide whether a start time can be booked. Everything here is pure.
package schedule

import (
	"errors"
	"time"
)

const (
	SlotLength          = 30 * time.Minute
	AppointmentDuration = 90 * time.Minute
	SlotsPerAppointment = int(AppointmentDuration / SlotLength)
)

var (
	OpeningTime = NewClock(8, 0)
	ClosingTime = NewClock(18, 0)
)

var (
	ErrWeekend       = errors.New("appointments can only be booked Monday to Friday")
	ErrOutsideHours  = errors.New("business hours are 08:00 to 18:00")
	ErrMisaligned    = errors.New("appointments must start on the hour or half past")
	ErrPastClosing   = errors.New("appointment would end after 18:00")
	ErrSlotConflicts = errors.New("time slot already booked")
)

// IsBusinessDay reports whether date falls Monday to Friday.
func IsBusinessDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// GenerateSlots returns every bookable start for date in ascending order.
// A start is bookable when start+AppointmentDuration ends at or before
// ClosingTime, so the last slot of the day is 16:30. Weekends yield an empty,
// non-nil slice.
func GenerateSlots(date time.Time) []Clock {
	slots := make([]Clock, 0, 2*int(ClosingTime-OpeningTime)/60)
	if !IsBusinessDay(date) {
		return slots
	}
	for c := OpeningTime; c.Add(AppointmentDuration) <= ClosingTime; c = c.Add(SlotLength) {
		slots = append(slots, c)
	}
	return slots
}

// Validate applies the booking rules in order: business day, business hours,
// slot alignment, closing time.
func Validate(date time.Time, start Clock) error {
	if !IsBusinessDay(date) {
		return ErrWeekend
	}

	hour, minute := start.Hour(), start.Minute()
	if hour < OpeningTime.Hour() || hour > ClosingTime.Hour() || (hour == ClosingTime.Hour() && minute > 0) {
		return ErrOutsideHours
	}

	if minute != 0 && minute != 30 {
		return ErrMisaligned
	}

	if start.Add(AppointmentDuration) > ClosingTime {
		return ErrPastClosing
	}

	return nil
}
