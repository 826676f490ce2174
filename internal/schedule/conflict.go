package schedule

import "time"

// Booking is the part of an appointment the conflict detector cares about.
type Booking struct {
	Date  time.Time
	Start Clock
}

func (b Booking) End() Clock {
	return b.Start.Add(AppointmentDuration)
}

// OccupiedSlots marks the start slot of every booking on date plus the
// following SlotsPerAppointment-1 slots. Only slots of the day's grid are
// returned.
func OccupiedSlots(date time.Time, existing []Booking) map[Clock]struct{} {
	grid := make(map[Clock]struct{})
	for _, s := range GenerateSlots(date) {
		grid[s] = struct{}{}
	}

	occupied := make(map[Clock]struct{})
	for _, b := range existing {
		if !SameDay(b.Date, date) {
			continue
		}
		slot := b.Start
		for i := 0; i < SlotsPerAppointment; i++ {
			if _, ok := grid[slot]; ok {
				occupied[slot] = struct{}{}
			}
			slot = slot.Add(SlotLength)
		}
	}
	return occupied
}

// AvailableSlots is GenerateSlots minus OccupiedSlots, in grid order.
func AvailableSlots(date time.Time, existing []Booking) []Clock {
	occupied := OccupiedSlots(date, existing)
	available := make([]Clock, 0)
	for _, s := range GenerateSlots(date) {
		if _, taken := occupied[s]; !taken {
			available = append(available, s)
		}
	}
	return available
}

// BookableSlots narrows AvailableSlots to the starts whose whole 90-minute
// interval is free, i.e. the starts Conflicts would accept.
func BookableSlots(date time.Time, existing []Booking) []Clock {
	bookable := make([]Clock, 0)
	for _, s := range AvailableSlots(date, existing) {
		if len(Conflicts(date, s, existing)) == 0 {
			bookable = append(bookable, s)
		}
	}
	return bookable
}

// Overlaps tests the half-open intervals [a, a+90m) and [b, b+90m).
func Overlaps(a, b Clock) bool {
	return a < b.Add(AppointmentDuration) && b < a.Add(AppointmentDuration)
}

// Conflicts returns the bookings on date whose interval intersects the one
// starting at candidate.
func Conflicts(date time.Time, candidate Clock, existing []Booking) []Booking {
	var hits []Booking
	for _, b := range existing {
		if SameDay(b.Date, date) && Overlaps(candidate, b.Start) {
			hits = append(hits, b)
		}
	}
	return hits
}
