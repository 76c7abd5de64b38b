package models

import (
	"strings"
	"time"
)

type BookingType string

func (t BookingType) Valid() bool {
	return t == BookingTypeTestRide || t == BookingTypeService
}

// ParseBookingType accepts both snake and kebab spellings ("test-ride").
func ParseBookingType(raw string) (BookingType, bool) {
	t := BookingType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	return t, t.Valid()
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// BookingRequest is constructed per inbound call and never retained.
// Attributes are opaque to the booking core and passed through to the
// calendar event description.
type BookingRequest struct {
	Type            BookingType       `json:"booking_type"`
	Location        string            `json:"location"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
	Customer        Customer          `json:"customer"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// Attr returns the named attribute or fallback when it is empty.
func (r *BookingRequest) Attr(key, fallback string) string {
	if r.Attributes == nil {
		return fallback
	}
	if v := strings.TrimSpace(r.Attributes[key]); v != "" {
		return v
	}
	return fallback
}

// Reservation is the fully resolved booking passed to the calendar writer.
type Reservation struct {
	Type        BookingType
	Location    Location
	Calendar    CalendarIdentity
	Interval    TimeInterval
	Summary     string
	Description string
	Label       string
	Customer    Customer
}

// CommitResult is returned when the calendar event was created.
type CommitResult struct {
	BookingID string           `json:"booking_id"`
	Calendar  CalendarIdentity `json:"calendar"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
}

// JournalEntry is the persisted record of a committed booking.
type JournalEntry struct {
	ID            int64             `json:"id"`
	EventID       string            `json:"event_id"`
	Type          BookingType       `json:"booking_type"`
	LocationCode  string            `json:"location_code"`
	Calendar      CalendarIdentity  `json:"calendar"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	CustomerPhone string            `json:"customer_phone"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// JournalFilter narrows journal listings; zero values mean no restriction.
type JournalFilter struct {
	From         time.Time
	To           time.Time
	Type         BookingType
	LocationCode string
	Limit        uint64
}
