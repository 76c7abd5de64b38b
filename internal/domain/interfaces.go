package domain

import (
	"context"
	"time"

	"bookings/internal/events"
	"bookings/internal/models"
)

// CalendarReader is the freebusy-style read collaborator.
type CalendarReader interface {
	QueryBusy(ctx context.Context, calendar models.CalendarIdentity, start, end time.Time) ([]models.TimeInterval, error)
}

// CalendarWriter creates events; the returned id is the booking id.
type CalendarWriter interface {
	CreateEvent(ctx context.Context, calendar models.CalendarIdentity, event models.Reservation) (string, error)
}

type Calendar interface {
	CalendarReader
	CalendarWriter
}

// Oracle reports busy time for one calendar within a window. On failure it
// returns a window that is fully busy together with a non-nil error.
type Oracle interface {
	GetBusy(ctx context.Context, calendar models.CalendarIdentity, start, end time.Time) (models.BusyWindow, error)
}

type ConflictChecker interface {
	IsAvailable(ctx context.Context, calendar models.CalendarIdentity, interval models.TimeInterval) (bool, error)
}

type SlotSuggester interface {
	Suggest(ctx context.Context, calendar models.CalendarIdentity, referenceStart time.Time, durationMinutes, daysToScan, maxSuggestions int) []models.Suggestion
}

type LocationResolver interface {
	Resolve(bookingType models.BookingType, label string) (models.Location, models.CalendarIdentity, error)
	Locations() []models.Location
}

// Notifier dispatches internal notifications; callers treat failures as
// non-fatal.
type Notifier interface {
	Notify(ctx context.Context, bookingType models.BookingType, data models.BookingNotification) error
}

type Journal interface {
	RecordBooking(ctx context.Context, entry *models.JournalEntry) error
	ListBookings(ctx context.Context, filter models.JournalFilter) ([]models.JournalEntry, error)
}

type EventPublisher interface {
	Publish(eventType events.EventType, payload events.BookingEventPayload) error
}

// BusyCache stores successful busy lookups for a short time.
type BusyCache interface {
	GetBusy(ctx context.Context, key string) (*models.BusyWindow, error)
	SetBusy(ctx context.Context, key string, window models.BusyWindow, ttl time.Duration) error
	// DeleteBusy drops every entry whose key starts with prefix.
	DeleteBusy(ctx context.Context, prefix string) error
}

// BusyInvalidator forgets cached busy time of a calendar that just changed.
type BusyInvalidator interface {
	Invalidate(ctx context.Context, calendar models.CalendarIdentity) error
}
