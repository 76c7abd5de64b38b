package events

import (
	"errors"
	"sync"
	"time"
)

// EventType names a step of the booking flow.
type EventType string

const (
	EventBookingCommitted     EventType = "booking_committed"
	EventBookingConflict      EventType = "booking_conflict"
	EventBookingRejected      EventType = "booking_rejected"
	EventCommitFailed         EventType = "booking_commit_failed"
	EventAvailabilityDegraded EventType = "availability_degraded"
)

// Outcome is the label a finished booking attempt is counted under, or ""
// for events that do not end an attempt.
func (t EventType) Outcome() string {
	switch t {
	case EventBookingCommitted:
		return "committed"
	case EventBookingConflict:
		return "conflict"
	case EventBookingRejected:
		return "rejected"
	case EventCommitFailed:
		return "commit_failed"
	default:
		return ""
	}
}

// BookingEventPayload describes the booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID    string    `json:"booking_id,omitempty"`
	BookingType  string    `json:"booking_type"`
	LocationCode string    `json:"location_code,omitempty"`
	Calendar     string    `json:"calendar,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	CustomerName string    `json:"customer_name,omitempty"`
	Suggestions  int       `json:"suggestions,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// BookingEvent is what subscribers receive.
type BookingEvent struct {
	Type EventType           `json:"type"`
	At   time.Time           `json:"at"`
	Data BookingEventPayload `json:"data"`
}

// Handler reacts to a booking event.
type Handler func(event BookingEvent) error

// EventBus provides in-process pub/sub for booking events.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	now      func() time.Time
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[EventType][]Handler), now: time.Now}
}

// Subscribe registers handler for each of the given event types.
func (b *EventBus) Subscribe(handler Handler, types ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], handler)
	}
}

// Publish runs the subscribers of eventType in registration order. Every
// handler runs even if an earlier one fails; their errors are joined.
func (b *EventBus) Publish(eventType EventType, payload BookingEventPayload) error {
	if b == nil {
		return nil
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	event := BookingEvent{Type: eventType, At: b.now(), Data: payload}
	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
