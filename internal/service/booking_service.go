package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookings/internal/domain"
	"bookings/internal/events"
	"bookings/internal/locations"
	"bookings/internal/logging"
	"bookings/internal/models"

	"github.com/rs/zerolog"
)

// Deps are the collaborators of the booking flow. Notifier, Journal, Events
// and BusyCache are optional; their failures never change a booking outcome.
type Deps struct {
	Resolver  domain.LocationResolver
	Checker   domain.ConflictChecker
	Suggester domain.SlotSuggester
	Writer    domain.CalendarWriter
	Notifier  domain.Notifier
	Journal   domain.Journal
	Events    domain.EventPublisher
	// BusyCache is the cache behind the suggestion scan, cleared for a
	// calendar once an event was written to it.
	BusyCache domain.BusyInvalidator
}

type Options struct {
	Location               *time.Location
	DefaultDurationMinutes int
	MaxDurationMinutes     int
	DaysToScan             int
	MaxSuggestions         int
}

// BookingService validates, checks and commits bookings. It keeps no booking
// state between calls.
//
// The check and the commit are two separate calendar calls, so two
// concurrent requests for the same slot can both pass the check and both be
// written. Closing that window needs a lock or a conditional write on the
// calendar side, which the calendar API does not offer.
type BookingService struct {
	deps   Deps
	opts   Options
	now    func() time.Time
	logger *zerolog.Logger
}

func NewBookingService(deps Deps, opts Options, logger *zerolog.Logger) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultDurationMinutes <= 0 {
		opts.DefaultDurationMinutes = models.DefaultDurationMinutes
	}
	if opts.MaxDurationMinutes <= 0 {
		opts.MaxDurationMinutes = models.MaxDurationMinutes
	}
	if opts.DaysToScan <= 0 {
		opts.DaysToScan = models.DefaultDaysToScan
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = models.DefaultMaxSuggestions
	}
	return &BookingService{
		deps:   deps,
		opts:   opts,
		now:    time.Now,
		logger: logging.Component(logger, "booking"),
	}
}

// SetClock replaces the time source used for the "not in the past" check.
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *BookingService) Locations() []models.Location {
	return s.deps.Resolver.Locations()
}

// Book runs validate, resolve, check and commit for one request.
// It returns *ValidationError, *ConflictError or *CommitError on the
// respective failure paths.
func (s *BookingService) Book(ctx context.Context, req models.BookingRequest) (*models.CommitResult, error) {
	target, err := s.validate(&req)
	if err != nil {
		s.publish(events.EventBookingRejected, events.BookingEventPayload{
			BookingType: string(req.Type),
			Reason:      err.Error(),
		})
		return nil, err
	}

	log := s.logger.With().
		Str("booking_type", string(req.Type)).
		Str("location", target.location.Code).
		Str("calendar", target.calendar.String()).
		Time("start", target.interval.Start).
		Logger()

	available, err := s.deps.Checker.IsAvailable(ctx, target.calendar, target.interval)
	if err != nil {
		log.Warn().Err(err).Msg("availability unknown, treating slot as taken")
		s.publishDegraded(req.Type, target)
	}

	if !available {
		suggestions := s.deps.Suggester.Suggest(ctx, target.calendar, target.interval.Start,
			target.durationMinutes, s.opts.DaysToScan, s.opts.MaxSuggestions)
		log.Info().Int("suggestions", len(suggestions)).Msg("requested slot unavailable")
		s.publish(events.EventBookingConflict, events.BookingEventPayload{
			BookingType:  string(req.Type),
			LocationCode: target.location.Code,
			Calendar:     target.calendar.String(),
			Start:        target.interval.Start,
			End:          target.interval.End,
			Suggestions:  len(suggestions),
		})
		return nil, &ConflictError{Suggestions: suggestions}
	}

	reservation := buildReservation(&req, target.location, target.calendar, target.interval)
	eventID, err := s.deps.Writer.CreateEvent(ctx, target.calendar, reservation)
	if err != nil {
		log.Error().Err(err).Msg("calendar event creation failed")
		s.publish(events.EventCommitFailed, events.BookingEventPayload{
			BookingType:  string(req.Type),
			LocationCode: target.location.Code,
			Calendar:     target.calendar.String(),
			Start:        target.interval.Start,
			End:          target.interval.End,
			Reason:       err.Error(),
		})
		return nil, &CommitError{Err: err}
	}

	log.Info().Str("booking_id", eventID).Msg("booking committed")

	s.invalidate(ctx, target.calendar)
	s.record(ctx, eventID, &req, target)
	s.notify(ctx, eventID, &req, target)
	s.publish(events.EventBookingCommitted, events.BookingEventPayload{
		BookingID:    eventID,
		BookingType:  string(req.Type),
		LocationCode: target.location.Code,
		Calendar:     target.calendar.String(),
		Start:        target.interval.Start,
		End:          target.interval.End,
		CustomerName: req.Customer.Name,
	})

	return &models.CommitResult{
		BookingID: eventID,
		Calendar:  target.calendar,
		Start:     target.interval.Start,
		End:       target.interval.End,
	}, nil
}

type target struct {
	location        models.Location
	calendar        models.CalendarIdentity
	interval        models.TimeInterval
	durationMinutes int
}

func (s *BookingService) validate(req *models.BookingRequest) (target, error) {
	if !req.Type.Valid() {
		return target{}, invalid("booking_type", "Unsupported booking type: %q", req.Type)
	}

	loc, calendar, err := s.resolve(req.Type, req.Location)
	if err != nil {
		return target{}, err
	}

	duration, err := s.duration(req.DurationMinutes)
	if err != nil {
		return target{}, err
	}

	start, err := s.parseStart(req.Date, req.Time)
	if err != nil {
		return target{}, err
	}
	if start.Before(s.now()) {
		return target{}, invalid("date", "Requested time %s %s is in the past", req.Date, req.Time)
	}

	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	switch {
	case req.Customer.Name == "":
		return target{}, invalid("customer_name", "customer_name is required")
	case req.Customer.Email == "":
		return target{}, invalid("customer_email", "customer_email is required")
	case req.Customer.Phone == "":
		return target{}, invalid("customer_phone", "customer_phone is required")
	}

	return target{
		location:        loc,
		calendar:        calendar,
		interval:        models.TimeInterval{Start: start, End: start.Add(time.Duration(duration) * time.Minute)},
		durationMinutes: duration,
	}, nil
}

func (s *BookingService) resolve(bookingType models.BookingType, label string) (models.Location, models.CalendarIdentity, error) {
	loc, calendar, err := s.deps.Resolver.Resolve(bookingType, label)
	switch {
	case err == nil:
		return loc, calendar, nil
	case errors.Is(err, locations.ErrAmbiguousLocation):
		return models.Location{}, "", &ValidationError{Field: "location", Message: fmt.Sprintf("Ambiguous location: %q", label), Err: err}
	case errors.Is(err, locations.ErrUnknownBookingType):
		return models.Location{}, "", &ValidationError{Field: "booking_type", Message: fmt.Sprintf("Unsupported booking type: %q", bookingType), Err: err}
	default:
		return models.Location{}, "", &ValidationError{Field: "location", Message: "Invalid location selected", Err: err}
	}
}

func (s *BookingService) duration(minutes int) (int, error) {
	if minutes == 0 {
		return s.opts.DefaultDurationMinutes, nil
	}
	if minutes < 0 || minutes > s.opts.MaxDurationMinutes {
		return 0, invalid("duration_minutes", "duration_minutes must be between 1 and %d", s.opts.MaxDurationMinutes)
	}
	return minutes, nil
}

func (s *BookingService) parseStart(date, clock string) (time.Time, error) {
	day, err := time.ParseInLocation(models.DateFormat, strings.TrimSpace(date), s.opts.Location)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Message: fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", date), Err: err}
	}
	hm, err := time.Parse(models.TimeFormat, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, &ValidationError{Field: "time", Message: fmt.Sprintf("Invalid time %q, expected HH:MM", clock), Err: err}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, s.opts.Location), nil
}

func (s *BookingService) invalidate(ctx context.Context, calendar models.CalendarIdentity) {
	if s.deps.BusyCache == nil {
		return
	}
	if err := s.deps.BusyCache.Invalidate(ctx, calendar); err != nil {
		s.logger.Warn().Err(err).Str("calendar", calendar.String()).Msg("busy cache invalidation failed")
	}
}

func (s *BookingService) record(ctx context.Context, eventID string, req *models.BookingRequest, t target) {
	if s.deps.Journal == nil {
		return
	}
	entry := &models.JournalEntry{
		EventID:       eventID,
		Type:          req.Type,
		LocationCode:  t.location.Code,
		Calendar:      t.calendar,
		Start:         t.interval.Start,
		End:           t.interval.End,
		CustomerName:  req.Customer.Name,
		CustomerEmail: req.Customer.Email,
		CustomerPhone: req.Customer.Phone,
		Attributes:    req.Attributes,
		CreatedAt:     s.now(),
	}
	if err := s.deps.Journal.RecordBooking(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("booking_id", eventID).Msg("journal record error")
	}
}

func (s *BookingService) notify(ctx context.Context, eventID string, req *models.BookingRequest, t target) {
	if s.deps.Notifier == nil {
		return
	}
	data := models.BookingNotification{
		BookingID:    eventID,
		Type:         req.Type,
		LocationCode: t.location.Code,
		LocationName: t.location.Name,
		Start:        t.interval.Start,
		End:          t.interval.End,
		Customer:     req.Customer,
		Attributes:   req.Attributes,
	}
	if err := s.deps.Notifier.Notify(ctx, req.Type, data); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", eventID).Msg("notification dispatch failed")
	}
}

func (s *BookingService) publishDegraded(bookingType models.BookingType, t target) {
	s.publish(events.EventAvailabilityDegraded, events.BookingEventPayload{
		BookingType:  string(bookingType),
		LocationCode: t.location.Code,
		Calendar:     t.calendar.String(),
		Start:        t.interval.Start,
		End:          t.interval.End,
	})
}

func (s *BookingService) publish(eventType events.EventType, payload events.BookingEventPayload) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("event subscriber failed")
	}
}
