package service

import (
	"context"
	"fmt"
	"time"

	"bookings/internal/models"
)

// SlotQuery addresses a calendar slot without a customer. Date and Time are
// optional for suggestion scans and default to the current time.
type SlotQuery struct {
	Type            models.BookingType
	Location        string
	Date            string
	Time            string
	DurationMinutes int
	Days            int
	Max             int
}

type AvailabilityResult struct {
	Available bool                    `json:"available"`
	Degraded  bool                    `json:"degraded"`
	Location  string                  `json:"location"`
	Calendar  models.CalendarIdentity `json:"-"`
	Start     time.Time               `json:"start"`
	End       time.Time               `json:"end"`
}

// CheckAvailability answers whether one slot is free. Degraded is set when
// the calendar could not be read and the answer is the fail-safe "busy".
func (s *BookingService) CheckAvailability(ctx context.Context, q SlotQuery) (*AvailabilityResult, error) {
	loc, calendar, err := s.resolve(q.Type, q.Location)
	if err != nil {
		return nil, err
	}
	duration, err := s.duration(q.DurationMinutes)
	if err != nil {
		return nil, err
	}
	start, err := s.parseStart(q.Date, q.Time)
	if err != nil {
		return nil, err
	}

	interval := models.TimeInterval{Start: start, End: start.Add(time.Duration(duration) * time.Minute)}
	available, err := s.deps.Checker.IsAvailable(ctx, calendar, interval)
	res := &AvailabilityResult{
		Available: available,
		Location:  loc.Code,
		Calendar:  calendar,
		Start:     interval.Start,
		End:       interval.End,
	}
	if err != nil {
		res.Degraded = true
		s.logger.Warn().Err(err).Str("calendar", calendar.String()).Msg("availability check degraded")
		s.publishDegraded(q.Type, target{location: loc, calendar: calendar, interval: interval})
	}
	return res, nil
}

// Suggest runs a read-only suggestion scan. The reference start is never
// earlier than now.
func (s *BookingService) Suggest(ctx context.Context, q SlotQuery) ([]models.Suggestion, error) {
	_, calendar, err := s.resolve(q.Type, q.Location)
	if err != nil {
		return nil, err
	}
	duration, err := s.duration(q.DurationMinutes)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.opts.Location)
	reference := now
	if q.Date != "" {
		clock := q.Time
		if clock == "" {
			clock = "00:00"
		}
		start, err := s.parseStart(q.Date, clock)
		if err != nil {
			return nil, err
		}
		if start.After(now) {
			reference = start
		}
	}

	days := q.Days
	if days <= 0 {
		days = s.opts.DaysToScan
	}
	if days > 31 {
		return nil, invalid("days", "days must be between 1 and 31")
	}
	limit := q.Max
	if limit <= 0 {
		limit = s.opts.MaxSuggestions
	}

	return s.deps.Suggester.Suggest(ctx, calendar, reference, duration, days, limit), nil
}

// ProbeCalendars writes a 30 minute test event starting now into every
// configured calendar. Results are keyed "<type>.<location code>". The
// first failure stops the probe and is returned with the partial results.
func (s *BookingService) ProbeCalendars(ctx context.Context) (map[string]string, error) {
	start := s.now()
	interval := models.TimeInterval{Start: start, End: start.Add(30 * time.Minute)}

	results := make(map[string]string)
	for _, bt := range []models.BookingType{models.BookingTypeTestRide, models.BookingTypeService} {
		for _, loc := range s.deps.Resolver.Locations() {
			calendar, ok := loc.Calendar(bt)
			if !ok {
				continue
			}
			id, err := s.deps.Writer.CreateEvent(ctx, calendar, models.Reservation{
				Type:        bt,
				Location:    loc,
				Calendar:    calendar,
				Interval:    interval,
				Summary:     probeSummary,
				Description: probeDescription,
			})
			if err != nil {
				return results, fmt.Errorf("probe %s.%s: %w", bt, loc.Code, err)
			}
			results[fmt.Sprintf("%s.%s", bt, loc.Code)] = id
		}
	}
	return results, nil
}
