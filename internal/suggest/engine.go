// Package suggest finds alternative start times after a proposal was
// rejected. It only reads availability and never books anything.
package suggest

import (
	"context"
	"time"

	"bookings/internal/domain"
	"bookings/internal/logging"
	"bookings/internal/metrics"
	"bookings/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Hours    BusinessHours
	Location *time.Location
	// Parallel issues the per-day busy queries concurrently, at most
	// MaxParallel at a time. Results are still walked day by day.
	Parallel    bool
	MaxParallel int
	// Live, when set, answers the reference day instead of the scan oracle.
	// That day holds the proposal that was just rejected, so it must not be
	// served from a cache.
	Live domain.Oracle
}

type Engine struct {
	oracle domain.Oracle
	opts   Options
	logger *zerolog.Logger
}

func NewEngine(oracle domain.Oracle, opts Options, logger *zerolog.Logger) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Hours == (BusinessHours{}) {
		opts.Hours = DefaultBusinessHours()
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	return &Engine{
		oracle: oracle,
		opts:   opts,
		logger: logging.Component(logger, "suggest"),
	}
}

type dayResult struct {
	window models.TimeInterval
	busy   models.BusyWindow
	failed bool
}

// Suggest scans daysToScan business days starting at referenceStart's local
// date and returns at most maxSuggestions free slots of durationMinutes,
// nearest first. One busy query is made per scanned day. A day whose query
// fails contributes nothing and the scan moves on.
func (e *Engine) Suggest(ctx context.Context, calendar models.CalendarIdentity, referenceStart time.Time,
	durationMinutes, daysToScan, maxSuggestions int,
) []models.Suggestion {
	if durationMinutes <= 0 || daysToScan <= 0 || maxSuggestions <= 0 {
		return nil
	}
	duration := time.Duration(durationMinutes) * time.Minute

	var out []models.Suggestion
	if e.opts.Parallel && daysToScan > 1 {
		out = e.walk(e.queryAll(ctx, calendar, referenceStart, daysToScan), referenceStart, duration, maxSuggestions)
	} else {
		out = e.scanSequential(ctx, calendar, referenceStart, duration, daysToScan, maxSuggestions)
	}

	metrics.ObserveSuggestions(len(out))
	e.logger.Debug().
		Str("calendar", calendar.String()).
		Time("reference", referenceStart).
		Int("days", daysToScan).
		Int("found", len(out)).
		Msg("suggestion scan finished")
	return out
}

func (e *Engine) scanSequential(ctx context.Context, calendar models.CalendarIdentity, referenceStart time.Time,
	duration time.Duration, daysToScan, maxSuggestions int,
) []models.Suggestion {
	out := make([]models.Suggestion, 0, maxSuggestions)
	for d := 0; d < daysToScan && len(out) < maxSuggestions; d++ {
		day := e.queryDay(ctx, calendar, referenceStart, d)
		out = e.collect(out, day, referenceStart, duration, maxSuggestions)
	}
	return out
}

func (e *Engine) queryAll(ctx context.Context, calendar models.CalendarIdentity, referenceStart time.Time, daysToScan int) []dayResult {
	days := make([]dayResult, daysToScan)

	var g errgroup.Group
	g.SetLimit(e.opts.MaxParallel)
	for d := 0; d < daysToScan; d++ {
		d := d
		g.Go(func() error {
			days[d] = e.queryDay(ctx, calendar, referenceStart, d)
			return nil
		})
	}
	_ = g.Wait()

	return days
}

func (e *Engine) walk(days []dayResult, referenceStart time.Time, duration time.Duration, maxSuggestions int) []models.Suggestion {
	out := make([]models.Suggestion, 0, maxSuggestions)
	for _, day := range days {
		if len(out) >= maxSuggestions {
			break
		}
		out = e.collect(out, day, referenceStart, duration, maxSuggestions)
	}
	return out
}

func (e *Engine) queryDay(ctx context.Context, calendar models.CalendarIdentity, referenceStart time.Time, offset int) dayResult {
	window := e.opts.Hours.Window(referenceStart, offset, e.opts.Location)

	oracle := e.oracle
	if offset == 0 && e.opts.Live != nil {
		oracle = e.opts.Live
	}
	busy, err := oracle.GetBusy(ctx, calendar, window.Start, window.End)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("calendar", calendar.String()).
			Str("date", window.Start.Format(models.DateFormat)).
			Msg("skipping day, availability unknown")
		return dayResult{window: window, failed: true}
	}
	return dayResult{window: window, busy: busy}
}

// collect walks candidates from opening time in duration steps and appends
// free ones that start no earlier than referenceStart.
func (e *Engine) collect(out []models.Suggestion, day dayResult, referenceStart time.Time,
	duration time.Duration, maxSuggestions int,
) []models.Suggestion {
	if day.failed {
		return out
	}
	for start := day.window.Start; len(out) < maxSuggestions; start = start.Add(duration) {
		candidate := models.TimeInterval{Start: start, End: start.Add(duration)}
		if candidate.End.After(day.window.End) {
			break
		}
		if start.Before(referenceStart) || day.busy.Conflicts(candidate) {
			continue
		}
		out = append(out, models.NewSuggestion(candidate, e.opts.Location))
	}
	return out
}
