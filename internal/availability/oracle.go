// Package availability answers "is this calendar busy" questions. Every
// failure to reach the calendar is reported as busy time so that an
// unreachable source of truth can never produce a double booking.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookings/internal/domain"
	"bookings/internal/logging"
	"bookings/internal/metrics"
	"bookings/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrQueryFailed marks a fail-safe answer: the returned window is
	// fully busy because the calendar could not be read.
	ErrQueryFailed = errors.New("availability: calendar query failed")

	ErrInvalidWindow = errors.New("availability: window start must be before end")

	errMalformedInterval = errors.New("malformed busy interval")
)

type Oracle struct {
	reader domain.CalendarReader
	logger *zerolog.Logger
}

func NewOracle(reader domain.CalendarReader, logger *zerolog.Logger) *Oracle {
	return &Oracle{
		reader: reader,
		logger: logging.Component(logger, "oracle"),
	}
}

// GetBusy returns busy intervals restricted to [start, end). Order is not
// guaranteed. Any reader error, including timeouts and malformed entries,
// yields a fully busy window and an error wrapping ErrQueryFailed.
func (o *Oracle) GetBusy(ctx context.Context, calendar models.CalendarIdentity, start, end time.Time) (models.BusyWindow, error) {
	window, err := models.NewTimeInterval(start, end)
	if err != nil {
		return models.BusyWindow{Calendar: calendar}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}

	began := time.Now()
	raw, err := o.reader.QueryBusy(ctx, calendar, start, end)
	metrics.ObserveAvailabilityQuery(time.Since(began))
	if err != nil {
		return o.failSafe(calendar, window, err)
	}

	busy := make([]models.TimeInterval, 0, len(raw))
	for _, b := range raw {
		if !b.Valid() {
			return o.failSafe(calendar, window, fmt.Errorf("%w: %s - %s", errMalformedInterval,
				b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339)))
		}
		if clipped, ok := b.Clip(window); ok {
			busy = append(busy, clipped)
		}
	}

	return models.BusyWindow{Calendar: calendar, Window: window, Busy: busy}, nil
}

func (o *Oracle) failSafe(calendar models.CalendarIdentity, window models.TimeInterval, cause error) (models.BusyWindow, error) {
	metrics.IncAvailabilityFailure()
	o.logger.Warn().
		Err(cause).
		Str("calendar", calendar.String()).
		Time("window_start", window.Start).
		Time("window_end", window.End).
		Msg("busy query failed, treating window as busy")
	return models.FullyBusy(calendar, window), fmt.Errorf("%w: %s: %w", ErrQueryFailed, calendar, cause)
}
