package availability

import (
	"context"
	"fmt"
	"time"

	"bookings/internal/domain"
	"bookings/internal/logging"
	"bookings/internal/models"

	"github.com/rs/zerolog"
)

// CachedOracle reads through a BusyCache. It is meant for suggestion scans
// only; the conflict check before a commit must use the uncached Oracle.
// Fail-safe answers are never cached.
type CachedOracle struct {
	next   domain.Oracle
	cache  domain.BusyCache
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCachedOracle(next domain.Oracle, cache domain.BusyCache, ttl time.Duration, logger *zerolog.Logger) *CachedOracle {
	return &CachedOracle{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logging.Component(logger, "busy-cache"),
	}
}

func CacheKey(calendar models.CalendarIdentity, start, end time.Time) string {
	return fmt.Sprintf("%s%d:%d", KeyPrefix(calendar), start.Unix(), end.Unix())
}

// KeyPrefix is shared by every cached window of one calendar.
func KeyPrefix(calendar models.CalendarIdentity) string {
	return fmt.Sprintf("busy:%s:", calendar)
}

// Invalidate drops all cached windows of calendar. It is called after an
// event was written so later scans see the new booking.
func (c *CachedOracle) Invalidate(ctx context.Context, calendar models.CalendarIdentity) error {
	return c.cache.DeleteBusy(ctx, KeyPrefix(calendar))
}

func (c *CachedOracle) GetBusy(ctx context.Context, calendar models.CalendarIdentity, start, end time.Time) (models.BusyWindow, error) {
	key := CacheKey(calendar, start, end)

	cached, err := c.cache.GetBusy(ctx, key)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("busy cache read failed")
	} else if cached != nil {
		return *cached, nil
	}

	window, err := c.next.GetBusy(ctx, calendar, start, end)
	if err != nil {
		return window, err
	}

	if err := c.cache.SetBusy(ctx, key, window, c.ttl); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("busy cache write failed")
	}
	return window, nil
}
