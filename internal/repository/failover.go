package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"bookings/internal/domain"
	"bookings/internal/logging"
	"bookings/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverBusyCache uses primary until it fails, then serves from fallback
// and retries primary once per recoveryInterval.
type FailoverBusyCache struct {
	primary   domain.BusyCache
	fallback  domain.BusyCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverBusyCache(primary, fallback domain.BusyCache, logger *zerolog.Logger) *FailoverBusyCache {
	return &FailoverBusyCache{
		primary:  primary,
		fallback: fallback,
		logger:   logging.Component(logger, "busy-cache-failover"),
	}
}

func (r *FailoverBusyCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary busy cache failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverBusyCache) primaryUsable() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverBusyCache) GetBusy(ctx context.Context, key string) (*models.BusyWindow, error) {
	if r.primaryUsable() {
		window, err := r.primary.GetBusy(ctx, key)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary busy cache recovered")
			}
			return window, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetBusy(ctx, key)
}

func (r *FailoverBusyCache) SetBusy(ctx context.Context, key string, window models.BusyWindow, ttl time.Duration) error {
	if r.primaryUsable() {
		err := r.primary.SetBusy(ctx, key, window, ttl)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetBusy(ctx, key, window, ttl)
}

// DeleteBusy clears both caches. The fallback may still hold entries written
// while the primary was down, so it is cleared even when the primary works.
func (r *FailoverBusyCache) DeleteBusy(ctx context.Context, prefix string) error {
	var primaryErr error
	if r.primaryUsable() {
		if primaryErr = r.primary.DeleteBusy(ctx, prefix); primaryErr != nil {
			r.markDown(primaryErr)
		}
	}
	return errors.Join(primaryErr, r.fallback.DeleteBusy(ctx, prefix))
}
