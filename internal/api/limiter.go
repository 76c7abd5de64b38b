package api

import (
	"math"
	"sync"
	"time"

	"bookings/internal/config"

	"golang.org/x/time/rate"
)

type bucketKind int

const (
	bucketRequests bucketKind = iota
	bucketBookings
)

type bucketKey struct {
	client string
	kind   bucketKind
}

// clientLimiter throttles API clients. Every request draws from the client's
// request bucket; booking writes also draw from a bookings-per-minute bucket
// so one form cannot spend the calendar quota of every location.
type clientLimiter struct {
	buckets sync.Map
	cfg     config.APIRateLimitConfig
	now     func() time.Time
}

func newClientLimiter(cfg config.APIRateLimitConfig) *clientLimiter {
	return &clientLimiter{cfg: cfg, now: time.Now}
}

func isBookingRoute(route string) bool {
	return requiredPermission(route) == permWriteBookings
}

// admit reports whether client may run route now. When it may not, wait is
// how long until a token frees up, zero if the bucket can never serve it.
func (l *clientLimiter) admit(client, route string) (ok bool, wait time.Duration) {
	now := l.now()

	var held []*rate.Reservation
	release := func() {
		for _, r := range held {
			r.CancelAt(now)
		}
	}

	kinds := []bucketKind{bucketRequests}
	if isBookingRoute(route) {
		kinds = append(kinds, bucketBookings)
	}
	for _, kind := range kinds {
		lim := l.bucket(client, kind)
		if lim == nil {
			continue
		}
		r := lim.ReserveN(now, 1)
		if !r.OK() {
			release()
			return false, 0
		}
		held = append(held, r)
		if d := r.DelayFrom(now); d > 0 {
			release()
			return false, d
		}
	}
	return true, 0
}

// bucket returns nil when the kind is not limited.
func (l *clientLimiter) bucket(client string, kind bucketKind) *rate.Limiter {
	var limit rate.Limit
	var burst int
	switch kind {
	case bucketBookings:
		if l.cfg.BookingsPerMinute <= 0 {
			return nil
		}
		limit = rate.Every(time.Minute / time.Duration(l.cfg.BookingsPerMinute))
		burst = l.cfg.BookingsPerMinute
	default:
		if l.cfg.RPS <= 0 {
			return nil
		}
		limit = rate.Limit(l.cfg.RPS)
		burst = l.cfg.Burst
		if burst <= 0 {
			burst = 5
		}
	}

	key := bucketKey{client: client, kind: kind}
	if v, ok := l.buckets.Load(key); ok {
		return v.(*rate.Limiter)
	}
	actual, _ := l.buckets.LoadOrStore(key, rate.NewLimiter(limit, burst))
	return actual.(*rate.Limiter)
}

// retryAfterSeconds renders wait for the Retry-After header.
func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}
