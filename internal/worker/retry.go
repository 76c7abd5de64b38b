package worker

import (
	"math"
	"time"

	"bookings/internal/config"
	"bookings/internal/models"
)

// RetryPolicy schedules redelivery of staff notifications with exponential
// backoff.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// PolicyFromConfig converts the notify.retry section.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  time.Duration(cfg.InitialDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.MaxDelaySeconds) * time.Second,
		BackoffFactor: cfg.BackoffFactor,
	}
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries == 0 {
		r.MaxRetries = 5
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = 2 * time.Second
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = time.Minute
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// Exhausted reports whether attempt (1-based) is the last one allowed.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// Redelivery is the fate of a notification task after a failed send.
type Redelivery struct {
	Status  string
	Attempt int
	RetryAt *time.Time
}

// floodWaiter is implemented by sender errors that carry a wait imposed by
// the messaging API (Telegram's retry_after).
type floodWaiter interface {
	RetryAfter() time.Duration
}

// floodWait is the longest wait found anywhere in err's tree; a sender that
// fans out to several chats joins one error per chat.
func floodWait(err error) time.Duration {
	var wait time.Duration
	if fw, ok := err.(floodWaiter); ok {
		wait = fw.RetryAfter()
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			wait = max(wait, floodWait(inner))
		}
	case interface{ Unwrap() error }:
		wait = max(wait, floodWait(u.Unwrap()))
	}
	return wait
}

// Reschedule decides whether task is tried again and when. A flood wait
// reported by the sender overrides a shorter backoff and is not clamped to
// MaxDelay.
func (r RetryPolicy) Reschedule(task models.NotificationTask, cause error, now time.Time) Redelivery {
	attempt := task.RetryCount + 1
	if r.Exhausted(attempt) {
		return Redelivery{Status: models.NotificationFailed, Attempt: attempt}
	}

	delay := max(r.NextDelay(attempt), floodWait(cause))
	at := now.Add(delay)
	return Redelivery{Status: models.NotificationRetry, Attempt: attempt, RetryAt: &at}
}
