package availability

import (
	"context"
	"fmt"

	"bookings/internal/domain"
	"bookings/internal/models"
)

// Checker decides whether a proposed interval is free on a calendar.
// It holds no state and is safe for concurrent use.
type Checker struct {
	oracle domain.Oracle
}

func NewChecker(oracle domain.Oracle) *Checker {
	return &Checker{oracle: oracle}
}

// IsAvailable queries exactly the proposed interval. A non-nil error always
// comes with false: the fail-safe path is indistinguishable from a conflict
// for the decision, but the caller can still tell them apart.
func (c *Checker) IsAvailable(ctx context.Context, calendar models.CalendarIdentity, interval models.TimeInterval) (bool, error) {
	if !interval.Valid() {
		return false, fmt.Errorf("%w: proposed interval", ErrInvalidWindow)
	}

	window, err := c.oracle.GetBusy(ctx, calendar, interval.Start, interval.End)
	if err != nil {
		return false, err
	}

	return !window.Conflicts(interval), nil
}
