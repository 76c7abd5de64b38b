package suggest

import (
	"fmt"
	"time"

	"bookings/internal/models"
)

type clock struct {
	hour   int
	minute int
}

// BusinessHours is the daily window in which slots may be proposed,
// interpreted in a calendar's local time zone.
type BusinessHours struct {
	open  clock
	close clock
}

// DefaultBusinessHours is 09:00-17:00.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{open: clock{hour: 9}, close: clock{hour: 17}}
}

// ParseBusinessHours parses "15:04" formatted open and close times.
func ParseBusinessHours(open, closing string) (BusinessHours, error) {
	o, err := time.Parse(models.TimeFormat, open)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("parse open time %q: %w", open, err)
	}
	c, err := time.Parse(models.TimeFormat, closing)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("parse close time %q: %w", closing, err)
	}
	if !c.After(o) {
		return BusinessHours{}, fmt.Errorf("close time %s must be after open time %s", closing, open)
	}
	return BusinessHours{
		open:  clock{hour: o.Hour(), minute: o.Minute()},
		close: clock{hour: c.Hour(), minute: c.Minute()},
	}, nil
}

// Window returns [open, close) on the calendar date of day shifted by
// offset days, in loc. Wall-clock construction keeps the window at the
// local hours across DST changes.
func (h BusinessHours) Window(day time.Time, offset int, loc *time.Location) models.TimeInterval {
	local := day.In(loc)
	y, m, d := local.Date()
	return models.TimeInterval{
		Start: time.Date(y, m, d+offset, h.open.hour, h.open.minute, 0, 0, loc),
		End:   time.Date(y, m, d+offset, h.close.hour, h.close.minute, 0, 0, loc),
	}
}

// Contains reports whether interval lies fully inside the business window
// of its own local date.
func (h BusinessHours) Contains(interval models.TimeInterval, loc *time.Location) bool {
	w := h.Window(interval.Start, 0, loc)
	return !interval.Start.Before(w.Start) && !interval.End.After(w.End)
}

func (h BusinessHours) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", h.open.hour, h.open.minute, h.close.hour, h.close.minute)
}
