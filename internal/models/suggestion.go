package models

import "time"

// Suggestion is a free start time of the requested duration, expressed in
// the calendar's local business-hours frame.
type Suggestion struct {
	Date  string    `json:"date"`
	Time  string    `json:"time"`
	Start time.Time `json:"-"`
	End   time.Time `json:"-"`
}

func NewSuggestion(interval TimeInterval, loc *time.Location) Suggestion {
	local := interval.Start.In(loc)
	return Suggestion{
		Date:  local.Format(DateFormat),
		Time:  local.Format(TimeFormat),
		Start: interval.Start,
		End:   interval.End,
	}
}
