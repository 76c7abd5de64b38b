package models

// Location is one physical shop with a calendar per booking type.
type Location struct {
	Code      string                           `json:"code" yaml:"code"`
	Name      string                           `json:"name" yaml:"name"`
	Aliases   []string                         `json:"aliases,omitempty" yaml:"aliases"`
	Calendars map[BookingType]CalendarIdentity `json:"-" yaml:"calendars"`
}

// Calendar returns the identity for a booking type.
func (l Location) Calendar(t BookingType) (CalendarIdentity, bool) {
	id, ok := l.Calendars[t]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
