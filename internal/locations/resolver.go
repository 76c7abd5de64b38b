// Package locations maps free-text location labels to configured shops and
// their calendar identities.
package locations

import (
	"errors"
	"fmt"
	"strings"

	"bookings/internal/models"
)

var (
	ErrUnknownLocation    = errors.New("unknown location")
	ErrAmbiguousLocation  = errors.New("ambiguous location")
	ErrUnknownBookingType = errors.New("unknown booking type")
)

type Resolver struct {
	locations []models.Location
}

// NewResolver copies the configured table. Codes are expected to be unique
// (config.ValidateLocations enforces it at load time).
func NewResolver(locations []models.Location) *Resolver {
	return &Resolver{locations: append([]models.Location(nil), locations...)}
}

func (r *Resolver) Locations() []models.Location {
	return append([]models.Location(nil), r.locations...)
}

// Resolve matches label against codes, names and aliases. An exact match
// wins; otherwise the label must contain the key of exactly one location,
// so "Lugano Store" resolves but "Lugano or Zurich" does not.
func (r *Resolver) Resolve(bookingType models.BookingType, label string) (models.Location, models.CalendarIdentity, error) {
	if !bookingType.Valid() {
		return models.Location{}, "", fmt.Errorf("%w: %q", ErrUnknownBookingType, bookingType)
	}

	loc, err := r.match(label)
	if err != nil {
		return models.Location{}, "", err
	}

	id, ok := loc.Calendar(bookingType)
	if !ok {
		return models.Location{}, "", fmt.Errorf("%w: %s has no %s calendar", ErrUnknownLocation, loc.Name, bookingType)
	}
	return loc, id, nil
}

func (r *Resolver) match(label string) (models.Location, error) {
	needle := normalize(label)
	if needle == "" {
		return models.Location{}, fmt.Errorf("%w: empty label", ErrUnknownLocation)
	}

	for _, loc := range r.locations {
		for _, key := range keys(loc) {
			if key == needle {
				return loc, nil
			}
		}
	}

	var found []models.Location
	for _, loc := range r.locations {
		for _, key := range keys(loc) {
			if key != "" && strings.Contains(needle, key) {
				found = append(found, loc)
				break
			}
		}
	}

	switch len(found) {
	case 0:
		return models.Location{}, fmt.Errorf("%w: %q", ErrUnknownLocation, label)
	case 1:
		return found[0], nil
	default:
		names := make([]string, 0, len(found))
		for _, loc := range found {
			names = append(names, loc.Name)
		}
		return models.Location{}, fmt.Errorf("%w: %q matches %s", ErrAmbiguousLocation, label, strings.Join(names, ", "))
	}
}

func keys(loc models.Location) []string {
	out := []string{normalize(loc.Code), normalize(loc.Name)}
	for _, alias := range loc.Aliases {
		out = append(out, normalize(alias))
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
