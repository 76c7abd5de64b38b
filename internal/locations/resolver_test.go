package locations

import (
	"testing"

	"bookings/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shops() []models.Location {
	mk := func(code, name string, aliases ...string) models.Location {
		return models.Location{
			Code:    code,
			Name:    name,
			Aliases: aliases,
			Calendars: map[models.BookingType]models.CalendarIdentity{
				models.BookingTypeTestRide: models.CalendarIdentity("test_ride." + code),
				models.BookingTypeService:  models.CalendarIdentity("service." + code),
			},
		}
	}
	return []models.Location{
		mk("lugano", "Lugano"),
		mk("bellinzona", "Bellinzona"),
		mk("locarno", "Locarno"),
		mk("zurich", "Zurich", "Zürich"),
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(shops())

	tests := []struct {
		name     string
		typ      models.BookingType
		label    string
		wantCode string
		wantCal  models.CalendarIdentity
	}{
		{"exact name", models.BookingTypeService, "Lugano", "lugano", "service.lugano"},
		{"code lower case", models.BookingTypeTestRide, "locarno", "locarno", "test_ride.locarno"},
		{"alias", models.BookingTypeService, "ZÜRICH", "zurich", "service.zurich"},
		{"substring", models.BookingTypeTestRide, "Bellinzona Store (Ticino)", "bellinzona", "test_ride.bellinzona"},
		{"extra whitespace", models.BookingTypeService, "  Lugano   Centro ", "lugano", "service.lugano"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, cal, err := r.Resolve(tt.typ, tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, loc.Code)
			assert.Equal(t, tt.wantCal, cal)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	r := NewResolver(shops())

	_, _, err := r.Resolve(models.BookingTypeService, "Nowhereville")
	assert.ErrorIs(t, err, ErrUnknownLocation)

	_, _, err = r.Resolve(models.BookingTypeService, "   ")
	assert.ErrorIs(t, err, ErrUnknownLocation)

	_, _, err = r.Resolve(models.BookingTypeService, "Lugano or Zurich")
	assert.ErrorIs(t, err, ErrAmbiguousLocation)

	_, _, err = r.Resolve(models.BookingType("haircut"), "Lugano")
	assert.ErrorIs(t, err, ErrUnknownBookingType)
}

func TestResolveMissingCalendar(t *testing.T) {
	locs := shops()
	delete(locs[0].Calendars, models.BookingTypeTestRide)
	r := NewResolver(locs)

	_, _, err := r.Resolve(models.BookingTypeTestRide, "Lugano")
	assert.ErrorIs(t, err, ErrUnknownLocation)

	_, cal, err := r.Resolve(models.BookingTypeService, "Lugano")
	require.NoError(t, err)
	assert.Equal(t, models.CalendarIdentity("service.lugano"), cal)
}

func TestLocationsReturnsCopy(t *testing.T) {
	r := NewResolver(shops())
	list := r.Locations()
	list[0].Name = "changed"

	assert.Equal(t, "Lugano", r.Locations()[0].Name)
	assert.Len(t, list, 4)
}
