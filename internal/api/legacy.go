package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"bookings/internal/models"
	"bookings/internal/service"
)

// flexString accepts JSON strings, numbers and booleans; form builders send
// "participants": 2 as often as "2". Objects and arrays are rejected so raw
// JSON never reaches an event description.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	switch {
	case len(data) == 0:
	case data[0] == '{':
		return &json.UnmarshalTypeError{Value: "object", Type: reflect.TypeOf("")}
	case data[0] == '[':
		return &json.UnmarshalTypeError{Value: "array", Type: reflect.TypeOf("")}
	}
	*f = flexString(data)
	return nil
}

func (f flexString) String() string {
	return string(f)
}

type customerFields struct {
	CustomerName  flexString `json:"customer_name"`
	CustomerEmail flexString `json:"customer_email"`
	CustomerPhone flexString `json:"customer_phone"`
}

func (c customerFields) customer() models.Customer {
	return models.Customer{
		Name:  c.CustomerName.String(),
		Email: c.CustomerEmail.String(),
		Phone: c.CustomerPhone.String(),
	}
}

type testRideRequest struct {
	customerFields
	Location        flexString `json:"test_ride_location"`
	Date            flexString `json:"test_ride_date"`
	Time            flexString `json:"test_ride_time"`
	ExperienceLevel flexString `json:"experience_level"`
	RideLength      flexString `json:"ride_length"`
	SpecialRequests flexString `json:"special_requests"`
	ProductTitle    flexString `json:"product_title"`
	ProductHandle   flexString `json:"product_handle"`
}

func (t testRideRequest) bookingRequest() models.BookingRequest {
	return models.BookingRequest{
		Type:     models.BookingTypeTestRide,
		Location: t.Location.String(),
		Date:     t.Date.String(),
		Time:     t.Time.String(),
		Customer: t.customer(),
		Attributes: attributes(map[string]flexString{
			service.AttrExperienceLevel: t.ExperienceLevel,
			service.AttrRideLength:      t.RideLength,
			service.AttrSpecialRequests: t.SpecialRequests,
			service.AttrProductTitle:    t.ProductTitle,
			service.AttrProductHandle:   t.ProductHandle,
		}),
	}
}

type serviceRequest struct {
	customerFields
	Location            flexString `json:"service_location"`
	WorkshopType        flexString `json:"workshop_type"`
	Date                flexString `json:"workshop_date"`
	Time                flexString `json:"workshop_time"`
	Participants        flexString `json:"participants"`
	SpecialRequirements flexString `json:"special_requirements"`
	WorkshopDuration    flexString `json:"workshop_duration"`
}

func (s serviceRequest) bookingRequest() models.BookingRequest {
	return models.BookingRequest{
		Type:     models.BookingTypeService,
		Location: s.Location.String(),
		Date:     s.Date.String(),
		Time:     s.Time.String(),
		Customer: s.customer(),
		Attributes: attributes(map[string]flexString{
			service.AttrWorkshopType:        s.WorkshopType,
			service.AttrParticipants:        s.Participants,
			service.AttrSpecialRequirements: s.SpecialRequirements,
			service.AttrWorkshopDuration:    s.WorkshopDuration,
		}),
	}
}

func attributes(in map[string]flexString) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v.String()
		}
	}
	return out
}

func legacyDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field + " must be a string, number or boolean"
	}
	return "invalid JSON body"
}

// Legacy routes always book the default duration; ride_length and
// workshop_duration are free text shown in the event description.
func (s *HTTPServer) handleLegacyTestRide(w http.ResponseWriter, r *http.Request) {
	var body testRideRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: legacyDecodeError(err)})
		return
	}
	s.book(w, r, body.bookingRequest(), "Test ride booked successfully")
}

func (s *HTTPServer) handleLegacyService(w http.ResponseWriter, r *http.Request) {
	var body serviceRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: legacyDecodeError(err)})
		return
	}
	s.book(w, r, body.bookingRequest(), "Service appointment booked successfully")
}
