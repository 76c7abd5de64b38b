package service

import (
	"fmt"
	"strings"

	"bookings/internal/models"
)

// Attribute keys understood when rendering calendar events.
const (
	AttrExperienceLevel     = "experience_level"
	AttrRideLength          = "ride_length"
	AttrSpecialRequests     = "special_requests"
	AttrProductTitle        = "product_title"
	AttrProductHandle       = "product_handle"
	AttrWorkshopType        = "workshop_type"
	AttrParticipants        = "participants"
	AttrWorkshopDuration    = "workshop_duration"
	AttrSpecialRequirements = "special_requirements"
)

const (
	probeSummary     = "API Test Booking"
	probeDescription = "Automated test event"
)

func renderSummary(req *models.BookingRequest) string {
	switch req.Type {
	case models.BookingTypeService:
		return fmt.Sprintf("Service: %s - %s", req.Attr(AttrWorkshopType, "N/A"), req.Customer.Name)
	default:
		return fmt.Sprintf("Test Ride: %s", req.Customer.Name)
	}
}

func renderDescription(req *models.BookingRequest) string {
	var b strings.Builder

	line := func(label, value string) {
		b.WriteString("\n")
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
	}

	switch req.Type {
	case models.BookingTypeService:
		b.WriteString("Service Booking\n")
		line("Customer", req.Customer.Name)
		line("Email", req.Customer.Email)
		line("Phone", req.Customer.Phone)
		line("Service", req.Attr(AttrWorkshopType, "N/A"))
		line("Bikes", req.Attr(AttrParticipants, "1"))
		line("Duration", req.Attr(AttrWorkshopDuration, "1 hour"))
		line("Special Requirements", req.Attr(AttrSpecialRequirements, "None"))
	default:
		b.WriteString("Test Ride Booking\n")
		line("Customer", req.Customer.Name)
		line("Email", req.Customer.Email)
		line("Phone", req.Customer.Phone)
		line("Experience", req.Attr(AttrExperienceLevel, "N/A"))
		line("Duration", req.Attr(AttrRideLength, "1 hour"))
		line("Product", req.Attr(AttrProductTitle, "N/A"))
		if handle := req.Attr(AttrProductHandle, ""); handle != "" {
			line("Product Handle", handle)
		}
		line("Special Requests", req.Attr(AttrSpecialRequests, "None"))
	}

	return b.String()
}

func buildReservation(req *models.BookingRequest, loc models.Location, calendar models.CalendarIdentity, interval models.TimeInterval) models.Reservation {
	label := strings.TrimSpace(req.Location)
	if label == "" {
		label = loc.Name
	}
	return models.Reservation{
		Type:        req.Type,
		Location:    loc,
		Calendar:    calendar,
		Interval:    interval,
		Summary:     renderSummary(req),
		Description: renderDescription(req),
		Label:       label,
		Customer:    req.Customer,
	}
}
