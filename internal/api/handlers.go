package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookings/internal/export"
	"bookings/internal/logging"
	"bookings/internal/models"
	"bookings/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type bookingResponse struct {
	Success   bool      `json:"success"`
	BookingID string    `json:"booking_id"`
	Message   string    `json:"message,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

type conflictResponse struct {
	Success     bool                `json:"success"`
	Error       string              `json:"error"`
	Suggestions []models.Suggestion `json:"suggestions"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: "invalid JSON body"})
		return
	}
	req.Type, _ = models.ParseBookingType(string(req.Type))
	s.book(w, r, req, "")
}

// book runs the booking and maps the outcome to the wire shapes.
func (s *HTTPServer) book(w http.ResponseWriter, r *http.Request, req models.BookingRequest, successMessage string) {
	res, err := s.bookings.Book(r.Context(), req)
	if err == nil {
		writeJSON(w, http.StatusOK, bookingResponse{
			Success:   true,
			BookingID: res.BookingID,
			Message:   successMessage,
			Start:     res.Start,
			End:       res.End,
		})
		return
	}

	var (
		validationErr *service.ValidationError
		conflictErr   *service.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: validationErr.Message})
	case errors.As(err, &conflictErr):
		suggestions := conflictErr.Suggestions
		if suggestions == nil {
			suggestions = []models.Suggestion{}
		}
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:       service.ErrorCodeSlotUnavailable,
			Suggestions: suggestions,
		})
	default:
		logging.FromContext(r.Context(), s.logger).Error().Err(err).Str("booking_type", string(req.Type)).Msg("booking failed")
		writeJSON(w, http.StatusInternalServerError, failureResponse{Error: err.Error()})
	}
}

func (s *HTTPServer) handleProbe(w http.ResponseWriter, r *http.Request) {
	results, err := s.bookings.ProbeCalendars(r.Context())
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error().Err(err).Msg("calendar probe failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error(), "results": results})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "results": results})
}

func (s *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q, err := slotQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	suggestions, err := s.bookings.Suggest(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q, err := slotQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.bookings.CheckAvailability(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type locationView struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Types   []string `json:"booking_types"`
}

func (s *HTTPServer) handleLocations(w http.ResponseWriter, _ *http.Request) {
	locs := s.bookings.Locations()
	views := make([]locationView, 0, len(locs))
	for _, loc := range locs {
		v := locationView{Code: loc.Code, Name: loc.Name, Aliases: loc.Aliases, Types: []string{}}
		for _, bt := range []models.BookingType{models.BookingTypeTestRide, models.BookingTypeService} {
			if _, ok := loc.Calendar(bt); ok {
				v.Types = append(v.Types, string(bt))
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": views})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from, err := s.parseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := s.parseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	filter := models.JournalFilter{From: from, To: to.AddDate(0, 0, 1)}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		bt, ok := models.ParseBookingType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported booking type")
			return
		}
		filter.Type = bt
	}
	filter.LocationCode = strings.ToLower(strings.TrimSpace(r.URL.Query().Get("location")))

	entries, err := s.journal.ListBookings(r.Context(), filter)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error().Err(err).Msg("list journal")
		writeError(w, http.StatusInternalServerError, "failed to load bookings")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(from, to)+`"`)
	if err := export.Write(w, entries, from, to, s.location); err != nil {
		logging.FromContext(r.Context(), s.logger).Error().Err(err).Msg("write export")
	}
}

func (s *HTTPServer) parseDay(raw string) (time.Time, error) {
	return time.ParseInLocation(models.DateFormat, strings.TrimSpace(raw), s.location)
}

func (s *HTTPServer) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}
	logging.FromContext(r.Context(), s.logger).Error().Err(err).Msg("query failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

// slotQuery reads type, location, date, time, duration, days and max from
// the query string.
func slotQuery(r *http.Request) (service.SlotQuery, error) {
	values := r.URL.Query()
	bt, _ := models.ParseBookingType(values.Get("type"))
	q := service.SlotQuery{
		Type:     bt,
		Location: strings.TrimSpace(values.Get("location")),
		Date:     strings.TrimSpace(values.Get("date")),
		Time:     strings.TrimSpace(values.Get("time")),
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"duration", &q.DurationMinutes},
		{"days", &q.Days},
		{"max", &q.Max},
	}
	for _, p := range ints {
		raw := strings.TrimSpace(values.Get(p.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("invalid " + p.name + "; expected an integer")
		}
		*p.dst = n
	}
	return q, nil
}
