package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookings/internal/config"
	"bookings/internal/logging"
	"bookings/internal/models"
	"bookings/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	routePreflight      = "preflight"
	routeHealth         = "health"
	routeLegacyTestRide = "legacy_test_ride"
	routeLegacyService  = "legacy_service"
	routeProbe          = "probe"
	routeCreateBooking  = "create_booking"
	routeSuggestions    = "suggestions"
	routeAvailability   = "availability"
	routeLocations      = "locations"
	routeExport         = "export_bookings"

	maxBodyBytes = 1 << 20
)

// BookingAPI is the booking core as seen by the transport.
type BookingAPI interface {
	Book(ctx context.Context, req models.BookingRequest) (*models.CommitResult, error)
	CheckAvailability(ctx context.Context, q service.SlotQuery) (*service.AvailabilityResult, error)
	Suggest(ctx context.Context, q service.SlotQuery) ([]models.Suggestion, error)
	ProbeCalendars(ctx context.Context) (map[string]string, error)
	Locations() []models.Location
}

// JournalReader lists committed bookings for export.
type JournalReader interface {
	ListBookings(ctx context.Context, filter models.JournalFilter) ([]models.JournalEntry, error)
}

// HTTPServer exposes the booking endpoints: the legacy per-type routes and
// the /api/v1 surface.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings BookingAPI
	journal  JournalReader
	location *time.Location
	server   *http.Server
	router   *mux.Router
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

// NewHTTPServer wires routes and middleware. journal may be nil, in which
// case the export route is not registered.
func NewHTTPServer(cfg config.APIConfig, bookings BookingAPI, journal JournalReader, loc *time.Location, logger *zerolog.Logger) *HTTPServer {
	if loc == nil {
		loc = time.UTC
	}
	srv := &HTTPServer{
		cfg:      cfg,
		bookings: bookings,
		journal:  journal,
		location: loc,
		auth:     NewHTTPAuth(cfg),
		logger:   logging.Component(logger, "http"),
	}
	srv.router = srv.routes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSeconds) * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Use(
		requestLogger(s.logger),
		metricsMiddleware,
		corsMiddleware(s.cfg.CORSOrigins, s.auth.apiKeyHeader(), s.auth.extraHeader()),
		s.auth.Middleware,
	)

	r.Methods(http.MethodOptions).Name(routePreflight).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet).Name(routeHealth)

	r.HandleFunc("/bookings/test-ride", s.handleLegacyTestRide).Methods(http.MethodPost).Name(routeLegacyTestRide)
	r.HandleFunc("/bookings/service", s.handleLegacyService).Methods(http.MethodPost).Name(routeLegacyService)
	if s.cfg.ProbeEnabled {
		r.HandleFunc("/bookings/test", s.handleProbe).Methods(http.MethodPost).Name(routeProbe)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost).Name(routeCreateBooking)
	if s.journal != nil {
		v1.HandleFunc("/bookings/export", s.handleExport).Methods(http.MethodGet).Name(routeExport)
	}
	v1.HandleFunc("/suggestions", s.handleSuggestions).Methods(http.MethodGet).Name(routeSuggestions)
	v1.HandleFunc("/availability", s.handleAvailability).Methods(http.MethodGet).Name(routeAvailability)
	v1.HandleFunc("/locations", s.handleLocations).Methods(http.MethodGet).Name(routeLocations)

	return r
}

// Handler returns the root handler, e.g. for httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
