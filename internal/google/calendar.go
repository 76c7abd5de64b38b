package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bookings/internal/config"
	"bookings/internal/models"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var ErrCalendarMissing = errors.New("calendar missing from freebusy response")

// EventOptions control how booking events are written.
type EventOptions struct {
	TimeZone             string
	EmailReminderMinutes int
	PopupReminderMinutes int
	// SendUpdates is passed to events.insert ("all", "externalOnly", "none").
	SendUpdates    string
	RequestTimeout time.Duration
}

// CalendarService reads busy time and inserts events through the Google
// Calendar v3 API. Each call is bounded by RequestTimeout; a timeout surfaces
// as an ordinary error.
type CalendarService struct {
	service *calendar.Service
	opts    EventOptions
}

// NewCalendarService authenticates with either an OAuth refresh token or a
// service account credentials file.
func NewCalendarService(ctx context.Context, cfg config.GoogleConfig, opts EventOptions) (*CalendarService, error) {
	clientOpts, err := ClientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCalendarServiceWithOptions(ctx, opts, clientOpts...)
}

func NewCalendarServiceWithOptions(ctx context.Context, opts EventOptions, clientOpts ...option.ClientOption) (*CalendarService, error) {
	srv, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &CalendarService{service: srv, opts: opts}, nil
}

// ClientOptions builds the auth options for the configured credentials.
func ClientOptions(ctx context.Context, cfg config.GoogleConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	switch {
	case cfg.UsesRefreshToken():
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{calendar.CalendarScope},
		}
		opts = append(opts, option.WithTokenSource(oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})))
	case cfg.CredentialsFile != "":
		credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read credentials file: %w", err)
		}
		jwtCfg, err := googleoauth.JWTConfigFromJSON(credentialsJSON, calendar.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse credentials: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(jwtCfg.Client(ctx)))
	default:
		return nil, errors.New("google credentials are not configured")
	}

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return opts, nil
}

// QueryBusy returns the raw busy periods for one calendar within [start, end).
func (s *CalendarService) QueryBusy(ctx context.Context, id models.CalendarIdentity, start, end time.Time) ([]models.TimeInterval, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	resp, err := s.service.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: end.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: id.String()}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query %s: %w", id, err)
	}

	cal, ok := resp.Calendars[id.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCalendarMissing, id)
	}
	if len(cal.Errors) > 0 {
		reasons := make([]string, 0, len(cal.Errors))
		for _, e := range cal.Errors {
			reasons = append(reasons, e.Reason)
		}
		return nil, fmt.Errorf("freebusy query %s: %s", id, strings.Join(reasons, ", "))
	}

	busy := make([]models.TimeInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		from, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", p.Start, err)
		}
		to, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", p.End, err)
		}
		busy = append(busy, models.TimeInterval{Start: from, End: to})
	}
	return busy, nil
}

// CreateEvent inserts the reservation and returns the event id.
func (s *CalendarService) CreateEvent(ctx context.Context, id models.CalendarIdentity, r models.Reservation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	call := s.service.Events.Insert(id.String(), s.buildEvent(r))
	if s.opts.SendUpdates != "" {
		call = call.SendUpdates(s.opts.SendUpdates)
	}

	ev, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event into %s: %w", id, err)
	}
	return ev.Id, nil
}

func (s *CalendarService) buildEvent(r models.Reservation) *calendar.Event {
	ev := &calendar.Event{
		Summary:     r.Summary,
		Description: r.Description,
		Location:    r.Label,
		Start: &calendar.EventDateTime{
			DateTime: r.Interval.Start.Format(time.RFC3339),
			TimeZone: s.opts.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: r.Interval.End.Format(time.RFC3339),
			TimeZone: s.opts.TimeZone,
		},
	}

	if r.Customer.Email != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: r.Customer.Email, DisplayName: r.Customer.Name}}
	}

	var overrides []*calendar.EventReminder
	if s.opts.EmailReminderMinutes > 0 {
		overrides = append(overrides, &calendar.EventReminder{Method: "email", Minutes: int64(s.opts.EmailReminderMinutes)})
	}
	if s.opts.PopupReminderMinutes > 0 {
		overrides = append(overrides, &calendar.EventReminder{Method: "popup", Minutes: int64(s.opts.PopupReminderMinutes)})
	}
	if len(overrides) > 0 {
		ev.Reminders = &calendar.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		}
	}

	return ev
}
