package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookings/internal/availability"
	"bookings/internal/events"
	"bookings/internal/locations"
	"bookings/internal/models"
	"bookings/internal/suggest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCalendar struct {
	mock.Mock
}

func (m *mockCalendar) QueryBusy(ctx context.Context, cal models.CalendarIdentity, start, end time.Time) ([]models.TimeInterval, error) {
	args := m.Called(ctx, cal, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TimeInterval), args.Error(1)
}

func (m *mockCalendar) CreateEvent(ctx context.Context, cal models.CalendarIdentity, ev models.Reservation) (string, error) {
	args := m.Called(ctx, cal, ev)
	return args.String(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, bt models.BookingType, data models.BookingNotification) error {
	return m.Called(ctx, bt, data).Error(0)
}

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) RecordBooking(ctx context.Context, entry *models.JournalEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockJournal) ListBookings(ctx context.Context, f models.JournalFilter) ([]models.JournalEntry, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JournalEntry), args.Error(1)
}

type recordingBus struct {
	mu       sync.Mutex
	types    []events.EventType
	payloads []events.BookingEventPayload
}

func (r *recordingBus) Publish(eventType events.EventType, payload events.BookingEventPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingBus) Types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.EventType(nil), r.types...)
}

func (r *recordingBus) Payloads() []events.BookingEventPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.BookingEventPayload(nil), r.payloads...)
}

func zurich(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	return loc
}

func testLocations() []models.Location {
	mk := func(code, name string) models.Location {
		return models.Location{
			Code: code,
			Name: name,
			Calendars: map[models.BookingType]models.CalendarIdentity{
				models.BookingTypeTestRide: models.CalendarIdentity("test_ride." + code),
				models.BookingTypeService:  models.CalendarIdentity("service." + code),
			},
		}
	}
	return []models.Location{mk("lugano", "Lugano"), mk("zurich", "Zurich")}
}

type fixture struct {
	svc      *BookingService
	calendar *mockCalendar
	notifier *mockNotifier
	journal  *mockJournal
	bus      *recordingBus
	loc      *time.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc := zurich(t)
	f := &fixture{
		calendar: &mockCalendar{},
		notifier: &mockNotifier{},
		journal:  &mockJournal{},
		bus:      &recordingBus{},
		loc:      loc,
	}

	oracle := availability.NewOracle(f.calendar, nil)
	f.svc = NewBookingService(Deps{
		Resolver:  locations.NewResolver(testLocations()),
		Checker:   availability.NewChecker(oracle),
		Suggester: suggest.NewEngine(oracle, suggest.Options{Location: loc}, nil),
		Writer:    f.calendar,
		Notifier:  f.notifier,
		Journal:   f.journal,
		Events:    f.bus,
	}, Options{Location: loc}, nil)
	f.svc.SetClock(func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, loc) })
	return f
}

func serviceRequest() models.BookingRequest {
	return models.BookingRequest{
		Type:            models.BookingTypeService,
		Location:        "Lugano",
		Date:            "2025-03-10",
		Time:            "14:00",
		DurationMinutes: 60,
		Customer: models.Customer{
			Name:  "Anna Bernasconi",
			Email: "anna@example.com",
			Phone: "+41 79 000 00 00",
		},
		Attributes: map[string]string{AttrWorkshopType: "Full service"},
	}
}

func TestBook_CommitsWhenFree(t *testing.T) {
	f := newFixture(t)
	f.calendar.On("QueryBusy", mock.Anything, models.CalendarIdentity("service.lugano"), mock.Anything, mock.Anything).
		Return([]models.TimeInterval{}, nil)
	f.calendar.On("CreateEvent", mock.Anything, models.CalendarIdentity("service.lugano"), mock.AnythingOfType("models.Reservation")).
		Return("evt-1", nil)
	f.journal.On("RecordBooking", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Notify", mock.Anything, models.BookingTypeService, mock.Anything).Return(nil)

	res, err := f.svc.Book(context.Background(), serviceRequest())
	require.NoError(t, err)

	assert.Equal(t, "evt-1", res.BookingID)
	assert.Equal(t, time.Date(2025, 3, 10, 14, 0, 0, 0, f.loc), res.Start)
	assert.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, f.loc), res.End)

	f.calendar.AssertNumberOfCalls(t, "QueryBusy", 1)
	f.journal.AssertNumberOfCalls(t, "RecordBooking", 1)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
	assert.Equal(t, []events.EventType{events.EventBookingCommitted}, f.bus.Types())
	committed := f.bus.Payloads()[0]
	assert.Equal(t, "evt-1", committed.BookingID)
	assert.Equal(t, "service.lugano", committed.Calendar)
	assert.Equal(t, "Anna Bernasconi", committed.CustomerName)

	ev := f.calendar.Calls[1].Arguments.Get(2).(models.Reservation)
	assert.Equal(t, "Service: Full service - Anna Bernasconi", ev.Summary)
	assert.Equal(t, "Lugano", ev.Label)
	assert.Equal(t, "anna@example.com", ev.Customer.Email)
}

func TestBook_ConflictReturnsSuggestions(t *testing.T) {
	f := newFixture(t)
	busy := []models.TimeInterval{{
		Start: time.Date(2025, 3, 10, 14, 0, 0, 0, f.loc),
		End:   time.Date(2025, 3, 10, 15, 0, 0, 0, f.loc),
	}}
	f.calendar.On("QueryBusy", mock.Anything, models.CalendarIdentity("service.lugano"), mock.Anything, mock.Anything).
		Return(busy, nil)

	_, err := f.svc.Book(context.Background(), serviceRequest())

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ErrorCodeSlotUnavailable, conflict.Error())
	require.NotEmpty(t, conflict.Suggestions)

	first := conflict.Suggestions[0]
	assert.True(t, (first.Date == "2025-03-10" && first.Time >= "15:00") || first.Date == "2025-03-11",
		"unexpected first suggestion %+v", first)
	assert.LessOrEqual(t, len(conflict.Suggestions), models.DefaultMaxSuggestions)

	f.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
	f.journal.AssertNotCalled(t, "RecordBooking", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []events.EventType{events.EventBookingConflict}, f.bus.Types())
}

func TestBook_UnknownLocationMakesNoCalendarCalls(t *testing.T) {
	f := newFixture(t)
	req := serviceRequest()
	req.Location = "Nowhereville"

	_, err := f.svc.Book(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "location", verr.Field)
	assert.ErrorIs(t, err, locations.ErrUnknownLocation)
	f.calendar.AssertNumberOfCalls(t, "QueryBusy", 0)
	f.calendar.AssertNumberOfCalls(t, "CreateEvent", 0)
	assert.Equal(t, []events.EventType{events.EventBookingRejected}, f.bus.Types())
}

func TestBook_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.BookingRequest)
		field  string
	}{
		{"bad type", func(r *models.BookingRequest) { r.Type = "massage" }, "booking_type"},
		{"ambiguous location", func(r *models.BookingRequest) { r.Location = "Lugano / Zurich" }, "location"},
		{"bad date", func(r *models.BookingRequest) { r.Date = "10.03.2025" }, "date"},
		{"bad time", func(r *models.BookingRequest) { r.Time = "2pm" }, "time"},
		{"past", func(r *models.BookingRequest) { r.Date = "2025-02-28" }, "date"},
		{"negative duration", func(r *models.BookingRequest) { r.DurationMinutes = -30 }, "duration_minutes"},
		{"too long", func(r *models.BookingRequest) { r.DurationMinutes = 481 }, "duration_minutes"},
		{"missing name", func(r *models.BookingRequest) { r.Customer.Name = "  " }, "customer_name"},
		{"missing email", func(r *models.BookingRequest) { r.Customer.Email = "" }, "customer_email"},
		{"missing phone", func(r *models.BookingRequest) { r.Customer.Phone = "" }, "customer_phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := serviceRequest()
			tt.mutate(&req)

			_, err := f.svc.Book(context.Background(), req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.NotEmpty(t, verr.Error())
			f.calendar.AssertNumberOfCalls(t, "QueryBusy", 0)
			f.calendar.AssertNumberOfCalls(t, "CreateEvent", 0)
		})
	}
}

func TestBook_DefaultDuration(t *testing.T) {
	f := newFixture(t)
	f.calendar.On("QueryBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]models.TimeInterval{}, nil)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything).Return("evt-2", nil)
	f.journal.On("RecordBooking", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	req := serviceRequest()
	req.DurationMinutes = 0
	res, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, res.End.Sub(res.Start))
}

func TestBook_OracleFailureIsTreatedAsConflict(t *testing.T) {
	f := newFixture(t)
	f.calendar.On("QueryBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded)

	_, err := f.svc.Book(context.Background(), serviceRequest())

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Empty(t, conflict.Suggestions)
	f.calendar.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []events.EventType{events.EventAvailabilityDegraded, events.EventBookingConflict}, f.bus.Types())
}

func TestBook_CommitError(t *testing.T) {
	f := newFixture(t)
	writeErr := errors.New("googleapi: Error 403: forbidden")
	f.calendar.On("QueryBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]models.TimeInterval{}, nil)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything).Return("", writeErr)

	_, err := f.svc.Book(context.Background(), serviceRequest())

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.ErrorIs(t, err, writeErr)
	f.calendar.AssertNumberOfCalls(t, "CreateEvent", 1)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []events.EventType{events.EventCommitFailed}, f.bus.Types())
}

func TestBook_SideEffectFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	f.calendar.On("QueryBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]models.TimeInterval{}, nil)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything).Return("evt-3", nil)
	f.journal.On("RecordBooking", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("queue closed"))

	res, err := f.svc.Book(context.Background(), serviceRequest())
	require.NoError(t, err)
	assert.Equal(t, "evt-3", res.BookingID)

	entry := f.journal.Calls[0].Arguments.Get(1).(*models.JournalEntry)
	assert.Equal(t, "evt-3", entry.EventID)
	assert.Equal(t, "lugano", entry.LocationCode)
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Invalidate(ctx context.Context, cal models.CalendarIdentity) error {
	return m.Called(ctx, cal).Error(0)
}

func TestBook_CommitInvalidatesBusyCache(t *testing.T) {
	f := newFixture(t)
	cache := &mockInvalidator{}
	f.svc.deps.BusyCache = cache
	f.calendar.On("QueryBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]models.TimeInterval{}, nil)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything).Return("evt-4", nil)
	f.journal.On("RecordBooking", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	cache.On("Invalidate", mock.Anything, models.CalendarIdentity("service.lugano")).Return(errors.New("redis down")).Once()

	res, err := f.svc.Book(context.Background(), serviceRequest())
	require.NoError(t, err)
	assert.Equal(t, "evt-4", res.BookingID)
	cache.AssertExpectations(t)
}

func TestBook_ConflictKeepsBusyCache(t *testing.T) {
	f := newFixture(t)
	cache := &mockInvalidator{}
	f.svc.deps.BusyCache = cache
	req := serviceRequest()
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, f.loc)
	f.calendar.On("QueryBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.TimeInterval{{Start: start, End: start.Add(time.Hour)}}, nil)

	_, err := f.svc.Book(context.Background(), req)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

// racingCalendar holds every busy query until two have arrived, so both
// requests see the calendar before either writes.
type racingCalendar struct {
	mu      sync.Mutex
	checked sync.WaitGroup
	events  []models.TimeInterval
}

func (r *racingCalendar) QueryBusy(_ context.Context, _ models.CalendarIdentity, _, _ time.Time) ([]models.TimeInterval, error) {
	r.checked.Done()
	r.checked.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TimeInterval(nil), r.events...), nil
}

func (r *racingCalendar) CreateEvent(_ context.Context, _ models.CalendarIdentity, ev models.Reservation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Interval)
	return "evt", nil
}

// Check and commit are not atomic: overlapping concurrent requests can both
// be written. This pins the known behaviour so a future locking change is
// a visible decision.
func TestBook_ConcurrentOverlappingRequestsBothCommit(t *testing.T) {
	loc := zurich(t)
	cal := &racingCalendar{}
	cal.checked.Add(2)

	oracle := availability.NewOracle(cal, nil)
	svc := NewBookingService(Deps{
		Resolver:  locations.NewResolver(testLocations()),
		Checker:   availability.NewChecker(oracle),
		Suggester: suggest.NewEngine(oracle, suggest.Options{Location: loc}, nil),
		Writer:    cal,
	}, Options{Location: loc}, nil)
	svc.SetClock(func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, loc) })

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), serviceRequest())
		}(i)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	require.Len(t, cal.events, 2)
	assert.True(t, cal.events[0].Overlaps(cal.events[1]))
}
