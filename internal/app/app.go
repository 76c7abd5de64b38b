// Package app assembles the booking core and its collaborators from
// configuration. Both binaries build through here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookings/internal/availability"
	"bookings/internal/config"
	"bookings/internal/database"
	"bookings/internal/domain"
	"bookings/internal/events"
	"bookings/internal/google"
	"bookings/internal/locations"
	"bookings/internal/logging"
	"bookings/internal/metrics"
	"bookings/internal/notify"
	"bookings/internal/repository"
	"bookings/internal/service"
	"bookings/internal/suggest"
	"bookings/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type App struct {
	Config   *config.Config
	Location *time.Location
	DB       *database.DB
	Redis    *redis.Client
	Calendar domain.Calendar
	Events   *events.EventBus
	Worker   *worker.NotificationWorker
	Backups  *database.BackupService
	Service  *service.BookingService

	logger *zerolog.Logger
}

type buildOptions struct {
	calendar domain.Calendar
	sender   worker.Sender
}

type Option func(*buildOptions)

// WithCalendar replaces the Google Calendar client.
func WithCalendar(c domain.Calendar) Option {
	return func(o *buildOptions) { o.calendar = c }
}

// WithSender replaces the notification sender chosen from configuration.
func WithSender(s worker.Sender) Option {
	return func(o *buildOptions) { o.sender = s }
}

// Build opens storage, connects the calendar and wires the booking service.
// Redis is optional: without it the busy cache lives in memory and
// notifications travel through the in-process queue.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	loc, err := cfg.Booking.TimeLocation()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	hours, err := suggest.ParseBusinessHours(cfg.Booking.BusinessOpen, cfg.Booking.BusinessClose)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Location: loc,
		Events:   events.NewEventBus(),
		logger:   logging.Component(logger, "app"),
	}

	a.DB, err = database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	a.Backups = database.NewBackupService(a.DB, cfg.Backup, logger)
	a.Redis = initRedis(ctx, cfg.Redis, a.logger)

	a.Calendar = o.calendar
	if a.Calendar == nil {
		a.Calendar, err = google.NewCalendarService(ctx, cfg.Google, google.EventOptions{
			TimeZone:             cfg.Booking.Timezone,
			EmailReminderMinutes: cfg.Booking.EmailReminderMinutes,
			PopupReminderMinutes: cfg.Booking.PopupReminderMinutes,
			SendUpdates:          cfg.Booking.SendUpdates,
			RequestTimeout:       cfg.Google.RequestTimeout(),
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("init google calendar: %w", err)
		}
	}

	oracle := availability.NewOracle(a.Calendar, logger)
	var (
		scanOracle  domain.Oracle = oracle
		invalidator domain.BusyInvalidator
	)
	if cfg.Cache.Enabled {
		cached := availability.NewCachedOracle(oracle, a.busyCache(), cfg.Cache.BusyTTL(), logger)
		scanOracle, invalidator = cached, cached
	}

	engine := suggest.NewEngine(scanOracle, suggest.Options{
		Hours:       hours,
		Location:    loc,
		Parallel:    cfg.Booking.ParallelDayQueries,
		MaxParallel: cfg.Booking.MaxParallelQueries,
		Live:        oracle,
	}, logger)

	sender := o.sender
	if sender == nil {
		sender = newSender(cfg.Notify, logger)
	}
	a.Worker = worker.NewNotificationWorker(a.DB, sender, a.Redis,
		worker.PolicyFromConfig(cfg.Notify.Retry), cfg.Notify.QueueSize, logger)

	SubscribeMetrics(a.Events)

	a.Service = service.NewBookingService(service.Deps{
		Resolver:  locations.NewResolver(cfg.Locations),
		Checker:   availability.NewChecker(oracle),
		Suggester: engine,
		Writer:    a.Calendar,
		Notifier:  a.Worker,
		Journal:   a.DB,
		Events:    a.Events,
		BusyCache: invalidator,
	}, service.Options{
		Location:               loc,
		DefaultDurationMinutes: cfg.Booking.DefaultDurationMinutes,
		MaxDurationMinutes:     cfg.Booking.MaxDurationMinutes,
		DaysToScan:             cfg.Booking.DaysToScan,
		MaxSuggestions:         cfg.Booking.MaxSuggestions,
	}, logger)

	return a, nil
}

// busyCache prefers Redis and falls back to memory while Redis is down.
func (a *App) busyCache() domain.BusyCache {
	memory := repository.NewMemoryBusyCache()
	if a.Redis == nil {
		return memory
	}
	return repository.NewFailoverBusyCache(repository.NewRedisBusyCache(a.Redis), memory, a.logger)
}

func initRedis(ctx context.Context, cfg config.RedisConfig, logger *zerolog.Logger) *redis.Client {
	if cfg.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Address).Msg("redis connected")
	return client
}

func newSender(cfg config.NotifyConfig, logger *zerolog.Logger) worker.Sender {
	if cfg.TelegramBotToken == "" {
		return notify.NewLogSender(logger)
	}
	sender, err := notify.NewTelegramSender(cfg.TelegramBotToken, cfg.ChatIDs, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, notifications go to the log")
		return notify.NewLogSender(logger)
	}
	return sender
}

// SubscribeMetrics counts booking outcomes from the event stream.
func SubscribeMetrics(bus *events.EventBus) {
	bus.Subscribe(func(e events.BookingEvent) error {
		bookingType := e.Data.BookingType
		if bookingType == "" {
			bookingType = "unknown"
		}
		metrics.IncBooking(bookingType, e.Type.Outcome())
		return nil
	},
		events.EventBookingCommitted,
		events.EventBookingConflict,
		events.EventBookingRejected,
		events.EventCommitFailed,
	)
}

// StartBackground runs the notification worker and journal backups until
// ctx is done.
func (a *App) StartBackground(ctx context.Context) {
	go a.Worker.Start(ctx)
	go a.Backups.Start(ctx)
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, repository.Close(a.Redis))
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
