package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"bookings/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	API        APIConfig         `yaml:"api"`
	Google     GoogleConfig      `yaml:"google"`
	Booking    BookingConfig     `yaml:"booking"`
	Locations  []models.Location `yaml:"locations"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Cache      CacheConfig       `yaml:"cache"`
	Notify     NotifyConfig      `yaml:"notify"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	Exports    ExportConfig      `yaml:"exports"`
	Backup     BackupConfig      `yaml:"backup"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type APIConfig struct {
	HTTP         APIHTTPConfig      `yaml:"http"`
	Auth         APIAuthConfig      `yaml:"auth"`
	RateLimit    APIRateLimitConfig `yaml:"rate_limit"`
	CORSOrigins  []string           `yaml:"cors_origins"`
	ProbeEnabled bool               `yaml:"probe_enabled"`
}

type APIHTTPConfig struct {
	Port                int `yaml:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS               float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
	BookingsPerMinute int     `yaml:"bookings_per_minute"`
}

// GoogleConfig selects how the calendar client authenticates: a service
// account credentials file, or an OAuth client with a long-lived refresh token.
type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	ClientID              string `yaml:"client_id"`
	ClientSecret          string `yaml:"client_secret"`
	RefreshToken          string `yaml:"refresh_token"`
	Endpoint              string `yaml:"endpoint"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

func (g GoogleConfig) UsesRefreshToken() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RefreshToken != ""
}

func (g GoogleConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSeconds) * time.Second
}

type BookingConfig struct {
	Timezone               string `yaml:"timezone"`
	BusinessOpen           string `yaml:"business_open"`
	BusinessClose          string `yaml:"business_close"`
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
	MaxDurationMinutes     int    `yaml:"max_duration_minutes"`
	DaysToScan             int    `yaml:"days_to_scan"`
	MaxSuggestions         int    `yaml:"max_suggestions"`
	ParallelDayQueries     bool   `yaml:"parallel_day_queries"`
	MaxParallelQueries     int    `yaml:"max_parallel_queries"`
	EmailReminderMinutes   int    `yaml:"email_reminder_minutes"`
	PopupReminderMinutes   int    `yaml:"popup_reminder_minutes"`
	SendUpdates            string `yaml:"send_updates"`
}

// TimeLocation loads the calendar timezone.
func (b BookingConfig) TimeLocation() (*time.Location, error) {
	return time.LoadLocation(b.Timezone)
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type CacheConfig struct {
	Enabled        bool `yaml:"enabled"`
	BusyTTLSeconds int  `yaml:"busy_ttl_seconds"`
}

func (c CacheConfig) BusyTTL() time.Duration {
	return time.Duration(c.BusyTTLSeconds) * time.Second
}

type NotifyConfig struct {
	TelegramBotToken string      `yaml:"telegram_bot_token"`
	ChatIDs          []int64     `yaml:"chat_ids"`
	QueueSize        int         `yaml:"queue_size"`
	Retry            RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries          int     `yaml:"max_retries"`
	InitialDelaySeconds int     `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int     `yaml:"max_delay_seconds"`
	BackoffFactor       float64 `yaml:"backoff_factor"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// BackupConfig schedules SQLite snapshots of the journal database.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Interval      string `yaml:"interval"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Every returns the snapshot interval, 24h when unset or unparsable.
func (b BackupConfig) Every() time.Duration {
	if d, err := time.ParseDuration(b.Interval); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Google.CredentialsFile == "" && !c.Google.UsesRefreshToken() {
		return errors.New("google credentials_file or client_id/client_secret/refresh_token is required")
	}

	if err := c.Booking.Validate(); err != nil {
		return err
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Backup.Interval != "" {
		if _, err := time.ParseDuration(c.Backup.Interval); err != nil {
			return fmt.Errorf("invalid backup interval %q: %w", c.Backup.Interval, err)
		}
	}

	return ValidateLocations(c.Locations)
}

func (b BookingConfig) Validate() error {
	if _, err := b.TimeLocation(); err != nil {
		return fmt.Errorf("invalid booking timezone %q: %w", b.Timezone, err)
	}

	open, err := time.Parse(models.TimeFormat, b.BusinessOpen)
	if err != nil {
		return fmt.Errorf("invalid business_open %q: %w", b.BusinessOpen, err)
	}
	closing, err := time.Parse(models.TimeFormat, b.BusinessClose)
	if err != nil {
		return fmt.Errorf("invalid business_close %q: %w", b.BusinessClose, err)
	}
	if !closing.After(open) {
		return fmt.Errorf("business_close %s must be after business_open %s", b.BusinessClose, b.BusinessOpen)
	}

	if b.DefaultDurationMinutes <= 0 || b.DefaultDurationMinutes > b.MaxDurationMinutes {
		return fmt.Errorf("default_duration_minutes must be in (0, %d]", b.MaxDurationMinutes)
	}
	if b.DaysToScan <= 0 {
		return errors.New("days_to_scan must be positive")
	}
	if b.MaxSuggestions <= 0 {
		return errors.New("max_suggestions must be positive")
	}
	return nil
}

// ValidateLocations enforces the location table invariants at load time:
// unique codes, a name per location and a calendar for every booking type.
func ValidateLocations(locations []models.Location) error {
	if len(locations) == 0 {
		return errors.New("at least one location is required")
	}

	codes := make(map[string]bool)
	for _, loc := range locations {
		code := strings.ToLower(strings.TrimSpace(loc.Code))
		if code == "" {
			return fmt.Errorf("location '%s' has empty code", loc.Name)
		}
		if codes[code] {
			return fmt.Errorf("duplicate location code found: %s", loc.Code)
		}
		codes[code] = true

		if strings.TrimSpace(loc.Name) == "" {
			return fmt.Errorf("location %s has empty name", loc.Code)
		}

		for _, bt := range []models.BookingType{models.BookingTypeTestRide, models.BookingTypeService} {
			if _, ok := loc.Calendar(bt); !ok {
				return fmt.Errorf("location %s has no calendar for %s", loc.Code, bt)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bookings"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeoutSeconds == 0 {
		c.API.HTTP.ReadTimeoutSeconds = 5
	}
	if c.API.HTTP.WriteTimeoutSeconds == 0 {
		c.API.HTTP.WriteTimeoutSeconds = 30
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth is on whenever keys are configured
	if len(c.API.Auth.APIKeys) > 0 {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if len(c.API.CORSOrigins) == 0 {
		c.API.CORSOrigins = []string{"*"}
	}

	if c.Google.RequestTimeoutSeconds == 0 {
		c.Google.RequestTimeoutSeconds = 10
	}

	// Booking defaults
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = models.DefaultTimezone
	}
	if c.Booking.BusinessOpen == "" {
		c.Booking.BusinessOpen = models.DefaultBusinessOpen
	}
	if c.Booking.BusinessClose == "" {
		c.Booking.BusinessClose = models.DefaultBusinessClose
	}
	if c.Booking.DefaultDurationMinutes == 0 {
		c.Booking.DefaultDurationMinutes = models.DefaultDurationMinutes
	}
	if c.Booking.MaxDurationMinutes == 0 {
		c.Booking.MaxDurationMinutes = models.MaxDurationMinutes
	}
	if c.Booking.DaysToScan == 0 {
		c.Booking.DaysToScan = models.DefaultDaysToScan
	}
	if c.Booking.MaxSuggestions == 0 {
		c.Booking.MaxSuggestions = models.DefaultMaxSuggestions
	}
	if c.Booking.MaxParallelQueries == 0 {
		c.Booking.MaxParallelQueries = 4
	}
	if c.Booking.EmailReminderMinutes == 0 {
		c.Booking.EmailReminderMinutes = models.DefaultEmailReminderMinutes
	}
	if c.Booking.PopupReminderMinutes == 0 {
		c.Booking.PopupReminderMinutes = models.DefaultPopupReminderMinutes
	}
	if c.Booking.SendUpdates == "" {
		c.Booking.SendUpdates = "all"
	}

	if c.Cache.BusyTTLSeconds == 0 {
		c.Cache.BusyTTLSeconds = 30
	}

	if c.Notify.QueueSize == 0 {
		c.Notify.QueueSize = 128
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}
