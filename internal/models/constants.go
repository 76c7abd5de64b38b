package models

const (
	BookingTypeTestRide BookingType = "test_ride"
	BookingTypeService  BookingType = "service"
)

const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

const (
	// DefaultDurationMinutes is applied when a request carries no duration.
	DefaultDurationMinutes = 60

	// MaxDurationMinutes bounds a single booking to one working day.
	MaxDurationMinutes = 480

	DefaultBusinessOpen  = "09:00"
	DefaultBusinessClose = "17:00"
	DefaultTimezone      = "Europe/Zurich"

	DefaultDaysToScan     = 7
	DefaultMaxSuggestions = 5

	// DefaultEmailReminderMinutes and DefaultPopupReminderMinutes mirror the
	// reminders the workshop calendars have always used.
	DefaultEmailReminderMinutes = 24 * 60
	DefaultPopupReminderMinutes = 60
)

const (
	NotificationPending   = "pending"
	NotificationRetry     = "retry"
	NotificationCompleted = "completed"
	NotificationFailed    = "failed"
)
