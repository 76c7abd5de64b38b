package models

import "time"

// NotificationTask is a queued notification persisted in notification_queue.
type NotificationTask struct {
	ID          int64       `json:"id"`
	BookingType BookingType `json:"booking_type"`
	Payload     string      `json:"payload"`
	Status      string      `json:"status"`
	RetryCount  int         `json:"retry_count"`
	LastError   *string     `json:"last_error"`
	CreatedAt   time.Time   `json:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at"`
	NextRetryAt *time.Time  `json:"next_retry_at"`
}

// BookingNotification is the data handed to the notification collaborator
// after a successful commit.
type BookingNotification struct {
	BookingID    string            `json:"booking_id"`
	Type         BookingType       `json:"booking_type"`
	LocationCode string            `json:"location_code"`
	LocationName string            `json:"location_name"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Customer     Customer          `json:"customer"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}
