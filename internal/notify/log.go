package notify

import (
	"context"

	"bookings/internal/logging"
	"bookings/internal/models"

	"github.com/rs/zerolog"
)

// LogSender writes notifications to the log. It is used when no Telegram
// token is configured.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logging.Component(logger, "notify-log")}
}

func (s *LogSender) Send(_ context.Context, n models.BookingNotification) error {
	s.logger.Info().
		Str("booking_id", n.BookingID).
		Str("booking_type", string(n.Type)).
		Str("location", n.LocationCode).
		Time("start", n.Start).
		Str("customer", n.Customer.Name).
		Msg("booking notification")
	return nil
}
