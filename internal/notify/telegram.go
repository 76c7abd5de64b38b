package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bookings/internal/logging"
	"bookings/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// MessageSender is the part of the Telegram bot API used for delivery.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts booking notifications to the manager chats.
type TelegramSender struct {
	bot     MessageSender
	chatIDs []int64
	logger  *zerolog.Logger
}

// NewTelegramSender connects to the bot API with the given token.
func NewTelegramSender(token string, chatIDs []int64, logger *zerolog.Logger) (*TelegramSender, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return NewTelegramSenderWithBot(botAPI, chatIDs, logger), nil
}

func NewTelegramSenderWithBot(bot MessageSender, chatIDs []int64, logger *zerolog.Logger) *TelegramSender {
	return &TelegramSender{
		bot:     bot,
		chatIDs: append([]int64(nil), chatIDs...),
		logger:  logging.Component(logger, "telegram"),
	}
}

// Send delivers the message to every chat. A failed chat does not stop the
// others; the joined error makes the worker retry the whole notification.
func (s *TelegramSender) Send(ctx context.Context, n models.BookingNotification) error {
	if len(s.chatIDs) == 0 {
		return errors.New("no telegram chats configured")
	}

	text := FormatMessage(n)
	var errs []error
	for _, chatID := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := s.bot.Send(msg); err != nil {
			s.logger.Error().Err(err).Int64("chat_id", chatID).Str("booking_id", n.BookingID).Msg("send error")
			errs = append(errs, newChatError(chatID, err))
		}
	}
	return errors.Join(errs...)
}

// ChatError is a failed delivery to one chat.
type ChatError struct {
	ChatID int64
	Wait   time.Duration
	Err    error
}

func newChatError(chatID int64, err error) *ChatError {
	ce := &ChatError{ChatID: chatID, Err: err}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		ce.Wait = time.Duration(apiErr.RetryAfter) * time.Second
	}
	return ce
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat %d: %v", e.ChatID, e.Err)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// RetryAfter is the flood-control wait Telegram asked for, zero if none.
func (e *ChatError) RetryAfter() time.Duration {
	return e.Wait
}

// FormatMessage renders the plain-text manager notification.
func FormatMessage(n models.BookingNotification) string {
	var b strings.Builder
	switch n.Type {
	case models.BookingTypeTestRide:
		b.WriteString("🚲 New test ride booking\n")
	case models.BookingTypeService:
		b.WriteString("🔧 New service booking\n")
	default:
		b.WriteString("📅 New booking\n")
	}

	location := n.LocationName
	if location == "" {
		location = n.LocationCode
	}
	fmt.Fprintf(&b, "\nLocation: %s", location)
	fmt.Fprintf(&b, "\nWhen: %s %s-%s", n.Start.Format(models.DateFormat), n.Start.Format(models.TimeFormat), n.End.Format(models.TimeFormat))
	fmt.Fprintf(&b, "\nCustomer: %s", n.Customer.Name)
	fmt.Fprintf(&b, "\nEmail: %s", n.Customer.Email)
	fmt.Fprintf(&b, "\nPhone: %s", n.Customer.Phone)

	if len(n.Attributes) > 0 {
		keys := make([]string, 0, len(n.Attributes))
		for k := range n.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := strings.TrimSpace(n.Attributes[k]); v != "" {
				fmt.Fprintf(&b, "\n%s: %s", k, v)
			}
		}
	}

	fmt.Fprintf(&b, "\n\nEvent: %s", n.BookingID)
	return b.String()
}
