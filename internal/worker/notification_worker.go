package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookings/internal/logging"
	"bookings/internal/metrics"
	"bookings/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	notifyQueueKey      = "notify:queue"
	notifyDeadLetterKey = "notify:deadletter"
)

// Sender delivers one booking notification.
type Sender interface {
	Send(ctx context.Context, n models.BookingNotification) error
}

// TaskStore persists notification tasks so nothing is lost when the process
// stops between enqueue and delivery.
type TaskStore interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
	GetNotificationTask(ctx context.Context, id int64) (*models.NotificationTask, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// NotificationWorker queues booking notifications and delivers them in the
// background. Tasks travel through Redis when available, otherwise through
// an in-memory channel; anything that misses both is picked up by polling
// the store.
type NotificationWorker struct {
	store         TaskStore
	sender        Sender
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.NotificationTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewNotificationWorker builds a worker with sane defaults.
func NewNotificationWorker(store TaskStore, sender Sender, redisClient *redis.Client, retry RetryPolicy, queueSize int, logger *zerolog.Logger) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = 128
	}

	return &NotificationWorker{
		store:         store,
		sender:        sender,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.NotificationTask, queueSize),
		redisQueueKey: notifyQueueKey,
		deadLetterKey: notifyDeadLetterKey,
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logging.Component(logger, "notification-worker"),
	}
}

// Notify persists the notification and schedules it for delivery.
func (w *NotificationWorker) Notify(ctx context.Context, bookingType models.BookingType, data models.BookingNotification) error {
	if !bookingType.Valid() {
		return fmt.Errorf("unknown booking type %q", bookingType)
	}
	if data.BookingID == "" {
		return errors.New("booking id is required")
	}
	data.Type = bookingType

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.NotificationTask{
		BookingType: bookingType,
		Payload:     string(payload),
		Status:      models.NotificationPending,
	}
	if err := w.store.CreateNotificationTask(ctx, &task); err != nil {
		return fmt.Errorf("persist notification task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches the main loop; it returns when ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processQueued(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processQueued(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingNotificationTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("fetch pending tasks")
			}
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *NotificationWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *NotificationWorker) tryLocalQueue() (models.NotificationTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.NotificationTask{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.NotificationTask, bool) {
	if w.redis == nil {
		return models.NotificationTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return models.NotificationTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.NotificationTask{}, false
	}
	if len(res) != 2 {
		return models.NotificationTask{}, false
	}
	var task models.NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.NotificationTask{}, false
	}
	return task, true
}

// processQueued skips tasks the store already settled, e.g. a Redis copy of
// a task that was delivered through polling after a restart.
func (w *NotificationWorker) processQueued(ctx context.Context, task *models.NotificationTask) {
	stored, err := w.store.GetNotificationTask(ctx, task.ID)
	if err == nil && (stored.Status == models.NotificationCompleted || stored.Status == models.NotificationFailed) {
		return
	}
	if err == nil {
		task = stored
	}
	w.processTask(ctx, task)
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	var n models.BookingNotification
	if err := json.Unmarshal([]byte(task.Payload), &n); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.sender.Send(ctx, n); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncNotification("sent")
	if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.NotificationCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	next := w.retryPolicy.Reschedule(*task, cause, time.Now())
	if next.Status == models.NotificationFailed {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncNotification("retry")
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", next.Attempt).Time("next_retry_at", *next.RetryAt).Msg("notification failed, will retry")
	if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.NotificationRetry, cause.Error(), next.RetryAt); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *NotificationWorker) failTask(ctx context.Context, task *models.NotificationTask, cause error) {
	metrics.IncNotification("failed")
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Msg("notification failed permanently")
	if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.NotificationFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *NotificationWorker) pushRedis(ctx context.Context, task models.NotificationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
