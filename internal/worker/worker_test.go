package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bookings/internal/config"
	"bookings/internal/database"
	"bookings/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeSender struct {
	mu    sync.Mutex
	err   error
	sent  []models.BookingNotification
	calls int
}

func (f *fakeSender) Send(_ context.Context, n models.BookingNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeSender) Sent() []models.BookingNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.BookingNotification(nil), f.sent...)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.Nop()
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM notification_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}

func notification(id string) models.BookingNotification {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	return models.BookingNotification{
		BookingID:    id,
		LocationCode: "lugano",
		LocationName: "Lugano",
		Start:        start,
		End:          start.Add(time.Hour),
		Customer:     models.Customer{Name: "Anna", Email: "anna@example.com", Phone: "+41"},
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{}, 0, nil)

	ctx := context.Background()
	if err := worker.Notify(ctx, models.BookingTypeService, notification("evt-1")); err != nil {
		t.Fatalf("notify: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processQueued(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.NotificationCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}

	sent := sender.Sent()
	if len(sent) != 1 || sent[0].BookingID != "evt-1" || sent[0].Type != models.BookingTypeService {
		t.Fatalf("unexpected deliveries: %+v", sent)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{err: errors.New("telegram: Too Many Requests")}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, 0, nil)

	ctx := context.Background()
	if err := worker.Notify(ctx, models.BookingTypeTestRide, notification("evt-2")); err != nil {
		t.Fatalf("notify: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.NotificationRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}
}

func TestProcessTaskFailGoesToDeadLetter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	db := newTestDB(t)
	sender := &fakeSender{err: errors.New("chat not found")}
	worker := NewNotificationWorker(db, sender, client, RetryPolicy{MaxRetries: 1}, 0, nil)

	ctx := context.Background()
	if err := worker.Notify(ctx, models.BookingTypeService, notification("evt-3")); err != nil {
		t.Fatalf("notify: %v", err)
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.NotificationFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	dead, err := mr.List(notifyDeadLetterKey)
	if err != nil || len(dead) != 1 {
		t.Fatalf("expected one dead letter, got %v (%v)", dead, err)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{MaxRetries: 3}, 0, nil)

	ctx := context.Background()
	task := &models.NotificationTask{BookingType: models.BookingTypeService, Payload: "{broken"}
	if err := db.CreateNotificationTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.NotificationFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	if sender.calls != 0 {
		t.Fatalf("sender must not be called for undecodable payload")
	}
}

func TestProcessQueuedSkipsSettledTask(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{}, 0, nil)

	ctx := context.Background()
	if err := worker.Notify(ctx, models.BookingTypeService, notification("evt-4")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	if err := db.UpdateNotificationTaskStatus(ctx, task.ID, models.NotificationCompleted, "", nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	worker.processQueued(ctx, &task)
	if sender.calls != 0 {
		t.Fatalf("expected settled task to be skipped, got %d sends", sender.calls)
	}
}

func TestNotifyValidation(t *testing.T) {
	db := newTestDB(t)
	worker := NewNotificationWorker(db, &fakeSender{}, nil, RetryPolicy{}, 0, nil)
	ctx := context.Background()

	if err := worker.Notify(ctx, models.BookingType("spa"), notification("x")); err == nil {
		t.Fatalf("expected error for unknown booking type")
	}
	if err := worker.Notify(ctx, models.BookingTypeService, notification("")); err == nil {
		t.Fatalf("expected error for missing booking id")
	}
}

func TestNotifyQueueFullFallsBackToPolling(t *testing.T) {
	db := newTestDB(t)
	worker := NewNotificationWorker(db, &fakeSender{}, nil, RetryPolicy{}, 1, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := worker.Notify(ctx, models.BookingTypeService, notification(id)); err != nil {
			t.Fatalf("notify %s: %v", id, err)
		}
	}

	if len(worker.queue) != 1 {
		t.Fatalf("expected one task in memory, got %d", len(worker.queue))
	}
	pending, err := db.GetPendingNotificationTasks(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected both tasks persisted, got %d (%v)", len(pending), err)
	}
}

func TestStartDeliversAndStops(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{}, 0, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	if err := worker.Notify(context.Background(), models.BookingTypeTestRide, notification("evt-5")); err != nil {
		t.Fatalf("notify: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.Sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if len(sender.Sent()) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sender.Sent()))
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxRetries: 4, InitialDelaySeconds: 3, MaxDelaySeconds: 60, BackoffFactor: 1.5})
	if p.MaxRetries != 4 || p.InitialDelay != 3*time.Second || p.MaxDelay != time.Minute || p.BackoffFactor != 1.5 {
		t.Fatalf("unexpected policy %+v", p)
	}
	if p.Exhausted(3) || !p.Exhausted(4) {
		t.Fatalf("exhaustion boundary wrong")
	}
}

type floodErr struct{ wait time.Duration }

func (e floodErr) Error() string             { return "Too Many Requests: retry after" }
func (e floodErr) RetryAfter() time.Duration { return e.wait }

func TestRetryPolicyReschedule(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	next := policy.Reschedule(models.NotificationTask{RetryCount: 1}, errors.New("timeout"), now)
	if next.Status != models.NotificationRetry || next.Attempt != 2 {
		t.Fatalf("unexpected redelivery %+v", next)
	}
	if next.RetryAt == nil || !next.RetryAt.Equal(now.Add(2*time.Second)) {
		t.Fatalf("expected backoff of 2s, got %v", next.RetryAt)
	}

	next = policy.Reschedule(models.NotificationTask{RetryCount: 2}, errors.New("timeout"), now)
	if next.Status != models.NotificationFailed || next.RetryAt != nil {
		t.Fatalf("expected exhausted task to fail, got %+v", next)
	}
}

func TestRetryPolicyHonorsFloodWait(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	cause := fmt.Errorf("send: %w", errors.Join(errors.New("chat 1: ok later"), floodErr{wait: 30 * time.Second}))
	next := policy.Reschedule(models.NotificationTask{}, cause, now)
	if next.RetryAt == nil || !next.RetryAt.Equal(now.Add(30*time.Second)) {
		t.Fatalf("expected flood wait beyond max delay, got %v", next.RetryAt)
	}

	short := policy.Reschedule(models.NotificationTask{}, floodErr{wait: 10 * time.Millisecond}, now)
	if !short.RetryAt.Equal(now.Add(time.Second)) {
		t.Fatalf("short flood wait must not undercut backoff, got %v", short.RetryAt)
	}
}

func TestNewNotificationWorkerRetryDefaults(t *testing.T) {
	worker := NewNotificationWorker(newTestDB(t), &fakeSender{}, nil, RetryPolicy{}, 0, nil)
	p := worker.retryPolicy
	if p.MaxRetries != 5 || p.InitialDelay != 2*time.Second || p.MaxDelay != time.Minute || p.BackoffFactor != 2 {
		t.Fatalf("unexpected defaults %+v", p)
	}
}
