package database

import (
	"context"
	"testing"
	"time"

	"bookings/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.NotificationTask{
		BookingType: models.BookingTypeService,
		Payload:     `{"booking_id":"evt-1"}`,
	}

	// Create
	require.NoError(t, db.CreateNotificationTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, models.NotificationPending, task.Status)

	// Get Pending
	tasks, err := db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.BookingTypeService, tasks[0].BookingType)
	assert.Equal(t, `{"booking_id":"evt-1"}`, tasks[0].Payload)

	// Complete
	require.NoError(t, db.UpdateNotificationTaskStatus(ctx, task.ID, models.NotificationCompleted, "", nil))
	tasks, err = db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	stored, err := db.GetNotificationTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationCompleted, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Nil(t, stored.LastError)
}

func TestNotificationQueueRetry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.NotificationTask{BookingType: models.BookingTypeTestRide, Payload: "{}"}
	require.NoError(t, db.CreateNotificationTask(ctx, task))

	later := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateNotificationTaskStatus(ctx, task.ID, models.NotificationRetry, "telegram timeout", &later))

	tasks, err := db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks, "task scheduled in the future must not be due")

	stored, err := db.GetNotificationTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "telegram timeout", *stored.LastError)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.UpdateNotificationTaskStatus(ctx, task.ID, models.NotificationRetry, "again", &past))
	tasks, err = db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].RetryCount)
}

func TestNotificationQueueFailed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.NotificationTask{BookingType: models.BookingTypeService, Payload: "{}"}
	require.NoError(t, db.CreateNotificationTask(ctx, task))
	require.NoError(t, db.UpdateNotificationTaskStatus(ctx, task.ID, models.NotificationFailed, "chat not found", nil))

	failed, err := db.GetFailedNotificationTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "chat not found", *failed[0].LastError)

	_, err = db.GetNotificationTask(ctx, 9999)
	assert.Error(t, err)
}
