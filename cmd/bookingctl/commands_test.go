package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookings/internal/database"
	"bookings/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	content := `
google:
  credentials_file: "sa.json"
booking:
  timezone: "Europe/Zurich"
database:
  path: "` + filepath.Join(dir, "bookings.db") + `"
logging:
  level: "error"
exports:
  path: "` + filepath.Join(dir, "exports") + `"
locations:
  - code: lugano
    name: Lugano
    aliases: ["Lugano Store"]
    calendars:
      test_ride: "testride.lugano"
      service: "service.lugano"
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLocationsCommand(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	out, err := execute(t, "--config", cfgPath, "locations")
	require.NoError(t, err)

	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "lugano")
	assert.Contains(t, out, "Lugano Store")
	assert.Contains(t, out, "testride.lugano")
	assert.Contains(t, out, "service.lugano")
}

func TestLocationsCommandMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "locations")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	nop := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(dir, "bookings.db"), &nop)
	require.NoError(t, err)

	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, zurich)
	require.NoError(t, db.RecordBooking(context.Background(), &models.JournalEntry{
		EventID:      "evt-1",
		Type:         models.BookingTypeService,
		LocationCode: "lugano",
		Calendar:     "service.lugano",
		Start:        start,
		End:          start.Add(time.Hour),
		CustomerName: "Ada",
	}))
	require.NoError(t, db.Close())

	out, err := execute(t, "--config", cfgPath, "export", "--from", "2026-03-01", "--to", "2026-03-31")
	require.NoError(t, err)

	path := strings.Fields(out)[0]
	assert.Equal(t, filepath.Join(dir, "exports", "bookings_2026-03-01_to_2026-03-31.xlsx"), path)
	assert.Contains(t, out, "(1 bookings)")
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestExportCommandRejectsBadRange(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	_, err := execute(t, "--config", cfgPath, "export", "--from", "2026-03-31", "--to", "2026-03-01")
	require.Error(t, err)

	_, err = execute(t, "--config", cfgPath, "export", "--from", "31.03.2026", "--to", "2026-04-01")
	require.Error(t, err)
}

func TestExportCommandRequiresFlags(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	_, err := execute(t, "--config", cfgPath, "export")
	require.Error(t, err)
}

func TestBackupCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	out := filepath.Join(dir, "snapshots")

	stdout, err := execute(t, "--config", cfgPath, "backup", "--out", out)
	require.NoError(t, err)

	path := strings.Fields(stdout)[0]
	assert.Equal(t, out, filepath.Dir(path))
	assert.Contains(t, stdout, "(0 old snapshots removed)")
	assert.FileExists(t, path)
}

func seedNotifications(t *testing.T, dir string) {
	t.Helper()
	nop := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(dir, "bookings.db"), &nop)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	due := &models.NotificationTask{BookingType: models.BookingTypeService, Payload: `{"booking_id":"evt-1"}`}
	require.NoError(t, db.CreateNotificationTask(ctx, due))

	dead := &models.NotificationTask{BookingType: models.BookingTypeTestRide, Payload: `{"booking_id":"evt-2"}`}
	require.NoError(t, db.CreateNotificationTask(ctx, dead))
	require.NoError(t, db.UpdateNotificationTaskStatus(ctx, dead.ID, models.NotificationFailed, "chat not found", nil))
}

func TestNotificationsCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	seedNotifications(t, dir)

	out, err := execute(t, "--config", cfgPath, "notifications")
	require.NoError(t, err)
	assert.Contains(t, out, "LAST ERROR")
	assert.Contains(t, out, string(models.BookingTypeService))
	assert.Contains(t, out, models.NotificationPending)
	assert.NotContains(t, out, "chat not found")

	out, err = execute(t, "--config", cfgPath, "notifications", "--failed")
	require.NoError(t, err)
	assert.Contains(t, out, string(models.BookingTypeTestRide))
	assert.Contains(t, out, models.NotificationFailed)
	assert.Contains(t, out, "chat not found")
	assert.NotContains(t, out, models.NotificationPending)
}
