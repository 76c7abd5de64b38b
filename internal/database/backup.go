package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookings/internal/config"
	"bookings/internal/logging"

	"github.com/rs/zerolog"
)

const backupPrefix = "journal_"

// Backup writes a consistent snapshot of the database into dir using
// VACUUM INTO and returns the snapshot path.
func (db *DB) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, backupPrefix+stamp+".db")
	// VACUUM INTO refuses to overwrite, so a second snapshot within the
	// same second gets a suffix.
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s%s_%d.db", backupPrefix, stamp, i))
	}

	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("%w: Backup: %v", ErrExecQuery, err)
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// BackupService snapshots the journal database on a fixed interval and
// prunes snapshots past the retention window.
type BackupService struct {
	db     *DB
	cfg    config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		cfg:    cfg,
		logger: logging.Component(logger, "backup"),
		now:    time.Now,
	}
}

// Start blocks until ctx is done. The first snapshot is taken immediately.
func (s *BackupService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("journal backups disabled")
		return
	}

	interval := s.cfg.Every()
	s.logger.Info().Dur("interval", interval).Str("path", s.cfg.StoragePath).Msg("journal backups started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce takes one snapshot and prunes old ones. Failures are logged only.
func (s *BackupService) RunOnce(ctx context.Context) {
	path, err := s.db.Backup(ctx, s.cfg.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("journal backup failed")
	} else {
		s.logger.Info().Str("path", path).Msg("journal backup written")
	}

	removed, err := s.Prune()
	if err != nil {
		s.logger.Warn().Err(err).Msg("backup cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("old journal backups removed")
	}
}

// Prune deletes snapshots older than the retention window. Files that do
// not look like snapshots are left alone.
func (s *BackupService) Prune() (int, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.cfg.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
