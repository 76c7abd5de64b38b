package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookings/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var (
	ErrBuildQuery = errors.New("build query")
	ErrExecQuery  = errors.New("execute query")
)

var journalColumns = []string{
	"id",
	"event_id",
	"booking_type",
	"location_code",
	"calendar_id",
	"start_at",
	"end_at",
	"customer_name",
	"customer_email",
	"customer_phone",
	"attributes",
	"created_at",
}

// RecordBooking appends a committed booking. Times are stored in UTC so
// range filters compare correctly.
func (db *DB) RecordBooking(ctx context.Context, entry *models.JournalEntry) error {
	attrs, err := json.Marshal(entry.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query, args, err := sq.Insert("bookings_journal").
		Columns(journalColumns[1:]...).
		Values(
			entry.EventID,
			string(entry.Type),
			entry.LocationCode,
			entry.Calendar.String(),
			entry.Start.UTC(),
			entry.End.UTC(),
			entry.CustomerName,
			entry.CustomerEmail,
			entry.CustomerPhone,
			string(attrs),
			entry.CreatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: RecordBooking: %v", ErrBuildQuery, err)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: RecordBooking: %v", ErrExecQuery, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListBookings returns journal entries ordered by start time. From is
// inclusive and To exclusive on the booking start.
func (db *DB) ListBookings(ctx context.Context, filter models.JournalFilter) ([]models.JournalEntry, error) {
	builder := sq.Select(journalColumns...).From("bookings_journal")

	if !filter.From.IsZero() {
		builder = builder.Where(sq.GtOrEq{"start_at": filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		builder = builder.Where(sq.Lt{"start_at": filter.To.UTC()})
	}
	if filter.Type != "" {
		builder = builder.Where(sq.Eq{"booking_type": string(filter.Type)})
	}
	if filter.LocationCode != "" {
		builder = builder.Where(sq.Eq{"location_code": filter.LocationCode})
	}
	builder = builder.OrderBy("start_at ASC", "id ASC")
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: ListBookings: %v", ErrBuildQuery, err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: ListBookings: %v", ErrExecQuery, err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var (
			e     models.JournalEntry
			typ   string
			cal   string
			attrs sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.EventID, &typ, &e.LocationCode, &cal, &e.Start, &e.End,
			&e.CustomerName, &e.CustomerEmail, &e.CustomerPhone, &attrs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Type = models.BookingType(typ)
		e.Calendar = models.CalendarIdentity(cal)
		if attrs.Valid && attrs.String != "" && attrs.String != "null" {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
				db.logger.Warn().Err(err).Int64("id", e.ID).Msg("journal attributes unreadable")
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
