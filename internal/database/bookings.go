package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, bot_id, customer_name, customer_email, customer_phone,
	service_key, service_name, calendar_id, start_at, end_at, timezone,
	event_id, event_link, status, custom_fields, created_at, updated_at, version`

// CreateBooking inserts a new ACTIVE booking. ID, timestamps and version are
// filled in on the passed struct.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.StatusActive
	}
	now := time.Now().UTC().Truncate(time.Second)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	fields, err := encodeCustomFields(booking.CustomFields)
	if err != nil {
		return err
	}

	query := `INSERT INTO bookings (` + bookingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		booking.ID,
		booking.BotID,
		booking.CustomerName,
		booking.CustomerEmail,
		booking.CustomerPhone,
		booking.ServiceKey,
		booking.ServiceName,
		booking.CalendarID,
		formatTime(booking.Start),
		formatTime(booking.End),
		booking.Timezone,
		nullString(booking.EventID),
		nullString(booking.EventLink),
		booking.Status,
		fields,
		formatTime(now),
		formatTime(now),
		booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, botID, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE bot_id = ? AND id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, botID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// CountOverlapping counts ACTIVE bookings on the calendar intersecting
// [start, end). Touching intervals are not counted.
func (db *DB) CountOverlapping(ctx context.Context, botID, calendarID string, start, end time.Time, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE bot_id = ? AND calendar_id = ? AND status = ?
              AND start_at < ? AND end_at > ? AND id != ?`
	var count int
	err := db.QueryRowContext(ctx, query,
		botID, calendarID, models.StatusActive, formatTime(end), formatTime(start), excludeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count overlapping bookings: %w", err)
	}
	return count, nil
}

// ListActiveInRange returns ACTIVE bookings on the calendar intersecting [from, to).
func (db *DB) ListActiveInRange(ctx context.Context, botID, calendarID string, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE bot_id = ? AND calendar_id = ? AND status = ?
              AND start_at < ? AND end_at > ?
              ORDER BY start_at ASC`
	rows, err := db.QueryContext(ctx, query, botID, calendarID, models.StatusActive, formatTime(to), formatTime(from))
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings in range: %w", err)
	}
	return collectBookings(rows)
}

// FindActiveByEmailNear returns the earliest ACTIVE booking for the email
// starting within tolerance of around.
func (db *DB) FindActiveByEmailNear(ctx context.Context, botID, email string, around time.Time, tolerance time.Duration) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE bot_id = ? AND customer_email = ? AND status = ?
              AND start_at >= ? AND start_at <= ?
              ORDER BY start_at ASC LIMIT 1`
	b, err := scanBooking(db.QueryRowContext(ctx, query,
		botID, email, models.StatusActive,
		formatTime(around.Add(-tolerance)), formatTime(around.Add(tolerance)),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

// RescheduleBookingWithVersion writes the new service, calendar, times and
// event of booking if its version is unchanged, then bumps booking.Version.
func (db *DB) RescheduleBookingWithVersion(ctx context.Context, booking *models.Booking) error {
	query := `UPDATE bookings SET service_key = ?, service_name = ?, calendar_id = ?,
                  start_at = ?, end_at = ?, event_id = ?, event_link = ?,
                  version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	now := time.Now().UTC().Truncate(time.Second)
	result, err := db.ExecContext(ctx, query,
		booking.ServiceKey, booking.ServiceName, booking.CalendarID,
		formatTime(booking.Start), formatTime(booking.End),
		nullString(booking.EventID), nullString(booking.EventLink),
		formatTime(now), booking.ID, booking.Version, models.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	booking.Version++
	booking.UpdatedAt = now
	return nil
}

// CancelBookingWithVersion flips an ACTIVE booking to CANCELLED. Rows are never deleted.
func (db *DB) CancelBookingWithVersion(ctx context.Context, id string, version int64) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusCancelled, formatTime(time.Now()), id, version, models.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// GetBookingsByDateRange returns every booking of the bot starting in [from, to).
func (db *DB) GetBookingsByDateRange(ctx context.Context, botID string, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE bot_id = ? AND start_at >= ? AND start_at < ?
              ORDER BY start_at ASC`
	rows, err := db.QueryContext(ctx, query, botID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	return collectBookings(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                  models.Booking
		eventID, eventLink sql.NullString
		start, end         string
		created, updated   string
		fields             string
	)
	err := row.Scan(
		&b.ID, &b.BotID, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone,
		&b.ServiceKey, &b.ServiceName, &b.CalendarID, &start, &end, &b.Timezone,
		&eventID, &eventLink, &b.Status, &fields, &created, &updated, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.EventID = eventID.String
	b.EventLink = eventLink.String
	if b.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.End, err = parseTime(end); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if fields != "" && fields != "{}" {
		if err := json.Unmarshal([]byte(fields), &b.CustomFields); err != nil {
			return nil, fmt.Errorf("failed to decode custom fields: %w", err)
		}
	}
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func encodeCustomFields(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode custom fields: %w", err)
	}
	return string(raw), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
