// Package repository implements the booking store on SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chefbook/internal/availability"
	"chefbook/internal/database"
	"chefbook/internal/domain"
	"chefbook/internal/models"
)

const bookingColumns = `id, chef_id, user_id, date, start_time, duration_hours, guest_count, service_type,
	base_price, service_multiplier, guest_multiplier, surge_multiplier, surge_reason, add_ons, add_on_total,
	total_price, status, payment_status, payment_reference, refund_reference, refund_amount, note,
	completed_at, created_at, updated_at, version`

// BookingRepository stores bookings in SQLite.
type BookingRepository struct {
	db  *database.DB
	now func() time.Time
}

var _ domain.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository creates a repository on db.
func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b           models.Booking
		userID      sql.NullString
		date        string
		addOns      string
		completedAt sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.ChefID, &userID, &date, &b.StartTime, &b.DurationHours, &b.GuestCount, &b.ServiceType,
		&b.BasePrice, &b.ServiceMultiplier, &b.GuestMultiplier, &b.SurgeMultiplier, &b.SurgeReason, &addOns, &b.AddOnTotal,
		&b.TotalPrice, &b.Status, &b.PaymentStatus, &b.PaymentReference, &b.RefundReference, &b.RefundAmount, &b.Note,
		&completedAt, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		b.UserID = &userID.String
	}
	if b.Date, err = models.ParseDate(date); err != nil {
		return nil, fmt.Errorf("parse date %q of booking %s: %w", date, b.ID, err)
	}
	if addOns != "" {
		if err := json.Unmarshal([]byte(addOns), &b.AddOns); err != nil {
			return nil, fmt.Errorf("decode add-ons of booking %s: %w", b.ID, err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Get returns a booking by id.
func (r *BookingRepository) Get(ctx context.Context, id string) (*models.Booking, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "booking", ID: id}
	}
	if err != nil {
		return nil, &domain.RepositoryError{Op: "get", Err: err}
	}
	return b, nil
}

// FindOverlapping returns the chef's slot-holding bookings on date.
func (r *BookingRepository) FindOverlapping(ctx context.Context, chefID string, date time.Time) ([]models.Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE chef_id = ? AND date = ?
		AND status NOT IN ('cancelled', 'rejected')
		ORDER BY start_time`,
		chefID, date.Format(models.DateLayout),
	)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "find overlapping", Err: err}
	}
	out, err := scanBookings(rows)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "find overlapping", Err: err}
	}
	return out, nil
}

// ListByChefDate returns all bookings of the chef on date.
func (r *BookingRepository) ListByChefDate(ctx context.Context, chefID string, date time.Time) ([]models.Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE chef_id = ? AND date = ?
		ORDER BY start_time, created_at`,
		chefID, date.Format(models.DateLayout),
	)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "list", Err: err}
	}
	out, err := scanBookings(rows)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "list", Err: err}
	}
	return out, nil
}

// Insert re-checks the slot inside a write transaction and stores the booking.
func (r *BookingRepository) Insert(ctx context.Context, b *models.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	start, end, err := availability.Interval(b.StartTime, b.DurationHours)
	if err != nil {
		return err
	}
	addOns, err := json.Marshal(b.AddOns)
	if err != nil {
		return fmt.Errorf("encode add-ons: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.RepositoryError{Op: "insert", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE chef_id = ? AND date = ?
		AND status NOT IN ('cancelled', 'rejected')`,
		b.ChefID, b.DateString(),
	)
	if err != nil {
		return &domain.RepositoryError{Op: "insert", Err: err}
	}
	active, err := scanBookings(rows)
	if err != nil {
		return &domain.RepositoryError{Op: "insert", Err: err}
	}
	if conflicts := availability.Conflicting(active, start, end); len(conflicts) > 0 {
		return &domain.ConflictError{ChefID: b.ChefID, Conflicting: availability.ToSlotInfo(conflicts)}
	}

	now := r.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = b.CreatedAt
	if b.Version == 0 {
		b.Version = 1
	}

	var userID any
	if b.UserID != nil {
		userID = *b.UserID
	}
	var completedAt any
	if b.CompletedAt != nil {
		completedAt = *b.CompletedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ChefID, userID, b.DateString(), b.StartTime, b.DurationHours, b.GuestCount, string(b.ServiceType),
		b.BasePrice, b.ServiceMultiplier, b.GuestMultiplier, b.SurgeMultiplier, b.SurgeReason, string(addOns), b.AddOnTotal,
		b.TotalPrice, string(b.Status), string(b.PaymentStatus), b.PaymentReference, b.RefundReference, b.RefundAmount, b.Note,
		completedAt, b.CreatedAt, b.UpdatedAt, b.Version,
	)
	if err != nil {
		return &domain.RepositoryError{Op: "insert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.RepositoryError{Op: "insert", Err: err}
	}
	return nil
}

// statusSet builds the SET clause shared by single and bulk transitions.
// completed_at is write-once.
func statusSet(to models.Status, upd domain.StatusUpdate, now time.Time) (string, []any) {
	sets := []string{"status = ?", "version = version + 1", "updated_at = ?"}
	updatedAt := upd.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	args := []any{string(to), updatedAt}

	if upd.PaymentStatus != nil {
		sets = append(sets, "payment_status = ?")
		args = append(args, string(*upd.PaymentStatus))
	}
	if upd.PaymentReference != nil {
		sets = append(sets, "payment_reference = ?")
		args = append(args, *upd.PaymentReference)
	}
	if upd.RefundReference != nil {
		sets = append(sets, "refund_reference = ?")
		args = append(args, *upd.RefundReference)
	}
	if upd.RefundAmount != nil {
		sets = append(sets, "refund_amount = ?")
		args = append(args, *upd.RefundAmount)
	}
	if upd.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *upd.Note)
	}
	if upd.CompletedAt != nil {
		sets = append(sets, "completed_at = COALESCE(completed_at, ?)")
		args = append(args, *upd.CompletedAt)
	}
	return strings.Join(sets, ", "), args
}

// UpdateStatus performs a conditional status change.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, expected, to models.Status, upd domain.StatusUpdate) (*models.Booking, error) {
	set, args := statusSet(to, upd, r.now())
	args = append(args, id, string(expected))

	res, err := r.db.ExecContext(ctx, "UPDATE bookings SET "+set+" WHERE id = ? AND status = ?", args...)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "update status", Err: err}
	}
	if err := r.checkAffected(ctx, res, id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// UpdatePayment writes payment fields guarded by the booking version.
func (r *BookingRepository) UpdatePayment(ctx context.Context, id string, expectedVersion int64, upd domain.PaymentUpdate) (*models.Booking, error) {
	updatedAt := upd.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{updatedAt}
	if upd.PaymentStatus != nil {
		sets = append(sets, "payment_status = ?")
		args = append(args, string(*upd.PaymentStatus))
	}
	if upd.PaymentReference != nil {
		sets = append(sets, "payment_reference = ?")
		args = append(args, *upd.PaymentReference)
	}
	args = append(args, id, expectedVersion)

	res, err := r.db.ExecContext(ctx, "UPDATE bookings SET "+strings.Join(sets, ", ")+" WHERE id = ? AND version = ?", args...)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "update payment", Err: err}
	}
	if err := r.checkAffected(ctx, res, id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *BookingRepository) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.RepositoryError{Op: "rows affected", Err: err}
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrStale
}

// BulkTransition moves every booking in status from dated before the given day to
// status to. Selection and update share one write transaction.
func (r *BookingRepository) BulkTransition(ctx context.Context, from models.Status, before time.Time, to models.Status, upd domain.StatusUpdate) ([]domain.BookingRef, error) {
	cutoff := before.Format(models.DateLayout)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "bulk transition", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT id, chef_id, user_id FROM bookings WHERE status = ? AND date < ? ORDER BY date, start_time",
		string(from), cutoff,
	)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "bulk transition", Err: err}
	}
	var refs []domain.BookingRef
	for rows.Next() {
		var (
			ref    domain.BookingRef
			userID sql.NullString
		)
		if err := rows.Scan(&ref.ID, &ref.ChefID, &userID); err != nil {
			rows.Close()
			return nil, &domain.RepositoryError{Op: "bulk transition", Err: err}
		}
		ref.UserID = userID.String
		refs = append(refs, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "bulk transition", Err: err}
	}
	if len(refs) == 0 {
		return nil, nil
	}

	set, args := statusSet(to, upd, r.now())
	args = append(args, string(from), cutoff)
	if _, err := tx.ExecContext(ctx, "UPDATE bookings SET "+set+" WHERE status = ? AND date < ?", args...); err != nil {
		return nil, &domain.RepositoryError{Op: "bulk transition", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &domain.RepositoryError{Op: "bulk transition", Err: err}
	}
	return refs, nil
}
