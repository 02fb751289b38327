package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookedbarber/scheduling/libs/db"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/model"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/schedule"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	ShopID          string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, shopID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, shopID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (shop_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (shop_id, idempotency_key) DO NOTHING
	`, shopID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, shopID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, shopID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE shop_id = $1 AND idempotency_key = $2
	`, shopID, key, appointmentID, statusCode, response)
	return err
}

// Create inserts the appointment. The appointments table carries an exclusion
// constraint over the buffer-expanded tstzrange per barber, so an overlapping
// insert racing past the kernel's advisory check fails here with 23P01.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(shop_id, service_id, barber_id, customer_name, customer_email, customer_phone,
			 start_time, duration_minutes, buffer_before_minutes, buffer_after_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, appt.ShopID, appt.ServiceID, appt.BarberID, appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone,
		appt.StartTime, appt.DurationMinutes, appt.BufferBeforeMinutes, appt.BufferAfterMinutes, appt.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

const appointmentColumns = `
	id, shop_id, service_id, barber_id, customer_name, customer_email, customer_phone,
	start_time, duration_minutes, buffer_before_minutes, buffer_after_minutes,
	status, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ShopID,
		&appt.ServiceID,
		&appt.BarberID,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.StartTime,
		&appt.DurationMinutes,
		&appt.BufferBeforeMinutes,
		&appt.BufferAfterMinutes,
		&appt.Status,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func (r *BookingRepository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, shopID, appointmentID string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND shop_id = $2
		FOR UPDATE
	`, appointmentID, shopID))
}

func (r *BookingRepository) CancelAppointment(ctx context.Context, tx pgx.Tx, shopID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND shop_id = $2
		RETURNING cancelled_at
	`, appointmentID, shopID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

// ListBlockingAppointments loads the appointments whose buffer-expanded
// intervals overlap [start, end) for one barber. Only blocking statuses
// (scheduled/confirmed/pending) are returned; cancelled, completed, and
// no-show rows never block.
func (r *BookingRepository) ListBlockingAppointments(ctx context.Context, shopID, barberID string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE shop_id = $1
			AND barber_id = $2
			AND status IN ('scheduled', 'confirmed', 'pending')
			AND start_time - make_interval(mins => buffer_before_minutes) < $4
			AND start_time + make_interval(mins => duration_minutes + buffer_after_minutes) > $3
		ORDER BY start_time ASC
	`, shopID, barberID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *BookingRepository) ListByShop(ctx context.Context, shopID, barberID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE shop_id = $1
			AND ($2 = '' OR barber_id::text = $2)
		ORDER BY start_time DESC
		LIMIT $3
	`, shopID, barberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// GetWorkingHours resolves a barber's rule for one weekday. An unknown barber
// maps to schedule.ErrNotFound; a barber without a row for that weekday gets
// an inactive rule (closed that day).
func (r *BookingRepository) GetWorkingHours(ctx context.Context, shopID, barberID string, weekday time.Weekday) (schedule.WorkingHoursRule, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM barbers WHERE id = $1 AND shop_id = $2 AND is_active
		)
	`, barberID, shopID).Scan(&exists); err != nil {
		return schedule.WorkingHoursRule{}, err
	}
	if !exists {
		return schedule.WorkingHoursRule{}, fmt.Errorf("barber %s: %w", barberID, schedule.ErrNotFound)
	}

	rule := schedule.WorkingHoursRule{BarberID: barberID, Weekday: weekday}
	err := r.pool.QueryRow(ctx, `
		SELECT start_minute, end_minute, is_working
		FROM barber_working_hours
		WHERE barber_id = $1 AND weekday = $2
	`, barberID, int(weekday)).Scan(&rule.StartMinute, &rule.EndMinute, &rule.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return rule, nil
	}
	if err != nil {
		return schedule.WorkingHoursRule{}, err
	}
	return rule, nil
}

func (r *BookingRepository) ActiveBarberIDs(ctx context.Context, shopID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text
		FROM barbers
		WHERE shop_id = $1 AND is_active
		ORDER BY id
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

type ShopService struct {
	ID                  string
	ShopID              string
	Name                string
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
}

func (r *BookingRepository) GetService(ctx context.Context, shopID, serviceID string) (ShopService, error) {
	var s ShopService
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, shop_id::text, name, duration_minutes, buffer_before_minutes, buffer_after_minutes
		FROM shop_services
		WHERE shop_id = $1 AND id = $2
	`, shopID, serviceID).Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMinutes, &s.BufferBeforeMinutes, &s.BufferAfterMinutes)
	return s, err
}

// GetBookingPolicy reads the shop's policy row joined with the shop timezone.
// Missing rows surface as pgx.ErrNoRows so the policy provider can fall back
// to defaults.
func (r *BookingRepository) GetBookingPolicy(ctx context.Context, shopID string) (schedule.BookingPolicy, error) {
	var leadMins, cutoffMin, stepMins int
	var p schedule.BookingPolicy
	err := r.pool.QueryRow(ctx, `
		SELECT p.min_lead_minutes, p.max_advance_days, p.same_day_cutoff_minute, p.slot_increment_minutes, s.timezone
		FROM shop_booking_policies p
		JOIN shops s ON s.id = p.shop_id
		WHERE p.shop_id = $1
	`, shopID).Scan(&leadMins, &p.MaxAdvanceDays, &cutoffMin, &stepMins, &p.Timezone)
	if err != nil {
		return schedule.BookingPolicy{}, err
	}
	p.MinLeadTime = time.Duration(leadMins) * time.Minute
	p.SameDayCutoffMinute = cutoffMin
	p.SlotIncrement = time.Duration(stepMins) * time.Minute
	return p, nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, shopID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT shop_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE shop_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, shopID, key).Scan(
		&rec.ShopID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
