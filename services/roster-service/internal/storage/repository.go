package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bookedbarber/scheduling/libs/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

type Shop struct {
	ShopID   string
	Name     string
	Timezone string
}

func (r *Repository) GetOrCreateShop(ctx context.Context, shopID string) (Shop, error) {
	// Create a default row if missing (keeps dev UX smooth while onboarding matures).
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shops (id)
		VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, shopID)
	if err != nil {
		return Shop{}, err
	}

	var s Shop
	err = r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone
		FROM shops
		WHERE id = $1
	`, shopID).Scan(&s.ShopID, &s.Name, &s.Timezone)
	return s, err
}

func (r *Repository) UpdateShop(ctx context.Context, shopID, name, timezone string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shops (id, name, timezone)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, shopID, name, timezone)
	return err
}

type ShopService struct {
	ID                  string
	ShopID              string
	Name                string
	DurationMins        int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	Price               string
	Description         string
	CreatedAt           time.Time
}

func (r *Repository) CreateService(ctx context.Context, svc ShopService) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shop_services (id, shop_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, price, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, svc.ShopID, svc.Name, svc.DurationMins, svc.BufferBeforeMinutes, svc.BufferAfterMinutes, svc.Price, svc.Description)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServices(ctx context.Context, shopID string, limit int) ([]ShopService, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, price::text, description, created_at
		FROM shop_services
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ShopService
	for rows.Next() {
		var s ShopService
		if err := rows.Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMins, &s.BufferBeforeMinutes, &s.BufferAfterMinutes, &s.Price, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type Barber struct {
	ID       string
	ShopID   string
	Name     string
	IsActive bool
}

// CreateBarber inserts the barber and seeds a default Mon-Fri 09:00-17:00
// schedule so the shop is bookable before the owner customizes anything.
func (r *Repository) CreateBarber(ctx context.Context, shopID, name string, isActive bool) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO barbers (shop_id, name, is_active)
		VALUES ($1, $2, $3)
		RETURNING id::text
	`, shopID, name, isActive).Scan(&id)
	if err != nil {
		return "", err
	}

	for wd := 0; wd <= 6; wd++ {
		isWorking := wd >= 1 && wd <= 5
		startMin := 540
		endMin := 1020
		if !isWorking {
			startMin = 0
			endMin = 0
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO barber_working_hours (barber_id, weekday, is_working, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (barber_id, weekday) DO NOTHING
		`, id, wd, isWorking, startMin, endMin); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListBarbers(ctx context.Context, shopID string, limit int) ([]Barber, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, name, is_active
		FROM barbers
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Barber
	for rows.Next() {
		var b Barber
		if err := rows.Scan(&b.ID, &b.ShopID, &b.Name, &b.IsActive); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) SetBarberActive(ctx context.Context, shopID, barberID string, isActive bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE barbers
		SET is_active = $3
		WHERE shop_id = $1 AND id = $2
	`, shopID, barberID, isActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type WorkingHours struct {
	BarberID    string
	Weekday     int
	IsWorking   bool
	StartMinute int
	EndMinute   int
}

func (r *Repository) ListWorkingHours(ctx context.Context, shopID, barberID string) ([]WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT h.barber_id::text, h.weekday, h.is_working, h.start_minute, h.end_minute
		FROM barber_working_hours h
		JOIN barbers b ON b.id = h.barber_id
		WHERE b.shop_id = $1 AND h.barber_id = $2
		ORDER BY h.weekday ASC
	`, shopID, barberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkingHours
	for rows.Next() {
		var wh WorkingHours
		if err := rows.Scan(&wh.BarberID, &wh.Weekday, &wh.IsWorking, &wh.StartMinute, &wh.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpsertWorkingHours(ctx context.Context, tx pgx.Tx, shopID, barberID string, weekday int, isWorking bool, startMinute, endMinute int) error {
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM barbers WHERE id = $1 AND shop_id = $2
		)
	`, barberID, shopID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO barber_working_hours (barber_id, weekday, is_working, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (barber_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute
	`, barberID, weekday, isWorking, startMinute, endMinute)
	return err
}

type BookingPolicy struct {
	ShopID              string
	MinLeadMinutes      int
	MaxAdvanceDays      int
	SameDayCutoffMinute int
	SlotIncrementMins   int
}

func (r *Repository) GetBookingPolicy(ctx context.Context, shopID string) (BookingPolicy, error) {
	var p BookingPolicy
	err := r.pool.QueryRow(ctx, `
		SELECT shop_id::text, min_lead_minutes, max_advance_days, same_day_cutoff_minute, slot_increment_minutes
		FROM shop_booking_policies
		WHERE shop_id = $1
	`, shopID).Scan(&p.ShopID, &p.MinLeadMinutes, &p.MaxAdvanceDays, &p.SameDayCutoffMinute, &p.SlotIncrementMins)
	return p, err
}

func (r *Repository) UpsertBookingPolicy(ctx context.Context, tx pgx.Tx, p BookingPolicy) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO shop_booking_policies (shop_id, min_lead_minutes, max_advance_days, same_day_cutoff_minute, slot_increment_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (shop_id) DO UPDATE
		SET min_lead_minutes = EXCLUDED.min_lead_minutes,
			max_advance_days = EXCLUDED.max_advance_days,
			same_day_cutoff_minute = EXCLUDED.same_day_cutoff_minute,
			slot_increment_minutes = EXCLUDED.slot_increment_minutes,
			updated_at = now()
	`, p.ShopID, p.MinLeadMinutes, p.MaxAdvanceDays, p.SameDayCutoffMinute, p.SlotIncrementMins)
	return err
}

type Admin struct {
	ID           string
	ShopID       string
	Email        string
	PasswordHash string
	Role         string
}

func (r *Repository) GetAdminByEmail(ctx context.Context, email string) (Admin, error) {
	var a Admin
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, shop_id::text, email, password_hash, role
		FROM shop_admins
		WHERE email = $1
	`, email).Scan(&a.ID, &a.ShopID, &a.Email, &a.PasswordHash, &a.Role)
	return a, err
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
