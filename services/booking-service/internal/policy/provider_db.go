package policy

import (
	"context"
	"log/slog"

	"github.com/bookedbarber/scheduling/services/booking-service/internal/schedule"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/storage"
)

type dbProvider struct {
	repo     *storage.BookingRepository
	fallback schedule.BookingPolicy
	logger   *slog.Logger
}

// NewDBProvider reads per-shop policy rows managed by roster-service, falling
// back to the static defaults when a shop has no policy configured yet.
func NewDBProvider(repo *storage.BookingRepository, fallback schedule.BookingPolicy, logger *slog.Logger) Provider {
	return &dbProvider{repo: repo, fallback: fallback, logger: logger}
}

func (p *dbProvider) BookingPolicy(ctx context.Context, shopID string) (schedule.BookingPolicy, error) {
	pol, err := p.repo.GetBookingPolicy(ctx, shopID)
	if err != nil {
		if storage.IsNotFound(err) {
			return p.fallback, nil
		}
		return schedule.BookingPolicy{}, err
	}
	if pol.SlotIncrement <= 0 {
		pol.SlotIncrement = p.fallback.SlotIncrement
	}
	if pol.MaxAdvanceDays <= 0 {
		pol.MaxAdvanceDays = p.fallback.MaxAdvanceDays
	}
	return pol, nil
}
