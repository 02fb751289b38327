package policy

import (
	"context"

	"github.com/bookedbarber/scheduling/services/booking-service/internal/schedule"
)

// Provider resolves the booking policy for a shop.
type Provider interface {
	BookingPolicy(ctx context.Context, shopID string) (schedule.BookingPolicy, error)
}

type staticProvider struct {
	policy schedule.BookingPolicy
}

func NewStaticProvider(policy schedule.BookingPolicy) Provider {
	return &staticProvider{policy: policy}
}

func (p *staticProvider) BookingPolicy(_ context.Context, _ string) (schedule.BookingPolicy, error) {
	return p.policy, nil
}
