//go:build protogen

package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/bookedbarber/scheduling/libs/grpcx"
	rosterv1 "github.com/bookedbarber/scheduling/protos/gen/roster/v1"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/schedule"
)

type remoteProvider struct {
	client   rosterv1.RosterServiceClient
	fallback Provider
}

// NewRemoteProvider dials roster-service and reads policies over gRPC,
// deferring to fallback when the shop has none configured or the dial fails.
func NewRemoteProvider(logger *slog.Logger, addr string, fallback Provider) Provider {
	if addr == "" {
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc policy provider unavailable, using fallback", "err", err)
		return fallback
	}

	logger.Info("grpc policy provider enabled", "addr", addr)
	return &remoteProvider{client: rosterv1.NewRosterServiceClient(conn), fallback: fallback}
}

func (p *remoteProvider) BookingPolicy(ctx context.Context, shopID string) (schedule.BookingPolicy, error) {
	resp, err := p.client.GetBookingPolicy(ctx, &rosterv1.GetBookingPolicyRequest{ShopId: shopID})
	if err != nil {
		return schedule.BookingPolicy{}, err
	}
	if !resp.GetConfigured() {
		return p.fallback.BookingPolicy(ctx, shopID)
	}

	shop, err := p.client.GetShop(ctx, &rosterv1.GetShopRequest{ShopId: shopID})
	if err != nil {
		return schedule.BookingPolicy{}, err
	}
	return schedule.BookingPolicy{
		MinLeadTime:         time.Duration(resp.GetMinLeadMinutes()) * time.Minute,
		MaxAdvanceDays:      int(resp.GetMaxAdvanceDays()),
		SameDayCutoffMinute: int(resp.GetSameDayCutoffMinute()),
		SlotIncrement:       time.Duration(resp.GetSlotIncrementMins()) * time.Minute,
		Timezone:            shop.GetTimezone(),
	}, nil
}
