//go:build protogen

package grpcserver

import (
	"context"

	"github.com/bookedbarber/scheduling/libs/db"
	rosterv1 "github.com/bookedbarber/scheduling/protos/gen/roster/v1"
	"github.com/bookedbarber/scheduling/services/roster-service/internal/storage"
	"google.golang.org/grpc"
)

type server struct {
	rosterv1.UnimplementedRosterServiceServer
	pool *db.Pool
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, pool *db.Pool, repo *storage.Repository) {
	rosterv1.RegisterRosterServiceServer(grpcServer, &server{pool: pool, repo: repo})
}

func (s *server) GetShop(ctx context.Context, req *rosterv1.GetShopRequest) (*rosterv1.GetShopResponse, error) {
	shop, err := s.repo.GetOrCreateShop(ctx, req.GetShopId())
	if err != nil {
		return nil, err
	}
	return &rosterv1.GetShopResponse{
		ShopId:   shop.ShopID,
		Name:     shop.Name,
		Timezone: shop.Timezone,
	}, nil
}

func (s *server) GetWorkingHours(ctx context.Context, req *rosterv1.GetWorkingHoursRequest) (*rosterv1.GetWorkingHoursResponse, error) {
	hours, err := s.repo.ListWorkingHours(ctx, req.GetShopId(), req.GetBarberId())
	if err != nil {
		return nil, err
	}
	resp := &rosterv1.GetWorkingHoursResponse{
		ShopId:   req.GetShopId(),
		BarberId: req.GetBarberId(),
	}
	for _, h := range hours {
		resp.Days = append(resp.Days, &rosterv1.WorkingDay{
			Weekday:     int32(h.Weekday),
			IsWorking:   h.IsWorking,
			StartMinute: int32(h.StartMinute),
			EndMinute:   int32(h.EndMinute),
		})
	}
	return resp, nil
}

func (s *server) GetBookingPolicy(ctx context.Context, req *rosterv1.GetBookingPolicyRequest) (*rosterv1.GetBookingPolicyResponse, error) {
	p, err := s.repo.GetBookingPolicy(ctx, req.GetShopId())
	if err != nil {
		if storage.IsNotFound(err) {
			return &rosterv1.GetBookingPolicyResponse{ShopId: req.GetShopId(), Configured: false}, nil
		}
		return nil, err
	}
	return &rosterv1.GetBookingPolicyResponse{
		ShopId:              p.ShopID,
		Configured:          true,
		MinLeadMinutes:      int32(p.MinLeadMinutes),
		MaxAdvanceDays:      int32(p.MaxAdvanceDays),
		SameDayCutoffMinute: int32(p.SameDayCutoffMinute),
		SlotIncrementMins:   int32(p.SlotIncrementMins),
	}, nil
}
