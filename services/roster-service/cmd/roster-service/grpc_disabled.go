//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/bookedbarber/scheduling/libs/db"
	"github.com/bookedbarber/scheduling/services/roster-service/internal/storage"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *db.Pool, _ *storage.Repository) error {
	return nil
}
