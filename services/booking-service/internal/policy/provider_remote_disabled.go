//go:build !protogen

package policy

import "log/slog"

// NewRemoteProvider is a no-op without generated gRPC stubs.
func NewRemoteProvider(logger *slog.Logger, addr string, fallback Provider) Provider {
	if addr != "" {
		logger.Warn("ROSTER_GRPC_ADDR set but binary built without protogen, using fallback")
	}
	return fallback
}
