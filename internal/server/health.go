package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "skills-audit"

// Pinger is satisfied by *repository.DB.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// RegisterHealth attaches a health service to g and marks it serving.
func RegisterHealth(g *grpc.Server) *health.Server {
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return hs
}

// PingDB pings the job store once and flips the service status to match.
func PingDB(ctx context.Context, hs *health.Server, db Pinger, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("pinging database")
	if err := db.HealthCheck(ctx, timeout); err != nil {
		logger.Error("database ping failed", "error", err)
		hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return err
	}
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	logger.Debug("database ping successful")
	return nil
}

// WatchDB pings every interval until ctx is done.
func WatchDB(ctx context.Context, hs *health.Server, db Pinger, interval, timeout time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = PingDB(ctx, hs, db, timeout, logger)
		}
	}
}
