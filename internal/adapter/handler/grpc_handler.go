package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NotificationServiceName is the health service name of the revenue consumer.
const NotificationServiceName = "storefront.notifications"

type HealthSource interface {
	Healthy() bool
}

// GRPCHealthHandler mirrors the consumer's state into the standard gRPC health
// service, both under its own name and as the server-wide status.
type GRPCHealthHandler struct {
	server *health.Server
	source HealthSource
	log    *zap.Logger
}

func NewGRPCHealthHandler(source HealthSource, log *zap.Logger) *GRPCHealthHandler {
	h := &GRPCHealthHandler{
		server: health.NewServer(),
		source: source,
		log:    log.With(zap.String("component", "grpc_health")),
	}
	h.Sync()
	return h
}

func (h *GRPCHealthHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Sync publishes the current state and returns it.
func (h *GRPCHealthHandler) Sync() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.source.Healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(NotificationServiceName, status)
	return status
}

// Run re-syncs every interval until ctx is done, then marks everything
// NOT_SERVING so watchers see the shutdown.
func (h *GRPCHealthHandler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := h.Sync()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			if status := h.Sync(); status != last {
				h.log.Info("health status changed", zap.String("status", status.String()))
				last = status
			}
		}
	}
}
