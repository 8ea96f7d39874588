package handler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type switchSource struct {
	healthy atomic.Bool
}

func (s *switchSource) Healthy() bool { return s.healthy.Load() }

func check(t *testing.T, h *GRPCHealthHandler, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestGRPCHealth_FollowsSource(t *testing.T) {
	src := &switchSource{}
	h := NewGRPCHealthHandler(src, zap.NewNop())

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, NotificationServiceName))

	src.healthy.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.Sync())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, NotificationServiceName))
}

func TestGRPCHealth_RunStopsServingOnShutdown(t *testing.T) {
	src := &switchSource{}
	src.healthy.Store(true)
	h := NewGRPCHealthHandler(src, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	src.healthy.Store(false)
	assert.Eventually(t, func() bool {
		return check(t, h, "") == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	src.healthy.Store(true)
	assert.Eventually(t, func() bool {
		return check(t, h, "") == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ""))
}
