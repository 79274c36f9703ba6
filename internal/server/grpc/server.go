// Package grpcserver serves the daemon's gRPC surface: the standard health
// service, with a dedicated status for the sync job.
package grpcserver

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// SyncService is the health service name that tracks the sync job.
const SyncService = "fbarecon.Sync"

// Health reports process and sync status through the health service.
type Health struct {
	hs *health.Server
}

// NewHealth creates a health server with the sync status NOT_SERVING until
// the first run reports.
func NewHealth() *Health {
	hs := health.NewServer()
	hs.SetServingStatus(SyncService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{hs: hs}
}

// SetServing flips the sync status.
func (h *Health) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus(SyncService, st)
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() { h.hs.Shutdown() }

// New builds the gRPC server with recovery and logging interceptors and
// registers the health service. dev enables reflection.
func New(log *zap.Logger, h *Health, dev bool, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.hs)
	if dev {
		reflection.Register(s)
	}
	return s
}
