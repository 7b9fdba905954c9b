// Package grpcserver exposes the gRPC health protocol so orchestrators can
// check the service alongside the HTTP API.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"market-chat/internal/logger"
	"market-chat/internal/observability"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	deps   Pinger
	name   string
}

// New builds the server. name is the service name reported by the health
// check, deps is checked by Watch.
func New(name string, deps Pinger) *Server {
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, deps: deps, name: name}
	s.setServing(true)
	return s
}

func (s *Server) setServing(ok bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.name, status)
}

// Check pings deps once and updates the reported status.
func (s *Server) Check(ctx context.Context) bool {
	if s.deps == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := s.deps.PingContext(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("health check failed")
	}
	s.setServing(err == nil)
	return err == nil
}

// Watch re-checks deps every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
