// Package server wires the repository behind the gRPC admin surface
package server

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/calderhof/revstore/internal/logger"
	"github.com/calderhof/revstore/internal/metrics"
	"github.com/calderhof/revstore/pkg/repo"
)

const serviceName = "revstore"

// Server hosts the gRPC endpoint for a repository. It exposes the
// standard health service so orchestrators can probe readiness, and
// server reflection so the service surface is discoverable.
type Server struct {
	repo   *repo.Repository
	log    *logger.Logger
	health *health.Server
	grpc   *grpc.Server
}

// NewServer builds a gRPC server around an opened repository.
func NewServer(r *repo.Repository, m *metrics.Metrics, log *logger.Logger) *Server {
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(GrpcMetricsInterceptor(m, log)),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Server{
		repo:   r,
		log:    log,
		health: hs,
		grpc:   gs,
	}
}

// Serve listens on addr and blocks until the server stops. The
// health status flips to SERVING once the listener is up.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	s.log.Info("gRPC server listening").Str("addr", addr).Send()

	return s.grpc.Serve(lis)
}

// Shutdown drains in-flight requests, marks the service not serving
// and closes the repository.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}

	return s.repo.Close()
}

// Repository exposes the underlying repository for in-process callers.
func (s *Server) Repository() *repo.Repository {
	return s.repo
}
