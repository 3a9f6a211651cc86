// Integration tests for the gRPC admin surface
package server

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/calderhof/revstore/internal/logger"
	"github.com/calderhof/revstore/internal/metrics"
	"github.com/calderhof/revstore/pkg/partition"
	"github.com/calderhof/revstore/pkg/repo"
	"github.com/calderhof/revstore/pkg/search"
)

const bufSize = 1024 * 1024

// Prometheus collectors register globally, so the test binary shares
// one metrics instance.
var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

func setupTestServer(t *testing.T) (*Server, *grpc.ClientConn) {
	t.Helper()

	log := logger.NewLogger(logger.Config{Level: "error"})
	r := repo.New(repo.Options{
		Partitions: partition.NewMemorySet(),
		Index:      search.NewMemoryIndex(),
		Logger:     *log.GetZerolog(),
	})

	server := NewServer(r, sharedMetrics(), log)

	lis := bufconn.Listen(bufSize)
	server.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	go func() {
		_ = server.grpc.Serve(lis)
	}()

	bufDialer := func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}
	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(bufDialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		server.grpc.Stop()
		lis.Close()
	})

	return server, conn
}

func TestHealthCheckServing(t *testing.T) {
	_, conn := setupTestServer(t)

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("Health status = %v, want SERVING", resp.Status)
	}
}

func TestShutdownFlipsHealthStatus(t *testing.T) {
	server, conn := setupTestServer(t)

	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	client := healthpb.NewHealthClient(conn)
	if _, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: serviceName}); err == nil {
		t.Fatal("Expected health check to fail after shutdown")
	}
}

func TestRepositoryAccessor(t *testing.T) {
	server, _ := setupTestServer(t)

	if server.Repository() == nil {
		t.Fatal("Repository accessor returned nil")
	}
}
