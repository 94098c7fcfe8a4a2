package infra

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startHealth(t *testing.T) (*HealthServer, healthpb.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	h := NewHealthServer()
	go h.Serve(lis)
	t.Cleanup(h.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return h, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

// status is check without assertions, for use inside Eventually.
func status(c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestHealthServer_StartsNotServing(t *testing.T) {
	_, client := startHealth(t)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, RecorderService))
}

func TestHealthServer_SetServing(t *testing.T) {
	h, client := startHealth(t)

	h.SetServing(true)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, RecorderService))

	h.SetServing(false)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, RecorderService))
}

func TestHealthServer_WatchFollowsConnection(t *testing.T) {
	h, client := startHealth(t)

	var connected atomic.Bool
	connected.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Watch(ctx, connected.Load, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return status(client, RecorderService) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	connected.Store(false)
	require.Eventually(t, func() bool {
		return status(client, RecorderService) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)
}
