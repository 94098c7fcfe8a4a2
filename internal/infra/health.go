package infra

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RecorderService is the service name reported by the health server.
const RecorderService = "bitmex.orderbook.Recorder"

// HealthServer exposes the standard gRPC health service.
// The recorder is SERVING while its feed is connected.
type HealthServer struct {
	srv *grpc.Server
	hs  *health.Server
}

func NewHealthServer() *HealthServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	h := &HealthServer{srv: srv, hs: hs}
	h.SetServing(false)
	return h
}

// SetServing flips the status of both the overall and the recorder service.
func (h *HealthServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", status)
	h.hs.SetServingStatus(RecorderService, status)
}

// Serve blocks serving on lis until Stop.
func (h *HealthServer) Serve(lis net.Listener) error {
	slog.Info("Health server listening", slog.String("addr", lis.Addr().String()))
	if err := h.srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves.
func (h *HealthServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health listen %s: %w", addr, err)
	}
	return h.Serve(lis)
}

// Watch polls connected every interval and mirrors it into the serving status.
func (h *HealthServer) Watch(ctx context.Context, connected func() bool, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last := false
	for {
		now := connected()
		if now != last {
			slog.Info("Health status changed", slog.Bool("serving", now))
			last = now
		}
		h.SetServing(now)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop marks everything NOT_SERVING and stops the gRPC server.
func (h *HealthServer) Stop() {
	h.hs.Shutdown()
	h.srv.GracefulStop()
}
