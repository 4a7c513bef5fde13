// Package server exposes process health over the standard gRPC health protocol.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// MonitorService is the service name reported alongside overall ("") health.
const MonitorService = "bookkeeper.Monitor"

// Probe reports whether a component is currently healthy.
type Probe func(ctx context.Context) bool

type HealthServer struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewHealthServer(addr string, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	if addr != "" && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(MonitorService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{addr: addr, grpc: gs, health: hs, logger: logger}
}

// SetServing flips both the overall and the monitor status.
func (s *HealthServer) SetServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(MonitorService, st)
}

// Serve listens on the configured address until ctx is done.
func (s *HealthServer) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error("failed to listen on address", "addr", s.addr, "error", err)
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done, then stops gracefully.
func (s *HealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	s.logger.Info("health server listening", "addr", lis.Addr().String())
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		s.logger.Error("gRPC serve error", "error", err)
		return err
	}
}

// Track polls probe every interval and mirrors it into the health status until ctx is done.
func (s *HealthServer) Track(ctx context.Context, probe Probe, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last := probe(ctx)
	s.SetServing(last)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.SetServing(false)
			return
		case <-t.C:
			ok := probe(ctx)
			if ok != last {
				s.logger.Info("health.status.changed", "serving", ok)
				last = ok
			}
			s.SetServing(ok)
		}
	}
}
