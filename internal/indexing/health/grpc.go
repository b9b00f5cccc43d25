package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the bridge.
const ServiceName = "planbridge"

// GRPCServer serves the standard grpc.health.v1 service, mirroring the
// monitor's status.
type GRPCServer struct {
	monitor  *Monitor
	port     int
	interval time.Duration
	server   *grpc.Server
	health   *grpchealth.Server
	log      *slog.Logger
}

func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	hs := grpchealth.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &GRPCServer{
		monitor:  monitor,
		port:     port,
		interval: 15 * time.Second,
		server:   gs,
		health:   hs,
		log:      slog.Default().With("component", "grpc-health"),
	}
}

// Start listens on the configured port and refreshes the serving status
// until ctx is cancelled.
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen grpc health: %w", err)
	}

	s.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()

	s.log.Info("gRPC health server listening", "port", s.port)
	return s.server.Serve(lis)
}

// Refresh maps the monitor status onto the gRPC serving status. Only a
// critical status reports NOT_SERVING.
func (s *GRPCServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.monitor.CheckHealth(ctx).Status == StatusCritical {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop stops the server, marking every service NOT_SERVING first.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
