package grpc

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server exposes the standard gRPC health service for orchestrators.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	service    string
}

func New(serviceName string) *Server {
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		health:     hs,
		service:    serviceName,
	}
}

// SetServing flips the health status of both the named service and the
// server as a whole.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(s.service, st)
}

// Start blocks serving on addr.
func (s *Server) Start(addr string) error {
	lisAddr := addr
	if !strings.Contains(addr, ":") {
		lisAddr = ":" + addr
	}

	lis, err := net.Listen("tcp", lisAddr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", lisAddr, err)
	}

	observability.GetLogger(context.Background()).Info("gRPC listening", zap.String("addr", lisAddr))
	s.SetServing(true)
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	observability.GetLogger(context.Background()).Info("shutting down gRPC")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
