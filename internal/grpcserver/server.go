// Package grpcserver serves the standard gRPC health service. The capture
// service reports SERVING only while a session is running, so probes can
// tell an idle daemon from a capturing one.
package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/trace"
)

// ServiceName is the health service name that tracks capture state.
const ServiceName = "shadowshot.capture"

// Server wraps a grpc.Server with a health registry.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New builds a server. The process-level service ("") is SERVING from the
// start; ServiceName starts NOT_SERVING.
func New(opts ...grpc.ServerOption) *Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor()),
	)
	s := &Server{grpc: grpc.NewServer(opts...), health: health.NewServer()}
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetCapturing flips the capture service status.
func (s *Server) SetCapturing(running bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	trace.Logger(context.Background()).Debug("health status changed", "service", ServiceName, "status", st.String())
}

// Serve blocks serving lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	trace.Logger(context.Background()).Info("grpc server starting", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
