package health

import (
	"fmt"
	"net"

	"adichat/backend/pkg/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name the chat server reports under
const ServiceName = "adichat.ChatService"

// GRPCServer exposes the checker through the standard grpc.health.v1 service
type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
	log    *logger.Logger
}

// NewGRPCServer builds a gRPC server whose serving status follows checker
func NewGRPCServer(checker *Checker, log *logger.Logger) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	g := &GRPCServer{server: srv, health: hs, log: log}
	g.set(checker.IsSystemHealthy())
	checker.OnChange(g.set)
	return g
}

func (g *GRPCServer) set(healthy bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Serve listens on addr until Stop is called
func (g *GRPCServer) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc health listen %s: %w", addr, err)
	}
	g.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	return g.ServeListener(lis)
}

// ServeListener serves on an existing listener
func (g *GRPCServer) ServeListener(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Stop marks every service not serving and stops the server
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
