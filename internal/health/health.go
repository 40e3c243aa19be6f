// Package health exposes the standard gRPC health service. The generator
// reports SERVING while a topology is being collected.
package health

import (
	"net"

	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/sequencer"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name of the collector.
const Service = "flowlabel.Collector"

// Server serves grpc.health.v1 and implements sequencer.Observer.
type Server struct {
	health *health.Server
	grpc   *grpc.Server
}

// NewServer creates a health server reporting NOT_SERVING until a run starts.
func NewServer() *Server {
	s := &Server{health: health.NewServer(), grpc: grpc.NewServer()}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Health returns the underlying health service.
func (s *Server) Health() healthpb.HealthServer { return s.health }

// RunStarted marks the collector as serving.
func (s *Server) RunStarted(run sequencer.ActiveRun) {
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
}

// RunFinished marks the collector as idle between topologies.
func (s *Server) RunFinished(sequencer.RunResult) {
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Serve listens on addr in the background.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		logger.APILog.Infof("gRPC health server starting on %s", addr)
		if err := s.grpc.Serve(lis); err != nil {
			logger.APILog.Errorf("gRPC health server stopped: %v", err)
		}
	}()
	return nil
}

// Stop reports NOT_SERVING on every service and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
