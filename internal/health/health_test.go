package health

import (
	"context"
	"net"
	"testing"

	"Go2FlowLabel/internal/sequencer"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func check(t *testing.T, hs healthpb.HealthServer) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	return resp.GetStatus()
}

func TestStatusFollowsRuns(t *testing.T) {
	s := NewServer()
	if got := check(t, s.Health()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING before any run, got %v", got)
	}
	s.RunStarted(sequencer.ActiveRun{Topology: "linear"})
	if got := check(t, s.Health()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING during a run, got %v", got)
	}
	s.RunFinished(sequencer.RunResult{Topology: "linear"})
	if got := check(t, s.Health()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING after the run, got %v", got)
	}
}

func TestCheckOverGRPC(t *testing.T) {
	s := NewServer()
	lis := bufconn.Listen(1 << 20)
	go s.grpc.Serve(lis)
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer conn.Close()

	s.RunStarted(sequencer.ActiveRun{Topology: "tree"})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %v", resp.GetStatus())
	}
}
