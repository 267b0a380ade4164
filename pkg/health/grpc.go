package health

import (
	"context"

	"github.com/gogo/status"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPC is the grpc.health.v1 server backed by the same dependency checks as /readyz.
var GRPC = fx.Module("health.grpc",
	fx.Invoke(registerHealthServer),
)

type grpcHealth struct {
	grpc_health_v1.UnimplementedHealthServer
	checker HealthService
}

func NewGRPCHealth(checker HealthService) grpc_health_v1.HealthServer {
	return &grpcHealth{checker: checker}
}

func registerHealthServer(server *grpc.Server, checker HealthService) {
	grpc_health_v1.RegisterHealthServer(server, NewGRPCHealth(checker))
}

func (h *grpcHealth) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if h.checker == nil {
		return nil, status.Error(codes.Internal, "health checker not ready")
	}

	if res := h.checker.Check(ctx); res.Status == statusUnhealthy {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}

	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func (h *grpcHealth) Watch(req *grpc_health_v1.HealthCheckRequest, srv grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "Watch method not implemented")
}
