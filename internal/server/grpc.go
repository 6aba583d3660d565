package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"passkey-gate/internal/server/interceptors"
)

// unloggedMethods are polled by probes and would drown the log.
var unloggedMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server instrumented with otelgrpc and the observe interceptor,
// serving grpc.health.v1.Health. The returned health server starts NOT_SERVING until readiness
// is synced.
func NewGRPCServer(log *zap.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.ObserveUnary(log, unloggedMethods)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	RegisterServices(s, hs)
	return s, hs
}

// RegisterServices registers every gRPC service with s. Only the standard health service is served.
func RegisterServices(s grpc.ServiceRegistrar, hs healthpb.HealthServer) {
	healthpb.RegisterHealthServer(s, hs)
}
