// Package interceptors holds the gRPC server interceptors.
package interceptors

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"passkey-gate/internal/logger"
	"passkey-gate/internal/metrics"
)

// ObserveUnary counts every RPC in GRPCRequestsTotal by method and status code. Methods in quiet
// are counted without a log line, which keeps probe traffic out of the logs.
func ObserveUnary(log *zap.Logger, quiet map[string]bool) grpc.UnaryServerInterceptor {
	log = logger.OrNop(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		began := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err).String()
		metrics.GRPCRequestsTotal.WithLabelValues(info.FullMethod, code).Inc()
		if !quiet[info.FullMethod] {
			log.Info("grpc request",
				zap.String("method", info.FullMethod),
				zap.String("code", code),
				zap.Duration("duration", time.Since(began)),
				zap.String("client_ip", ClientIP(ctx)))
		}
		return resp, err
	}
}

// ClientIP prefers the first x-forwarded-for hop, then x-real-ip, then the transport peer.
// It returns "unknown" when none is available.
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if hop := firstHeader(md, "x-forwarded-for"); hop != "" {
			first, _, _ := strings.Cut(hop, ",")
			return strings.TrimSpace(first)
		}
		if ip := firstHeader(md, "x-real-ip"); ip != "" {
			return ip
		}
	}
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func firstHeader(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
