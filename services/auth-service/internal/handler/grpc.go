package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/crm-identity-api/shared/utilities"
)

// ClientInfoInterceptor records the caller of a unary gRPC call the same way
// the HTTP clientInfo middleware does.
func ClientInfoInterceptor(proxies *utilities.TrustedProxies) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		info := usecase.ClientInfo{IP: proxies.ClientIPFromGRPC(ctx)}

		if md, ok := metadata.FromIncomingContext(ctx); ok {
			info.UserAgent = firstValue(md, "user-agent")
			info.RequestID = firstValue(md, "x-request-id")
		}
		if info.RequestID == "" || len(info.RequestID) > 64 {
			info.RequestID = newRequestID()
		}

		return handler(usecase.WithClientInfo(ctx, info), req)
	}
}

func firstValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
