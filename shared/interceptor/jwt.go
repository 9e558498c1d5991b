package interceptor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vasapolrittideah/crm-identity-api/shared/auth"
)

type contextKey struct{}

var UserClaimsKey = contextKey{}

// NewJWTInterceptor authenticates every unary call not listed in exemptMethods
// with validate and stores the returned claims under UserClaimsKey.
func NewJWTInterceptor[C any](
	validate func(ctx context.Context, token string) (C, error),
	exemptMethods []string,
) grpc.UnaryServerInterceptor {
	exemptMap := make(map[string]bool)
	for _, method := range exemptMethods {
		exemptMap[method] = true
	}

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		// Skip authentication for exempt methods
		if exemptMap[info.FullMethod] {
			return handler(ctx, req)
		}

		token, err := bearerFromMetadata(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		claims, err := validate(ctx, token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or revoked session")
		}

		ctx = context.WithValue(ctx, UserClaimsKey, claims)

		return handler(ctx, req)
	}
}

// ClaimsFromContext returns the claims stored by the interceptor.
func ClaimsFromContext[C any](ctx context.Context) (C, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(C)
	return claims, ok
}

func bearerFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", auth.ErrMissingAuthHeader
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return "", auth.ErrMissingAuthHeader
	}

	return auth.BearerToken(authHeaders[0])
}
