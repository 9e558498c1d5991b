package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/usecase"
	authtypes "github.com/vasapolrittideah/crm-identity-api/services/auth-service/pkg/types"
	"github.com/vasapolrittideah/crm-identity-api/shared/interceptor"
)

const identityServiceName = "crm.identity.v1.IdentityService"

const (
	// ValidateSessionMethod checks a session token on behalf of another
	// service. The token travels in the request, so the call carries no
	// bearer credential of its own.
	ValidateSessionMethod = "/" + identityServiceName + "/ValidateSession"

	// GetLinkedProvidersMethod lists the provider links of the caller.
	GetLinkedProvidersMethod = "/" + identityServiceName + "/GetLinkedProviders"
)

type identityServer interface {
	ValidateSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	GetLinkedProviders(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// IdentityGRPCHandler serves session checks and link listing to other services.
type IdentityGRPCHandler struct {
	identityUsecase  usecase.IdentityUsecase
	sessionValidator usecase.SessionValidator
	logger           *zerolog.Logger
}

// NewIdentityGRPCHandler creates a new IdentityGRPCHandler.
func NewIdentityGRPCHandler(
	identityUsecase usecase.IdentityUsecase,
	sessionValidator usecase.SessionValidator,
	logger *zerolog.Logger,
) *IdentityGRPCHandler {
	return &IdentityGRPCHandler{
		identityUsecase:  identityUsecase,
		sessionValidator: sessionValidator,
		logger:           logger,
	}
}

// RegisterIdentityGRPCHandler registers h on s.
func RegisterIdentityGRPCHandler(s grpc.ServiceRegistrar, h *IdentityGRPCHandler) {
	s.RegisterService(&identityServiceDesc, h)
}

func (h *IdentityGRPCHandler) ValidateSession(
	ctx context.Context,
	req *wrapperspb.StringValue,
) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	claims, err := h.sessionValidator.Validate(ctx, req.GetValue())
	if err != nil {
		return nil, h.grpcError(err)
	}

	roles := make([]any, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		roles = append(roles, role)
	}

	return structpb.NewStruct(map[string]any{
		"user_id":       claims.UserID,
		"session_id":    claims.SessionID,
		"token_version": claims.TokenVersion,
		"roles":         roles,
	})
}

func (h *IdentityGRPCHandler) GetLinkedProviders(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	claims, ok := interceptor.ClaimsFromContext[*authtypes.JWTClaims](ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid session")
	}

	links, err := h.identityUsecase.GetLinkedProviders(ctx, claims.UserID)
	if err != nil {
		return nil, h.grpcError(err)
	}

	providers := make([]any, 0, len(links))
	for _, link := range links {
		providers = append(providers, map[string]any{
			"provider":     link.Provider,
			"email":        link.Email,
			"linked_at":    link.LinkedAt.UTC().Format(time.RFC3339),
			"last_used_at": link.LastUsedAt.UTC().Format(time.RFC3339),
		})
	}

	return structpb.NewStruct(map[string]any{"providers": providers})
}

func (h *IdentityGRPCHandler) grpcError(err error) error {
	_, msg := statusFromError(err)
	switch {
	case errors.Is(err, usecase.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, msg)
	case errors.Is(err, usecase.ErrConflict):
		return status.Error(codes.Aborted, msg)
	case errors.Is(err, usecase.ErrThrottled):
		return status.Error(codes.ResourceExhausted, msg)
	default:
		h.logger.Error().Err(err).Msg("identity rpc failed")
		return status.Error(codes.Internal, msg)
	}
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: identityServiceName,
	HandlerType: (*identityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ValidateSession", Handler: validateSessionHandler},
		{MethodName: "GetLinkedProviders", Handler: getLinkedProvidersHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func validateSessionHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	intercept grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if intercept == nil {
		return srv.(identityServer).ValidateSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateSessionMethod}
	return intercept(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(identityServer).ValidateSession(ctx, req.(*wrapperspb.StringValue))
	})
}

func getLinkedProvidersHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	intercept grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if intercept == nil {
		return srv.(identityServer).GetLinkedProviders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetLinkedProvidersMethod}
	return intercept(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(identityServer).GetLinkedProviders(ctx, req.(*emptypb.Empty))
	})
}
