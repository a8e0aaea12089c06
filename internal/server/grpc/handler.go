package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func identityStruct(id *services.Identity) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"active":     true,
		"account_id": id.AccountID,
		"role":       id.Role,
		"session_id": id.SessionID,
	})
}

// Introspect reports whether an access token is live and, if so, who it
// belongs to. Rejected tokens answer {"active": false}.
func (s *GRPCServer) Introspect(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {

	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	id, err := s.auth.Authenticate(ctx, req.GetValue())
	if err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) {
			s.logger.Error(ctx, "introspection failed", "error", err)
			return nil, status.Error(codes.Unavailable, "service unavailable")
		}
		return structpb.NewStruct(map[string]any{"active": false})
	}

	return identityStruct(id)

}

func (s *GRPCServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {

	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidSession.Error())
	}

	return identityStruct(id)

}
