package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const IdentityKey ctxKey = "identity"

// authenticated lists the methods that require a bearer access token.
var authenticated = map[string]bool{
	WhoAmIMethod: true,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if authenticated[info.FullMethod] {

		var accessToken string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			values := md.Get(common.AuthorizationHeaderName)
			if len(values) > 0 {
				accessToken = bearer(values[0])
			}
		}
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		id, err := s.auth.Authenticate(ctx, accessToken)
		if err != nil {
			return nil, authStatus(err)
		}

		ctx = context.WithValue(ctx, IdentityKey, id)

	}

	return handler(ctx, req)
}

func bearer(v string) string {
	if len(v) > len(common.BearerPrefix) && strings.EqualFold(v[:len(common.BearerPrefix)], common.BearerPrefix) {
		return strings.TrimSpace(v[len(common.BearerPrefix):])
	}
	return ""
}

// authStatus keeps store outages distinguishable from rejected tokens.
func authStatus(err error) error {
	if errors.Is(err, common.ErrStoreUnavailable) {
		return status.Error(codes.Unavailable, "service unavailable")
	}
	return status.Error(codes.Unauthenticated, common.ErrInvalidSession.Error())
}

// IdentityFromContext returns the identity set by the interceptor.
func IdentityFromContext(ctx context.Context) (*services.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(*services.Identity)
	return id, ok
}
