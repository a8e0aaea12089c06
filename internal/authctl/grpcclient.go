package authctl

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/authcore/internal/common"
	gs "github.com/dmitrijs2005/authcore/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// SessionsClient talks to the internal sessions service.
type SessionsClient struct {
	conn *grpc.ClientConn
}

// Dial connects to address without TLS; the service is internal only.
func Dial(address string, opts ...grpc.DialOption) (*SessionsClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, err
	}
	return &SessionsClient{conn: conn}, nil
}

func (c *SessionsClient) Close() error {
	return c.conn.Close()
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	return metadata.NewOutgoingContext(ctx, md)
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	}
	return err
}

func (c *SessionsClient) Introspect(ctx context.Context, token string) (map[string]any, error) {
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, gs.IntrospectMethod, wrapperspb.String(token), out); err != nil {
		return nil, mapError(err)
	}
	return out.AsMap(), nil
}

func (c *SessionsClient) WhoAmI(ctx context.Context, token string) (map[string]any, error) {
	out := &structpb.Struct{}
	if err := c.conn.Invoke(withAccessToken(ctx, token), gs.WhoAmIMethod, &emptypb.Empty{}, out); err != nil {
		return nil, mapError(err)
	}
	return out.AsMap(), nil
}

func (c *SessionsClient) Health(ctx context.Context) (string, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: gs.SessionsServiceName})
	if err != nil {
		return "", mapError(err)
	}
	return resp.GetStatus().String(), nil
}
