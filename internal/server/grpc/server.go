package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Authenticator resolves an access token to the identity behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*services.Identity, error)
}

type GRPCServer struct {
	address string
	auth    Authenticator
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, auth Authenticator) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		auth:    auth,
	}
}

// newServer builds a grpc.Server with the sessions and health services.
func (s *GRPCServer) newServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	srv.RegisterService(&SessionsServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(SessionsServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, hs
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv, hs := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
