package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// SessionsServiceName is the fully qualified gRPC service name.
const SessionsServiceName = "authcore.v1.Sessions"

const (
	IntrospectMethod = "/" + SessionsServiceName + "/Introspect"
	WhoAmIMethod     = "/" + SessionsServiceName + "/WhoAmI"
)

// SessionsServer is implemented by GRPCServer. Messages are well-known
// protobuf types, so no generated code is needed.
type SessionsServer interface {
	Introspect(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	WhoAmI(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var SessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionsServiceName,
	HandlerType: (*SessionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: introspectHandler},
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authcore/v1/sessions.proto",
}

func introspectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionsServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IntrospectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionsServer).Introspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func whoAmIHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionsServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionsServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
