package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sso.v1.AuthService"

// Method names of sso.v1.AuthService.
const (
	MethodRegister          = "Register"
	MethodLogin             = "Login"
	MethodCheckToken        = "CheckToken"
	MethodRefreshToken      = "RefreshToken"
	MethodSendRecoveryEmail = "SendRecoveryEmail"
	MethodChangePassword    = "ChangePassword"
)

// AuthServiceServer is the server API for sso.v1.AuthService. Requests and
// responses are google.protobuf.Struct values carrying the same fields as
// the HTTP bodies.
type AuthServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendRecoveryEmail(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangePassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(AuthServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes sso.v1.AuthService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodRegister, AuthServiceServer.Register),
		unaryMethod(MethodLogin, AuthServiceServer.Login),
		unaryMethod(MethodCheckToken, AuthServiceServer.CheckToken),
		unaryMethod(MethodRefreshToken, AuthServiceServer.RefreshToken),
		unaryMethod(MethodSendRecoveryEmail, AuthServiceServer.SendRecoveryEmail),
		unaryMethod(MethodChangePassword, AuthServiceServer.ChangePassword),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sso/v1/auth.proto",
}

func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FullMethod returns "/sso.v1.AuthService/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// AuthServiceClient calls sso.v1.AuthService over an existing connection.
type AuthServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthServiceClient(cc grpc.ClientConnInterface) *AuthServiceClient {
	return &AuthServiceClient{cc: cc}
}

// Call invokes method with the given request fields.
func (c *AuthServiceClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
