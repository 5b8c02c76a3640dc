package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sso/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.auth.Register(ctx, field(req, "email"), field(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}
	return authStruct(res)
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.auth.Login(ctx, field(req, "email"), field(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}
	return authStruct(res)
}

func (s *GRPCServer) CheckToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.auth.CheckToken(ctx, field(req, "token"))
	if err != nil {
		return nil, toStatus(err)
	}
	return authStruct(res)
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.auth.RefreshToken(ctx, field(req, "refreshToken"))
	if err != nil {
		return nil, toStatus(err)
	}
	return authStruct(res)
}

func (s *GRPCServer) SendRecoveryEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.auth.SendRecoveryEmail(ctx, field(req, "email"), field(req, "passwordChangeInterfacePath")); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.auth.ChangePassword(ctx, field(req, "token"), field(req, "password")); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

// field returns a string field of req, or "" when it is absent or not a
// string.
func field(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func authStruct(res *services.AuthResult) (*structpb.Struct, error) {
	m := map[string]any{
		"userId": res.UserID,
		"token":  res.Token,
		"user": map[string]any{
			"id":        res.User.ID,
			"email":     res.User.Email,
			"status":    res.User.Status,
			"createdAt": res.User.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
	if res.RefreshToken != "" {
		m["refreshToken"] = res.RefreshToken
	}

	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "unexpected error")
	}
	return out, nil
}

// toStatus maps an engine error to a gRPC status. Causes never leave the
// process.
func toStatus(err error) error {
	e := services.AsError(err)

	var code codes.Code
	switch e.Kind {
	case services.KindMissingData, services.KindBadRequest, services.KindPolicyViolation:
		code = codes.InvalidArgument
	case services.KindUnauthorized:
		code = codes.Unauthenticated
	case services.KindConflict:
		code = codes.AlreadyExists
	case services.KindNotFound:
		code = codes.NotFound
	case services.KindRateLimited:
		code = codes.ResourceExhausted
	default:
		code = codes.Internal
	}
	return status.Error(code, e.Message)
}
