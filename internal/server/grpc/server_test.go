package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/sso/internal/logging"
	"github.com/dmitrijs2005/sso/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeAuth struct {
	gotEmail, gotPassword, gotToken, gotPath string
	gotRequestID                             string

	result *services.AuthResult
	err    error
}

func (f *fakeAuth) Register(ctx context.Context, email, password string) (*services.AuthResult, error) {
	f.gotEmail, f.gotPassword = email, password
	return f.result, f.err
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	f.gotEmail, f.gotPassword = email, password
	f.gotRequestID = logging.RequestIDFromContext(ctx)
	return f.result, f.err
}

func (f *fakeAuth) CheckToken(_ context.Context, token string) (*services.AuthResult, error) {
	f.gotToken = token
	return f.result, f.err
}

func (f *fakeAuth) RefreshToken(_ context.Context, token string) (*services.AuthResult, error) {
	f.gotToken = token
	return f.result, f.err
}

func (f *fakeAuth) SendRecoveryEmail(_ context.Context, email, returnPath string) error {
	f.gotEmail, f.gotPath = email, returnPath
	return f.err
}

func (f *fakeAuth) ChangePassword(_ context.Context, token, password string) error {
	f.gotToken, f.gotPassword = token, password
	return f.err
}

func startServer(t *testing.T, fa *fakeAuth) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := NewGRPCServer("bufnet", log, fa)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return conn
}

func result() *services.AuthResult {
	return &services.AuthResult{
		UserID:       "u-1",
		Token:        "access",
		RefreshToken: "refresh",
		User: services.UserView{
			ID:        "u-1",
			Email:     "a@b.com",
			Status:    "ACTIVE",
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
}

func TestLogin_RoundTrip(t *testing.T) {
	fa := &fakeAuth{result: result()}
	client := NewAuthServiceClient(startServer(t, fa))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-42")
	var header metadata.MD
	out, err := client.Call(ctx, MethodLogin, map[string]any{"email": "a@b.com", "password": "password1"}, grpc.Header(&header))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if fa.gotEmail != "a@b.com" || fa.gotPassword != "password1" {
		t.Fatalf("engine got %q/%q", fa.gotEmail, fa.gotPassword)
	}
	if fa.gotRequestID != "req-42" {
		t.Fatalf("request id = %q, want req-42", fa.gotRequestID)
	}
	if got := header.Get("x-request-id"); len(got) != 1 || got[0] != "req-42" {
		t.Fatalf("response header x-request-id = %v", got)
	}

	fields := out.GetFields()
	if fields["userId"].GetStringValue() != "u-1" || fields["token"].GetStringValue() != "access" ||
		fields["refreshToken"].GetStringValue() != "refresh" {
		t.Fatalf("unexpected response: %v", out)
	}
	user := fields["user"].GetStructValue().GetFields()
	if user["email"].GetStringValue() != "a@b.com" || user["createdAt"].GetStringValue() != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected user: %v", user)
	}
	if _, ok := user["password"]; ok {
		t.Fatal("user must not carry a password")
	}
}

func TestCheckToken_NoRefreshField(t *testing.T) {
	r := result()
	r.RefreshToken = ""
	fa := &fakeAuth{result: r}
	client := NewAuthServiceClient(startServer(t, fa))

	out, err := client.Call(context.Background(), MethodCheckToken, map[string]any{"token": "tok"})
	if err != nil {
		t.Fatalf("CheckToken: %v", err)
	}
	if fa.gotToken != "tok" {
		t.Fatalf("engine got token %q", fa.gotToken)
	}
	if _, ok := out.GetFields()["refreshToken"]; ok {
		t.Fatal("refreshToken must be absent")
	}
}

func TestRecoveryAndChange_EmptyResponse(t *testing.T) {
	fa := &fakeAuth{}
	client := NewAuthServiceClient(startServer(t, fa))
	ctx := context.Background()

	out, err := client.Call(ctx, MethodSendRecoveryEmail, map[string]any{"email": "a@b.com", "passwordChangeInterfacePath": "https://app/reset"})
	if err != nil {
		t.Fatalf("SendRecoveryEmail: %v", err)
	}
	if len(out.GetFields()) != 0 || fa.gotPath != "https://app/reset" {
		t.Fatalf("unexpected: out=%v path=%q", out, fa.gotPath)
	}

	if _, err := client.Call(ctx, MethodChangePassword, map[string]any{"token": "t", "password": "newpassword"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if fa.gotToken != "t" || fa.gotPassword != "newpassword" {
		t.Fatalf("engine got %q/%q", fa.gotToken, fa.gotPassword)
	}
}

func TestErrors_MapToCodes(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
		msg  string
	}{
		{&services.Error{Kind: services.KindMissingData, Message: "missing data"}, codes.InvalidArgument, "missing data"},
		{&services.Error{Kind: services.KindBadRequest, Message: "malformed token"}, codes.InvalidArgument, "malformed token"},
		{&services.Error{Kind: services.KindPolicyViolation, Message: "password too long"}, codes.InvalidArgument, "password too long"},
		{&services.Error{Kind: services.KindUnauthorized, Message: "invalid credentials"}, codes.Unauthenticated, "invalid credentials"},
		{&services.Error{Kind: services.KindConflict, Message: "user already exists"}, codes.AlreadyExists, "user already exists"},
		{&services.Error{Kind: services.KindNotFound, Message: "user not found"}, codes.NotFound, "user not found"},
		{&services.Error{Kind: services.KindRateLimited, Message: "too many requests"}, codes.ResourceExhausted, "too many requests"},
		{errors.New("dial tcp: refused"), codes.Internal, "unexpected error"},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			st, ok := status.FromError(toStatus(tt.err))
			if !ok {
				t.Fatalf("not a status error")
			}
			if st.Code() != tt.code || st.Message() != tt.msg {
				t.Fatalf("got %v %q, want %v %q", st.Code(), st.Message(), tt.code, tt.msg)
			}
		})
	}
}

func TestRegister_ErrorOverWire(t *testing.T) {
	fa := &fakeAuth{err: &services.Error{Kind: services.KindConflict, Message: "user already exists"}}
	client := NewAuthServiceClient(startServer(t, fa))

	_, err := client.Call(context.Background(), MethodRegister, map[string]any{"email": "a@b.com", "password": "password1"})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("code = %v, want AlreadyExists", status.Code(err))
	}
}

func TestNonStringFieldIgnored(t *testing.T) {
	fa := &fakeAuth{result: result()}
	client := NewAuthServiceClient(startServer(t, fa))

	_, err := client.Call(context.Background(), MethodRefreshToken, map[string]any{"refreshToken": 12})
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if fa.gotToken != "" {
		t.Fatalf("token = %q, want empty", fa.gotToken)
	}
}

func TestHealth_Serving(t *testing.T) {
	conn := startServer(t, &fakeAuth{})

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", resp.GetStatus())
	}
}
