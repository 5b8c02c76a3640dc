package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sso/internal/common"
	"github.com/dmitrijs2005/sso/internal/logging"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// requestInterceptor attaches a request id (taken from x-request-id
// metadata or generated) to the context, returns it in the response header
// and logs the call outcome.
func (s *GRPCServer) requestInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.RequestIDHeaderName); len(values) > 0 && len(values[0]) <= 128 {
			id = values[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx = logging.WithRequestID(ctx, id)
	_ = grpc.SetHeader(ctx, metadata.Pairs(common.RequestIDHeaderName, id))

	start := time.Now()
	resp, err := handler(ctx, req)

	s.logger.Info(ctx, "rpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}
