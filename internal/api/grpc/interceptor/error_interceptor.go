package interceptor

import (
	"context"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	api "toolshed-backend/internal/api/grpc"
	"toolshed-backend/internal/logger"
)

// ErrorInterceptor logs every unary call, turns panics into Internal and
// maps service errors onto gRPC status codes.
type ErrorInterceptor struct{}

func NewErrorInterceptor() *ErrorInterceptor {
	return &ErrorInterceptor{}
}

// Unary returns the server interceptor function
func (i *ErrorInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		start := time.Now()
		log := logger.WithMethod(info.FullMethod)
		if userID, idErr := api.GetUserIDFromContext(ctx); idErr == nil {
			log = log.With("user_id", userID)
		}
		defer func() {
			if r := recover(); r != nil {
				log.ErrorContext(ctx, "Handler panicked", "panic", r, "stack", string(debug.Stack()))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()

		resp, err = handler(ctx, req)
		if err != nil {
			err = api.ToStatus(err)
			code := status.Code(err)
			if code == codes.Internal || code == codes.Unavailable {
				log.ErrorContext(ctx, "RPC failed", "code", code.String(), "duration", time.Since(start), "error", err)
			} else {
				log.DebugContext(ctx, "RPC rejected", "code", code.String(), "error", err)
			}
			return nil, err
		}
		log.DebugContext(ctx, "RPC completed", "duration", time.Since(start))
		return resp, nil
	}
}
