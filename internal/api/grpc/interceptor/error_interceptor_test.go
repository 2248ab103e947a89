package interceptor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
)

func TestErrorInterceptor_Unary(t *testing.T) {
	unary := NewErrorInterceptor().Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "/toolshed.v1.DisputeService/Resolve"}

	t.Run("Maps service error", func(t *testing.T) {
		_, err := unary(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, domain.ErrDuplicateActive
		})
		assert.Equal(t, codes.AlreadyExists, status.Code(err))
	})

	t.Run("Recovers panic", func(t *testing.T) {
		resp, err := unary(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			panic("nil booking")
		})
		assert.Nil(t, resp)
		assert.Equal(t, codes.Internal, status.Code(err))
	})

	t.Run("Passes response through", func(t *testing.T) {
		resp, err := unary(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return "ok", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})
}

func TestErrorInterceptor_LogsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Initialize("debug", "json")
	t.Cleanup(func() {
		logger.SetOutput(os.Stdout)
		logger.Initialize("info", "text")
	})

	unary := NewErrorInterceptor().Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "/toolshed.v1.BookingService/CancelBooking"}
	failing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, errors.New("connection reset")
	}

	t.Run("With user id", func(t *testing.T) {
		buf.Reset()
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("user-id", "20"))
		_, err := unary(ctx, nil, info, failing)
		assert.Equal(t, codes.Internal, status.Code(err))
		assert.Contains(t, buf.String(), `"method":"/toolshed.v1.BookingService/CancelBooking"`)
		assert.Contains(t, buf.String(), `"user_id":20`)
		assert.Contains(t, buf.String(), `"msg":"RPC failed"`)
	})

	t.Run("Anonymous call", func(t *testing.T) {
		buf.Reset()
		_, err := unary(context.Background(), nil, info, failing)
		assert.Equal(t, codes.Internal, status.Code(err))
		assert.Contains(t, buf.String(), `"msg":"RPC failed"`)
		assert.NotContains(t, buf.String(), "user_id")
	})
}
