package grpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GetUserIDFromContext extracts the user ID from the gRPC metadata.
// It expects a header named "user-id" injected by the edge gateway.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, status.Errorf(codes.Unauthenticated, "metadata is not provided")
	}

	userIDs := md.Get("user-id")
	if len(userIDs) == 0 {
		return 0, status.Errorf(codes.Unauthenticated, "user_id is not provided in metadata")
	}

	userID, err := strconv.ParseInt(userIDs[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, status.Errorf(codes.InvalidArgument, "invalid user_id format: %q", userIDs[0])
	}

	return userID, nil
}
