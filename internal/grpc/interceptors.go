package grpc

import (
	"context"
	"fmt"
	"time"

	"simple-chat/internal/platform/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDMetadata = "x-request-id"

// RecoveryInterceptor 捕捉 handler 的 panic, 回傳 Internal.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Critical(ctx, "gRPC panic recovered",
					logger.WithAction(info.FullMethod),
					logger.WithDetails(map[string]any{"panic": fmt.Sprint(r)}))
				resp, err = nil, status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor 記錄每次呼叫, 並以 x-request-id 作為 trace ID.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		traceID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(requestIDMetadata); len(v) > 0 {
				traceID = v[0]
			}
		}
		if traceID == "" {
			traceID = logger.NewTraceID()
		}
		ctx = logger.WithTraceID(ctx, traceID)

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		opts := []logger.LogOption{
			logger.WithAction(info.FullMethod),
			logger.WithDetails(map[string]any{
				"code":     code.String(),
				"duration": time.Since(start).String(),
			}),
		}
		switch code {
		case codes.OK:
			logger.Info(ctx, "gRPC call", opts...)
		case codes.Internal, codes.Unavailable, codes.Unknown:
			logger.Error(ctx, "gRPC call failed", append(opts, logger.WithError(err))...)
		default:
			logger.Warning(ctx, "gRPC call rejected", append(opts, logger.WithError(err))...)
		}
		return resp, err
	}
}
