package grpc

import (
	"context"
	"strings"
	"time"

	"shop_service/internal/domain"

	"github.com/sirupsen/logrus"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type userKey struct{}

func userFromContext(ctx context.Context) (*domain.User, error) {
	user, ok := ctx.Value(userKey{}).(*domain.User)
	if !ok || user == nil {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return user, nil
}

// AuthInterceptor resolves the bearer token of order service calls.
// Health and reflection calls pass through untouched.
func AuthInterceptor(users domain.UserUseCase, log *logrus.Logger) ggrpc.UnaryServerInterceptor {
	prefix := "/" + OrderServiceName + "/"
	return func(ctx context.Context, req interface{}, info *ggrpc.UnaryServerInfo, handler ggrpc.UnaryHandler) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			log.Warnf("gRPC Handler: %s called without authorization metadata", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "authorization metadata required")
		}
		scheme, token, ok := strings.Cut(values[0], " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return nil, status.Error(codes.Unauthenticated, "invalid authorization format")
		}

		user, err := users.ResolveToken(ctx, strings.TrimSpace(token))
		if err != nil {
			log.Warnf("gRPC Handler: token rejected for %s: %v", info.FullMethod, err)
			return nil, mapDomainErrorToGrpcStatus(err)
		}
		return handler(context.WithValue(ctx, userKey{}, user), req)
	}
}

func LoggingInterceptor(log *logrus.Logger) ggrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *ggrpc.UnaryServerInfo, handler ggrpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		entry := log.WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"code":       code.String(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		switch code {
		case codes.OK:
			entry.Info("gRPC call completed")
		case codes.Internal, codes.Unavailable, codes.Unknown, codes.DataLoss:
			entry.Error("gRPC call failed")
		default:
			entry.Warn("gRPC call rejected")
		}
		return resp, err
	}
}
