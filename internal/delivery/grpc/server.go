package grpc

import (
	"shop_service/internal/domain"

	"github.com/sirupsen/logrus"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer builds a gRPC server exposing the order service, health checks and reflection.
func NewServer(orders domain.OrderUseCase, users domain.UserUseCase, logger *logrus.Logger, opts ...ggrpc.ServerOption) *ggrpc.Server {
	opts = append(opts, ggrpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		AuthInterceptor(users, logger),
	))
	server := ggrpc.NewServer(opts...)

	RegisterOrderServiceServer(server, NewOrderHandler(orders, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(OrderServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)
	logger.Info("gRPC order, health and reflection services registered")
	return server
}
