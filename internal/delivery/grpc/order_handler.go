package grpc

import (
	"context"
	"time"

	"shop_service/internal/domain"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type OrderHandler struct {
	useCase domain.OrderUseCase
	log     *logrus.Logger
}

var _ OrderServiceServer = (*OrderHandler)(nil)

func NewOrderHandler(uc domain.OrderUseCase, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{
		useCase: uc,
		log:     logger,
	}
}

func summaryToStruct(summary *domain.OrderSummary) (*structpb.Struct, error) {
	productIDs := make([]interface{}, 0, len(summary.ProductIDs))
	for _, id := range summary.ProductIDs {
		productIDs = append(productIDs, id)
	}
	items := make([]interface{}, 0, len(summary.Items))
	for _, item := range summary.Items {
		items = append(items, map[string]interface{}{
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"id":          summary.ID,
		"user_id":     summary.UserID,
		"product_ids": productIDs,
		"items":       items,
		"total_price": summary.TotalPrice,
		"status":      string(summary.Status),
		"created_at":  summary.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (h *OrderHandler) respond(order *domain.Order) (*structpb.Struct, error) {
	out, err := summaryToStruct(order.Summary())
	if err != nil {
		h.log.Errorf("gRPC Handler: Failed to encode order %s: %v", order.ID, err)
		return nil, status.Error(codes.Internal, "failed to encode order")
	}
	return out, nil
}

func (h *OrderHandler) PlaceOrder(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	user, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	h.log.Infof("gRPC Handler: Received PlaceOrder request for UserID: %s", user.ID)

	summary, err := h.useCase.PlaceOrder(ctx, user.ID)
	if err != nil {
		h.log.Warnf("gRPC Handler: PlaceOrder use case error for UserID %s: %v", user.ID, err)
		return nil, mapDomainErrorToGrpcStatus(err)
	}

	out, err := summaryToStruct(summary)
	if err != nil {
		h.log.Errorf("gRPC Handler: Failed to encode order %s: %v", summary.ID, err)
		return nil, status.Error(codes.Internal, "failed to encode order")
	}
	h.log.Infof("gRPC Handler: Order placed successfully: OrderID=%s for UserID=%s", summary.ID, user.ID)
	return out, nil
}

func (h *OrderHandler) GetOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	user, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	orderID := req.GetValue()
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "Invalid Order ID")
	}

	order, err := h.useCase.GetOrder(ctx, user.ID, orderID)
	if err != nil {
		h.log.Warnf("gRPC Handler: GetOrder use case error for OrderID %s: %v", orderID, err)
		return nil, mapDomainErrorToGrpcStatus(err)
	}
	return h.respond(order)
}

func (h *OrderHandler) ListOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	filter := filterFromStruct(req)
	h.log.Infof("gRPC Handler: Received ListOrders request for UserID: %s, Limit: %d, Offset: %d", user.ID, filter.Limit, filter.Offset)

	orders, err := h.useCase.ListOrdersByUserID(ctx, user.ID, filter)
	if err != nil {
		h.log.Errorf("gRPC Handler: ListOrdersByUserID use case error for UserID %s: %v", user.ID, err)
		return nil, mapDomainErrorToGrpcStatus(err)
	}
	return h.respondList(orders)
}

func (h *OrderHandler) ListAllOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if user.Role != domain.RoleAdmin {
		h.log.Warnf("gRPC Handler: ListAllOrders denied for UserID: %s", user.ID)
		return nil, status.Error(codes.PermissionDenied, "admin privileges required")
	}
	filter := filterFromStruct(req)
	filter.UserID = req.GetFields()["user_id"].GetStringValue()

	orders, err := h.useCase.ListAllOrders(ctx, filter)
	if err != nil {
		h.log.Errorf("gRPC Handler: ListAllOrders use case error: %v", err)
		return nil, mapDomainErrorToGrpcStatus(err)
	}
	return h.respondList(orders)
}

func filterFromStruct(req *structpb.Struct) domain.OrderFilter {
	fields := req.GetFields()
	return domain.OrderFilter{
		Status: domain.OrderStatus(fields["status"].GetStringValue()),
		Limit:  int(fields["limit"].GetNumberValue()),
		Offset: int(fields["offset"].GetNumberValue()),
	}
}

func (h *OrderHandler) respondList(orders []domain.Order) (*structpb.Struct, error) {
	list := make([]*structpb.Value, 0, len(orders))
	for i := range orders {
		encoded, err := h.respond(&orders[i])
		if err != nil {
			return nil, err
		}
		list = append(list, structpb.NewStructValue(encoded))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"orders": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}, nil
}

func (h *OrderHandler) CancelOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	user, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	orderID := req.GetValue()
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "Invalid Order ID")
	}
	h.log.Infof("gRPC Handler: Received CancelOrder request for OrderID: %s by UserID: %s", orderID, user.ID)

	order, err := h.useCase.CancelOrder(ctx, user.ID, orderID)
	if err != nil {
		h.log.Warnf("gRPC Handler: CancelOrder use case error for OrderID %s: %v", orderID, err)
		return nil, mapDomainErrorToGrpcStatus(err)
	}
	return h.respond(order)
}
