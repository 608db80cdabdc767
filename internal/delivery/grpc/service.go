package grpc

import (
	"context"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The order service exchanges well-known protobuf types so that no generated
// code is needed. Orders travel as google.protobuf.Struct. The matching file
// descriptor is built and registered in descriptor.go.
const (
	OrderServiceName = "shop.v1.OrderService"

	PlaceOrderMethod  = "/shop.v1.OrderService/PlaceOrder"
	GetOrderMethod    = "/shop.v1.OrderService/GetOrder"
	ListOrdersMethod  = "/shop.v1.OrderService/ListOrders"
	CancelOrderMethod = "/shop.v1.OrderService/CancelOrder"

	ListAllOrdersMethod = "/shop.v1.OrderService/ListAllOrders"
)

type OrderServiceServer interface {
	PlaceOrder(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetOrder(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// ListOrders accepts optional "status", "limit" and "offset" fields.
	ListOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// ListAllOrders is admin only and also accepts "user_id".
	ListAllOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterOrderServiceServer(s ggrpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

var OrderServiceDesc = ggrpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []ggrpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
		{MethodName: "GetOrder", Handler: getOrderHandler},
		{MethodName: "ListOrders", Handler: listOrdersHandler},
		{MethodName: "CancelOrder", Handler: cancelOrderHandler},
		{MethodName: "ListAllOrders", Handler: listAllOrdersHandler},
	},
	Streams:  []ggrpc.StreamDesc{},
	Metadata: "shop/v1/order.proto",
}

func placeOrderHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor ggrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).PlaceOrder(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: PlaceOrderMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderServiceServer).PlaceOrder(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor ggrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).GetOrder(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: GetOrderMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderServiceServer).GetOrder(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listOrdersHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor ggrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).ListOrders(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: ListOrdersMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderServiceServer).ListOrders(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelOrderHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor ggrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).CancelOrder(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: CancelOrderMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderServiceServer).CancelOrder(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listAllOrdersHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor ggrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).ListAllOrders(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: ListAllOrdersMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderServiceServer).ListAllOrders(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// OrderServiceClient is the client side of OrderServiceDesc.
type OrderServiceClient struct {
	cc ggrpc.ClientConnInterface
}

func NewOrderServiceClient(cc ggrpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, opts ...ggrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PlaceOrderMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, orderID string, opts ...ggrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetOrderMethod, wrapperspb.String(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, req *structpb.Struct, opts ...ggrpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListOrdersMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) CancelOrder(ctx context.Context, orderID string, opts ...ggrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CancelOrderMethod, wrapperspb.String(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) ListAllOrders(ctx context.Context, req *structpb.Struct, opts ...ggrpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListAllOrdersMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
