package grpc

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"shop_service/internal/domain"
	"shop_service/internal/repository/memory"
	"shop_service/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/structpb"
)

const bufSize = 1024 * 1024

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type OrderServiceSuite struct {
	suite.Suite
	listener *bufconn.Listener
	server   *ggrpc.Server
	conn     *ggrpc.ClientConn
	client   *OrderServiceClient
	store    *memory.Store
	users    domain.UserUseCase
	carts    domain.CartUseCase
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s.store = memory.NewStore(logger)
	s.users = usecase.NewUserUseCase(s.store, memory.NewSessionStore(), time.Hour, logger, usecase.WithBcryptCost(bcrypt.MinCost))
	s.carts = usecase.NewCartUseCase(s.store, s.store, logger)
	orders := usecase.NewOrderUseCase(s.store, s.store, 4, logger)

	s.listener = bufconn.Listen(bufSize)
	s.server = NewServer(orders, s.users, logger)
	go func() { _ = s.server.Serve(s.listener) }()

	var err error
	s.conn, err = ggrpc.NewClient("passthrough:///bufnet",
		ggrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.listener.DialContext(ctx)
		}),
		ggrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	s.client = NewOrderServiceClient(s.conn)
}

func (s *OrderServiceSuite) TearDownTest() {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.server != nil {
		s.server.GracefulStop()
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

// customer registers a user and returns a context carrying their token plus their id.
func (s *OrderServiceSuite) customer(name string) (context.Context, string) {
	ctx := context.Background()
	user, err := s.users.RegisterUser(ctx, domain.RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "Passw0rdX",
	})
	s.Require().NoError(err)
	auth, err := s.users.AuthenticateUser(ctx, name+"@example.com", "Passw0rdX")
	s.Require().NoError(err)
	md := metadata.Pairs("authorization", "Bearer "+auth.Token)
	return metadata.NewOutgoingContext(ctx, md), user.ID
}

func (s *OrderServiceSuite) admin() context.Context {
	ctx := context.Background()
	s.Require().NoError(s.users.EnsureAdmin(ctx, "root@shop.io", "Admin1234"))
	auth, err := s.users.AuthenticateUser(ctx, "root@shop.io", "Admin1234")
	s.Require().NoError(err)
	return metadata.NewOutgoingContext(ctx, metadata.Pairs("authorization", "Bearer "+auth.Token))
}

func (s *OrderServiceSuite) product(price string, stock int) string {
	p, err := s.store.CreateProduct(context.Background(), &domain.Product{
		Name:     "Lamp",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	})
	s.Require().NoError(err)
	return p.ID
}

func (s *OrderServiceSuite) stockOf(id string) int {
	p, err := s.store.GetProduct(context.Background(), id)
	s.Require().NoError(err)
	return p.Stock
}

func (s *OrderServiceSuite) TestUnauthenticated() {
	_, err := s.client.PlaceOrder(context.Background())
	s.Equal(codes.Unauthenticated, status.Code(err))

	md := metadata.Pairs("authorization", "Bearer nope")
	_, err = s.client.PlaceOrder(metadata.NewOutgoingContext(context.Background(), md))
	s.Equal(codes.Unauthenticated, status.Code(err))
}

func (s *OrderServiceSuite) TestHealthNeedsNoToken() {
	resp, err := healthpb.NewHealthClient(s.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: OrderServiceName})
	s.Require().NoError(err)
	s.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func (s *OrderServiceSuite) TestPlaceGetCancel() {
	ctx, userID := s.customer("alice")
	lamp := s.product("12.25", 3)
	_, err := s.carts.AddItem(context.Background(), userID, lamp, 2)
	s.Require().NoError(err)

	placed, err := s.client.PlaceOrder(ctx)
	s.Require().NoError(err)
	fields := placed.GetFields()
	s.Equal(24.5, fields["total_price"].GetNumberValue())
	s.Equal(string(domain.StatusPending), fields["status"].GetStringValue())
	s.Equal(userID, fields["user_id"].GetStringValue())
	s.Require().Len(fields["product_ids"].GetListValue().GetValues(), 1)
	s.Equal(1, s.stockOf(lamp))

	orderID := fields["id"].GetStringValue()
	got, err := s.client.GetOrder(ctx, orderID)
	s.Require().NoError(err)
	s.Equal(orderID, got.GetFields()["id"].GetStringValue())

	otherCtx, _ := s.customer("bob")
	_, err = s.client.GetOrder(otherCtx, orderID)
	s.Equal(codes.NotFound, status.Code(err))

	listed, err := s.client.ListOrders(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue("pending"),
	}})
	s.Require().NoError(err)
	s.Len(listed.GetFields()["orders"].GetListValue().GetValues(), 1)

	cancelled, err := s.client.CancelOrder(ctx, orderID)
	s.Require().NoError(err)
	s.Equal(string(domain.StatusCancelled), cancelled.GetFields()["status"].GetStringValue())
	s.Equal(3, s.stockOf(lamp))

	_, err = s.client.CancelOrder(ctx, orderID)
	s.Equal(codes.FailedPrecondition, status.Code(err))
}

func (s *OrderServiceSuite) TestEmptyCart() {
	ctx, _ := s.customer("carol")
	_, err := s.client.PlaceOrder(ctx)
	s.Equal(codes.FailedPrecondition, status.Code(err))
}

func (s *OrderServiceSuite) TestLastUnitRace() {
	lamp := s.product("5.00", 1)
	ctxA, userA := s.customer("dave")
	ctxB, userB := s.customer("erin")
	for _, id := range []string{userA, userB} {
		_, err := s.carts.AddItem(context.Background(), id, lamp, 1)
		s.Require().NoError(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, ctx := range []context.Context{ctxA, ctxB} {
		wg.Add(1)
		go func(i int, ctx context.Context) {
			defer wg.Done()
			_, errs[i] = s.client.PlaceOrder(ctx)
		}(i, ctx)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch status.Code(err) {
		case codes.OK:
			won++
		case codes.FailedPrecondition:
			lost++
		}
	}
	s.Equal(1, won)
	s.Equal(1, lost)
	s.Equal(0, s.stockOf(lamp))
}

func (s *OrderServiceSuite) TestListAllOrdersIsAdminOnly() {
	lamp := s.product("2.00", 5)
	ctxA, userA := s.customer("fay")
	ctxB, userB := s.customer("gus")
	for _, c := range []struct {
		ctx    context.Context
		userID string
	}{{ctxA, userA}, {ctxB, userB}, {ctxB, userB}} {
		_, err := s.carts.AddItem(context.Background(), c.userID, lamp, 1)
		s.Require().NoError(err)
		_, err = s.client.PlaceOrder(c.ctx)
		s.Require().NoError(err)
	}

	_, err := s.client.ListAllOrders(ctxA, nil)
	s.Equal(codes.PermissionDenied, status.Code(err))

	admin := s.admin()
	all, err := s.client.ListAllOrders(admin, nil)
	s.Require().NoError(err)
	s.Len(all.GetFields()["orders"].GetListValue().GetValues(), 3)

	mine, err := s.client.ListAllOrders(admin, &structpb.Struct{Fields: map[string]*structpb.Value{
		"user_id": structpb.NewStringValue(userB),
		"status":  structpb.NewStringValue("pending"),
	}})
	s.Require().NoError(err)
	orders := mine.GetFields()["orders"].GetListValue().GetValues()
	s.Require().Len(orders, 2)
	for _, o := range orders {
		s.Equal(userB, o.GetStructValue().GetFields()["user_id"].GetStringValue())
	}

	_, err = s.client.ListAllOrders(admin, &structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue("lost"),
	}})
	s.Equal(codes.InvalidArgument, status.Code(err))
}

func TestOrderServiceDescriptorIsRegistered(t *testing.T) {
	file, err := protoregistry.GlobalFiles.FindFileByPath(OrderServiceDesc.Metadata.(string))
	require.NoError(t, err)
	assert.Equal(t, protoreflect.FullName("shop.v1"), file.Package())

	desc, err := protoregistry.GlobalFiles.FindDescriptorByName(OrderServiceName)
	require.NoError(t, err)
	service, ok := desc.(protoreflect.ServiceDescriptor)
	require.True(t, ok)

	methods := service.Methods()
	require.Equal(t, len(OrderServiceDesc.Methods), methods.Len())
	for _, m := range OrderServiceDesc.Methods {
		md := methods.ByName(protoreflect.Name(m.MethodName))
		require.NotNil(t, md, m.MethodName)
		assert.Equal(t, protoreflect.FullName("google.protobuf.Struct"), md.Output().FullName())
	}
	assert.Equal(t, protoreflect.FullName("google.protobuf.Empty"), methods.ByName("PlaceOrder").Input().FullName())
	assert.Equal(t, protoreflect.FullName("google.protobuf.StringValue"), methods.ByName("CancelOrder").Input().FullName())
}

func TestMapDomainErrorToGrpcStatus(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{domain.ErrEmptyCart, codes.FailedPrecondition},
		{&domain.InsufficientStockError{ProductID: "p", Requested: 3, Available: 1}, codes.FailedPrecondition},
		{domain.ErrProductNotFound, codes.NotFound},
		{domain.ErrCartChanged, codes.Aborted},
		{domain.ErrCategoryNotFound, codes.NotFound},
		{domain.ErrCategoryExists, codes.AlreadyExists},
		{domain.ErrCategoryInUse, codes.FailedPrecondition},
		{domain.InvalidInput("bad"), codes.InvalidArgument},
		{domain.ErrUnauthorized, codes.Unauthenticated},
		{domain.ErrForbidden, codes.PermissionDenied},
		{domain.NewPersistenceError("insert order", io.ErrUnexpectedEOF), codes.Unavailable},
		{io.ErrUnexpectedEOF, codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, status.Code(mapDomainErrorToGrpcStatus(tc.err)), tc.err.Error())
	}
}
