package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop_service/config"
	"shop_service/internal/delivery"
	grpcHandler "shop_service/internal/delivery/grpc"
	"shop_service/internal/domain"
	"shop_service/internal/repository/compensating"
	"shop_service/internal/repository/memory"
	"shop_service/internal/repository/mongodb"
	"shop_service/internal/repository/postgres"
	"shop_service/internal/repository/redisstore"
	"shop_service/internal/usecase"
	"shop_service/pkg/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// storage is what the selected backend hands to the use cases.
type storage struct {
	store      domain.Store
	users      domain.UserRepository
	categories domain.CategoryRepository
	tx         domain.Transactor
	sessions   domain.SessionStore
	// reconciler is set when the backend compensates instead of using native transactions.
	reconciler *compensating.Transactor
	closers    []func(context.Context) error
}

type fullStore interface {
	domain.Store
	domain.UserRepository
	domain.CategoryRepository
}

func main() {
	logger := setupLogger("info", "text")

	cfg := config.LoadConfig(logger)
	logger = setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Infof("Starting Shop Service with %s storage...", cfg.StorageBackend)

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := openStorage(startupCtx, cfg, logger)
	if err != nil {
		cancel()
		logger.Fatalf("Failed to initialise storage: %v", err)
	}

	userUseCase := usecase.NewUserUseCase(st.users, st.sessions, cfg.SessionTTL, logger)
	if cfg.AdminEmail != "" {
		if err := userUseCase.EnsureAdmin(startupCtx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			cancel()
			logger.Fatalf("Failed to bootstrap admin account: %v", err)
		}
	}
	cancel()

	categoryUseCase := usecase.NewCategoryUseCase(st.categories, st.store, logger)
	productUseCase := usecase.NewProductUseCase(st.store, st.categories, logger)
	cartUseCase := usecase.NewCartUseCase(st.store, st.tx, logger)
	orderUseCase := usecase.NewOrderUseCase(st.store, st.tx, cfg.PlaceOrderFanout, logger)
	logger.Info("Use cases initialized.")

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := delivery.NewRouter(delivery.UseCases{
		Users:      userUseCase,
		Products:   productUseCase,
		Categories: categoryUseCase,
		Carts:      cartUseCase,
		Orders:     orderUseCase,
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GrpcPort)
	if err != nil {
		logger.Fatalf("Failed to listen on port %s: %v", cfg.GrpcPort, err)
	}
	grpcServer := grpcHandler.NewServer(orderUseCase, userUseCase, logger)

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()
	go func() {
		logger.Infof("gRPC server listening on %s", cfg.GrpcPort)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		if st.reconciler != nil {
			runReconciler(reconcileCtx, st.reconciler, cfg.ReconcileInterval, logger)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Warn("Shutdown signal received...")
	stopReconcile()
	<-reconcileDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server forced to shut down: %v", err)
	}
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("gRPC graceful stop timed out, forcing stop")
		grpcServer.Stop()
	}

	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](shutdownCtx); err != nil {
			logger.Errorf("Error closing storage connection: %v", err)
		}
	}
	logger.Info("Shop Service shut down gracefully.")
}

func openStorage(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*storage, error) {
	st := &storage{}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := db.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		redisClient = client
		st.closers = append(st.closers, func(context.Context) error { return client.Close() })
		st.sessions = redisstore.NewSessionStore(client)
		logger.Info("Sessions stored in Redis.")
	} else {
		st.sessions = memory.NewSessionStore()
		logger.Warn("REDIS_URL not set, sessions are kept in process memory")
	}

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		database, err := db.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) error { return database.Close() })
		if err := db.Migrate(ctx, database); err != nil {
			return nil, err
		}
		logger.Info("Database connection established and schema migrated.")
		pg := postgres.NewStore(database, logger)
		st.setStore(pg)
		st.tx = pg

	case config.BackendMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, client.Disconnect)
		mg := mongodb.NewStore(client.Database(cfg.MongoDatabase), logger)
		if err := mg.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		st.setStore(mg)

		var journal compensating.Journal
		if redisClient != nil {
			journal = redisstore.NewJournal(redisClient, cfg.JournalLeaseTTL)
		} else {
			logger.Warn("REDIS_URL not set, the compensation journal does not survive restarts")
			journal = compensating.NewMemoryJournal(cfg.JournalLeaseTTL)
		}
		tx := compensating.NewTransactor(mg, journal, logger,
			compensating.WithIDGenerator(mongodb.NewID),
			compensating.WithLeaseRenewal(cfg.JournalLeaseTTL/3))
		if err := tx.Reconcile(ctx); err != nil {
			return nil, fmt.Errorf("failed to reconcile pending transactions: %w", err)
		}
		st.tx = tx
		st.reconciler = tx
		logger.Infof("MongoDB database %q ready.", cfg.MongoDatabase)

	case config.BackendMemory:
		mem := memory.NewStore(logger)
		st.setStore(mem)
		st.tx = mem
		logger.Warn("Using in-memory storage, data is lost on restart")

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	return st, nil
}

func (st *storage) setStore(s fullStore) {
	st.store = s
	st.users = s
	st.categories = s
}

// runReconciler compensates transactions abandoned by crashed processes until ctx is done.
func runReconciler(ctx context.Context, tx *compensating.Transactor, every time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tx.Reconcile(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("Failed to reconcile pending transactions: %v", err)
			}
		}
	}
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	logger.SetOutput(os.Stdout)

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level '%s', using default 'info'. Error: %v", level, err)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}
