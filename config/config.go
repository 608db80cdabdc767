package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

type Config struct {
	StorageBackend    string        `envconfig:"STORAGE_BACKEND"    default:"postgres"`
	DatabaseURL       string        `envconfig:"DATABASE_URL"`
	MongoURL          string        `envconfig:"MONGO_URL"`
	MongoDatabase     string        `envconfig:"MONGO_DATABASE"     default:"shop"`
	RedisURL          string        `envconfig:"REDIS_URL"`
	HTTPPort          string        `envconfig:"HTTP_PORT"          default:":8080"`
	GrpcPort          string        `envconfig:"GRPC_PORT"          default:":50051"`
	LogLevel          string        `envconfig:"LOG_LEVEL"          default:"info"`
	LogFormat         string        `envconfig:"LOG_FORMAT"         default:"text"`
	SessionTTL        time.Duration `envconfig:"SESSION_TTL"        default:"24h"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT"   default:"10s"`
	PlaceOrderFanout  int           `envconfig:"PLACE_ORDER_FANOUT" default:"8"`
	// JournalLeaseTTL bounds how long a crashed process keeps its unfinished
	// Mongo transactions out of reach of the reconciler.
	JournalLeaseTTL   time.Duration `envconfig:"JOURNAL_LEASE_TTL"  default:"30s"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m"`
	AdminEmail        string        `envconfig:"ADMIN_EMAIL"`
	AdminPassword     string        `envconfig:"ADMIN_PASSWORD"`
}

var (
	config Config
	once   sync.Once
)

func LoadConfig(logger *logrus.Logger) *Config {
	once.Do(func() {
		err := godotenv.Load()
		if err != nil && !os.IsNotExist(err) {
			logger.Warnf("Error loading .env file (but continuing): %v", err)
		} else if err == nil {
			logger.Info("Loaded configuration from .env file")
		}

		cfg, err := Process()
		if err != nil {
			logger.Fatalf("Configuration error: %v", err)
		}
		config = *cfg

		logger.Infof("Configuration loaded: Backend=%s, HTTP Port=%s, GRPC Port=%s, LogLevel=%s, Redis=%t",
			config.StorageBackend, config.HTTPPort, config.GrpcPort, config.LogLevel, config.RedisURL != "")
	})
	return &config
}

// Process reads the environment without the .env file or the sync.Once.
func Process() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration from environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", c.StorageBackend)
		}
	case BackendMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGO_URL is required for the %s backend", c.StorageBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (expected postgres, mongo or memory)", c.StorageBackend)
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if c.StorageBackend == BackendMongo && (c.JournalLeaseTTL <= 0 || c.ReconcileInterval <= 0) {
		return fmt.Errorf("JOURNAL_LEASE_TTL and RECONCILE_INTERVAL must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}
