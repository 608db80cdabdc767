package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDefaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, err := Process()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPPort)
	assert.Equal(t, ":50051", cfg.GrpcPort)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 8, cfg.PlaceOrderFanout)
	assert.Equal(t, "shop", cfg.MongoDatabase)
	assert.Equal(t, 30*time.Second, cfg.JournalLeaseTTL)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		cfg     Config
		wantErr bool
	}{
		"postgres without url": {Config{StorageBackend: BackendPostgres, SessionTTL: time.Hour}, true},
		"postgres with url":    {Config{StorageBackend: BackendPostgres, DatabaseURL: "postgres://x", SessionTTL: time.Hour}, false},
		"mongo without url":    {Config{StorageBackend: BackendMongo, SessionTTL: time.Hour}, true},
		"mongo without lease":  {Config{StorageBackend: BackendMongo, MongoURL: "mongodb://x", SessionTTL: time.Hour, ReconcileInterval: time.Minute}, true},
		"mongo":                {Config{StorageBackend: BackendMongo, MongoURL: "mongodb://x", SessionTTL: time.Hour, JournalLeaseTTL: time.Second, ReconcileInterval: time.Minute}, false},
		"unknown backend":      {Config{StorageBackend: "sqlite", SessionTTL: time.Hour}, true},
		"half admin":           {Config{StorageBackend: BackendMemory, AdminEmail: "a@b.io", SessionTTL: time.Hour}, true},
		"memory":               {Config{StorageBackend: BackendMemory, SessionTTL: time.Hour}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
