package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 0.50, cfg.Decision.Threshold)
	assert.Equal(t, 4, cfg.Decision.TopK)
	assert.Equal(t, StoreBackendPostgres, cfg.Store.Backend)
	assert.Equal(t, ClassifierBackendGRPC, cfg.Classifier.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ResultTTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPEN_SET_THRESHOLD", "0.65")
	t.Setenv("TOP_K", "3")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("CLASSIFIER_BACKEND", "onnx")
	t.Setenv("RESULT_CACHE_TTL", "90s")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.65, cfg.Decision.Threshold)
	assert.Equal(t, 3, cfg.Decision.TopK)
	assert.Equal(t, StoreBackendMemory, cfg.Store.Backend)
	assert.Equal(t, ClassifierBackendONNX, cfg.Classifier.Backend)
	assert.Equal(t, 90*time.Second, cfg.Cache.ResultTTL)
}

func TestValidateBoundaries(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Decision.Threshold = 0
	assert.NoError(t, cfg.Validate())
	cfg.Decision.Threshold = 1
	assert.NoError(t, cfg.Validate())
	cfg.Decision.TopK = MaxTopK
	assert.NoError(t, cfg.Validate())
	cfg.Decision.TopK = MaxTopK + 1
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, env := range map[string][2]string{
		"threshold above one": {"OPEN_SET_THRESHOLD", "1.5"},
		"negative threshold":  {"OPEN_SET_THRESHOLD", "-0.1"},
		"malformed threshold": {"OPEN_SET_THRESHOLD", "0.5x"},
		"nan threshold":       {"OPEN_SET_THRESHOLD", "NaN"},
		"zero top k":          {"TOP_K", "0"},
		"huge top k":          {"TOP_K", "1000000"},
		"malformed top k":     {"TOP_K", "four"},
		"malformed upload":    {"MAX_UPLOAD_BYTES", "10MB"},
		"zero upload":         {"MAX_UPLOAD_BYTES", "0"},
		"store backend":       {"STORE_BACKEND", "mysql"},
		"classifier backend":  {"CLASSIFIER_BACKEND", "tensorflow"},
		"bad duration":        {"SHUTDOWN_TIMEOUT", "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
