package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Logger     LoggerConfig
	Decision   DecisionConfig
	Store      StoreConfig
	Cache      CacheConfig
	Classifier ClassifierConfig
	Images     ImagesConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

type LoggerConfig struct {
	Level string
}

type DecisionConfig struct {
	// Threshold is the open-set cutoff in [0,1]. It is tuned empirically
	// against observed predictions.
	Threshold   float64
	TopK        int
	CatalogFile string
}

type StoreConfig struct {
	Backend string
	DSN     string
}

type CacheConfig struct {
	RedisAddr string
	ResultTTL time.Duration
}

type ClassifierConfig struct {
	Backend      string
	Addr         string
	ModelPath    string
	MetadataPath string
	LibraryPath  string
}

type ImagesConfig struct {
	Dir string
}

type AuthConfig struct {
	JWTSecret   string
	JWTAudience string
	JWTIssuer   string
}

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	ClassifierBackendGRPC = "grpc"
	ClassifierBackendONNX = "onnx"

	// MaxTopK bounds the alternatives rendered per result.
	MaxTopK = 100
)

// Load reads configuration from the environment.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	// Defaults
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OPEN_SET_THRESHOLD", 0.50)
	v.SetDefault("TOP_K", 4)
	v.SetDefault("CATALOG_FILE", "")
	v.SetDefault("STORE_BACKEND", StoreBackendPostgres)
	v.SetDefault("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=dermscan port=5432 sslmode=disable")
	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("RESULT_CACHE_TTL", "5m")
	v.SetDefault("CLASSIFIER_BACKEND", ClassifierBackendGRPC)
	v.SetDefault("CLASSIFIER_ADDR", "classifier:50051")
	v.SetDefault("ONNX_MODEL_PATH", "models/model.onnx")
	v.SetDefault("ONNX_METADATA_PATH", "models/model_metadata.json")
	v.SetDefault("ONNX_LIBRARY_PATH", "")
	v.SetDefault("IMAGE_DIR", "static/images")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_ISSUER", "")

	// Env
	v.AutomaticEnv()

	shutdown, err := time.ParseDuration(v.GetString("SHUTDOWN_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	ttl, err := time.ParseDuration(v.GetString("RESULT_CACHE_TTL"))
	if err != nil {
		return nil, fmt.Errorf("RESULT_CACHE_TTL: %w", err)
	}
	threshold, err := cast.ToFloat64E(v.Get("OPEN_SET_THRESHOLD"))
	if err != nil {
		return nil, fmt.Errorf("OPEN_SET_THRESHOLD: %w", err)
	}
	topK, err := cast.ToIntE(v.Get("TOP_K"))
	if err != nil {
		return nil, fmt.Errorf("TOP_K: %w", err)
	}
	maxUpload, err := cast.ToInt64E(v.Get("MAX_UPLOAD_BYTES"))
	if err != nil {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            v.GetString("HTTP_ADDR"),
			ShutdownTimeout: shutdown,
			MaxUploadBytes:  maxUpload,
		},
		Logger: LoggerConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Decision: DecisionConfig{
			Threshold:   threshold,
			TopK:        topK,
			CatalogFile: v.GetString("CATALOG_FILE"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(v.GetString("STORE_BACKEND")),
			DSN:     v.GetString("DATABASE_DSN"),
		},
		Cache: CacheConfig{
			RedisAddr: v.GetString("REDIS_ADDR"),
			ResultTTL: ttl,
		},
		Classifier: ClassifierConfig{
			Backend:      strings.ToLower(v.GetString("CLASSIFIER_BACKEND")),
			Addr:         v.GetString("CLASSIFIER_ADDR"),
			ModelPath:    v.GetString("ONNX_MODEL_PATH"),
			MetadataPath: v.GetString("ONNX_METADATA_PATH"),
			LibraryPath:  v.GetString("ONNX_LIBRARY_PATH"),
		},
		Images: ImagesConfig{
			Dir: v.GetString("IMAGE_DIR"),
		},
		Auth: AuthConfig{
			JWTSecret:   v.GetString("JWT_SECRET"),
			JWTAudience: v.GetString("JWT_AUDIENCE"),
			JWTIssuer:   v.GetString("JWT_ISSUER"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	if math.IsNaN(c.Decision.Threshold) || c.Decision.Threshold < 0 || c.Decision.Threshold > 1 {
		return fmt.Errorf("OPEN_SET_THRESHOLD must be within [0,1], got %v", c.Decision.Threshold)
	}
	if c.Decision.TopK < 1 || c.Decision.TopK > MaxTopK {
		return fmt.Errorf("TOP_K must be within [1,%d], got %d", MaxTopK, c.Decision.TopK)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}
	switch c.Store.Backend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Classifier.Backend {
	case ClassifierBackendGRPC, ClassifierBackendONNX:
	default:
		return fmt.Errorf("unknown CLASSIFIER_BACKEND %q", c.Classifier.Backend)
	}
	return nil
}
