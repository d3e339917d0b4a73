package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/dermscan/internal/auth"
	"github.com/example/dermscan/internal/catalog"
	"github.com/example/dermscan/internal/classifier"
	"github.com/example/dermscan/internal/config"
	"github.com/example/dermscan/internal/grpcclient"
	"github.com/example/dermscan/internal/handlers"
	"github.com/example/dermscan/internal/imagestore"
	"github.com/example/dermscan/internal/logging"
	"github.com/example/dermscan/internal/reference"
	"github.com/example/dermscan/internal/repository"
	"github.com/example/dermscan/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Logger.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cat, err := catalog.Load(cfg.Decision.CatalogFile)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}
	logger.Info("catalog loaded",
		zap.Int("classes", cat.Len()),
		zap.Float64("threshold", cfg.Decision.Threshold),
		zap.Int("top_k", cfg.Decision.TopK),
	)

	store := initStore(ctx, cfg.Store, logger)
	cache := initCache(ctx, cfg.Cache, logger)

	clf, classes, closeClassifier := initClassifier(ctx, cfg.Classifier, logger)
	defer closeClassifier()

	images, err := imagestore.New(cfg.Images.Dir)
	if err != nil {
		logger.Fatal("failed to prepare image directory", zap.Error(err))
	}

	uc := usecase.NewPredictionUseCase(store, images, cache, clf,
		cat.Resolver(reference.Options{}),
		usecase.Options{
			Catalog:   cat.Labels,
			Threshold: cfg.Decision.Threshold,
			TopK:      cfg.Decision.TopK,
			ResultTTL: cfg.Cache.ResultTTL,
		},
		logger)

	if classes >= 0 {
		if err := uc.ValidateCatalog(classes); err != nil {
			logger.Fatal("model does not match catalog", zap.Error(err))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestID(), handlers.RequestLogger(logger))
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	authMiddleware := auth.JWTMiddleware(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Audience: cfg.Auth.JWTAudience,
		Issuer:   cfg.Auth.JWTIssuer,
	})
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty; all prediction requests will be rejected")
	}

	handlers.RegisterRoutes(r, uc, authMiddleware, cfg.Server.MaxUploadBytes)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("dermscan API listening", zap.String("addr", cfg.Server.Addr))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) usecase.PredictionStore {
	if cfg.Backend == config.StoreBackendMemory {
		logger.Warn("using in-memory prediction store; records are lost on restart")
		return repository.NewMemoryStore()
	}

	db := initDatabase(ctx, cfg.DSN, logger)
	repo := repository.NewPredictionRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}
	return repo
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) usecase.Cache {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR is empty; result caching disabled")
		return usecase.NoopCache{}
	}
	redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return usecase.NewRedisCache(initRedis(redisCtx, cfg.RedisAddr, logger))
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

// initClassifier returns the classifier, the class count it reports (-1 when
// unknown until the first call) and a cleanup func.
func initClassifier(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (classifier.Client, int, func()) {
	if cfg.Backend == config.ClassifierBackendONNX {
		model, err := classifier.NewONNX(classifier.ONNXOptions{
			ModelPath:    cfg.ModelPath,
			MetadataPath: cfg.MetadataPath,
			LibraryPath:  cfg.LibraryPath,
		})
		if err != nil {
			logger.Fatal("failed to load onnx model", zap.Error(err))
		}
		logger.Info("onnx model loaded",
			zap.String("model", cfg.ModelPath),
			zap.Strings("classes", model.Metadata().Classes),
		)
		return model, len(model.Metadata().Classes), model.Close
	}

	client, conn, err := grpcclient.DialClassifier(ctx, cfg.Addr, logger)
	if err != nil {
		logger.Fatal("failed to connect to classifier", zap.Error(err))
	}
	return client, -1, func() { _ = conn.Close() }
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
