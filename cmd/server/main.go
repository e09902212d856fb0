package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulsehub/client"
	"pulsehub/internal/api"
	"pulsehub/internal/config"
	"pulsehub/internal/executor"
	"pulsehub/internal/metrics"
	"pulsehub/internal/middleware"
	"pulsehub/internal/model"
	"pulsehub/internal/repository"
	"pulsehub/internal/service"
	"pulsehub/pkg/constraints"
	"pulsehub/pkg/logger"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// 2. Root context, cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Infrastructure
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	etcdCli, err := initEtcd(cfg.Etcd)
	if err != nil {
		return err
	}
	defer etcdCli.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	// 4. Repositories
	catalogRepo := repository.NewCatalogRepository(db)
	metricRepo := repository.NewMetricRepository(etcdCli)
	clientRepo := repository.NewAPIClientRepository(db, cfg.Auth.APIKeyCacheTTL)
	defer clientRepo.Close()

	// 5. Hub and services
	rt := executor.NewRuntime(executor.Config{
		ComputeWorkers: cfg.Runtime.ComputeWorkers,
		TimerWorkers:   cfg.Runtime.TimerWorkers,
	})
	observer := metrics.NewPrometheusObserver()
	catalog := service.NewCatalogService(catalogRepo, rt.IO, cfg.Server.Instance)

	hub := service.NewHub(
		service.WithRuntime(rt),
		service.WithObserver(observer),
		service.WithSnapshotTimeout(cfg.Hub.SnapshotTimeout),
		service.WithHistorySize(cfg.Hub.HistorySize),
		service.WithRegistrationHook(catalog.Hook),
	)
	ingest := service.NewIngestor(hub)
	authSvc := service.NewAuthService(rdb, []byte(cfg.Auth.Secret), service.Credentials{
		UserID:   "admin",
		Username: cfg.Auth.AdminUser,
		Password: cfg.Auth.AdminPassword,
		Role:     "admin",
	}, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	reconciler := service.NewReconciler(etcdCli, hub, catalogRepo, cfg.Server.Instance, cfg.Workers.ReconcilerInterval)

	if cfg.Hub.Uptime > 0 {
		service.DeriveEvery(ctx, hub, "pulsehub.uptime", constraints.Seconds, cfg.Hub.Uptime,
			func(context.Context, service.Reader) (float64, error) {
				return hub.Elapsed().Seconds(), nil
			})
	}

	// 6. HTTP
	checks := map[string]api.HealthCheck{
		"mysql": catalog.Health,
		"etcd":  metricRepo.Health,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	r := api.RegisterRoutes(
		api.NewTopicHandler(hub, ingest, catalog, checks),
		api.NewStreamHandler(hub, observer, cfg.Stream.HeartbeatInterval),
		api.NewAuthHandler(authSvc),
		clientRepo,
		rdb,
		api.RouterConfig{
			Env:       cfg.Server.Environment,
			JWTSecret: []byte(cfg.Auth.Secret),
			RateLimit: middleware.RateLimiterConfig{
				Limit:     cfg.RateLimit.RequestsPerSecond,
				Burst:     cfg.RateLimit.Burst,
				KeyPrefix: "pulsehub:ratelimit:",
			},
		},
	)
	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	// 7. Background routines
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting reconciler")
		reconciler.Run(gctx)
		return nil
	})
	if cfg.Mirror.EtcdPrefix != "" {
		g.Go(func() error {
			logger.Info("mirroring etcd metrics", zap.String("prefix", cfg.Mirror.EtcdPrefix))
			_, err := service.Mirror(gctx, hub, metricRepo, cfg.Mirror.EtcdPrefix)
			return err
		})
	}
	if cfg.Mirror.Upstream != "" {
		upstream := client.NewPulseClient(cfg.Mirror.Upstream, cfg.Mirror.APIKey)
		g.Go(func() error {
			logger.Info("mirroring upstream hub",
				zap.String("upstream", cfg.Mirror.Upstream),
				zap.String("prefix", cfg.Mirror.Prefix))
			_, err := service.Mirror(gctx, hub, upstream, cfg.Mirror.Prefix)
			return err
		})
	}

	// 8. Graceful shutdown once a signal arrives or any routine fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return errors.Join(hub.Close(shutdownCtx), rt.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited properly")
	return nil
}

// -- Infrastructure Initializers --

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initEtcd(cfg config.EtcdConfig) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return client, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	if err := db.AutoMigrate(&model.TopicRecord{}, &model.APIClient{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
