package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/stampcard/backend/api/handler"
	"github.com/stampcard/backend/internal/config"
	"github.com/stampcard/backend/internal/infrastructure/monitor"
	pgInfra "github.com/stampcard/backend/internal/infrastructure/postgres"
	redisInfra "github.com/stampcard/backend/internal/infrastructure/redis"
	"github.com/stampcard/backend/internal/middleware"
	"github.com/stampcard/backend/internal/provider/gotrue"
	"github.com/stampcard/backend/internal/router"
	"github.com/stampcard/backend/internal/services"
	"github.com/stampcard/backend/internal/services/lifecycle"
	"github.com/stampcard/backend/pkg/httpcontext"
	"github.com/stampcard/backend/pkg/logger"
	boltRepo "github.com/stampcard/backend/repository/bolt"
	memRepo "github.com/stampcard/backend/repository/memory"
	"github.com/stampcard/backend/repository/postgres"
	authUC "github.com/stampcard/backend/usecase/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	shutdown.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	shutdown.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	shutdown.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	markerStore, err := boltRepo.Open(cfg.Marker.Path, cfg.Marker.Bucket)
	if err != nil {
		zapLogger.Fatal("failed to open marker store", zap.Error(err))
	}
	shutdown.Register("marker_store", func(ctx context.Context) error {
		return markerStore.Close()
	})
	volatileStore := memRepo.New()

	mon := monitor.New(pool, redisClient, markerStore, 10*time.Second, zapLogger)
	mon.Start()
	shutdown.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	provider := gotrue.New(redisClient, gotrue.Config{
		BaseURL:        cfg.Provider.URL,
		AnonKey:        cfg.Provider.AnonKey,
		EventsChannel:  cfg.Provider.EventsChannel,
		RequestTimeout: cfg.Provider.RequestTimeout,
	}, zapLogger)

	profileRepo := postgres.NewProfileRepository(pool)
	resolver := authUC.NewResolver(profileRepo, zapLogger)

	manager := authUC.NewManager(provider, resolver, markerStore, volatileStore, zapLogger, authUC.ManagerConfig{
		InitTimeout: cfg.Session.InitTimeout,
	})
	shutdown.Register("session_manager", func(ctx context.Context) error {
		manager.Close()
		return nil
	})

	idle := authUC.NewIdleMonitor(cfg.Session.IdleTimeout, cfg.Session.IdleWarningLead, manager.ForceSignOut, zapLogger)
	idle.Bind(manager)
	shutdown.Register("idle_monitor", func(ctx context.Context) error {
		idle.Deactivate()
		return nil
	})

	staleness := authUC.NewStalenessDetector(markerStore, volatileStore, manager.ForceSignOut, zapLogger)
	staleness.Bind(manager)

	if err := manager.Start(appCtx); err != nil {
		zapLogger.Fatal("session manager failed to start", zap.Error(err))
	}

	revalidator := services.NewRevalidator(manager, cfg.Session.RevalidateInterval, zapLogger)
	revalidator.Start()
	shutdown.Register("revalidator", func(ctx context.Context) error {
		revalidator.Stop(ctx)
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(provider, manager, ctxAdapter, zapLogger),
		Session: apiHandler.NewSessionHandler(manager, idle, staleness, ctxAdapter, zapLogger),
		Home:    apiHandler.NewHomeHandler(manager, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	guard := middleware.NewGuard(manager, idle, zapLogger)
	r := router.New(handlers, guard)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	shutdown.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := shutdown.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
