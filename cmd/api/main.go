package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/schoolorders-backend/api/routes"
	"github.com/angelmondragon/schoolorders-backend/internal/auth"
	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	"github.com/angelmondragon/schoolorders-backend/internal/dispatches"
	"github.com/angelmondragon/schoolorders-backend/internal/fulfillment"
	"github.com/angelmondragon/schoolorders-backend/internal/orders"
	"github.com/angelmondragon/schoolorders-backend/internal/supportrequests"
	"github.com/angelmondragon/schoolorders-backend/internal/users"
	"github.com/angelmondragon/schoolorders-backend/pkg/auth/session"
	"github.com/angelmondragon/schoolorders-backend/pkg/config"
	"github.com/angelmondragon/schoolorders-backend/pkg/db"
	"github.com/angelmondragon/schoolorders-backend/pkg/env"
	"github.com/angelmondragon/schoolorders-backend/pkg/instance"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/metrics"
	"github.com/angelmondragon/schoolorders-backend/pkg/migrate"
	"github.com/angelmondragon/schoolorders-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	engine := fulfillment.NewEngine(orderMetrics)

	usersService, err := users.NewService(users.NewRepository(dbClient.DB()), cfg.Password, logg)
	if err != nil {
		return err
	}
	if _, err := usersService.EnsureAdmin(ctx, cfg.Bootstrap); err != nil {
		return err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return err
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Catalog: cat,
		Engine:  engine,
		Metrics: orderMetrics,
		Logger:  logg,
		Config:  cfg.Orders,
	})
	if err != nil {
		return err
	}

	dispatchService, err := dispatches.NewService(dispatches.NewRepository(dbClient.DB()), dbClient, engine, logg)
	if err != nil {
		return err
	}

	supportService, err := supportrequests.NewService(supportrequests.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return err
	}

	addr := ":" + env.Get(cfg.App.Port, "PORT")
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"driver":   cfg.DB.Driver,
		"instance": instance.ID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, sessionManager, registry, httpMetrics, routes.Services{
			Catalog:         cat,
			Auth:            authService,
			Users:           usersService,
			Orders:          ordersService,
			Dispatches:      dispatchService,
			SupportRequests: supportService,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
