// README: Entry point; loads config, wires services, starts the HTTP server,
// websocket hub and tracking loop.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"leaflift/internal/config"
	httptransport "leaflift/internal/http"
	"leaflift/internal/infra"
	"leaflift/internal/logging"
	"leaflift/internal/maps"
	"leaflift/internal/modules/matching"
	"leaflift/internal/modules/notification"
	"leaflift/internal/modules/ride"
	"leaflift/internal/modules/tracking"
	"leaflift/internal/modules/user"
	"leaflift/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.Migrate(cfg.DB.MigrationsURL, cfg.DB.DSN); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	var provider maps.Provider
	if cfg.Maps.APIKey != "" {
		provider, err = maps.NewGoogleProvider(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps provider init failed", zap.Error(err))
		}
	} else {
		logger.Warn("no maps api key configured, falling back to haversine estimates")
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	userStore := user.NewStore(dbPool)

	notificationStore := notification.NewPGStore(dbPool)
	notificationSvc := notification.NewService(notificationStore)

	rideStore := ride.NewPGStore(dbPool)
	rideSvc := ride.NewService(rideStore, provider, notificationSvc, hub, logger)

	matchingStore := matching.NewPGStore(dbPool, redisClient, logger)
	matchingSvc := matching.NewService(matchingStore, userStore, rideSvc, provider, cfg.Matching, logger)

	trackingSvc := tracking.NewService(rideStore, provider, notificationSvc, hub, cfg.Tracking, logger)
	go trackingSvc.Run(ctx)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Rides:         rideSvc,
		Matching:      matchingSvc,
		Tracking:      trackingSvc,
		Notifications: notificationSvc,
		Provider:      provider,
		Hub:           hub,
		Log:           logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
