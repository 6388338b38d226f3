package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"walk_tracker/internal/config"
	"walk_tracker/internal/controllers"
	"walk_tracker/internal/goals"
	"walk_tracker/internal/location"
	"walk_tracker/internal/logger"
	"walk_tracker/internal/middleware"
	"walk_tracker/internal/persistence"
	"walk_tracker/internal/routes"
	"walk_tracker/internal/stepfeed"
	"walk_tracker/internal/tracking"
	"walk_tracker/internal/widget"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	accessLog := logger.Setup(logger.Options{File: cfg.LogFile, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	gin.SetMode(gin.ReleaseMode)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := run(context.Background(), cfg, accessLog, signals); err != nil {
		logrus.WithError(err).Fatal("Server exited with error.")
	}
}

func run(ctx context.Context, cfg config.Config, accessLog io.Writer, signals <-chan os.Signal) error {
	db, err := config.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	logrus.Info("Connected to history database.")

	kv, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	log := logrus.StandardLogger()
	history := persistence.NewHistoryStore(db)
	handoff := widget.NewHandoff(kv, cfg.DefaultGoalSteps, log)
	relay := location.NewRelay(log)
	counter := stepfeed.NewCounter(time.Now, 0)

	machine, err := tracking.New(ctx, tracking.Deps{
		Persistence: persistence.NewStore(persistence.NewSnapshotStore(kv, log), history),
		Fixes:       relay,
		Steps:       counter,
		Handoff:     handoff,
		Logger:      log,
	}, tracking.Options{
		AccuracyThreshold: cfg.AccuracyThresholdM,
		CheckpointEvery:   cfg.CheckpointEvery,
		SnapshotMaxAge:    cfg.SnapshotMaxAge,
	})
	if err != nil {
		return err
	}
	defer machine.Close()

	hub := controllers.NewStateHub(machine)
	defer hub.Close()

	auth := middleware.NewAuth(cfg.JWTSecret, cfg.TokenTTL)
	goalService := goals.NewService(db, handoff)
	router := routes.SetupRouter(routes.Handlers{
		Auth:      auth,
		Tokens:    controllers.NewAuthController(auth, cfg.DeviceKeyHash),
		Session:   controllers.NewSessionController(machine, relay, counter),
		Walks:     controllers.NewWalkController(history, goalService, handoff),
		Goals:     controllers.NewGoalController(goalService),
		Widget:    controllers.NewWidgetController(handoff),
		Deeplink:  controllers.NewDeeplinkController(machine),
		Streams:   controllers.NewStreamController(hub, relay, counter, auth),
		AccessLog: accessLog,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           middleware.CORS(cfg.CORSOrigins)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.ServerAddr).Info("Server running.")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-signals:
		logrus.WithField("signal", sig.String()).Info("Shutting down.")
	case <-ctx.Done():
		logrus.Info("Context cancelled, shutting down.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openKV opens the store shared by the in-flight snapshot and the widget keys.
func openKV(ctx context.Context, cfg config.Config) (persistence.KV, error) {
	switch cfg.SnapshotBackend {
	case "", "sqlite":
		kv, err := persistence.OpenSQLite(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		logrus.WithField("path", cfg.SnapshotPath).Info("Using sqlite snapshot store.")
		return kv, nil
	case "redis":
		client := config.ConnectRedis(cfg)
		if client == nil {
			return nil, errors.New("SNAPSHOT_BACKEND=redis requires REDIS_ADDR")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		logrus.WithField("addr", cfg.RedisAddr).Info("Using redis snapshot store.")
		return persistence.NewRedisKV(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", cfg.SnapshotBackend)
	}
}
