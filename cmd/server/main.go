// Command server wires the registration subsystem and runs its HTTP
// endpoint. Business logic lives in the internal service packages; main only
// selects implementations and manages the process lifecycle.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"hearth/internal/platform/config"
	"hearth/internal/platform/httpserver"
	"hearth/internal/platform/logger"
	"hearth/internal/platform/metrics"
	"hearth/internal/registration/handler"
	regservice "hearth/internal/registration/service"
	"hearth/internal/storage"
	memorystore "hearth/internal/storage/memory"
	postgresstore "hearth/internal/storage/postgres"
	"hearth/internal/token"
	"hearth/internal/uia"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	if cfg.DatabaseDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Error("failed to open postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = postgresstore.New(pool)
	} else {
		store = memorystore.New()
	}

	var sessions uia.SessionStore
	var memSessions *uia.InMemorySessionStore
	if cfg.RedisAddr != "" {
		sessions = uia.NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		memSessions = uia.NewInMemorySessionStore()
		sessions = memSessions
	}

	engine, err := uia.NewEngine(sessions, cfg.UIAFlows, cfg.UIASessionTTL, uia.WithLogger(log))
	if err != nil {
		log.Error("failed to build uia engine", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	svc, err := regservice.New(store, engine, token.NewManager(cfg.JWTSigningKey, cfg.ServerName),
		regservice.Config{ServerName: cfg.ServerName, AllowGuests: cfg.AllowGuests},
		regservice.WithLogger(log),
		regservice.WithMetrics(m),
	)
	if err != nil {
		log.Error("failed to build registration service", "error", err)
		os.Exit(1)
	}

	router := handler.New(svc, log).Routes()
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting registration server", "addr", cfg.Addr, "server_name", cfg.ServerName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if memSessions != nil {
		g.Go(func() error {
			err := memSessions.StartSweeper(ctx, cfg.UIASessionTTL)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
