package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	httpapi "complyhub/internal/http"
	jwttoken "complyhub/internal/jwt_token"
	"complyhub/internal/modules"
	"complyhub/internal/modules/handler"
	"complyhub/internal/platform/config"
	"complyhub/internal/platform/httpserver"
	"complyhub/internal/platform/kafka"
	"complyhub/internal/platform/logger"
	"complyhub/pkg/platform/audit/worker"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("complyhub stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	rt, err := modules.Build(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("closing module runtime", "error", err)
		}
	}()

	if err := rt.Service.Bootstrap(ctx); err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Modules:  handler.New(rt.Service, log),
		Registry: rt.Registry,
		Actors:   jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience),
		Logger:   log,
		Gatherer: prometheus.DefaultGatherer,
		Health:   rt.Health,
	})
	srv := httpserver.New(cfg.Server, router)

	var relay *worker.Worker
	if cfg.Kafka.Enabled() && rt.Outbox != nil {
		client, err := kafka.New(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 3, 1); err != nil {
			return err
		}
		relay = worker.NewWorker(rt.Outbox, client, cfg.Kafka.AuditTopic,
			worker.WithLogger(log),
			worker.WithInterval(cfg.Kafka.PollInterval),
			worker.WithBatchSize(cfg.Kafka.BatchSize),
			worker.WithTransactor(rt.RelayTransactor),
		)
	} else if cfg.Kafka.Enabled() {
		log.Warn("KAFKA_BROKERS set without DATABASE_URL, audit relay disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting complyhub", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if listener := rt.Listener(); listener != nil {
		g.Go(func() error {
			return ignoreCanceled(listener.Run(gctx))
		})
	}

	if relay != nil {
		g.Go(func() error {
			return ignoreCanceled(relay.Run(gctx))
		})
	}

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
