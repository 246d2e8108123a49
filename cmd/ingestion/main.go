// Command ingestion runs the standalone ingestion front end.
//
// The service validates documents posted to /api/v1/documents, records them
// as PENDING in PostgreSQL and publishes them to Kafka. The searcher's index
// consumer picks them up from there.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled {
		slog.Error("ingestion service requires kafka; index directly through the searcher instead")
		os.Exit(1)
	}
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdown(context.Background())
	}

	checker := health.NewChecker()
	var statusDB publisher.StatusStore
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := publisher.EnsureSchema(ctx, db.DB); err != nil {
			slog.Error("failed to prepare documents table", "error", err)
			os.Exit(1)
		}
		statusDB = db.DB
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		slog.Info("connected to postgres")
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)

	h := handler.New(publisher.New(statusDB, producer))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RateLimit(cfg.RateLimit)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
