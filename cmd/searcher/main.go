// Command searcher runs the search service: the index engine, the bmax query
// pipeline with its caches, and the HTTP API.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis/synonymstore"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/bmax"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/bmax/dictstore"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/boostcache"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/booster"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion/publisher"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/valuecache"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/redis"
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
	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdown(context.Background())
	}

	analyzers, err := analysis.NewRegistry(cfg.Analysis)
	if err != nil {
		return fmt.Errorf("building analyzers: %w", err)
	}

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		if db, err = postgres.New(cfg.Postgres); err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		slog.Info("connected to postgres")
		startSynonymRefresh(ctx, cfg.Analysis.SynonymStore, analyzers, db)
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		if redisClient, err = pkgredis.NewClient(cfg.Redis); err != nil {
			slog.Warn("redis unavailable, result and dictionary caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	engine, err := indexer.NewEngine(cfg.Index, analyzers, indexer.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("closing index", "error", err)
		}
	}()
	engine.StartFlushLoop(ctx)

	dictOpts := []bmax.DictionaryOption{
		bmax.WithPendingTerms(engine),
		bmax.WithDictionaryMetrics(m),
		bmax.WithBuildTimeout(cfg.Cache.DictionaryTimeout),
	}
	if redisClient != nil {
		dictOpts = append(dictOpts, bmax.WithSnapshotStore(dictstore.New(redisClient, cfg.Redis.DictionaryTTL)))
	}
	dictionaries := bmax.NewDictionaryCache(engine, dictOpts...)

	regionOpts := []boostcache.RegionOption{
		boostcache.WithHint(valuecache.Hint(cfg.Cache.ValueCacheHint)),
		boostcache.WithPrecision(cfg.Cache.Precision),
		boostcache.WithMetrics(m),
	}
	boostCaches := boostcache.NewCoordinator(m,
		boostcache.NewRegion(boostcache.BoostCache, regionOpts...),
		boostcache.NewRegion(boostcache.BQCache, regionOpts...),
	)

	warm := func(gen uint64) {
		dictionaries.Reset(gen)
		boostCaches.Reset(gen)
		if len(cfg.Cache.DictionaryFields) == 0 {
			return
		}
		go func() {
			if err := dictionaries.Warm(ctx, cfg.Cache.DictionaryFields); err != nil {
				slog.Warn("dictionary warm-up incomplete", "generation", gen, "error", err)
			}
		}()
	}
	engine.OnGeneration(warm)
	warm(engine.Generation())

	bmaxAnalyzers, err := bmax.AnalyzersFromRegistry(analyzers, cfg.Bmax)
	if err != nil {
		return err
	}
	bp, err := bmax.NewParser(bmaxAnalyzers, cfg.Bmax, dictionaries)
	if err != nil {
		return err
	}
	boosterAnalyzers, err := booster.AnalyzersFromRegistry(analyzers, cfg.Booster)
	if err != nil {
		return err
	}
	boost, err := booster.NewComponent(boosterAnalyzers, cfg.Booster)
	if err != nil {
		return err
	}
	qp := parser.New(bp, analyzers.FieldAnalyzer(), boostCaches, cfg.Bmax)

	var queryCache *cache.QueryCache
	if redisClient != nil {
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	svc := searcher.New(engine, bp, qp, executor.New(0), cfg.Search,
		searcher.WithBooster(boost),
		searcher.WithBoostCaches(boostCaches),
		searcher.WithResultCache(queryCache),
		searcher.WithMetrics(m),
	)

	var ingester ingesthandler.Ingester = ingesthandler.Direct{Index: engine}
	if cfg.Kafka.Enabled {
		var statusDB publisher.StatusStore
		if db != nil {
			statusDB = db.DB
		}
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer producer.Close()
		ingester = publisher.New(statusDB, producer)

		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			consumer.HandleMessage(engine, statusDB), kafka.WithConsumerMetrics(m))
		go func() {
			if err := consumer.New(kc).Start(ctx); err != nil {
				slog.Error("index consumer stopped", "error", err)
			}
		}()
		slog.Info("kafka ingestion enabled", "topic", cfg.Kafka.Topics.DocumentIngest)
	}

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		st := engine.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d segments, %d live docs", st.Generation, st.Segments, st.LiveDocs),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if db != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := handler.New(svc, engine, queryCache, boostCaches, dictionaries)
	ih := ingesthandler.New(ingester)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/documents", ih.Ingest)
	mux.HandleFunc("POST /api/v1/index/flush", h.Flush)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// startSynonymRefresh loads the configured synonym set into its analyzer and
// keeps it current.
func startSynonymRefresh(ctx context.Context, cfg config.SynonymStoreConfig, reg *analysis.Registry, db *postgres.Client) {
	if !cfg.Enabled {
		return
	}
	table, ok := reg.SynonymTable(cfg.Analyzer)
	if !ok {
		slog.Warn("synonym store configured for an analyzer without a synonym filter", "analyzer", cfg.Analyzer)
		return
	}
	store := synonymstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("synonym schema", "error", err)
		return
	}
	r := synonymstore.NewRefresher(store, table, cfg.SetName)
	if err := r.Refresh(ctx); err != nil {
		slog.Error("initial synonym load failed", "error", err)
	}
	if cfg.RefreshInterval > 0 {
		go r.Run(ctx, cfg.RefreshInterval)
	}
}
