// Memoryd is a shared memory daemon for autonomous agents.
//
// It stores entities, requirements, knowledge and events in SQLite, serves
// keyword and vector recall over HTTP and compacts long sessions in the
// background.
//
// Configuration is loaded from ~/.config/memoryd/config.yaml (or -config)
// and MEMORYD_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	memoryd
//
//	# Configure via environment
//	MEMORYD_SERVER_HTTP_PORT=9090 MEMORYD_EMBEDDINGS_PROVIDER=ollama memoryd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/compaction"
	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/memoryd/internal/http"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/reranker"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"github.com/fyrsmithlabs/memoryd/internal/summarizer"
	"github.com/fyrsmithlabs/memoryd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/memoryd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  memoryd [-config path]   Start the memoryd daemon\n")
			fmt.Fprintf(os.Stderr, "  memoryd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("memoryd: %v", err)
	}
}

func printVersion() {
	fmt.Printf("memoryd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled or the HTTP
// server fails. It returns nil after a clean shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	logger.Info(ctx, "starting memoryd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Path))

	st, err := store.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	if v, err := st.VecVersion(ctx); err == nil {
		logger.Info(ctx, "store opened", zap.String("sqlite_vec", v))
	}

	svc, err := initEngine(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	if err := bootstrapNamespaces(ctx, svc, cfg.Namespaces.Bootstrap); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Compaction.Enabled && cfg.Summarizer.Provider == config.ProviderNone {
		logger.Warn(ctx, "compaction.enabled=true but summarizer.provider=none, forcing compaction disabled")
	}
	loop, err := compaction.New(svc, compaction.ConfigFromApp(cfg), logger.Underlying().Named("compaction"),
		compaction.WithMetrics(compaction.NewMetrics(registry)))
	if err != nil {
		return err
	}
	if cfg.CompactionEnabled() {
		if err := loop.Start(ctx); err != nil {
			return err
		}
		defer loop.Stop()
	} else {
		logger.Info(ctx, "background compaction loop disabled")
	}

	srv, err := httpserver.NewServer(svc, logger.Underlying().Named("http"),
		&httpserver.Config{Host: cfg.Server.Host, Port: cfg.Server.Port},
		httpserver.WithGatherer(registry),
		httpserver.WithHTTPMetrics(httpserver.NewHTTPMetrics(logger.Underlying())))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.OTEL = tel.IsEnabled()
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

// initEngine builds the providers and the memory engine. Providers that are
// configured but unusable are logged and reported by /health.
func initEngine(ctx context.Context, cfg *config.Config, st *store.Store, logger *logging.Logger) (*memory.Service, error) {
	z := logger.Underlying()
	emb, err := embeddings.New(cfg.Embeddings, z.Named("embeddings"),
		embeddings.WithMetrics(embeddings.NewMetrics(z)))
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	sum, err := summarizer.New(cfg.Summarizer, z.Named("summarizer"))
	if err != nil {
		return nil, fmt.Errorf("creating summarizer: %w", err)
	}
	rr, err := reranker.New(cfg.Reranker, z.Named("reranker"))
	if err != nil {
		return nil, fmt.Errorf("creating reranker: %w", err)
	}

	logger.Info(ctx, "providers configured",
		zap.String("embeddings", emb.Name()),
		zap.Int("dimension", emb.Dimension()),
		logging.Secret("embeddings.api_key", cfg.Embeddings.APIKey),
		zap.String("summarizer", sum.Name()),
		logging.Secret("summarizer.api_key", cfg.Summarizer.APIKey),
		zap.String("reranker", rr.Name()))

	for _, p := range []interface {
		Name() string
		Available() bool
		UnavailableReason() string
	}{emb, sum, rr} {
		if !p.Available() && p.Name() != config.ProviderNone {
			logger.Warn(ctx, "provider unavailable",
				zap.String("provider", p.Name()),
				zap.String("reason", p.UnavailableReason()))
		}
	}

	return memory.NewService(st, emb, sum, rr, memory.ConfigFromApp(cfg), z.Named("memory"))
}

func bootstrapNamespaces(ctx context.Context, svc *memory.Service, names []string) error {
	for _, name := range names {
		if _, err := svc.CreateNamespace(ctx, name); err != nil {
			return fmt.Errorf("bootstrapping namespace %q: %w", name, err)
		}
	}
	return nil
}
