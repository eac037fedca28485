// Voiced is the multi-tenant voice feature store daemon.
//
// It stores voice embeddings per tenant, one collection each, and serves
// registration, recognition, and statistics over HTTP. The embedding
// extraction model runs as a separate service; voiced calls it for every
// uploaded clip.
//
// Usage:
//
//	# Start with defaults (chromem index under ~/.local/share/voiced)
//	voiced
//
//	# Configure via file and environment
//	voiced -config ~/.config/voiced/config.yaml
//	VOICED_SERVER_HTTP_PORT=9100 VOICED_INDEX_BACKEND=qdrant voiced
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

	"go.uber.org/zap"

	"github.com/voiceprintlabs/voiced/internal/config"
	"github.com/voiceprintlabs/voiced/internal/embeddings"
	"github.com/voiceprintlabs/voiced/internal/featurecache"
	"github.com/voiceprintlabs/voiced/internal/featurestore"
	httpserver "github.com/voiceprintlabs/voiced/internal/http"
	"github.com/voiceprintlabs/voiced/internal/logging"
	"github.com/voiceprintlabs/voiced/internal/telemetry"
	"github.com/voiceprintlabs/voiced/internal/vectorindex"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/voiced/config.yaml)")
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
			fmt.Fprintf(os.Stderr, "  voiced           Start the voiced daemon\n")
			fmt.Fprintf(os.Stderr, "  voiced version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("voiced\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the voiced server and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is harmless

	logger.Info("starting voiced",
		zap.String("version", version),
		zap.String("index_backend", cfg.Index.Backend),
	)

	cfg.Telemetry.ServiceVersion = version
	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background()) //nolint:errcheck // flush is best effort at exit

	index, err := vectorindex.New(vectorindex.Config{
		Backend: cfg.Index.Backend,
		Chromem: vectorindex.ChromemConfig{
			Path:      cfg.Index.Path,
			Compress:  cfg.Index.Compress,
			Dimension: cfg.Index.Dimension,
		},
		Qdrant: vectorindex.QdrantConfig{
			Host:      cfg.Index.QdrantHost,
			Port:      cfg.Index.QdrantPort,
			UseTLS:    cfg.Index.QdrantTLS,
			Dimension: cfg.Index.Dimension,
		},
	}, logger.Named("vectorindex"))
	if err != nil {
		return fmt.Errorf("initializing vector index: %w", err)
	}

	var cache *featurecache.Cache
	if !cfg.Cache.Disabled {
		cache = featurecache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		cache.SetMetrics(featurecache.NewMetrics())
	}

	backingPath := ""
	if chromem, ok := index.(*vectorindex.ChromemIndex); ok {
		backingPath = chromem.BasePath()
	}
	store := featurestore.NewStore(index, cache, cfg.Index.Backend, backingPath, logger.Named("featurestore"))
	defer store.Close() //nolint:errcheck // nothing to do at exit

	extractor, err := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Extractor.BaseURL,
		Model:     cfg.Extractor.Model,
		Dimension: cfg.Index.Dimension,
		Timeout:   cfg.Extractor.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initializing extractor client: %w", err)
	}

	server, err := httpserver.NewServer(store, extractor, logger.Named("http"), &httpserver.Config{
		Port:             cfg.Server.Port,
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
		DefaultThreshold: float32(cfg.Search.Threshold),
		DefaultTopK:      cfg.Search.TopK,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}
