package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentmart/agentmart/internal/agents"
	"github.com/agentmart/agentmart/internal/auth"
	"github.com/agentmart/agentmart/internal/config"
	"github.com/agentmart/agentmart/internal/health"
	"github.com/agentmart/agentmart/internal/httpserver"
	"github.com/agentmart/agentmart/internal/llm/openai"
	"github.com/agentmart/agentmart/internal/logging"
	"github.com/agentmart/agentmart/internal/marketplace"
	"github.com/agentmart/agentmart/internal/metrics"
	storepostgres "github.com/agentmart/agentmart/internal/store/postgres"
	storesqlite "github.com/agentmart/agentmart/internal/store/sqlite"
	"github.com/agentmart/agentmart/internal/version"
)

func main() {
	cfg, err := config.LoadMarketConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Rotating file logging when a log target is configured; mirror to
	// stdout for foreground runs.
	const maxLogBytes = int64(300 * 1024 * 1024)
	if target := strings.TrimSpace(cfg.LogFileDaemon); target != "" {
		rot, err := logging.NewRotatingWriter(target, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.SetPrefix("[agentmartd] ")
		defer rot.Close()
	}

	log.Printf("agentmart %s starting env=%s", version.Info(), cfg.Environment)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	client, err := openai.New(openai.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
	})
	if err != nil {
		log.Fatalf("init completion client: %v", err)
	}
	registry := agents.NewDefaultRegistry(client, cfg.CompletionModel)
	log.Printf("agent implementations registered: %v", registry.ListTypes())

	entitlements := marketplace.NewEntitlements(store)
	coordinator := marketplace.NewCoordinator(store, entitlements, registry, cfg.InvokeTimeout)

	sessions := auth.NewManager(cfg.AuthSecret, cfg.SessionTTL)
	collector := metrics.NewCollector()

	healthCfg := health.Config{ProviderBaseURL: cfg.OpenAIBaseURL}
	if pinger, ok := store.(health.Pinger); ok {
		healthCfg.Store = pinger
	}
	checker := health.New(healthCfg)

	server := httpserver.NewServer(store, entitlements, coordinator, sessions,
		httpserver.WithMetrics(collector),
		httpserver.WithHealth(checker),
		httpserver.WithLogger(log.New(log.Writer(), "[agentmartd/http] ", log.LstdFlags|log.Lmicroseconds)),
	)

	srv := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.InvokeTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("marketplace server listening on %s", cfg.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func openStore(cfg config.MarketConfig) (marketplace.Store, error) {
	if cfg.UsesPostgres() {
		log.Printf("using postgres store")
		return storepostgres.New(cfg.DatabaseURL, cfg.DBMaxOpen, cfg.DBMaxIdle, cfg.DBConnLifetime, cfg.DBConnIdleTime)
	}
	log.Printf("using sqlite store path=%s", cfg.DatabaseURL)
	return storesqlite.New(cfg.DatabaseURL)
}
