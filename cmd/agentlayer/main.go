// Package main runs the agent layer server: it exposes the agent catalog,
// entitlement lookups, purchases and selection over HTTP.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/vaultforge/agent_layer/internal/app"
	"github.com/vaultforge/agent_layer/internal/app/domain/agent"
	"github.com/vaultforge/agent_layer/internal/app/httpapi"
	"github.com/vaultforge/agent_layer/internal/app/metrics"
	"github.com/vaultforge/agent_layer/internal/app/storage/postgres"
	"github.com/vaultforge/agent_layer/internal/app/storage/remote"
	"github.com/vaultforge/agent_layer/internal/chain"
	"github.com/vaultforge/agent_layer/internal/config"
	"github.com/vaultforge/agent_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	account := flag.String("account", "", "Wallet account to pre-connect (overrides config)")
	flag.Parse()

	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("agentlayer").WithError(err).Fatal("load config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *account != "" {
		cfg.Wallet.Account = *account
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "agentlayer")

	catalog := agent.DefaultCatalog()
	if cfg.Catalog.Path != "" {
		catalog, err = agent.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			log.WithError(err).Fatal("load catalog")
		}
		log.WithField("path", cfg.Catalog.Path).Infof("catalog loaded with %d agents", catalog.Len())
	}

	client, err := chain.NewClient(chain.Config{
		RPCURL:  cfg.Chain.RPCURL,
		ChainID: cfg.Chain.ChainID,
		Timeout: cfg.Chain.Timeout,
	})
	if err != nil {
		log.WithError(err).Fatal("configure chain client")
	}
	signer := chain.NewNodeSigner(client, 0)

	stores, cleanup, err := buildStores(cfg.Store, log)
	if err != nil {
		log.WithError(err).Fatal("configure entitlement store")
	}
	defer cleanup()

	application, err := app.New(stores, catalog, signer, app.Config{
		ChainID: cfg.Chain.ChainID,
		Account: cfg.Wallet.Account,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start application")
	}

	var handler http.Handler = httpapi.New(application, log).Router()
	if cfg.RateLimit.Enabled {
		handler = httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log).Handler(handler)
	}
	if cfg.Auth.Enabled {
		handler = httpapi.NewAuth([]byte(cfg.Auth.Secret), []string{"/healthz", "/metrics"}, log).Handler(handler)
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		handler = httpapi.CORS(cfg.Server.AllowedOrigins)(handler)
	}
	handler = httpapi.RequestLogging(log)(handler)
	handler = metrics.InstrumentHandler(handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("stopped")
}

func buildStores(cfg config.StoreConfig, log *logger.Logger) (app.Stores, func(), error) {
	noop := func() {}

	switch cfg.Mode {
	case config.StoreModeRemote:
		client, err := remote.NewClient(remote.Config{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
		if err != nil {
			return app.Stores{}, noop, err
		}
		log.WithField("base_url", cfg.BaseURL).Info("using remote entitlement store")
		return app.Stores{Source: client, Recorder: client}, noop, nil

	case config.StoreModePostgres:
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return app.Stores{}, noop, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return app.Stores{}, noop, err
		}
		log.Info("using postgres entitlement store")
		return app.Stores{Entitlements: postgres.New(db)}, func() { db.Close() }, nil

	default:
		log.Info("using in-memory entitlement store")
		return app.Stores{}, noop, nil
	}
}
