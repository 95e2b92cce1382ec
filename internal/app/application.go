package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaultforge/agent_layer/internal/app/domain/agent"
	"github.com/vaultforge/agent_layer/internal/app/domain/wallet"
	"github.com/vaultforge/agent_layer/internal/app/services/entitlements"
	purchasesvc "github.com/vaultforge/agent_layer/internal/app/services/purchase"
	"github.com/vaultforge/agent_layer/internal/app/services/selection"
	"github.com/vaultforge/agent_layer/internal/app/storage"
	"github.com/vaultforge/agent_layer/internal/app/storage/memory"
	"github.com/vaultforge/agent_layer/internal/app/system"
	"github.com/vaultforge/agent_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil entitlement store
// defaults to the in-memory implementation. Source and Recorder override
// where the cache hydrates from and where confirmed purchases are written;
// nil means the entitlement store serves both, which is the local-store case.
// Remote mode sets both to the remote store client.
type Stores struct {
	Entitlements storage.EntitlementStore
	Source       entitlements.Source
	Recorder     purchasesvc.Recorder
}

// Config holds application-level settings.
type Config struct {
	// ChainID is the network purchases are accepted on.
	ChainID uint64
	// Account optionally pre-connects a wallet account at startup.
	Account string
	// PersistTimeout bounds the entitlement record call after a confirmed
	// purchase. Zero means the purchase service default.
	PersistTimeout time.Duration
	// WatchInterval is the session polling interval. Zero means the watcher
	// default.
	WatchInterval time.Duration
}

// Application ties the catalog, entitlement cache, purchase orchestrator and
// selection gate together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	signer  wallet.Signer
	chainID uint64

	Catalog   *agent.Catalog
	Cache     *entitlements.Cache
	Purchase  *purchasesvc.Service
	Selection *selection.Gate
	Watcher   *entitlements.Watcher

	source entitlements.Source

	mu      sync.RWMutex
	account string
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, catalog *agent.Catalog, signer wallet.Signer, cfg Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if catalog == nil {
		catalog = agent.DefaultCatalog()
	}
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("chain id is required")
	}

	if stores.Entitlements == nil {
		stores.Entitlements = memory.New()
	}
	if stores.Source == nil {
		stores.Source = stores.Entitlements
	}
	if stores.Recorder == nil {
		stores.Recorder = stores.Entitlements
	}

	a := &Application{
		manager: system.NewManager(),
		log:     log,
		signer:  signer,
		chainID: cfg.ChainID,
		Catalog: catalog,
		source:  stores.Source,
		account: cfg.Account,
	}

	a.Cache = entitlements.NewCache(stores.Source, log)
	a.Selection = selection.NewGate(catalog, a.Cache, log)

	selector := purchasesvc.SelectorFunc(func(account, agentID string) error {
		_, err := a.Selection.Select(account, agentID)
		return err
	})
	a.Purchase = purchasesvc.New(catalog, a.Cache, stores.Recorder, selector,
		purchasesvc.Config{ChainID: cfg.ChainID, PersistTimeout: cfg.PersistTimeout}, log).
		WithNotifier(purchasesvc.NotifierFunc(func(evt purchasesvc.Event) {
			entry := log.WithField("attempt_id", evt.AttemptID).
				WithField("agent_id", evt.AgentID).
				WithField("phase", evt.Phase.String())
			if evt.Err != nil {
				entry.WithError(evt.Err).Warn(evt.Message)
				return
			}
			entry.Info(evt.Message)
		}))

	provider := entitlements.SessionProviderFunc(func(ctx context.Context) (string, error) {
		return a.Session().Account, nil
	})
	a.Watcher = entitlements.NewWatcher(provider, a.Cache, log)
	if cfg.WatchInterval > 0 {
		a.Watcher.WithInterval(cfg.WatchInterval)
	}
	a.Watcher.Subscribe(entitlements.AccountListenerFunc(func(account string, owned []string) {
		a.Selection.Clear()
		if account == "" {
			return
		}
		if sel, ok := a.Selection.AutoSelect(account); ok {
			log.WithField("agent_id", sel.AgentID).Info("selection restored for account")
		}
	}))

	if err := a.manager.Register(a.Watcher); err != nil {
		return nil, fmt.Errorf("register %s: %w", a.Watcher.Name(), err)
	}
	// Request-driven services have no background work but still register so
	// the manager reports a complete module inventory.
	for _, name := range []string{"catalog", "purchase", "selection"} {
		if err := a.manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}

	return a, nil
}

// Session returns the active wallet session. The signer and chain are fixed
// at construction; only the account changes over the application's lifetime.
func (a *Application) Session() wallet.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return wallet.Session{Account: a.account, ChainID: a.chainID, Signer: a.signer}
}

// Connect switches the active wallet account and synchronously re-hydrates
// entitlement state for it.
func (a *Application) Connect(ctx context.Context, account string) {
	a.mu.Lock()
	a.account = account
	a.mu.Unlock()
	a.Watcher.Notify(ctx, account)
}

// Disconnect clears the active wallet account and all entitlement knowledge.
func (a *Application) Disconnect(ctx context.Context) {
	a.Connect(ctx, "")
}

// OwnedAgents queries the entitlement source directly, bypassing the cache.
func (a *Application) OwnedAgents(ctx context.Context, account string) ([]string, error) {
	return a.source.OwnedAgents(ctx, account)
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
