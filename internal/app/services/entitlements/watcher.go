package entitlements

import (
	"context"
	"sync"
	"time"

	"github.com/vaultforge/agent_layer/internal/app/system"
	"github.com/vaultforge/agent_layer/pkg/logger"
)

// SessionProvider reports the currently active wallet account. An empty
// string means no wallet is connected.
type SessionProvider interface {
	ActiveAccount(ctx context.Context) (string, error)
}

// SessionProviderFunc adapts a function to the SessionProvider interface.
type SessionProviderFunc func(ctx context.Context) (string, error)

// ActiveAccount implements SessionProvider.
func (f SessionProviderFunc) ActiveAccount(ctx context.Context) (string, error) {
	return f(ctx)
}

// AccountListener is notified after the cache has switched to a new account
// and hydrated its owned set.
type AccountListener interface {
	AccountChanged(account string, owned []string)
}

// AccountListenerFunc adapts a function to the AccountListener interface.
type AccountListenerFunc func(account string, owned []string)

// AccountChanged implements AccountListener.
func (f AccountListenerFunc) AccountChanged(account string, owned []string) {
	f(account, owned)
}

// Watcher polls the session provider and re-hydrates the cache whenever the
// active account changes. Listeners run after hydration, so they observe the
// new account's entitlements.
type Watcher struct {
	provider  SessionProvider
	cache     *Cache
	interval  time.Duration
	listeners []AccountListener
	log       *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Watcher)(nil)

// NewWatcher creates a watcher over the given provider and cache.
func NewWatcher(provider SessionProvider, cache *Cache, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.NewDefault("session-watcher")
	}
	return &Watcher{
		provider: provider,
		cache:    cache,
		interval: 5 * time.Second,
		log:      log,
	}
}

// WithInterval overrides the polling interval.
func (w *Watcher) WithInterval(d time.Duration) *Watcher {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Subscribe registers a listener for account changes. Call before Start.
func (w *Watcher) Subscribe(l AccountListener) {
	if l == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

func (w *Watcher) Name() string { return "session-watcher" }

// Start begins polling. The first check runs immediately so a wallet that is
// already connected is picked up without waiting a full interval.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.tick(runCtx)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.tick(runCtx)
			}
		}
	}()

	w.log.Info("session watcher started")
	return nil
}

func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (w *Watcher) tick(ctx context.Context) {
	account, err := w.provider.ActiveAccount(ctx)
	if err != nil {
		w.log.WithError(err).Warn("active account query failed")
		return
	}
	w.apply(ctx, account)
}

// Notify forces an immediate account check outside the polling schedule, for
// callers that learn of a wallet change synchronously.
func (w *Watcher) Notify(ctx context.Context, account string) {
	w.apply(ctx, account)
}

func (w *Watcher) apply(ctx context.Context, account string) {
	normalized := normalizeAccount(account)
	if normalized == w.cache.Account() {
		return
	}

	w.log.WithField("account", normalized).Info("active account changed")
	owned := w.cache.SetAccount(ctx, normalized)

	w.mu.Lock()
	listeners := append([]AccountListener(nil), w.listeners...)
	w.mu.Unlock()

	for _, l := range listeners {
		l.AccountChanged(normalized, owned)
	}
}
