// Package entitlements maintains the in-process view of which agents the
// active account owns.
package entitlements

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vaultforge/agent_layer/internal/app/metrics"
	"github.com/vaultforge/agent_layer/pkg/logger"
)

// Source fetches the agent IDs an account owns from the entitlement store.
type Source interface {
	OwnedAgents(ctx context.Context, account string) ([]string, error)
}

// DefaultHydrateTimeout bounds how long a hydration may block callers.
const DefaultHydrateTimeout = 10 * time.Second

// Cache holds the set of agent IDs the current account is known to own. It is
// hydrated from the entitlement store whenever the active account changes and
// mutated locally after a confirmed purchase. Hydration fails soft: on a
// store error the previous set is kept so the rest of the flow stays usable.
type Cache struct {
	source  Source
	timeout time.Duration
	log     *logger.Logger

	mu      sync.RWMutex
	account string
	owned   map[string]struct{}
}

// NewCache creates a cache backed by the given source.
func NewCache(source Source, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.NewDefault("entitlements")
	}
	return &Cache{
		source:  source,
		timeout: DefaultHydrateTimeout,
		log:     log,
		owned:   make(map[string]struct{}),
	}
}

// WithHydrateTimeout overrides the bounded loading window.
func (c *Cache) WithHydrateTimeout(d time.Duration) *Cache {
	if d > 0 {
		c.timeout = d
	}
	return c
}

func normalizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// Account returns the account the cache currently tracks.
func (c *Cache) Account() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// SetAccount switches the active account and re-hydrates. Prior entitlement
// knowledge is discarded first, so an account owned only by the previous
// account reports unowned even if hydration fails. An empty account clears
// the cache without hitting the store.
func (c *Cache) SetAccount(ctx context.Context, account string) []string {
	account = normalizeAccount(account)

	c.mu.Lock()
	c.account = account
	c.owned = make(map[string]struct{})
	c.mu.Unlock()

	if account == "" {
		return nil
	}
	return c.Hydrate(ctx)
}

// Hydrate refreshes the owned set from the store for the active account. On
// transport or server error the previous set is returned unchanged; the error
// is logged, never raised.
func (c *Cache) Hydrate(ctx context.Context) []string {
	c.mu.RLock()
	account := c.account
	c.mu.RUnlock()

	if account == "" || c.source == nil {
		return c.Owned(account)
	}

	hctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	ids, err := c.source.OwnedAgents(hctx, account)
	metrics.RecordHydration(time.Since(start), err == nil)
	if err != nil {
		c.log.WithError(err).
			WithField("account", account).
			Warn("entitlement hydration failed; keeping previous set")
		return c.Owned(account)
	}

	owned := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		owned[id] = struct{}{}
	}

	c.mu.Lock()
	// The account may have changed while the fetch was in flight; a stale
	// result must not repopulate the new account's set.
	if c.account == account {
		c.owned = owned
	}
	c.mu.Unlock()

	return c.Owned(account)
}

// Owns reports whether the given account owns the agent per the last
// hydrated set. Accounts other than the tracked one always report false.
func (c *Cache) Owns(account, agentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.account == "" || normalizeAccount(account) != c.account {
		return false
	}
	_, ok := c.owned[agentID]
	return ok
}

// RecordLocal marks the agent as owned by the given account immediately,
// independent of whether the remote persistence call succeeds, so callers see
// ownership even under store latency. If the account is no longer the tracked
// one the record is dropped; the purchase belongs to the account that paid,
// not to whoever is active now.
func (c *Cache) RecordLocal(account, agentID string) {
	account = normalizeAccount(account)

	c.mu.Lock()
	defer c.mu.Unlock()

	if account == "" || account != c.account {
		c.log.WithField("account", account).
			WithField("agent_id", agentID).
			Warn("purchase confirmed for an account no longer active; not caching")
		return
	}
	c.owned[agentID] = struct{}{}
}

// Owned returns the sorted agent IDs owned by the account, or nil for any
// account other than the tracked one.
func (c *Cache) Owned(account string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.account == "" || normalizeAccount(account) != c.account {
		return nil
	}
	ids := make([]string, 0, len(c.owned))
	for id := range c.owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
