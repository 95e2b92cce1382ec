// Package memory provides an in-memory entitlement store. It is safe for
// concurrent use and is primarily intended for tests and local development.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultforge/agent_layer/internal/app/domain/entitlement"
	"github.com/vaultforge/agent_layer/internal/app/storage"
)

// Store is an in-memory implementation of storage.EntitlementStore.
type Store struct {
	mu           sync.RWMutex
	entitlements map[string][]entitlement.Entitlement // account (lowercased) -> records
}

var _ storage.EntitlementStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		entitlements: make(map[string][]entitlement.Entitlement),
	}
}

func accountKey(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// RecordEntitlement appends an entitlement for the account.
func (s *Store) RecordEntitlement(_ context.Context, ent entitlement.Entitlement) (entitlement.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent.ID == "" {
		ent.ID = uuid.NewString()
	}
	ent.CreatedAt = time.Now().UTC()

	key := accountKey(ent.Account)
	s.entitlements[key] = append(s.entitlements[key], ent)
	return ent, nil
}

// ListEntitlements returns the account's entitlements.
func (s *Store) ListEntitlements(_ context.Context, account string) ([]entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.entitlements[accountKey(account)]
	return append([]entitlement.Entitlement(nil), records...), nil
}

// OwnedAgents returns the agent IDs the account holds entitlements for.
func (s *Store) OwnedAgents(_ context.Context, account string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.entitlements[accountKey(account)]
	ids := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, ent := range records {
		if _, dup := seen[ent.AgentID]; dup {
			continue
		}
		seen[ent.AgentID] = struct{}{}
		ids = append(ids, ent.AgentID)
	}
	return ids, nil
}
