// Package storage defines the persistence interfaces of the agent layer.
package storage

import (
	"context"

	"github.com/vaultforge/agent_layer/internal/app/domain/entitlement"
)

// EntitlementStore persists purchase entitlements. Implementations must treat
// entitlements as append-only; records are never deleted.
type EntitlementStore interface {
	// RecordEntitlement stores a new entitlement. The store does not enforce
	// the one-entitlement-per-agent invariant; callers check before writing.
	RecordEntitlement(ctx context.Context, ent entitlement.Entitlement) (entitlement.Entitlement, error)

	// ListEntitlements returns all entitlements held by an account. An
	// unknown account yields an empty list, not an error.
	ListEntitlements(ctx context.Context, account string) ([]entitlement.Entitlement, error)

	// OwnedAgents returns the agent IDs an account is entitled to.
	OwnedAgents(ctx context.Context, account string) ([]string, error)
}
