// Package postgres implements the entitlement store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/vaultforge/agent_layer/internal/app/domain/entitlement"
	"github.com/vaultforge/agent_layer/internal/app/storage"
)

// Store implements storage.EntitlementStore on a SQL database handle.
type Store struct {
	db *sql.DB
}

var _ storage.EntitlementStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema is the DDL for the entitlements table. Deployments apply it once at
// provisioning time.
const Schema = `
CREATE TABLE IF NOT EXISTS agent_entitlements (
    id           TEXT PRIMARY KEY,
    account      TEXT NOT NULL,
    agent_id     TEXT NOT NULL,
    tx_hash      TEXT NOT NULL,
    chain_id     BIGINT NOT NULL,
    purchased_at TIMESTAMPTZ NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS agent_entitlements_account_idx
    ON agent_entitlements (lower(account));
`

// RecordEntitlement inserts a new entitlement row.
func (s *Store) RecordEntitlement(ctx context.Context, ent entitlement.Entitlement) (entitlement.Entitlement, error) {
	if ent.ID == "" {
		ent.ID = uuid.NewString()
	}
	ent.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_entitlements (id, account, agent_id, tx_hash, chain_id, purchased_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ent.ID, ent.Account, ent.AgentID, ent.TxHash, ent.ChainID, ent.PurchasedAt, ent.CreatedAt)
	if err != nil {
		return entitlement.Entitlement{}, err
	}
	return ent, nil
}

// ListEntitlements returns all entitlements held by an account.
func (s *Store) ListEntitlements(ctx context.Context, account string) ([]entitlement.Entitlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, agent_id, tx_hash, chain_id, purchased_at, created_at
		FROM agent_entitlements
		WHERE lower(account) = lower($1)
		ORDER BY purchased_at
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []entitlement.Entitlement
	for rows.Next() {
		var ent entitlement.Entitlement
		if err := rows.Scan(&ent.ID, &ent.Account, &ent.AgentID, &ent.TxHash, &ent.ChainID, &ent.PurchasedAt, &ent.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ent)
	}
	return result, rows.Err()
}

// OwnedAgents returns the distinct agent IDs the account holds.
func (s *Store) OwnedAgents(ctx context.Context, account string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT agent_id
		FROM agent_entitlements
		WHERE lower(account) = lower($1)
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
