// Package entitlement defines the durable record that an account has paid for
// an agent.
package entitlement

import "time"

// Entitlement ties an account to a purchased agent via the confirming
// transaction. For a given account there is at most one entitlement per agent;
// the purchase orchestrator checks before writing because the store does not
// enforce idempotency. Entitlements are never deleted.
type Entitlement struct {
	ID          string    `json:"id,omitempty"`
	Account     string    `json:"walletAddress"`
	AgentID     string    `json:"agentId"`
	TxHash      string    `json:"transactionHash"`
	ChainID     uint64    `json:"chainId"`
	PurchasedAt time.Time `json:"purchaseDate"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}
