// Package remote implements the entitlement operations against the external
// entitlement store's HTTP API.
package remote

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/vaultforge/agent_layer/internal/app/domain/entitlement"
	"github.com/vaultforge/agent_layer/internal/httputil"
)

// Client talks to the remote entitlement store. The API exposes exactly two
// operations: fetch the agents an account owns, and record a purchase. The
// server is responsible for idempotent record semantics; the client never
// retries automatically.
type Client struct {
	http *httputil.Client
}

// Config configures the remote client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a remote entitlement client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("entitlement store base URL required")
	}
	return &Client{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}),
	}, nil
}

// OwnedAgents fetches the agent IDs the account is entitled to. An unknown
// account yields an empty list.
func (c *Client) OwnedAgents(ctx context.Context, account string) ([]string, error) {
	path := "/api/get-purchased-agents?walletAddress=" + url.QueryEscape(account)
	resp, err := c.http.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch entitlements: %w", err)
	}

	var payload struct {
		PurchasedAgents []string `json:"purchasedAgents"`
	}
	if err := httputil.DecodeResponse(resp, &payload); err != nil {
		return nil, fmt.Errorf("fetch entitlements: %w", err)
	}
	return payload.PurchasedAgents, nil
}

// RecordEntitlement posts a purchase record to the store.
func (c *Client) RecordEntitlement(ctx context.Context, ent entitlement.Entitlement) (entitlement.Entitlement, error) {
	body := map[string]interface{}{
		"walletAddress":   ent.Account,
		"agentId":         ent.AgentID,
		"transactionHash": ent.TxHash,
		"chainId":         ent.ChainID,
		"purchaseDate":    ent.PurchasedAt.UTC().Format(time.RFC3339),
	}

	resp, err := c.http.Post(ctx, "/api/store-agent-purchase", body)
	if err != nil {
		return entitlement.Entitlement{}, fmt.Errorf("record entitlement: %w", err)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := httputil.DecodeResponse(resp, &result); err != nil {
		return entitlement.Entitlement{}, fmt.Errorf("record entitlement: %w", err)
	}
	if result.ID != "" {
		ent.ID = result.ID
	}
	return ent, nil
}
