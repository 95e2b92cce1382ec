// Package chain provides JSON-RPC access to an Ethereum-compatible chain for
// the agent layer: balance reads, transfer submission, and receipt waiting.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

// Client is a minimal Ethereum JSON-RPC client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	chainID    uint64
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	ChainID uint64 // Arbitrum One: 42161
	Timeout time.Duration
}

// NewClient creates a new chain client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		chainID: cfg.ChainID,
	}, nil
}

// ChainID returns the configured chain identifier.
func (c *Client) ChainID() uint64 { return c.chainID }

// Call makes a JSON-RPC call to the node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// NodeChainID asks the node for its chain ID.
func (c *Client) NodeChainID(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, err
	}

	var hexID string
	if err := json.Unmarshal(result, &hexID); err != nil {
		return 0, err
	}
	id, err := decodeQuantity(hexID)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// BalanceAt returns the native-currency balance of an account in wei.
func (c *Client) BalanceAt(ctx context.Context, account string) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_getBalance", []interface{}{account, "latest"})
	if err != nil {
		return nil, err
	}

	var hexBalance string
	if err := json.Unmarshal(result, &hexBalance); err != nil {
		return nil, err
	}
	return decodeQuantity(hexBalance)
}

// TransactionReceipt returns the receipt for a transaction hash, or nil if the
// transaction is not yet included in a block.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, err
	}

	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// DefaultPollInterval is the default interval for polling transaction status.
const DefaultPollInterval = 2 * time.Second

// WaitForReceipt polls for a transaction receipt until it is available or the
// context is done. A missing receipt is transient and retried until the
// context deadline expires.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string, pollInterval time.Duration) (*Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.TransactionReceipt(ctx, txHash)
			if err != nil {
				return nil, err
			}
			if receipt == nil {
				continue
			}
			return receipt, nil
		}
	}
}
