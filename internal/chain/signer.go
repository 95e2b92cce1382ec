package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/vaultforge/agent_layer/internal/app/domain/wallet"
)

// NodeSigner implements wallet.Signer against a node (or wallet bridge) that
// holds the account's key and accepts eth_sendTransaction.
type NodeSigner struct {
	client       *Client
	pollInterval time.Duration
}

var _ wallet.Signer = (*NodeSigner)(nil)

// NewNodeSigner creates a signer backed by the given client.
func NewNodeSigner(client *Client, pollInterval time.Duration) *NodeSigner {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &NodeSigner{client: client, pollInterval: pollInterval}
}

// GetBalance returns the account's native balance in wei.
func (s *NodeSigner) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	balance, err := s.client.BalanceAt(ctx, account)
	if err != nil {
		return nil, classifyRPCError(err)
	}
	return balance, nil
}

// SendTransaction submits a value transfer and returns a handle for waiting
// on its confirmation.
func (s *NodeSigner) SendTransaction(ctx context.Context, tx wallet.Transfer) (wallet.PendingTransaction, error) {
	params := map[string]string{
		"from":  tx.From,
		"to":    tx.To,
		"value": encodeQuantity(tx.Value),
	}

	result, err := s.client.Call(ctx, "eth_sendTransaction", []interface{}{params})
	if err != nil {
		return nil, classifyRPCError(err)
	}

	var txHash string
	if err := json.Unmarshal(result, &txHash); err != nil {
		return nil, fmt.Errorf("decode transaction hash: %w", err)
	}

	return &pendingTransaction{
		client:       s.client,
		hash:         txHash,
		pollInterval: s.pollInterval,
	}, nil
}

// classifyRPCError maps node errors onto the wallet sentinel taxonomy.
func classifyRPCError(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		switch {
		case rpcErr.IsUserRejected():
			return fmt.Errorf("%w: %s", wallet.ErrRejected, rpcErr.Message)
		case rpcErr.IsInsufficientFunds():
			return fmt.Errorf("%w: %s", wallet.ErrInsufficientFunds, rpcErr.Message)
		default:
			return err
		}
	}
	// Anything that never produced an RPC response is a transport failure.
	return fmt.Errorf("%w: %v", wallet.ErrNetwork, err)
}

type pendingTransaction struct {
	client       *Client
	hash         string
	pollInterval time.Duration
}

var _ wallet.PendingTransaction = (*pendingTransaction)(nil)

func (p *pendingTransaction) Hash() string { return p.hash }

func (p *pendingTransaction) Wait(ctx context.Context) (wallet.Receipt, error) {
	receipt, err := p.client.WaitForReceipt(ctx, p.hash, p.pollInterval)
	if err != nil {
		return wallet.Receipt{}, classifyRPCError(err)
	}

	status := wallet.StatusFailed
	if receipt.Succeeded() {
		status = wallet.StatusSucceeded
	}
	return wallet.Receipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.Block(),
		Status:      status,
	}, nil
}
