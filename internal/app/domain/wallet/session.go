// Package wallet defines the capability surface the purchase flow consumes
// from a connected wallet: an account, a chain, and a transaction signer.
// Sessions are handed to the orchestrator explicitly at call time so tests can
// substitute a fake signer.
package wallet

import (
	"context"
	"errors"
	"math/big"
)

// Signer-side failure classes. Implementations wrap their transport- or
// user-level errors with these sentinels so callers can classify submissions
// without knowing the backend.
var (
	// ErrRejected means the user declined the signing prompt.
	ErrRejected = errors.New("transaction rejected by user")
	// ErrInsufficientFunds means the signer itself refused the transfer for
	// lack of balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNetwork marks transport failures between the signer and the chain.
	ErrNetwork = errors.New("network error")
)

// Receipt status values. The chain reports 1 for a successful inclusion.
type Status uint64

const (
	StatusFailed    Status = 0
	StatusSucceeded Status = 1
)

// Receipt is the terminal inclusion result of a submitted transfer.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      Status
}

// Transfer is a single native-currency value transfer with no payload.
type Transfer struct {
	From  string
	To    string
	Value *big.Int
}

// PendingTransaction is a submitted but not yet confirmed transfer.
type PendingTransaction interface {
	// Hash returns the transaction hash assigned at submission.
	Hash() string
	// Wait blocks until the transfer reaches a terminal inclusion status.
	// It has no timeout of its own; callers bound it through ctx.
	Wait(ctx context.Context) (Receipt, error)
}

// Signer is the transaction-signing capability of a connected wallet.
type Signer interface {
	GetBalance(ctx context.Context, account string) (*big.Int, error)
	SendTransaction(ctx context.Context, tx Transfer) (PendingTransaction, error)
}

// Session is the ephemeral wallet context: who is connected, on which chain,
// and how to sign. A zero Session means no wallet is connected.
type Session struct {
	Account string
	ChainID uint64
	Signer  Signer
}

// Connected reports whether the session carries a usable account and signer.
func (s Session) Connected() bool {
	return s.Account != "" && s.Signer != nil
}
