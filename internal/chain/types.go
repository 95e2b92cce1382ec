package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// userRejectedCode is the EIP-1193 code wallets use when the user declines a
// signing prompt.
const userRejectedCode = 4001

// IsUserRejected reports whether the RPC error indicates user cancellation.
func (e *RPCError) IsUserRejected() bool {
	return e.Code == userRejectedCode ||
		strings.Contains(strings.ToLower(e.Message), "user rejected") ||
		strings.Contains(strings.ToLower(e.Message), "user denied")
}

// IsInsufficientFunds reports whether the RPC error indicates the sender
// cannot cover value plus gas.
func (e *RPCError) IsInsufficientFunds() bool {
	return strings.Contains(strings.ToLower(e.Message), "insufficient funds")
}

// Receipt is the decoded eth_getTransactionReceipt result.
type Receipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber string `json:"blockNumber"`
	Status      string `json:"status"`
}

// Succeeded reports whether the receipt status is 0x1.
func (r Receipt) Succeeded() bool {
	v, err := decodeQuantity(r.Status)
	return err == nil && v.Cmp(big.NewInt(1)) == 0
}

// Block returns the inclusion block number, or 0 if it cannot be decoded.
func (r Receipt) Block() uint64 {
	v, err := decodeQuantity(r.BlockNumber)
	if err != nil {
		return 0
	}
	return v.Uint64()
}

// encodeQuantity renders a big integer as a 0x-prefixed hex quantity.
func encodeQuantity(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

// decodeQuantity parses a 0x-prefixed hex quantity.
func decodeQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	hexDigits := strings.TrimPrefix(s, "0x")
	if hexDigits == "" || hexDigits == s {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	v, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
