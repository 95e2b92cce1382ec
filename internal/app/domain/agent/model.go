// Package agent defines the trading agent catalog: the fixed set of
// purchasable strategies, each with a price and payout wallet.
package agent

import "strings"

// RiskLevel classifies how aggressive an agent's strategy is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Valid reports whether the risk level is one of the known tiers.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Canonical maps case-insensitive spellings onto the exported tiers, so
// catalog files may spell risk levels however they like. Unknown values pass
// through unchanged and fail Valid.
func (r RiskLevel) Canonical() RiskLevel {
	switch strings.ToLower(strings.TrimSpace(string(r))) {
	case "low":
		return RiskLow
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	}
	return r
}

// Agent is a purchasable trading strategy. Agents are defined at build time
// (or loaded from a catalog file at startup) and never mutated at runtime.
type Agent struct {
	ID            string                 `yaml:"id" json:"id"`
	Name          string                 `yaml:"name" json:"name"`
	Strategy      string                 `yaml:"strategy" json:"strategy"`
	Description   string                 `yaml:"description" json:"description"`
	WalletAddress string                 `yaml:"wallet_address" json:"walletAddress"`
	Price         string                 `yaml:"price" json:"price"` // native currency, decimal string
	Parameters    map[string]interface{} `yaml:"parameters" json:"parameters,omitempty"`
	Features      []string               `yaml:"features" json:"features,omitempty"`
	RiskLevel     RiskLevel              `yaml:"risk_level" json:"riskLevel"`
	AvgReturns    string                 `yaml:"avg_returns" json:"avgReturns,omitempty"`
	Available     bool                   `yaml:"available" json:"available"`
}
