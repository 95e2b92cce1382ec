package agent

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when an agent ID is not part of the catalog.
var ErrNotFound = errors.New("agent not found in catalog")

// Catalog is the read-only set of purchasable agents.
type Catalog struct {
	agents []Agent
	byID   map[string]int
}

// NewCatalog validates the given agents and builds a catalog. Risk levels
// are canonicalized, so entries may spell them in any case.
func NewCatalog(agents []Agent) (*Catalog, error) {
	list := append([]Agent(nil), agents...)
	byID := make(map[string]int, len(list))
	for i := range list {
		a := &list[i]
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog entry %d: id is required", i)
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate agent id %q", i, id)
		}
		if a.Name == "" {
			return nil, fmt.Errorf("agent %s: name is required", id)
		}
		a.RiskLevel = a.RiskLevel.Canonical()
		if !a.RiskLevel.Valid() {
			return nil, fmt.Errorf("agent %s: invalid risk level %q", id, a.RiskLevel)
		}
		if _, err := parsePrice(a.Price); err != nil {
			return nil, fmt.Errorf("agent %s: %w", id, err)
		}
		byID[id] = i
	}
	return &Catalog{agents: list, byID: byID}, nil
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc struct {
		Agents []Agent `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, fmt.Errorf("catalog %s defines no agents", path)
	}
	return NewCatalog(doc.Agents)
}

// Get returns the agent with the given ID.
func (c *Catalog) Get(id string) (Agent, error) {
	idx, ok := c.byID[id]
	if !ok {
		return Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return c.agents[idx], nil
}

// Has reports whether the catalog contains the ID.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// List returns all agents in catalog order.
func (c *Catalog) List() []Agent {
	return append([]Agent(nil), c.agents...)
}

// Len returns the number of agents.
func (c *Catalog) Len() int { return len(c.agents) }

// nativeDecimals is the number of decimals of the chain's native currency.
const nativeDecimals = 18

// PriceWei converts an agent's decimal price into the chain's smallest unit.
func (a Agent) PriceWei() (*big.Int, error) {
	return parsePrice(a.Price)
}

func parsePrice(price string) (*big.Int, error) {
	price = strings.TrimSpace(price)
	if price == "" {
		return nil, fmt.Errorf("price is required")
	}
	whole, frac, _ := strings.Cut(price, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > nativeDecimals {
		return nil, fmt.Errorf("price %q has more than %d decimal places", price, nativeDecimals)
	}
	digits := whole + frac + strings.Repeat("0", nativeDecimals-len(frac))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok || wei.Sign() < 0 {
		return nil, fmt.Errorf("invalid price %q", price)
	}
	return wei, nil
}

// DefaultAgents is the built-in catalog used when no catalog file is
// configured. Prices are denominated in ETH on Arbitrum One.
func DefaultAgents() []Agent {
	return []Agent{
		{
			ID:            "momentum-alpha",
			Name:          "Momentum Alpha",
			Strategy:      "momentum",
			Description:   "Rides medium-term price momentum with volatility-scaled position sizing.",
			WalletAddress: "0x7c3F6E1A9b42D8f0c5a1E2B94d76F8a3C0915bDa",
			Price:         "0.05",
			Features:      []string{"Volatility-scaled sizing", "Trailing stop-losses", "Multi-asset rotation"},
			RiskLevel:     RiskMedium,
			AvgReturns:    "12-18%",
			Available:     true,
		},
		{
			ID:            "meanrev-pro",
			Name:          "Mean Reversion Pro",
			Strategy:      "mean-reversion",
			Description:   "Fades short-term dislocations back to a rolling fair-value band.",
			WalletAddress: "0x1bE4a902cD7610a8E5F03D12b9774cF160A339e1",
			Price:         "0.03",
			Features:      []string{"Bollinger band entries", "Strict per-trade risk caps", "Intraday rebalancing"},
			RiskLevel:     RiskLow,
			AvgReturns:    "6-10%",
			Available:     true,
		},
		{
			ID:            "grid-master",
			Name:          "Grid Master",
			Strategy:      "grid-trading",
			Description:   "Places a ladder of resting orders around the mid-price and harvests the spread.",
			WalletAddress: "0x93D0Ab5E27C14cfB6604E8a12D5BeF1786c402A7",
			Price:         "0.04",
			Parameters:    map[string]interface{}{"grid_levels": 12, "grid_spacing_bps": 25},
			Features:      []string{"Configurable grid density", "Auto re-centering", "Fee-aware fills"},
			RiskLevel:     RiskLow,
			AvgReturns:    "5-9%",
			Available:     true,
		},
		{
			ID:            "trend-surfer",
			Name:          "Trend Surfer",
			Strategy:      "trend-following",
			Description:   "Follows long-horizon trends with pyramiding entries and wide stops.",
			WalletAddress: "0xFa81C55D9e3274B0dD213806f6aE8C10429Eb2c4",
			Price:         "0.05",
			Features:      []string{"Donchian breakouts", "Pyramiding entries", "Regime filter"},
			RiskLevel:     RiskMedium,
			AvgReturns:    "10-20%",
			Available:     true,
		},
		{
			ID:            "volatility-harvester",
			Name:          "Volatility Harvester",
			Strategy:      "volatility",
			Description:   "Sells richly-priced volatility and hedges tail risk dynamically.",
			WalletAddress: "",
			Price:         "0.08",
			Features:      []string{"Variance premium capture", "Dynamic tail hedges", "Stress-tested margining"},
			RiskLevel:     RiskHigh,
			AvgReturns:    "15-30%",
			Available:     false,
		},
		{
			ID:            "arb-hunter",
			Name:          "Arbitrage Hunter",
			Strategy:      "arbitrage",
			Description:   "Exploits cross-venue and triangular price discrepancies.",
			WalletAddress: "",
			Price:         "0.10",
			Features:      []string{"Cross-venue scanning", "Latency-aware routing", "Inventory balancing"},
			RiskLevel:     RiskHigh,
			AvgReturns:    "18-35%",
			Available:     false,
		},
	}
}

// DefaultCatalog builds the catalog from DefaultAgents. It panics on error
// because the built-in list is validated by tests.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultAgents())
	if err != nil {
		panic(fmt.Sprintf("default catalog invalid: %v", err))
	}
	return c
}
