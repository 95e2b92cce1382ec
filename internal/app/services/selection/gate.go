// Package selection tracks which single agent is currently chosen and
// reconciles that choice with entitlement state.
package selection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vaultforge/agent_layer/internal/app/domain/agent"
	"github.com/vaultforge/agent_layer/pkg/logger"
)

var (
	// ErrNotEntitled means the active selection is not backed by an
	// entitlement and cannot be confirmed.
	ErrNotEntitled = errors.New("account not entitled to selected agent")
	// ErrNoSelection means no agent is currently selected.
	ErrNoSelection = errors.New("no agent selected")
	// ErrUnavailable means the agent cannot be proposed because it is not
	// purchasable and not already owned.
	ErrUnavailable = errors.New("agent not available")
)

// State describes whether a selection is backed by an entitlement.
type State string

const (
	// StateProposed is a selection of an unowned agent; it requires a
	// successful purchase to become confirmed and must never be treated as
	// ownership downstream.
	StateProposed State = "proposed"
	// StateConfirmed is a selection the account owns.
	StateConfirmed State = "confirmed"
)

// Selection is the current choice and its entitlement backing.
type Selection struct {
	AgentID string `json:"agentId"`
	State   State  `json:"state"`
}

// Ownership is the entitlement view the gate consults.
type Ownership interface {
	Owns(account, agentID string) bool
	Owned(account string) []string
}

// Gate holds at most one selected agent. The selection always names a catalog
// entry or is empty.
type Gate struct {
	catalog   *agent.Catalog
	ownership Ownership
	log       *logger.Logger

	mu       sync.Mutex
	selected string
}

// NewGate creates a selection gate.
func NewGate(catalog *agent.Catalog, ownership Ownership, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.NewDefault("selection")
	}
	return &Gate{catalog: catalog, ownership: ownership, log: log}
}

// Current returns the active selection, classified against the account's
// entitlements, and false when nothing is selected.
func (g *Gate) Current(account string) (Selection, bool) {
	g.mu.Lock()
	selected := g.selected
	g.mu.Unlock()

	if selected == "" {
		return Selection{}, false
	}
	return g.classify(account, selected), true
}

// Select sets the active selection. Owned agents are always selectable.
// Unowned agents may be selected as a proposal, but only while they are
// purchasable; a proposed selection must not be treated as ownership.
func (g *Gate) Select(account, agentID string) (Selection, error) {
	a, err := g.catalog.Get(agentID)
	if err != nil {
		return Selection{}, err
	}

	owned := g.ownership.Owns(account, agentID)
	if !owned && !a.Available {
		return Selection{}, fmt.Errorf("agent %s: %w", agentID, ErrUnavailable)
	}

	g.mu.Lock()
	g.selected = agentID
	g.mu.Unlock()

	sel := g.classify(account, agentID)
	g.log.WithField("agent_id", agentID).
		WithField("state", string(sel.State)).
		Info("agent selected")
	return sel, nil
}

// AutoSelect picks an agent when none is selected and the account owns
// exactly one catalog agent. Owning several is ambiguous and deliberately
// left to the user.
func (g *Gate) AutoSelect(account string) (Selection, bool) {
	g.mu.Lock()
	selected := g.selected
	g.mu.Unlock()
	if selected != "" {
		return g.classify(account, selected), false
	}

	var owned []string
	for _, id := range g.ownership.Owned(account) {
		if g.catalog.Has(id) {
			owned = append(owned, id)
		}
	}
	if len(owned) != 1 {
		return Selection{}, false
	}

	g.mu.Lock()
	g.selected = owned[0]
	g.mu.Unlock()

	g.log.WithField("agent_id", owned[0]).Info("auto-selected owned agent")
	return g.classify(account, owned[0]), true
}

// Confirm returns the active selection only when the account owns it.
func (g *Gate) Confirm(account string) (string, error) {
	g.mu.Lock()
	selected := g.selected
	g.mu.Unlock()

	if selected == "" {
		return "", ErrNoSelection
	}
	if !g.ownership.Owns(account, selected) {
		return "", fmt.Errorf("agent %s: %w", selected, ErrNotEntitled)
	}
	return selected, nil
}

// Clear drops the active selection, e.g. when the account changes.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.selected = ""
	g.mu.Unlock()
}

func (g *Gate) classify(account, agentID string) Selection {
	state := StateProposed
	if g.ownership.Owns(account, agentID) {
		state = StateConfirmed
	}
	return Selection{AgentID: agentID, State: state}
}
