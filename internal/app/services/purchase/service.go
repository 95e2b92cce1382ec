// Package purchase orchestrates the acquisition of an agent entitlement: it
// validates preconditions, submits the native-currency transfer, waits for
// on-chain confirmation, and records the entitlement.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultforge/agent_layer/internal/app/domain/agent"
	"github.com/vaultforge/agent_layer/internal/app/domain/entitlement"
	"github.com/vaultforge/agent_layer/internal/app/domain/wallet"
	"github.com/vaultforge/agent_layer/internal/app/metrics"
	"github.com/vaultforge/agent_layer/internal/app/services/entitlements"
	"github.com/vaultforge/agent_layer/pkg/logger"
)

// Recorder persists a confirmed entitlement to the remote store.
type Recorder interface {
	RecordEntitlement(ctx context.Context, ent entitlement.Entitlement) (entitlement.Entitlement, error)
}

// Selector marks an agent as the active selection for the purchasing account
// after a purchase.
type Selector interface {
	Select(account, agentID string) error
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(account, agentID string) error

// Select implements Selector.
func (f SelectorFunc) Select(account, agentID string) error { return f(account, agentID) }

// DefaultPersistTimeout bounds the best-effort persistence call so it cannot
// hang completion of an already-confirmed purchase.
const DefaultPersistTimeout = 15 * time.Second

// Config holds orchestrator settings.
type Config struct {
	// ChainID is the only network purchases are accepted on.
	ChainID uint64
	// PersistTimeout bounds the entitlement record call. Zero means
	// DefaultPersistTimeout.
	PersistTimeout time.Duration
}

// Service is the purchase orchestrator. It is safe for concurrent use;
// attempts on distinct agents run independently, while a second attempt for
// an agent already in flight is rejected immediately.
type Service struct {
	catalog  *agent.Catalog
	cache    *entitlements.Cache
	recorder Recorder
	selector Selector
	notifier Notifier
	cfg      Config
	log      *logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs a purchase orchestrator.
func New(catalog *agent.Catalog, cache *entitlements.Cache, recorder Recorder, selector Selector, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("purchase")
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	return &Service{
		catalog:  catalog,
		cache:    cache,
		recorder: recorder,
		selector: selector,
		notifier: noopNotifier{},
		cfg:      cfg,
		log:      log,
		inflight: make(map[string]struct{}),
	}
}

// WithNotifier attaches a phase-event notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = normalizeNotifier(n)
	return s
}

// Result reports the outcome of a successful purchase attempt.
type Result struct {
	AttemptID    string
	AgentID      string
	TxHash       string
	AlreadyOwned bool
	// Recorded is false when the entitlement record call failed; the
	// purchase is still successful and ownership is tracked locally.
	Recorded bool
}

// Purchase runs one attempt for the given agent using the supplied wallet
// session. The session is passed by the caller at call time rather than held
// by the service, so tests can substitute a fake signer.
//
// Cancellation through ctx is honored up to submission. Once the transfer has
// been sent the operation is irrevocable: persistence and completion run even
// if the caller has since given up, and only the confirmation wait itself can
// be abandoned via ctx.
func (s *Service) Purchase(ctx context.Context, session wallet.Session, agentID string) (Result, error) {
	start := time.Now()
	result, err := s.run(ctx, session, agentID)
	metrics.RecordPurchase(outcomeLabel(err), time.Since(start))
	return result, err
}

func (s *Service) run(ctx context.Context, session wallet.Session, agentID string) (Result, error) {
	attemptID := uuid.NewString()
	log := s.log.WithField("attempt_id", attemptID).WithField("agent_id", agentID)

	if !s.acquire(agentID) {
		return Result{}, &Error{AgentID: agentID, Phase: PhasePreconditions, Err: ErrAlreadyInProgress}
	}
	defer s.release(agentID)

	// Phase 1: preconditions.
	a, err := s.catalog.Get(agentID)
	if err != nil {
		return Result{}, &Error{AgentID: agentID, Phase: PhasePreconditions, Err: err}
	}

	s.emit(Event{AttemptID: attemptID, AgentID: agentID, Phase: PhasePreconditions,
		Message: fmt.Sprintf("Preparing to purchase %s...", a.Name)})

	if !session.Connected() {
		return Result{}, s.fail(attemptID, agentID, PhasePreconditions, &Error{AgentID: agentID, Phase: PhasePreconditions, Err: ErrNoAccount})
	}
	if session.ChainID != s.cfg.ChainID {
		return Result{}, s.fail(attemptID, agentID, PhasePreconditions,
			failf(agentID, PhasePreconditions, ErrWrongNetwork, "connected to chain %d, need %d", session.ChainID, s.cfg.ChainID))
	}
	if !a.Available {
		return Result{}, s.fail(attemptID, agentID, PhasePreconditions, &Error{AgentID: agentID, Phase: PhasePreconditions, Err: ErrUnavailable})
	}
	if a.WalletAddress == "" {
		return Result{}, s.fail(attemptID, agentID, PhasePreconditions, &Error{AgentID: agentID, Phase: PhasePreconditions, Err: ErrMisconfigured})
	}

	// Already owned is not a failure: skip straight to completion.
	if s.cache.Owns(session.Account, agentID) {
		log.Info("agent already owned; skipping purchase")
		s.emit(Event{AttemptID: attemptID, AgentID: agentID, Phase: PhaseCompletion,
			Message: fmt.Sprintf("You already own %s", a.Name), Terminal: true})
		s.selectAgent(log, session.Account, agentID)
		return Result{AttemptID: attemptID, AgentID: agentID, AlreadyOwned: true, Recorded: true}, nil
	}

	price, err := a.PriceWei()
	if err != nil {
		return Result{}, s.fail(attemptID, agentID, PhasePreconditions,
			failf(agentID, PhasePreconditions, ErrMisconfigured, "%v", err))
	}

	if err := ctx.Err(); err != nil {
		return Result{}, s.fail(attemptID, agentID, PhasePreconditions, &Error{AgentID: agentID, Phase: PhasePreconditions, Err: err})
	}

	// Phase 2: advisory balance check. The chain is the final arbiter; this
	// exists to fail fast with a clear message.
	s.emit(Event{AttemptID: attemptID, AgentID: agentID, Phase: PhaseBalanceCheck,
		Message: "Checking balance..."})

	balance, err := session.Signer.GetBalance(ctx, session.Account)
	if err != nil {
		return Result{}, s.fail(attemptID, agentID, PhaseBalanceCheck,
			failf(agentID, PhaseBalanceCheck, ErrNetwork, "balance query: %v", err))
	}
	if balance.Cmp(price) < 0 {
		return Result{}, s.fail(attemptID, agentID, PhaseBalanceCheck,
			failf(agentID, PhaseBalanceCheck, ErrInsufficientFunds, "balance %s wei, price %s wei", balance, price))
	}

	// Last cancellation point: user-driven cancellation is supported only
	// before a transfer is submitted.
	if err := ctx.Err(); err != nil {
		return Result{}, s.fail(attemptID, agentID, PhaseBalanceCheck, &Error{AgentID: agentID, Phase: PhaseBalanceCheck, Err: err})
	}

	// Phase 3: submission.
	s.emit(Event{AttemptID: attemptID, AgentID: agentID, Phase: PhaseSubmission,
		Message: fmt.Sprintf("Sending %s ETH to agent wallet...", a.Price)})

	pending, err := session.Signer.SendTransaction(ctx, wallet.Transfer{
		From:  session.Account,
		To:    a.WalletAddress,
		Value: price,
	})
	if err != nil {
		return Result{}, s.fail(attemptID, agentID, PhaseSubmission, classifySubmission(agentID, err))
	}
	log = log.WithField("tx_hash", pending.Hash())
	log.Info("transfer submitted")

	// Phase 4: confirmation wait. No timeout of its own; callers may bound
	// it through ctx, but the transfer may still confirm later.
	s.emit(Event{AttemptID: attemptID, AgentID: agentID, Phase: PhaseConfirmation,
		Message: "Transaction submitted. Waiting for confirmation..."})

	receipt, err := pending.Wait(ctx)
	if err != nil {
		return Result{}, s.fail(attemptID, agentID, PhaseConfirmation,
			failf(agentID, PhaseConfirmation, ErrNetwork, "confirmation wait: %v", err))
	}
	if receipt.Status != wallet.StatusSucceeded {
		return Result{}, s.fail(attemptID, agentID, PhaseConfirmation,
			failf(agentID, PhaseConfirmation, ErrTransactionFailed, "tx %s status %d", pending.Hash(), receipt.Status))
	}

	// The transfer is confirmed and cannot be undone. From here the attempt
	// always completes, detached from caller cancellation.
	dctx := context.WithoutCancel(ctx)

	// Phase 5: best-effort persistence. A store failure is logged, never
	// surfaced; local ownership is recorded regardless.
	s.emit(Event{AttemptID: attemptID, AgentID: agentID, Phase: PhasePersistence,
		Message: "Recording purchase..."})

	recorded := s.persist(dctx, log, entitlement.Entitlement{
		Account:     session.Account,
		AgentID:     agentID,
		TxHash:      pending.Hash(),
		ChainID:     session.ChainID,
		PurchasedAt: time.Now().UTC(),
	})
	s.cache.RecordLocal(session.Account, agentID)

	// Phase 6: completion.
	s.selectAgent(log, session.Account, agentID)
	s.emit(Event{AttemptID: attemptID, AgentID: agentID, Phase: PhaseCompletion,
		Message: fmt.Sprintf("%s purchased successfully!", a.Name), Terminal: true})
	log.Info("purchase completed")

	return Result{
		AttemptID: attemptID,
		AgentID:   agentID,
		TxHash:    pending.Hash(),
		Recorded:  recorded,
	}, nil
}

func (s *Service) persist(ctx context.Context, log *logger.Logger, ent entitlement.Entitlement) bool {
	if s.recorder == nil {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()

	if _, err := s.recorder.RecordEntitlement(pctx, ent); err != nil {
		log.WithError(err).Warn("entitlement record failed; purchase still successful")
		return false
	}
	return true
}

func (s *Service) selectAgent(log *logger.Logger, account, agentID string) {
	if s.selector == nil {
		return
	}
	if err := s.selector.Select(account, agentID); err != nil {
		log.WithError(err).Warn("post-purchase selection failed")
	}
}

// classifySubmission maps signer errors onto the purchase taxonomy. Errors
// the signer did not classify pass through with their message intact.
func classifySubmission(agentID string, err error) *Error {
	switch {
	case errors.Is(err, wallet.ErrRejected):
		return failf(agentID, PhaseSubmission, ErrUserRejected, "%v", err)
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return failf(agentID, PhaseSubmission, ErrInsufficientFunds, "%v", err)
	case errors.Is(err, wallet.ErrNetwork):
		return failf(agentID, PhaseSubmission, ErrNetwork, "%v", err)
	default:
		return &Error{AgentID: agentID, Phase: PhaseSubmission, Err: err}
	}
}

func (s *Service) acquire(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[agentID]; busy {
		return false
	}
	s.inflight[agentID] = struct{}{}
	return true
}

func (s *Service) release(agentID string) {
	s.mu.Lock()
	delete(s.inflight, agentID)
	s.mu.Unlock()
}

// InFlight reports whether an attempt is currently running for the agent.
func (s *Service) InFlight(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[agentID]
	return busy
}

func (s *Service) emit(event Event) {
	s.notifier.Notify(event)
}

func (s *Service) fail(attemptID, agentID string, phase Phase, err *Error) error {
	s.log.WithError(err).
		WithField("attempt_id", attemptID).
		WithField("agent_id", agentID).
		WithField("phase", phase.String()).
		Warn("purchase attempt failed")
	s.emit(Event{AttemptID: attemptID, AgentID: agentID, Phase: phase,
		Message: err.Err.Error(), Terminal: true, Err: err})
	return err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAlreadyInProgress):
		return "in_progress"
	case errors.Is(err, ErrNoAccount), errors.Is(err, ErrWrongNetwork),
		errors.Is(err, ErrUnavailable), errors.Is(err, ErrMisconfigured):
		return "precondition"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUserRejected):
		return "rejected"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrTransactionFailed):
		return "tx_failed"
	default:
		return "unknown"
	}
}
