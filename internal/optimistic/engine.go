// Package optimistic runs the counter-bond protocol for disputes whose
// reason codes need human judgment. A challenger escalates a hub dispute;
// the executor has a fixed window to match the bond, after which an
// arbitrator decides, with timeout paths on both sides so that
// counterparty or arbitrator non-participation never freezes funds.
package optimistic

import (
	"sync"

	"github.com/intent-solutions-io/irsb-protocol/internal/authority"
	"github.com/intent-solutions-io/irsb-protocol/internal/bank"
	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/escrow"
	"github.com/intent-solutions-io/irsb-protocol/internal/hub"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/registry"
	"github.com/intent-solutions-io/irsb-protocol/internal/safemath"
	"github.com/intent-solutions-io/irsb-protocol/internal/store"
	"github.com/intent-solutions-io/irsb-protocol/pkg/log"
)

// Dispute is one optimistic dispute. Exactly one active dispute exists per
// receipt; once resolved the status is terminal.
type Dispute struct {
	ID         crypto.Hash
	ReceiptID  crypto.Hash
	ExecutorID protocol.ExecutorID
	Operator   protocol.Address
	Challenger protocol.Address
	Reason     protocol.ReasonCode

	Bond        uint64 // challenger bond, already held by the hub
	CounterBond uint64 // 0 until posted
	LockedStake uint64

	OpenedAt            ledgertime.Time
	CounterBondDeadline ledgertime.Time
	ArbitrationDeadline ledgertime.Time
	EvidenceDeadline    ledgertime.Time

	Status protocol.OptimisticStatus
}

// Engine is the optimistic dispute engine. It owns the counter-bond game
// and its economics. Every resolution path first calls back into the hub,
// which validates that the dispute is still unresolved and flips its
// resolved flag; only then do funds move, so a dispute settled hub-side
// can never pay out a second time here.
type Engine struct {
	mu       sync.Mutex
	clock    ledgertime.Clock
	registry *registry.Registry
	bank     *bank.Ledger
	escrows  *escrow.Ledger
	trail    *store.Trail
	roles    *authority.Roles
	hub      *hub.Hub

	registryCap authority.Capability
	escrowCap   authority.Capability
	hubCap      authority.Capability

	// settlement is the shared settlement account also used by the hub, so
	// the challenger bond referenced at escalation can be paid out from here.
	settlement protocol.Address

	disputes  map[crypto.Hash]*Dispute
	byReceipt map[crypto.Hash]crypto.Hash
}

// Config carries the engine's collaborators.
type Config struct {
	Clock       ledgertime.Clock
	Registry    *registry.Registry
	Bank        *bank.Ledger
	Escrows     *escrow.Ledger
	Trail       *store.Trail
	Roles       *authority.Roles
	Hub         *hub.Hub
	RegistryCap authority.Capability
	EscrowCap   authority.Capability
	HubCap      authority.Capability
	Settlement  protocol.Address
}

func New(cfg Config) *Engine {
	return &Engine{
		clock:       cfg.Clock,
		registry:    cfg.Registry,
		bank:        cfg.Bank,
		escrows:     cfg.Escrows,
		trail:       cfg.Trail,
		roles:       cfg.Roles,
		hub:         cfg.Hub,
		registryCap: cfg.RegistryCap,
		escrowCap:   cfg.EscrowCap,
		hubCap:      cfg.HubCap,
		settlement:  cfg.Settlement,
		disputes:    make(map[crypto.Hash]*Dispute),
		byReceipt:   make(map[crypto.Hash]crypto.Hash),
	}
}

// Open escalates a hub dispute into the counter-bond protocol. The caller
// must be the original challenger; the bond already paid to the hub is
// referenced, not re-collected. Opens the counter-bond and evidence
// windows.
func (e *Engine) Open(receiptID crypto.Hash, caller protocol.Address) (crypto.Hash, error) {
	if e.roles.Paused() {
		return crypto.Hash{}, ErrPaused
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.byReceipt[receiptID]; exists {
		return crypto.Hash{}, ErrDisputeActive
	}

	// The hub validates receipt state, reason class and challenger identity,
	// and marks the dispute escalated exactly once.
	esc, err := e.hub.Escalate(e.hubCap, receiptID, caller)
	if err != nil {
		return crypto.Hash{}, err
	}

	now := e.clock.Now()
	id := deriveID(receiptID, caller, now)
	e.disputes[id] = &Dispute{
		ID:                  id,
		ReceiptID:           receiptID,
		ExecutorID:          esc.ExecutorID,
		Operator:            esc.Operator,
		Challenger:          esc.Challenger,
		Reason:              esc.Reason,
		Bond:                esc.Bond,
		LockedStake:         esc.LockedStake,
		OpenedAt:            now,
		CounterBondDeadline: now.Add(protocol.CounterBondWindow),
		EvidenceDeadline:    now.Add(protocol.EvidenceWindow),
		Status:              protocol.OptimisticOpen,
	}
	e.byReceipt[receiptID] = id

	log.Disputes.Info().
		Str("dispute", id.String()).
		Str("receipt", receiptID.String()).
		Str("challenger", caller.String()).
		Msg("optimistic dispute opened")
	return id, nil
}

// PostCounterBond lets the disputed executor's operator contest the claim
// by matching the challenger bond before the counter-bond deadline.
// Transitions Open to Contested and starts the arbitration window.
func (e *Engine) PostCounterBond(disputeID crypto.Hash, caller protocol.Address, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dispute(disputeID)
	if err != nil {
		return err
	}
	if d.Status != protocol.OptimisticOpen {
		return ErrNotOpen
	}
	if caller != d.Operator {
		return ErrNotOperator
	}
	now := e.clock.Now()
	if now.After(d.CounterBondDeadline) {
		return ErrCounterBondWindowClosed
	}
	if amount != d.Bond {
		return ErrCounterBondMismatch
	}

	if err := e.bank.Transfer(d.Operator, e.settlement, amount); err != nil {
		return err
	}
	d.CounterBond = amount
	d.Status = protocol.OptimisticContested
	d.ArbitrationDeadline = now.Add(protocol.ArbitrationWindow)

	log.Disputes.Info().
		Str("dispute", disputeID.String()).
		Uint64("counterBond", amount).
		Msg("counter-bond posted")
	return nil
}

// ResolveByTimeout settles an uncontested dispute once the counter-bond
// deadline passes. Callable by anyone. The executor is presumed at fault
// for failing to contest: what remains of its locked stake is slashed to
// the challenger, the bond is returned and any linked escrow refunds to
// its depositor.
func (e *Engine) ResolveByTimeout(disputeID crypto.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dispute(disputeID)
	if err != nil {
		return err
	}
	if d.Status != protocol.OptimisticOpen {
		return ErrNotOpen
	}
	if !e.clock.Now().After(d.CounterBondDeadline) {
		return ErrCounterBondWindowOpen
	}

	_, locked, err := e.registry.Stakes(d.ExecutorID)
	if err != nil {
		return err
	}

	d.Status = protocol.OptimisticChallengerWins
	if err := e.hub.CompleteEscalated(e.hubCap, d.ReceiptID, true, locked, d.Reason); err != nil {
		d.Status = protocol.OptimisticOpen
		return err
	}
	if err := e.payChallenger(d, locked); err != nil {
		return err
	}

	log.Disputes.Warn().
		Str("dispute", disputeID.String()).
		Uint64("slashed", locked).
		Msg("resolved by counter-bond timeout")
	return nil
}

// ResolveByArbitration settles a contested dispute with the arbitrator's
// verdict and stated reason, which is recorded in the settlement trail and
// may differ from the code the dispute was opened under. At fault,
// lockedStake * slashPercentage / 100 is slashed and split 70/20/10
// between beneficiary, treasury and arbitrator, the counter-bond is
// awarded to the challenger along with the returned bond, the remaining
// stake unlocks and the escrow refunds to its depositor. Not at fault,
// everything returns to the executor and the challenger's bond is
// forfeited to it.
func (e *Engine) ResolveByArbitration(disputeID crypto.Hash, caller protocol.Address, solverFault bool, slashPercentage uint8, reason protocol.ReasonCode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dispute(disputeID)
	if err != nil {
		return err
	}
	if d.Status != protocol.OptimisticContested {
		return ErrNotContested
	}
	if caller != e.roles.Arbitrator() {
		return ErrNotArbitrator
	}

	if !solverFault {
		return e.settleSolverWins(d, reason)
	}
	if slashPercentage == 0 || slashPercentage > 100 {
		return ErrBadSlashPercentage
	}
	return e.settleChallengerWins(d, uint64(slashPercentage), caller, reason)
}

// ResolveContestedByTimeout settles a contested dispute the arbitrator
// never ruled on. Callable by anyone after the arbitration deadline.
// Defaults to challenger-wins, and the executor's counter-bond goes to
// the challenger as a penalty for arbitrator failure.
func (e *Engine) ResolveContestedByTimeout(disputeID crypto.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dispute(disputeID)
	if err != nil {
		return err
	}
	if d.Status != protocol.OptimisticContested {
		return ErrNotContested
	}
	if !e.clock.Now().After(d.ArbitrationDeadline) {
		return ErrArbitrationWindowOpen
	}

	_, locked, err := e.registry.Stakes(d.ExecutorID)
	if err != nil {
		return err
	}

	d.Status = protocol.OptimisticChallengerWins
	if err := e.hub.CompleteEscalated(e.hubCap, d.ReceiptID, true, locked, d.Reason); err != nil {
		d.Status = protocol.OptimisticContested
		return err
	}
	if err := e.payChallenger(d, locked); err != nil {
		return err
	}
	if d.CounterBond > 0 {
		if err := e.bank.Transfer(e.settlement, d.Challenger, d.CounterBond); err != nil {
			return err
		}
	}

	log.Disputes.Warn().
		Str("dispute", disputeID.String()).
		Msg("resolved by arbitration timeout, challenger wins by default")
	return nil
}

// SubmitEvidence appends an evidence commitment to the dispute's log.
// Either party, only while the dispute is live and the evidence window is
// open. Prior evidence is never overwritten.
func (e *Engine) SubmitEvidence(disputeID crypto.Hash, party protocol.Address, commitment crypto.Hash) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dispute(disputeID)
	if err != nil {
		return 0, err
	}
	if d.Status.Terminal() {
		return 0, ErrNotOpen
	}
	if party != d.Challenger && party != d.Operator {
		return 0, ErrNotParty
	}
	now := e.clock.Now()
	if now.After(d.EvidenceDeadline) {
		return 0, ErrEvidenceWindowClosed
	}
	return e.trail.AppendEvidence(disputeID, party, commitment, now)
}

// Dispute returns a copy of an optimistic dispute.
func (e *Engine) Dispute(disputeID crypto.Hash) (Dispute, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.dispute(disputeID)
	if err != nil {
		return Dispute{}, err
	}
	return *d, nil
}

// ByReceipt returns the optimistic dispute opened for a receipt, if any.
func (e *Engine) ByReceipt(receiptID crypto.Hash) (Dispute, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.byReceipt[receiptID]
	if !ok {
		return Dispute{}, false
	}
	return *e.disputes[id], true
}

// payChallenger slashes the given remainder of the locked pool to the
// challenger and returns the challenger's bond, refunding any linked
// escrow to its depositor. Shared by both timeout paths; runs only after
// the hub has marked the dispute resolved.
func (e *Engine) payChallenger(d *Dispute, locked uint64) error {
	if locked > 0 {
		if err := e.registry.Slash(e.registryCap, d.ExecutorID, locked, d.ReceiptID, d.Reason, d.Challenger); err != nil {
			return err
		}
	}
	if err := e.bank.Transfer(e.settlement, d.Challenger, d.Bond); err != nil {
		return err
	}
	if held, ok := e.escrows.ByReceipt(d.ReceiptID); ok {
		if err := e.escrows.Refund(e.escrowCap, held.ID, held.Depositor); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) settleChallengerWins(d *Dispute, slashPercentage uint64, arbitrator protocol.Address, reason protocol.ReasonCode) error {
	_, locked, err := e.registry.Stakes(d.ExecutorID)
	if err != nil {
		return err
	}
	slashAmount := locked * slashPercentage / 100

	beneficiary := d.Challenger
	held, hasEscrow := e.escrows.ByReceipt(d.ReceiptID)
	if hasEscrow {
		beneficiary = held.Depositor
	}

	// The hub flips the resolved flag before any funds move
	d.Status = protocol.OptimisticChallengerWins
	if err := e.hub.CompleteEscalated(e.hubCap, d.ReceiptID, true, slashAmount, reason); err != nil {
		d.Status = protocol.OptimisticContested
		return err
	}

	if slashAmount > 0 {
		shares, err := safemath.SplitBps(slashAmount,
			protocol.ArbitrationSplit[0], protocol.ArbitrationSplit[1], protocol.ArbitrationSplit[2])
		if err != nil {
			return err
		}
		if err := e.registry.Slash(e.registryCap, d.ExecutorID, slashAmount, d.ReceiptID, reason, e.settlement); err != nil {
			return err
		}
		for i, recipient := range []protocol.Address{beneficiary, e.roles.Treasury(), arbitrator} {
			if shares[i] == 0 {
				continue
			}
			if err := e.bank.Transfer(e.settlement, recipient, shares[i]); err != nil {
				return err
			}
		}
	}
	if remaining := locked - slashAmount; remaining > 0 && e.hub.OpenDisputeCount(d.ExecutorID) == 0 {
		if err := e.registry.UnlockStake(e.registryCap, d.ExecutorID, remaining); err != nil {
			return err
		}
	}

	// Challenger recovers its bond and wins the counter-bond
	if err := e.bank.Transfer(e.settlement, d.Challenger, d.Bond+d.CounterBond); err != nil {
		return err
	}
	if hasEscrow {
		if err := e.escrows.Refund(e.escrowCap, held.ID, held.Depositor); err != nil {
			return err
		}
	}

	log.Disputes.Warn().
		Str("dispute", d.ID.String()).
		Uint64("slashed", slashAmount).
		Str("reason", reason.String()).
		Msg("arbitration found executor at fault")
	return nil
}

func (e *Engine) settleSolverWins(d *Dispute, reason protocol.ReasonCode) error {
	_, locked, err := e.registry.Stakes(d.ExecutorID)
	if err != nil {
		return err
	}

	d.Status = protocol.OptimisticSolverWins
	if err := e.hub.CompleteEscalated(e.hubCap, d.ReceiptID, false, 0, reason); err != nil {
		d.Status = protocol.OptimisticContested
		return err
	}

	// The pool stays locked while other disputes against the executor
	// remain unresolved
	if locked > 0 && e.hub.OpenDisputeCount(d.ExecutorID) == 0 {
		if err := e.registry.UnlockStake(e.registryCap, d.ExecutorID, locked); err != nil {
			return err
		}
	}
	// Counter-bond returns to the executor; the challenger's bond is
	// forfeited to the executor as the griefing penalty
	if err := e.bank.Transfer(e.settlement, d.Operator, d.CounterBond+d.Bond); err != nil {
		return err
	}
	if held, ok := e.escrows.ByReceipt(d.ReceiptID); ok {
		if err := e.escrows.Release(e.escrowCap, held.ID, d.Operator); err != nil {
			return err
		}
	}

	log.Disputes.Info().
		Str("dispute", d.ID.String()).
		Msg("arbitration cleared executor")
	return nil
}

func (e *Engine) dispute(id crypto.Hash) (*Dispute, error) {
	d, ok := e.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	return d, nil
}

func deriveID(receiptID crypto.Hash, challenger protocol.Address, at ledgertime.Time) crypto.Hash {
	buf := make([]byte, 0, len(receiptID)+len(challenger)+8)
	buf = append(buf, receiptID[:]...)
	buf = append(buf, challenger[:]...)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(uint64(at)>>(8*i)))
	}
	return crypto.HashData(buf)
}
