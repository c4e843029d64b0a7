// Package hub accepts signed execution receipts and runs their lifecycle:
// challenge window, deterministic dispute resolution, finalization and the
// escalation callback used by the optimistic dispute engine.
//
// Receipt states move Posted -> {Finalized | Disputed} and
// Disputed -> {Finalized | Slashed}, never backwards. Receipts are never
// deleted; every transition is mirrored into the audit trail.
package hub

import (
	"crypto/ed25519"
	"sync"

	"github.com/intent-solutions-io/irsb-protocol/internal/authority"
	"github.com/intent-solutions-io/irsb-protocol/internal/bank"
	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/escrow"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/receipt"
	"github.com/intent-solutions-io/irsb-protocol/internal/registry"
	"github.com/intent-solutions-io/irsb-protocol/internal/reputation"
	"github.com/intent-solutions-io/irsb-protocol/internal/safemath"
	"github.com/intent-solutions-io/irsb-protocol/internal/store"
	"github.com/intent-solutions-io/irsb-protocol/pkg/log"
)

// Record is a posted receipt and its lifecycle state.
type Record struct {
	Receipt           receipt.Receipt
	Status            protocol.ReceiptStatus
	DeclaredVolume    uint64
	PostedAt          ledgertime.Time
	ChallengeDeadline ledgertime.Time
	LockedStake       uint64 // stake this dispute added to the locked pool
}

// Dispute is the deterministic dispute record, tied 1:1 to a receipt.
// Resolved exactly once, then immutable.
type Dispute struct {
	ReceiptID  crypto.Hash
	Challenger protocol.Address
	Reason     protocol.ReasonCode
	Evidence   crypto.Hash
	Bond       uint64
	OpenedAt   ledgertime.Time
	Escalated  bool
	Resolved   bool
}

// Observation is a settlement fact recorded by an authorized adapter,
// used to mechanically check the wrong-destination/asset/recipient codes
// against the receipt's commitments.
type Observation struct {
	Destination crypto.Hash
	Asset       crypto.Hash
	Recipient   crypto.Hash
	SettledAt   ledgertime.Time
}

// Hub is the receipt hub state machine. Calls execute atomically and
// serially; state mutation always completes before any value movement.
// Reputation outcomes are published only after the hub's lock is
// released, so a slow external registry never stalls settlement.
type Hub struct {
	mu       sync.Mutex
	clock    ledgertime.Clock
	registry *registry.Registry
	bank     *bank.Ledger
	escrows  *escrow.Ledger
	trail    *store.Trail
	roles    *authority.Roles

	// resolvers may escalate and settle disputes; observers may only
	// record settlement observations. Separate sets keep an adapter
	// credential useless on the dispute surface.
	resolvers *authority.Set
	observers *authority.Set

	registryCap authority.Capability
	escrowCap   authority.Capability
	publisher   reputation.Publisher

	// settlement is the protocol settlement account. Challenger bonds and
	// slashed stake pass through it before distribution.
	settlement protocol.Address

	receipts     map[crypto.Hash]*Record
	disputes     map[crypto.Hash]*Dispute
	observations map[crypto.Hash]Observation

	// openDisputes counts unresolved disputes per executor. Concurrent
	// disputes share one locked-stake pool, which unlocks only when the
	// last of them resolves in the executor's favor.
	openDisputes map[protocol.ExecutorID]int
}

// Config carries the hub's collaborators.
type Config struct {
	Clock       ledgertime.Clock
	Registry    *registry.Registry
	Bank        *bank.Ledger
	Escrows     *escrow.Ledger
	Trail       *store.Trail
	Roles       *authority.Roles
	Resolvers   *authority.Set
	Observers   *authority.Set
	RegistryCap authority.Capability
	EscrowCap   authority.Capability
	Settlement  protocol.Address
	Publisher   reputation.Publisher
}

func New(cfg Config) *Hub {
	return &Hub{
		clock:        cfg.Clock,
		registry:     cfg.Registry,
		bank:         cfg.Bank,
		escrows:      cfg.Escrows,
		trail:        cfg.Trail,
		roles:        cfg.Roles,
		resolvers:    cfg.Resolvers,
		observers:    cfg.Observers,
		registryCap:  cfg.RegistryCap,
		escrowCap:    cfg.EscrowCap,
		publisher:    cfg.Publisher,
		settlement:   cfg.Settlement,
		receipts:     make(map[crypto.Hash]*Record),
		disputes:     make(map[crypto.Hash]*Dispute),
		observations: make(map[crypto.Hash]Observation),
		openDisputes: make(map[protocol.ExecutorID]int),
	}
}

// PostReceipt validates and stores a signed receipt, opening its challenge
// window. The executor must be active, the signature must match the bound
// operator, the content hash must be fresh, the expiry in the future and
// the executor's total stake must cover the declared volume.
func (h *Hub) PostReceipt(rec receipt.Receipt, declaredVolume uint64) (crypto.Hash, error) {
	if h.roles.Paused() {
		return crypto.Hash{}, ErrPaused
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	status, err := h.registry.Status(rec.ExecutorID)
	if err != nil {
		return crypto.Hash{}, err
	}
	if status != protocol.ExecutorActive {
		return crypto.Hash{}, ErrExecutorNotActive
	}

	operator, err := h.registry.OperatorOf(rec.ExecutorID)
	if err != nil {
		return crypto.Hash{}, err
	}
	if !rec.VerifySignature(ed25519.PublicKey(operator[:])) {
		return crypto.Hash{}, ErrBadSignature
	}

	id := rec.Hash()
	if _, exists := h.receipts[id]; exists {
		return crypto.Hash{}, ErrDuplicateReceipt
	}

	now := h.clock.Now()
	if !rec.Expiry.After(now) {
		return crypto.Hash{}, ErrReceiptExpired
	}

	available, locked, err := h.registry.Stakes(rec.ExecutorID)
	if err != nil {
		return crypto.Hash{}, err
	}
	if available+locked < declaredVolume {
		return crypto.Hash{}, ErrStakeBelowVolume
	}

	record := &Record{
		Receipt:           rec,
		Status:            protocol.ReceiptPosted,
		DeclaredVolume:    declaredVolume,
		PostedAt:          now,
		ChallengeDeadline: now.Add(protocol.ChallengeWindow),
	}
	h.receipts[id] = record

	if err := h.trail.PutReceipt(store.ReceiptRecord{
		Receipt:        rec,
		DeclaredVolume: declaredVolume,
		PostedAt:       now,
	}); err != nil {
		delete(h.receipts, id)
		return crypto.Hash{}, err
	}

	log.Hub.Info().
		Str("receipt", id.String()).
		Str("executor", rec.ExecutorID.String()).
		Uint64("volume", declaredVolume).
		Msg("receipt posted")
	return id, nil
}

// OpenDispute challenges a posted receipt inside its challenge window. The
// challenger pays a bond of 10% of the executor's total stake and the
// executor's remaining available stake joins the locked pool. When an
// earlier dispute already locked everything, the new dispute opens against
// the shared pool with no additional lock, so one challenge never shields
// the executor's other receipts.
func (h *Hub) OpenDispute(receiptID crypto.Hash, challenger protocol.Address, reason protocol.ReasonCode, evidence crypto.Hash) error {
	if h.roles.Paused() {
		return ErrPaused
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	record, err := h.record(receiptID)
	if err != nil {
		return err
	}
	if record.Status != protocol.ReceiptPosted {
		return ErrInvalidReceiptState
	}

	now := h.clock.Now()
	if !now.Before(record.ChallengeDeadline) {
		return ErrChallengeWindowClosed
	}

	executorID := record.Receipt.ExecutorID
	available, locked, err := h.registry.Stakes(executorID)
	if err != nil {
		return err
	}
	bond, ok := safemath.PortionBps(available+locked, protocol.DisputeBondBps)
	if !ok || bond == 0 {
		return ErrBondUnavailable
	}

	// Bond first: a challenger that cannot pay must not lock the executor
	if err := h.bank.Transfer(challenger, h.settlement, bond); err != nil {
		return err
	}
	if available > 0 {
		if err := h.registry.LockStake(h.registryCap, executorID, available); err != nil {
			// Return the bond, the dispute never opened
			_ = h.bank.Transfer(h.settlement, challenger, bond)
			return err
		}
	}
	_ = h.registry.RecordDisputeOpened(h.registryCap, executorID)

	record.Status = protocol.ReceiptDisputed
	record.LockedStake = available
	h.openDisputes[executorID]++
	dispute := &Dispute{
		ReceiptID:  receiptID,
		Challenger: challenger,
		Reason:     reason,
		Evidence:   evidence,
		Bond:       bond,
		OpenedAt:   now,
	}
	h.disputes[receiptID] = dispute

	if err := h.trail.PutDispute(store.DisputeRecord{
		ReceiptID:  receiptID,
		Challenger: challenger,
		Reason:     reason,
		Evidence:   evidence,
		Bond:       bond,
		OpenedAt:   now,
	}); err != nil {
		return err
	}
	if err := h.trail.SetReceiptStatus(receiptID, protocol.ReceiptDisputed); err != nil {
		return err
	}

	log.Hub.Info().
		Str("receipt", receiptID.String()).
		Str("challenger", challenger.String()).
		Str("reason", reason.String()).
		Uint64("bond", bond).
		Msg("dispute opened")
	return nil
}

// Finalize closes an undisputed receipt once its challenge window has
// elapsed, crediting the executor's reputation and releasing any linked
// escrow. A second call fails deterministically.
func (h *Hub) Finalize(receiptID crypto.Hash) error {
	outcome, err := h.finalize(receiptID)
	if err != nil {
		return err
	}
	reputation.PublishBestEffort(h.publisher, outcome)
	return nil
}

func (h *Hub) finalize(receiptID crypto.Hash) (reputation.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	record, err := h.record(receiptID)
	if err != nil {
		return reputation.Outcome{}, err
	}
	if record.Status != protocol.ReceiptPosted {
		return reputation.Outcome{}, ErrInvalidReceiptState
	}
	if h.clock.Now().Before(record.ChallengeDeadline) {
		return reputation.Outcome{}, ErrChallengeWindowOpen
	}

	record.Status = protocol.ReceiptFinalized
	executorID := record.Receipt.ExecutorID
	if err := h.registry.RecordFill(h.registryCap, executorID, true, record.DeclaredVolume); err != nil {
		record.Status = protocol.ReceiptPosted
		return reputation.Outcome{}, err
	}

	if held, ok := h.escrows.ByReceipt(receiptID); ok {
		operator, err := h.registry.OperatorOf(executorID)
		if err != nil {
			return reputation.Outcome{}, err
		}
		if err := h.escrows.Release(h.escrowCap, held.ID, operator); err != nil {
			return reputation.Outcome{}, err
		}
	}

	if err := h.trail.SetReceiptStatus(receiptID, protocol.ReceiptFinalized); err != nil {
		return reputation.Outcome{}, err
	}

	log.Hub.Info().Str("receipt", receiptID.String()).Msg("receipt finalized")
	return reputation.NewOutcome(
		record.Receipt.IntentRef, executorID, "finalized", record.Receipt.EvidenceCommitment, h.clock.Now()), nil
}

// RecordObservation stores the settlement facts for a receipt, as seen by
// an authorized settlement adapter. Observations feed the deterministic
// checks for the wrong-destination/asset/recipient reason codes.
func (h *Hub) RecordObservation(cap authority.Capability, receiptID crypto.Hash, obs Observation) error {
	if !h.observers.Authorized(cap) {
		return ErrUnauthorized
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.record(receiptID); err != nil {
		return err
	}
	if _, exists := h.observations[receiptID]; exists {
		return ErrObservationExists
	}
	h.observations[receiptID] = obs
	return nil
}

// Receipt returns a copy of a receipt record.
func (h *Hub) Receipt(receiptID crypto.Hash) (Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	record, err := h.record(receiptID)
	if err != nil {
		return Record{}, err
	}
	return *record, nil
}

// Dispute returns a copy of the dispute opened against a receipt.
func (h *Hub) Dispute(receiptID crypto.Hash) (Dispute, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dispute, ok := h.disputes[receiptID]
	if !ok {
		return Dispute{}, ErrDisputeNotFound
	}
	return *dispute, nil
}

// OpenDisputeCount reports how many unresolved disputes currently target
// the executor. The dispute engine consults it before unlocking the
// shared stake pool.
func (h *Hub) OpenDisputeCount(id protocol.ExecutorID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openDisputes[id]
}

func (h *Hub) record(receiptID crypto.Hash) (*Record, error) {
	record, ok := h.receipts[receiptID]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	return record, nil
}
