package hub

import (
	"crypto/ed25519"
	"errors"

	"github.com/intent-solutions-io/irsb-protocol/internal/authority"
	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/registry"
	"github.com/intent-solutions-io/irsb-protocol/internal/reputation"
	"github.com/intent-solutions-io/irsb-protocol/internal/safemath"
	"github.com/intent-solutions-io/irsb-protocol/internal/store"
	"github.com/intent-solutions-io/irsb-protocol/pkg/log"
)

// Escalation is the dispute snapshot handed to the optimistic engine when
// a non-deterministic dispute escalates out of the hub.
type Escalation struct {
	ReceiptID   crypto.Hash
	ExecutorID  protocol.ExecutorID
	Operator    protocol.Address
	Challenger  protocol.Address
	Reason      protocol.ReasonCode
	LockedStake uint64
	Bond        uint64
	OpenedAt    ledgertime.Time
}

// ResolveDeterministic settles a dispute whose reason code is mechanically
// checkable, with no human judgment. Callable by anyone. If the claim
// holds, whatever remains of the executor's locked pool is slashed and
// distributed 80/15/5 between beneficiary, challenger and treasury, the
// bond is returned and the executor is jailed. If the claim is disproven,
// the receipt finalizes and the challenger's bond is forfeited to the
// executor. If the claim cannot be decided yet, the call aborts with
// ErrUnproven and the dispute stays open.
func (h *Hub) ResolveDeterministic(receiptID crypto.Hash) error {
	outcome, err := h.resolveDeterministic(receiptID)
	if err != nil {
		return err
	}
	reputation.PublishBestEffort(h.publisher, outcome)
	return nil
}

func (h *Hub) resolveDeterministic(receiptID crypto.Hash) (reputation.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	record, dispute, err := h.openDisputed(receiptID)
	if err != nil {
		return reputation.Outcome{}, err
	}
	if dispute.Escalated {
		return reputation.Outcome{}, ErrAlreadyEscalated
	}
	if !dispute.Reason.Deterministic() {
		return reputation.Outcome{}, ErrReasonNotDeterministic
	}

	fault, err := h.checkDeterministic(receiptID, record, dispute.Reason)
	if err != nil {
		return reputation.Outcome{}, err
	}
	if fault {
		return h.settleFault(receiptID, record, dispute)
	}
	return h.settleNoFault(receiptID, record, dispute)
}

// Escalate hands a non-deterministic dispute to the optimistic engine.
// Authorized resolvers only; the caller passes through the address that
// requested escalation, which must be the original challenger. The bond
// already paid stays with the hub's settlement account and is referenced,
// not re-collected.
func (h *Hub) Escalate(cap authority.Capability, receiptID crypto.Hash, caller protocol.Address) (Escalation, error) {
	if !h.resolvers.Authorized(cap) {
		return Escalation{}, ErrUnauthorized
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	record, dispute, err := h.openDisputed(receiptID)
	if err != nil {
		return Escalation{}, err
	}
	if dispute.Escalated {
		return Escalation{}, ErrAlreadyEscalated
	}
	if dispute.Reason.Deterministic() {
		return Escalation{}, ErrReasonDeterministic
	}
	if caller != dispute.Challenger {
		return Escalation{}, ErrNotChallenger
	}

	dispute.Escalated = true
	if err := h.trail.PutDispute(store.DisputeRecord{
		ReceiptID:  receiptID,
		Challenger: dispute.Challenger,
		Reason:     dispute.Reason,
		Evidence:   dispute.Evidence,
		Bond:       dispute.Bond,
		OpenedAt:   dispute.OpenedAt,
		Escalated:  true,
	}); err != nil {
		dispute.Escalated = false
		return Escalation{}, err
	}

	executorID := record.Receipt.ExecutorID
	operator, err := h.registry.OperatorOf(executorID)
	if err != nil {
		return Escalation{}, err
	}

	log.Hub.Info().
		Str("receipt", receiptID.String()).
		Str("reason", dispute.Reason.String()).
		Msg("dispute escalated")
	return Escalation{
		ReceiptID:   receiptID,
		ExecutorID:  executorID,
		Operator:    operator,
		Challenger:  dispute.Challenger,
		Reason:      dispute.Reason,
		LockedStake: record.LockedStake,
		Bond:        dispute.Bond,
		OpenedAt:    dispute.OpenedAt,
	}, nil
}

// ResolveEscalated settles an escalated dispute after human or arbitration
// review delivered a fault verdict, using the same distribution and
// stake-unlock logic as the deterministic path. Authorized resolvers only;
// gated on the dispute having been escalated.
func (h *Hub) ResolveEscalated(cap authority.Capability, receiptID crypto.Hash, executorFault bool) error {
	outcome, err := h.resolveEscalated(cap, receiptID, executorFault)
	if err != nil {
		return err
	}
	reputation.PublishBestEffort(h.publisher, outcome)
	return nil
}

func (h *Hub) resolveEscalated(cap authority.Capability, receiptID crypto.Hash, executorFault bool) (reputation.Outcome, error) {
	if !h.resolvers.Authorized(cap) {
		return reputation.Outcome{}, ErrUnauthorized
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	record, dispute, err := h.openDisputed(receiptID)
	if err != nil {
		return reputation.Outcome{}, err
	}
	if !dispute.Escalated {
		return reputation.Outcome{}, ErrNotEscalated
	}
	if executorFault {
		return h.settleFault(receiptID, record, dispute)
	}
	return h.settleNoFault(receiptID, record, dispute)
}

// CompleteEscalated records the outcome of an escalated dispute whose
// economics are settled externally by the optimistic engine. It performs
// the receipt status transition, reputation update, jailing and trail
// write, and flips the dispute's resolved flag; the engine calls it before
// moving any funds so a dispute can never pay out twice. The reason is the
// one the settling verdict stated, which for arbitration may differ from
// the code the dispute was opened under. Authorized resolvers only.
func (h *Hub) CompleteEscalated(cap authority.Capability, receiptID crypto.Hash, executorFault bool, slashed uint64, reason protocol.ReasonCode) error {
	outcome, err := h.completeEscalated(cap, receiptID, executorFault, slashed, reason)
	if err != nil {
		return err
	}
	reputation.PublishBestEffort(h.publisher, outcome)
	return nil
}

func (h *Hub) completeEscalated(cap authority.Capability, receiptID crypto.Hash, executorFault bool, slashed uint64, reason protocol.ReasonCode) (reputation.Outcome, error) {
	if !h.resolvers.Authorized(cap) {
		return reputation.Outcome{}, ErrUnauthorized
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	record, dispute, err := h.openDisputed(receiptID)
	if err != nil {
		return reputation.Outcome{}, err
	}
	if !dispute.Escalated {
		return reputation.Outcome{}, ErrNotEscalated
	}

	executorID := record.Receipt.ExecutorID
	dispute.Resolved = true
	h.openDisputes[executorID]--
	status := protocol.ReceiptFinalized
	result := "finalized"
	if executorFault {
		status = protocol.ReceiptSlashed
		result = "slashed"
		if err := h.jail(executorID); err != nil {
			return reputation.Outcome{}, err
		}
		if err := h.registry.RecordFill(h.registryCap, executorID, false, 0); err != nil {
			return reputation.Outcome{}, err
		}
	} else {
		if err := h.registry.RecordFill(h.registryCap, executorID, true, record.DeclaredVolume); err != nil {
			return reputation.Outcome{}, err
		}
	}
	record.Status = status

	if err := h.writeSettlement(receiptID, status, slashed, reason); err != nil {
		return reputation.Outcome{}, err
	}

	log.Hub.Info().
		Str("receipt", receiptID.String()).
		Bool("executorFault", executorFault).
		Msg("escalated dispute completed")
	return reputation.NewOutcome(
		record.Receipt.IntentRef, executorID, result, dispute.Evidence, h.clock.Now()), nil
}

// openDisputed returns the receipt and its unresolved dispute.
func (h *Hub) openDisputed(receiptID crypto.Hash) (*Record, *Dispute, error) {
	record, err := h.record(receiptID)
	if err != nil {
		return nil, nil, err
	}
	if record.Status != protocol.ReceiptDisputed {
		return nil, nil, ErrInvalidReceiptState
	}
	dispute, ok := h.disputes[receiptID]
	if !ok {
		return nil, nil, ErrDisputeNotFound
	}
	if dispute.Resolved {
		return nil, nil, ErrDisputeResolved
	}
	return record, dispute, nil
}

// checkDeterministic decides a mechanically checkable claim against the
// receipt commitments and any recorded settlement observation. Returns
// ErrUnproven when neither the claim nor its negation is provable yet.
func (h *Hub) checkDeterministic(receiptID crypto.Hash, record *Record, reason protocol.ReasonCode) (bool, error) {
	obs, observed := h.observations[receiptID]
	now := h.clock.Now()
	rec := record.Receipt

	switch reason {
	case protocol.ReasonExpiry:
		if observed {
			return obs.SettledAt.After(rec.Expiry), nil
		}
		if now.After(rec.Expiry) {
			return true, nil
		}
		return false, ErrUnproven

	case protocol.ReasonInvalidSignature:
		operator, err := h.registry.OperatorOf(rec.ExecutorID)
		if err != nil {
			return false, err
		}
		return !rec.VerifySignature(ed25519.PublicKey(operator[:])), nil

	case protocol.ReasonWrongDestination, protocol.ReasonWrongAsset, protocol.ReasonWrongRecipient:
		if !observed {
			// Nothing settled at all: the claim holds once the expiry passes
			if now.After(rec.Expiry) {
				return true, nil
			}
			return false, ErrUnproven
		}
		switch reason {
		case protocol.ReasonWrongDestination:
			return obs.Destination != rec.RouteCommitment, nil
		case protocol.ReasonWrongAsset:
			return obs.Asset != rec.ConstraintCommitment, nil
		default:
			return obs.Recipient != rec.OutcomeCommitment, nil
		}

	default:
		return false, ErrReasonNotDeterministic
	}
}

// settleFault slashes whatever remains of the executor's locked pool,
// distributes it 80/15/5 (beneficiary / challenger / treasury), returns
// the challenger's bond, refunds any linked escrow to its depositor and
// jails the executor. A concurrent dispute may already have drained the
// pool, in which case the dispute still resolves, with a zero slash. The
// primary beneficiary is the escrow depositor when one exists, otherwise
// the challenger.
func (h *Hub) settleFault(receiptID crypto.Hash, record *Record, dispute *Dispute) (reputation.Outcome, error) {
	executorID := record.Receipt.ExecutorID
	_, locked, err := h.registry.Stakes(executorID)
	if err != nil {
		return reputation.Outcome{}, err
	}

	beneficiary := dispute.Challenger
	held, hasEscrow := h.escrows.ByReceipt(receiptID)
	if hasEscrow {
		beneficiary = held.Depositor
	}

	// Status flips before any value moves
	record.Status = protocol.ReceiptSlashed
	dispute.Resolved = true
	h.openDisputes[executorID]--

	if locked > 0 {
		shares, err := safemath.SplitBps(locked, protocol.DeterministicSplit[0], protocol.DeterministicSplit[1], protocol.DeterministicSplit[2])
		if err != nil {
			record.Status = protocol.ReceiptDisputed
			dispute.Resolved = false
			h.openDisputes[executorID]++
			return reputation.Outcome{}, err
		}
		if err := h.registry.Slash(h.registryCap, executorID, locked, receiptID, dispute.Reason, h.settlement); err != nil {
			record.Status = protocol.ReceiptDisputed
			dispute.Resolved = false
			h.openDisputes[executorID]++
			return reputation.Outcome{}, err
		}
		for i, recipient := range []protocol.Address{beneficiary, dispute.Challenger, h.roles.Treasury()} {
			if shares[i] == 0 {
				continue
			}
			if err := h.bank.Transfer(h.settlement, recipient, shares[i]); err != nil {
				return reputation.Outcome{}, err
			}
		}
	}
	if err := h.jail(executorID); err != nil {
		return reputation.Outcome{}, err
	}
	if err := h.registry.RecordFill(h.registryCap, executorID, false, 0); err != nil {
		return reputation.Outcome{}, err
	}
	if err := h.bank.Transfer(h.settlement, dispute.Challenger, dispute.Bond); err != nil {
		return reputation.Outcome{}, err
	}
	if hasEscrow {
		if err := h.escrows.Refund(h.escrowCap, held.ID, held.Depositor); err != nil {
			return reputation.Outcome{}, err
		}
	}

	if err := h.writeSettlement(receiptID, protocol.ReceiptSlashed, locked, dispute.Reason); err != nil {
		return reputation.Outcome{}, err
	}

	log.Hub.Warn().
		Str("receipt", receiptID.String()).
		Str("executor", executorID.String()).
		Uint64("slashed", locked).
		Str("reason", dispute.Reason.String()).
		Msg("dispute resolved against executor")
	return reputation.NewOutcome(
		record.Receipt.IntentRef, executorID, "slashed", dispute.Evidence, h.clock.Now()), nil
}

// settleNoFault finalizes a disputed receipt in the executor's favor: the
// challenger's bond is forfeited to the executor and any linked escrow is
// released to it. The locked pool unlocks only when this was the last
// unresolved dispute against the executor; otherwise it stays locked as
// collateral for the remaining ones.
func (h *Hub) settleNoFault(receiptID crypto.Hash, record *Record, dispute *Dispute) (reputation.Outcome, error) {
	executorID := record.Receipt.ExecutorID
	operator, err := h.registry.OperatorOf(executorID)
	if err != nil {
		return reputation.Outcome{}, err
	}
	_, locked, err := h.registry.Stakes(executorID)
	if err != nil {
		return reputation.Outcome{}, err
	}

	record.Status = protocol.ReceiptFinalized
	dispute.Resolved = true
	h.openDisputes[executorID]--

	if locked > 0 && h.openDisputes[executorID] == 0 {
		if err := h.registry.UnlockStake(h.registryCap, executorID, locked); err != nil {
			record.Status = protocol.ReceiptDisputed
			dispute.Resolved = false
			h.openDisputes[executorID]++
			return reputation.Outcome{}, err
		}
	}
	if err := h.registry.RecordFill(h.registryCap, executorID, true, record.DeclaredVolume); err != nil {
		return reputation.Outcome{}, err
	}
	if err := h.bank.Transfer(h.settlement, operator, dispute.Bond); err != nil {
		return reputation.Outcome{}, err
	}
	if held, hasEscrow := h.escrows.ByReceipt(receiptID); hasEscrow {
		if err := h.escrows.Release(h.escrowCap, held.ID, operator); err != nil {
			return reputation.Outcome{}, err
		}
	}

	if err := h.writeSettlement(receiptID, protocol.ReceiptFinalized, 0, dispute.Reason); err != nil {
		return reputation.Outcome{}, err
	}

	log.Hub.Info().
		Str("receipt", receiptID.String()).
		Str("executor", executorID.String()).
		Msg("dispute resolved in executor's favor")
	return reputation.NewOutcome(
		record.Receipt.IntentRef, executorID, "finalized", dispute.Evidence, h.clock.Now()), nil
}

func (h *Hub) jail(executorID protocol.ExecutorID) error {
	if err := h.registry.Jail(h.registryCap, executorID); err != nil && !errors.Is(err, registry.ErrExecutorBanned) {
		return err
	}
	return nil
}

func (h *Hub) writeSettlement(receiptID crypto.Hash, status protocol.ReceiptStatus, slashed uint64, reason protocol.ReasonCode) error {
	if err := h.trail.SetReceiptStatus(receiptID, status); err != nil {
		return err
	}
	return h.trail.PutSettlement(store.SettlementRecord{
		ReceiptID:     receiptID,
		Status:        status,
		SlashedAmount: slashed,
		Reason:        reason,
		SettledAt:     h.clock.Now(),
	})
}
