// Package registry owns executor identities, stake balances and the
// jail/ban ladder. Stake is mutated only through the registry's own entry
// points; lock, unlock, slash and jail additionally require a capability
// granted to the calling component.
package registry

import (
	"crypto/ed25519"
	"sync"

	"github.com/intent-solutions-io/irsb-protocol/internal/authority"
	"github.com/intent-solutions-io/irsb-protocol/internal/bank"
	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/safemath"
	"github.com/intent-solutions-io/irsb-protocol/pkg/log"
)

// Executor is the stored record for one registered executor id.
type Executor struct {
	ID       protocol.ExecutorID
	Operator protocol.Address
	Metadata []byte
	Status   protocol.ExecutorStatus

	AvailableStake uint64
	LockedStake    uint64

	// Cumulative totals backing the stake invariant:
	// available + locked == Deposited - Withdrawn - Slashed
	Deposited uint64
	Withdrawn uint64
	Slashed   uint64

	Reputation Reputation

	JailCount    uint32
	RegisteredAt ledgertime.Time
	LastActivity ledgertime.Time

	PendingWithdrawal       uint64
	PendingWithdrawalUnlock ledgertime.Time
}

// Reputation counters are exact historical totals. Decay is applied only at
// read time, never here.
type Reputation struct {
	TotalFills      uint64
	SuccessfulFills uint64
	DisputesOpened  uint64
	DisputesLost    uint64
	VolumeProcessed uint64
	TotalSlashed    uint64
}

// TotalStake returns available + locked stake.
func (e *Executor) TotalStake() uint64 {
	return e.AvailableStake + e.LockedStake
}

// Registry is the executor registry. All state-mutating calls execute
// atomically and serially under a single mutex.
type Registry struct {
	mu    sync.Mutex
	clock ledgertime.Clock
	bank  *bank.Ledger
	caps  *authority.Set
	admin authority.Capability

	// vault is the bank account holding all staked funds.
	vault protocol.Address

	executors map[protocol.ExecutorID]*Executor
	operators map[protocol.Address]protocol.ExecutorID
	banned    map[protocol.ExecutorID]bool
}

// New creates a registry. The returned capability set controls who may call
// LockStake, UnlockStake, Slash and Jail; admin guards Unjail.
func New(clock ledgertime.Clock, bankLedger *bank.Ledger, caps *authority.Set, admin authority.Capability, vault protocol.Address) *Registry {
	return &Registry{
		clock:     clock,
		bank:      bankLedger,
		caps:      caps,
		admin:     admin,
		vault:     vault,
		executors: make(map[protocol.ExecutorID]*Executor),
		operators: make(map[protocol.Address]protocol.ExecutorID),
		banned:    make(map[protocol.ExecutorID]bool),
	}
}

// Vault returns the bank account holding staked funds.
func (r *Registry) Vault() protocol.Address {
	return r.vault
}

// Register creates a new executor bound to the operator key. An operator
// may be bound to at most one executor id, and a banned id can never
// register again.
func (r *Registry) Register(operator ed25519.PublicKey, metadata []byte) (protocol.ExecutorID, error) {
	if len(operator) != ed25519.PublicKeySize {
		return protocol.ExecutorID{}, ErrInvalidOperatorKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	operatorAddr := protocol.AddressFromPublicKey(operator)
	if _, bound := r.operators[operatorAddr]; bound {
		return protocol.ExecutorID{}, ErrOperatorAlreadyBound
	}

	now := r.clock.Now()
	id := deriveID(operatorAddr, metadata, now)
	if r.banned[id] {
		return protocol.ExecutorID{}, ErrExecutorBanned
	}
	if _, exists := r.executors[id]; exists {
		return protocol.ExecutorID{}, ErrExecutorExists
	}

	r.executors[id] = &Executor{
		ID:           id,
		Operator:     operatorAddr,
		Metadata:     metadata,
		Status:       protocol.ExecutorInactive,
		RegisteredAt: now,
		LastActivity: now,
	}
	r.operators[operatorAddr] = id

	log.Registry.Info().
		Str("executor", id.String()).
		Str("operator", operatorAddr.String()).
		Msg("executor registered")
	return id, nil
}

// DepositStake moves funds from the operator's bank account into available
// stake. The executor activates once available stake reaches the minimum.
func (r *Registry) DepositStake(id protocol.ExecutorID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	if e.Status == protocol.ExecutorBanned {
		return ErrExecutorBanned
	}

	if err := r.bank.Transfer(e.Operator, r.vault, amount); err != nil {
		return err
	}

	e.AvailableStake += amount
	e.Deposited += amount
	e.LastActivity = r.clock.Now()

	if e.Status == protocol.ExecutorInactive && e.AvailableStake >= protocol.MinimumStake {
		e.Status = protocol.ExecutorActive
		log.Registry.Info().Str("executor", id.String()).Msg("executor activated")
	}
	return nil
}

// InitiateWithdrawal starts the withdrawal cooldown for part of the
// available stake. Funds move only after the cooldown elapses.
func (r *Registry) InitiateWithdrawal(id protocol.ExecutorID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	if e.PendingWithdrawal != 0 {
		return ErrWithdrawalPending
	}
	if amount > e.AvailableStake {
		return ErrInsufficientStake
	}

	e.PendingWithdrawal = amount
	e.PendingWithdrawalUnlock = r.clock.Now().Add(protocol.WithdrawalCooldown)
	return nil
}

// Withdraw completes a matured withdrawal. Refused while any stake is
// locked in a dispute.
func (r *Registry) Withdraw(id protocol.ExecutorID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	if e.PendingWithdrawal == 0 {
		return ErrNoWithdrawalPending
	}
	if r.clock.Now().Before(e.PendingWithdrawalUnlock) {
		return ErrCooldownActive
	}
	if e.LockedStake != 0 {
		return ErrStakeLocked
	}
	amount := e.PendingWithdrawal
	if amount > e.AvailableStake {
		// Stake was slashed below the pending amount during the cooldown;
		// only what remains can leave.
		amount = e.AvailableStake
	}
	if amount == 0 {
		e.PendingWithdrawal = 0
		return ErrInsufficientStake
	}

	if err := r.bank.Transfer(r.vault, e.Operator, amount); err != nil {
		return err
	}

	e.AvailableStake -= amount
	e.Withdrawn += amount
	e.PendingWithdrawal = 0
	r.deactivateBelowMinimum(e)

	log.Registry.Info().
		Str("executor", id.String()).
		Uint64("amount", amount).
		Msg("stake withdrawn")
	return nil
}

// CancelWithdrawal abandons a pending withdrawal.
func (r *Registry) CancelWithdrawal(id protocol.ExecutorID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	if e.PendingWithdrawal == 0 {
		return ErrNoWithdrawalPending
	}
	e.PendingWithdrawal = 0
	e.PendingWithdrawalUnlock = 0
	return nil
}

// LockStake moves stake from available to locked. Authorized callers only.
func (r *Registry) LockStake(cap authority.Capability, id protocol.ExecutorID, amount uint64) error {
	if !r.caps.Authorized(cap) {
		return ErrUnauthorized
	}
	if amount == 0 {
		return ErrZeroAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	remaining, ok := safemath.Sub64(e.AvailableStake, amount)
	if !ok {
		return ErrInsufficientStake
	}
	e.AvailableStake = remaining
	e.LockedStake += amount
	return nil
}

// UnlockStake moves stake from locked back to available. Authorized
// callers only.
func (r *Registry) UnlockStake(cap authority.Capability, id protocol.ExecutorID, amount uint64) error {
	if !r.caps.Authorized(cap) {
		return ErrUnauthorized
	}
	if amount == 0 {
		return ErrZeroAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	remaining, ok := safemath.Sub64(e.LockedStake, amount)
	if !ok {
		return ErrInsufficientStake
	}
	e.LockedStake = remaining
	e.AvailableStake += amount
	return nil
}

// Slash forfeits stake to a recipient's bank account, drawing from locked
// stake first and then available. Zero-amount slashes are rejected so a
// misconfigured caller cannot record a no-op punishment. Authorized
// callers only.
func (r *Registry) Slash(cap authority.Capability, id protocol.ExecutorID, amount uint64, receiptRef crypto.Hash, reason protocol.ReasonCode, recipient protocol.Address) error {
	if !r.caps.Authorized(cap) {
		return ErrUnauthorized
	}
	if amount == 0 {
		return ErrZeroAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	if amount > e.TotalStake() {
		return ErrInsufficientStake
	}

	// State update precedes the value transfer
	fromLocked := min(amount, e.LockedStake)
	e.LockedStake -= fromLocked
	e.AvailableStake -= amount - fromLocked
	e.Slashed += amount
	e.Reputation.DisputesLost++
	e.Reputation.TotalSlashed += amount
	r.deactivateBelowMinimum(e)

	if err := r.bank.Transfer(r.vault, recipient, amount); err != nil {
		// Roll back: the vault is funded by deposits, so a failed transfer
		// here means an accounting bug, not a recoverable condition.
		e.LockedStake += fromLocked
		e.AvailableStake += amount - fromLocked
		e.Slashed -= amount
		e.Reputation.DisputesLost--
		e.Reputation.TotalSlashed -= amount
		return err
	}

	log.Registry.Warn().
		Str("executor", id.String()).
		Uint64("amount", amount).
		Str("receipt", receiptRef.String()).
		Str("reason", reason.String()).
		Msg("stake slashed")
	return nil
}

// Jail records a lost dispute against the executor. The third jailing bans
// the id permanently. Authorized callers only.
func (r *Registry) Jail(cap authority.Capability, id protocol.ExecutorID) error {
	if !r.caps.Authorized(cap) {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	if e.Status == protocol.ExecutorBanned {
		return ErrExecutorBanned
	}

	e.JailCount++
	if e.JailCount >= protocol.MaxJailings {
		e.Status = protocol.ExecutorBanned
		r.banned[id] = true
		log.Registry.Warn().Str("executor", id.String()).Msg("executor banned")
		return nil
	}
	e.Status = protocol.ExecutorJailed
	log.Registry.Warn().
		Str("executor", id.String()).
		Uint32("jailCount", e.JailCount).
		Msg("executor jailed")
	return nil
}

// Unjail restores a jailed executor, charging a penalty from available
// stake to the treasury account. Admin only; banned ids stay banned.
func (r *Registry) Unjail(cap authority.Capability, id protocol.ExecutorID, penalty uint64, treasury protocol.Address) error {
	if cap != r.admin {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	if e.Status == protocol.ExecutorBanned {
		return ErrExecutorBanned
	}
	if e.Status != protocol.ExecutorJailed {
		return ErrNotJailed
	}
	if penalty > e.AvailableStake {
		return ErrInsufficientStake
	}

	if penalty > 0 {
		e.AvailableStake -= penalty
		e.Slashed += penalty
		if err := r.bank.Transfer(r.vault, treasury, penalty); err != nil {
			e.AvailableStake += penalty
			e.Slashed -= penalty
			return err
		}
	}

	if e.AvailableStake >= protocol.MinimumStake {
		e.Status = protocol.ExecutorActive
	} else {
		e.Status = protocol.ExecutorInactive
	}
	return nil
}

// RecordFill updates reputation counters after a finalized receipt.
// Authorized callers only.
func (r *Registry) RecordFill(cap authority.Capability, id protocol.ExecutorID, successful bool, volume uint64) error {
	if !r.caps.Authorized(cap) {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	e.Reputation.TotalFills++
	if successful {
		e.Reputation.SuccessfulFills++
	}
	e.Reputation.VolumeProcessed += volume
	e.LastActivity = r.clock.Now()
	return nil
}

// RecordDisputeOpened increments the disputes-opened counter. Authorized
// callers only.
func (r *Registry) RecordDisputeOpened(cap authority.Capability, id protocol.ExecutorID) error {
	if !r.caps.Authorized(cap) {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return err
	}
	e.Reputation.DisputesOpened++
	return nil
}

func (r *Registry) executor(id protocol.ExecutorID) (*Executor, error) {
	e, ok := r.executors[id]
	if !ok {
		return nil, ErrExecutorNotFound
	}
	return e, nil
}

func (r *Registry) deactivateBelowMinimum(e *Executor) {
	if e.Status == protocol.ExecutorActive && e.AvailableStake < protocol.MinimumStake {
		e.Status = protocol.ExecutorInactive
	}
}

func deriveID(operator protocol.Address, metadata []byte, at ledgertime.Time) protocol.ExecutorID {
	buf := make([]byte, 0, len(operator)+len(metadata)+8)
	buf = append(buf, operator[:]...)
	buf = append(buf, metadata...)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(uint64(at)>>(8*i)))
	}
	return protocol.ExecutorID(crypto.HashData(buf))
}
