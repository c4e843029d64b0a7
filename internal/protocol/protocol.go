package protocol

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"
)

// Protocol parameters. Amounts are denominated in planck, the smallest
// representable unit: 1 native unit = 1e9 planck.
const (
	PlanckPerUnit uint64 = 1_000_000_000

	// MinimumStake is the stake an executor needs before it activates and
	// may post receipts: 0.1 native units.
	MinimumStake uint64 = 100_000_000

	// DisputeBondBps is the challenger bond for opening a dispute,
	// expressed in basis points of the executor's total stake.
	DisputeBondBps uint16 = 1000

	// MaxJailings is the number of jailings after which an executor id is
	// banned permanently.
	MaxJailings uint32 = 3
)

// Window durations. All deadlines derived from these are absolute ledger
// times; once a deadline passes the state consequence is irreversible.
const (
	ChallengeWindow    = time.Hour
	CounterBondWindow  = 24 * time.Hour
	ArbitrationWindow  = 7 * 24 * time.Hour
	EvidenceWindow     = 7 * 24 * time.Hour
	WithdrawalCooldown = 7 * 24 * time.Hour
)

// Slash distribution schedules in basis points. Each schedule sums to
// exactly 10000; integer dust goes to the first (beneficiary) share.
var (
	// DeterministicSplit applies to deterministic and escalated hub
	// resolutions: beneficiary / challenger / treasury.
	DeterministicSplit = [3]uint16{8000, 1500, 500}

	// ArbitrationSplit applies to optimistic arbitration slashes:
	// beneficiary / treasury / arbitrator.
	ArbitrationSplit = [3]uint16{7000, 2000, 1000}
)

// Reputation decay parameters. The decay multiplier is computed at read
// time from elapsed inactivity and never mutates stored counters.
const (
	DecayHalfLife     = 30 * 24 * time.Hour
	DecayFloorBps     = 1000 // multiplier never drops below 10%
	FullMultiplierBps = 10000
)

// ExecutorID is the opaque identity of a registered executor.
type ExecutorID [32]byte

func (id ExecutorID) String() string {
	return hex.EncodeToString(id[:])
}

// Address identifies a value-holding account: operators, challengers,
// depositors, the treasury, the arbitrator and component settlement
// accounts. Operator addresses are their ed25519 public keys.
type Address [32]byte

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromPublicKey derives the account address bound to an operator key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	var a Address
	copy(a[:], pub)
	return a
}

// Asset identifies the currency held by an escrow. The zero value is the
// native currency; any other value is an opaque fungible token reference.
type Asset [32]byte

func (a Asset) IsNative() bool {
	return a == Asset{}
}
