package protocol

// ExecutorStatus is the lifecycle status of a registered executor.
type ExecutorStatus uint8

const (
	ExecutorInactive ExecutorStatus = iota
	ExecutorActive
	ExecutorJailed
	ExecutorBanned // terminal, the id can never re-register
)

func (s ExecutorStatus) String() string {
	switch s {
	case ExecutorInactive:
		return "inactive"
	case ExecutorActive:
		return "active"
	case ExecutorJailed:
		return "jailed"
	case ExecutorBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// ReceiptStatus is the lifecycle status of a posted receipt. Transitions
// are monotonic: Finalized and Slashed are terminal.
type ReceiptStatus uint8

const (
	ReceiptPosted ReceiptStatus = iota
	ReceiptDisputed
	ReceiptFinalized
	ReceiptSlashed
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptPosted:
		return "posted"
	case ReceiptDisputed:
		return "disputed"
	case ReceiptFinalized:
		return "finalized"
	case ReceiptSlashed:
		return "slashed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible from s.
func (s ReceiptStatus) Terminal() bool {
	return s == ReceiptFinalized || s == ReceiptSlashed
}

// EscrowStatus is the settlement status of an escrow hold.
type EscrowStatus uint8

const (
	EscrowActive EscrowStatus = iota
	EscrowReleased
	EscrowRefunded
)

func (s EscrowStatus) String() string {
	switch s {
	case EscrowActive:
		return "active"
	case EscrowReleased:
		return "released"
	case EscrowRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// OptimisticStatus is the status of an optimistic counter-bond dispute.
// ChallengerWins and SolverWins are terminal.
type OptimisticStatus uint8

const (
	OptimisticOpen OptimisticStatus = iota
	OptimisticContested
	OptimisticChallengerWins
	OptimisticSolverWins
)

func (s OptimisticStatus) String() string {
	switch s {
	case OptimisticOpen:
		return "open"
	case OptimisticContested:
		return "contested"
	case OptimisticChallengerWins:
		return "challenger_wins"
	case OptimisticSolverWins:
		return "solver_wins"
	default:
		return "unknown"
	}
}

// Terminal reports whether the dispute has been resolved.
func (s OptimisticStatus) Terminal() bool {
	return s == OptimisticChallengerWins || s == OptimisticSolverWins
}
