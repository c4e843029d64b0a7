package protocol

// ReasonCode classifies why a dispute was opened against a receipt.
type ReasonCode uint8

const (
	// Deterministic codes: mechanically checkable from recorded state, no
	// human judgment involved.
	ReasonExpiry           ReasonCode = iota // expiry passed with no settlement
	ReasonInvalidSignature                   // operator signature does not verify
	ReasonWrongDestination                   // settled to the wrong destination
	ReasonWrongAsset                         // settled with the wrong asset
	ReasonWrongRecipient                     // settled to the wrong recipient

	// Subjective codes: require arbitration through the optimistic engine.
	ReasonConstraintViolation
	ReasonRouteDeviation
	ReasonOutcomeMismatch
)

// deterministicReasons is the fixed code-to-path table. Changing it changes
// the trust model, so it is never derived from code properties at runtime.
var deterministicReasons = map[ReasonCode]bool{
	ReasonExpiry:           true,
	ReasonInvalidSignature: true,
	ReasonWrongDestination: true,
	ReasonWrongAsset:       true,
	ReasonWrongRecipient:   true,
}

// Deterministic reports whether the reason resolves mechanically inside the
// hub. Non-deterministic reasons must escalate to the optimistic engine.
func (r ReasonCode) Deterministic() bool {
	return deterministicReasons[r]
}

func (r ReasonCode) String() string {
	switch r {
	case ReasonExpiry:
		return "expiry"
	case ReasonInvalidSignature:
		return "invalid_signature"
	case ReasonWrongDestination:
		return "wrong_destination"
	case ReasonWrongAsset:
		return "wrong_asset"
	case ReasonWrongRecipient:
		return "wrong_recipient"
	case ReasonConstraintViolation:
		return "constraint_violation"
	case ReasonRouteDeviation:
		return "route_deviation"
	case ReasonOutcomeMismatch:
		return "outcome_mismatch"
	default:
		return "unknown"
	}
}
