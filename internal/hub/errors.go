package hub

import "errors"

var (
	ErrPaused                 = errors.New("protocol is paused")
	ErrExecutorNotActive      = errors.New("executor is not active")
	ErrBadSignature           = errors.New("receipt signature does not match bound operator")
	ErrDuplicateReceipt       = errors.New("receipt content-hash already posted")
	ErrReceiptExpired         = errors.New("receipt expiry is not in the future")
	ErrStakeBelowVolume       = errors.New("executor stake does not cover declared volume")
	ErrReceiptNotFound        = errors.New("receipt not found")
	ErrInvalidReceiptState    = errors.New("receipt is not in the required state")
	ErrChallengeWindowClosed  = errors.New("challenge window has closed")
	ErrChallengeWindowOpen    = errors.New("challenge window is still open")
	ErrBondUnavailable        = errors.New("dispute bond could not be computed")
	ErrDisputeNotFound        = errors.New("no dispute open for receipt")
	ErrDisputeResolved        = errors.New("dispute already resolved")
	ErrReasonNotDeterministic = errors.New("reason code requires escalation")
	ErrReasonDeterministic    = errors.New("reason code is mechanically checkable, not escalatable")
	ErrNotEscalated           = errors.New("dispute has not been escalated")
	ErrAlreadyEscalated       = errors.New("dispute already escalated")
	ErrNotChallenger          = errors.New("caller is not the dispute challenger")
	ErrUnauthorized           = errors.New("caller does not hold a granted capability")
	ErrObservationExists      = errors.New("settlement observation already recorded")
	ErrUnproven               = errors.New("claim is not yet provable from recorded state")
)
