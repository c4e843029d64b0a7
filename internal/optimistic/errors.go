package optimistic

import "errors"

var (
	ErrPaused                  = errors.New("protocol is paused")
	ErrDisputeNotFound         = errors.New("optimistic dispute not found")
	ErrDisputeActive           = errors.New("receipt already has an active optimistic dispute")
	ErrNotOpen                 = errors.New("dispute is not open")
	ErrNotContested            = errors.New("dispute is not contested")
	ErrNotOperator             = errors.New("caller is not the disputed executor's operator")
	ErrNotArbitrator           = errors.New("caller is not the designated arbitrator")
	ErrNotParty                = errors.New("caller is neither challenger nor operator")
	ErrCounterBondMismatch     = errors.New("counter-bond must equal the challenger bond")
	ErrCounterBondWindowClosed = errors.New("counter-bond window has closed")
	ErrCounterBondWindowOpen   = errors.New("counter-bond window is still open")
	ErrArbitrationWindowOpen   = errors.New("arbitration window is still open")
	ErrEvidenceWindowClosed    = errors.New("evidence window has closed")
	ErrBadSlashPercentage      = errors.New("slash percentage must be between 1 and 100")
)
