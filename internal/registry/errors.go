package registry

import "errors"

var (
	ErrInvalidOperatorKey   = errors.New("operator key must be a valid ed25519 public key")
	ErrOperatorAlreadyBound = errors.New("operator already bound to an executor")
	ErrExecutorExists       = errors.New("executor id already registered")
	ErrExecutorNotFound     = errors.New("executor not found")
	ErrExecutorBanned       = errors.New("executor is banned")
	ErrNotJailed            = errors.New("executor is not jailed")
	ErrZeroAmount           = errors.New("zero-amount operation rejected")
	ErrInsufficientStake    = errors.New("insufficient stake")
	ErrStakeLocked          = errors.New("stake is locked in a dispute")
	ErrWithdrawalPending    = errors.New("a withdrawal is already pending")
	ErrNoWithdrawalPending  = errors.New("no withdrawal pending")
	ErrCooldownActive       = errors.New("withdrawal cooldown has not elapsed")
	ErrUnauthorized         = errors.New("caller is not authorized")
)
