package ledgertime

import "errors"

var (
	// ErrBeforeProtocolEpoch is returned when converting a time.Time that
	// predates the protocol common era.
	ErrBeforeProtocolEpoch = errors.New("time is before the protocol epoch")
)
