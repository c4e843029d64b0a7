package authority

import "errors"

var (
	ErrNotAdmin    = errors.New("caller does not hold the admin capability")
	ErrZeroAddress = errors.New("address must not be zero")
)
