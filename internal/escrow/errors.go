package escrow

import "errors"

var (
	ErrZeroAmount             = errors.New("zero-amount escrow rejected")
	ErrReceiptAlreadyEscrowed = errors.New("receipt already has an escrow")
	ErrDeadlinePassed         = errors.New("escrow deadline must be in the future")
	ErrEscrowNotFound         = errors.New("escrow not found")
	ErrAlreadySettled         = errors.New("escrow already settled")
	ErrUnauthorized           = errors.New("caller is not authorized")
)
