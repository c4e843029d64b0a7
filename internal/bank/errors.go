package bank

import "errors"

var (
	ErrZeroAmount        = errors.New("zero-amount transfer rejected")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
