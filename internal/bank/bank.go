// Package bank implements pull-safe value movement between protocol
// accounts. Settlements never push funds to external parties: every slash
// share, bond return and escrow payout is a credit to an account, withdrawn
// separately by its owner. A transfer that would overdraw the source aborts
// the whole state transition it is part of.
package bank

import (
	"sync"

	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/safemath"
)

type Ledger struct {
	mu       sync.Mutex
	balances map[protocol.Address]uint64
	issued   uint64
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[protocol.Address]uint64)}
}

// Issue credits newly issued funds to an account. This is the only entry
// point that changes the total supply held by the ledger; everything else
// conserves it.
func (l *Ledger) Issue(to protocol.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	issued, ok := safemath.Add64(l.issued, amount)
	if !ok {
		return safemath.ErrOverflow
	}
	balance, ok := safemath.Add64(l.balances[to], amount)
	if !ok {
		return safemath.ErrOverflow
	}
	l.issued = issued
	l.balances[to] = balance
	return nil
}

// Transfer moves value between two accounts. Zero-amount transfers are
// rejected to avoid silent no-ops.
func (l *Ledger) Transfer(from, to protocol.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	remaining, ok := safemath.Sub64(l.balances[from], amount)
	if !ok {
		return ErrInsufficientFunds
	}
	credited, ok := safemath.Add64(l.balances[to], amount)
	if !ok {
		return safemath.ErrOverflow
	}
	l.balances[from] = remaining
	l.balances[to] = credited
	return nil
}

// Balance returns the withdrawable balance of an account.
func (l *Ledger) Balance(addr protocol.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// TotalIssued returns the cumulative amount ever issued into the ledger.
// The sum of all balances plus stake held by the registry always equals
// this value; tests assert it after every operation sequence.
func (l *Ledger) TotalIssued() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issued
}

// SumBalances returns the sum of all account balances.
func (l *Ledger) SumBalances() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum := uint64(0)
	for _, b := range l.balances {
		sum += b
	}
	return sum
}
