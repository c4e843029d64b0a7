// Package escrow holds funds tied one-to-one to receipts. Each escrow is
// settled exactly once: released to the executor or refunded to the
// depositor, decided by the dispute outcome.
package escrow

import (
	"sync"

	"github.com/intent-solutions-io/irsb-protocol/internal/authority"
	"github.com/intent-solutions-io/irsb-protocol/internal/bank"
	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/pkg/log"
)

// Escrow is a single hold. Amount never changes after creation; only the
// status moves, exactly once.
type Escrow struct {
	ID        crypto.Hash
	ReceiptID crypto.Hash
	Depositor protocol.Address
	Asset     protocol.Asset
	Amount    uint64
	Status    protocol.EscrowStatus
	CreatedAt ledgertime.Time
	Deadline  ledgertime.Time
}

// Ledger is the escrow ledger. Funds are held on a vault bank account;
// settlement credits the recipient there and is pull-withdrawn.
type Ledger struct {
	mu    sync.Mutex
	clock ledgertime.Clock
	bank  *bank.Ledger
	caps  *authority.Set
	vault protocol.Address

	escrows   map[crypto.Hash]*Escrow
	byReceipt map[crypto.Hash]crypto.Hash
}

func NewLedger(clock ledgertime.Clock, bankLedger *bank.Ledger, caps *authority.Set, vault protocol.Address) *Ledger {
	return &Ledger{
		clock:     clock,
		bank:      bankLedger,
		caps:      caps,
		vault:     vault,
		escrows:   make(map[crypto.Hash]*Escrow),
		byReceipt: make(map[crypto.Hash]crypto.Hash),
	}
}

// Create opens an escrow hold for a receipt, moving the funds from the
// depositor into the vault. At most one escrow per receipt.
func (l *Ledger) Create(receiptID crypto.Hash, depositor protocol.Address, asset protocol.Asset, amount uint64, deadline ledgertime.Time) (crypto.Hash, error) {
	if amount == 0 {
		return crypto.Hash{}, ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byReceipt[receiptID]; exists {
		return crypto.Hash{}, ErrReceiptAlreadyEscrowed
	}

	now := l.clock.Now()
	if !deadline.After(now) {
		return crypto.Hash{}, ErrDeadlinePassed
	}

	id := deriveID(receiptID, depositor, now)
	if err := l.bank.Transfer(depositor, l.vault, amount); err != nil {
		return crypto.Hash{}, err
	}

	l.escrows[id] = &Escrow{
		ID:        id,
		ReceiptID: receiptID,
		Depositor: depositor,
		Asset:     asset,
		Amount:    amount,
		Status:    protocol.EscrowActive,
		CreatedAt: now,
		Deadline:  deadline,
	}
	l.byReceipt[receiptID] = id

	log.Escrow.Info().
		Str("escrow", id.String()).
		Str("receipt", receiptID.String()).
		Uint64("amount", amount).
		Msg("escrow created")
	return id, nil
}

// Release pays the escrow out to a recipient. Fires at most once.
// Authorized callers only.
func (l *Ledger) Release(cap authority.Capability, id crypto.Hash, recipient protocol.Address) error {
	if !l.caps.Authorized(cap) {
		return ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.escrow(id)
	if err != nil {
		return err
	}
	if e.Status != protocol.EscrowActive {
		return ErrAlreadySettled
	}

	e.Status = protocol.EscrowReleased
	if err := l.bank.Transfer(l.vault, recipient, e.Amount); err != nil {
		e.Status = protocol.EscrowActive
		return err
	}
	return nil
}

// Refund returns the escrow to its depositor. Fires at most once.
// Authorized callers only, except that the depositor may refund unilaterally
// once the escrow deadline has passed unsettled.
func (l *Ledger) Refund(cap authority.Capability, id crypto.Hash, caller protocol.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.escrow(id)
	if err != nil {
		return err
	}
	if !l.caps.Authorized(cap) {
		expired := l.clock.Now().After(e.Deadline)
		if !expired || caller != e.Depositor {
			return ErrUnauthorized
		}
	}
	if e.Status != protocol.EscrowActive {
		return ErrAlreadySettled
	}

	e.Status = protocol.EscrowRefunded
	if err := l.bank.Transfer(l.vault, e.Depositor, e.Amount); err != nil {
		e.Status = protocol.EscrowActive
		return err
	}
	return nil
}

// Get returns a copy of the escrow record.
func (l *Ledger) Get(id crypto.Hash) (Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.escrow(id)
	if err != nil {
		return Escrow{}, err
	}
	return *e, nil
}

// ByReceipt returns the escrow linked to a receipt, if any.
func (l *Ledger) ByReceipt(receiptID crypto.Hash) (Escrow, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byReceipt[receiptID]
	if !ok {
		return Escrow{}, false
	}
	return *l.escrows[id], true
}

func (l *Ledger) escrow(id crypto.Hash) (*Escrow, error) {
	e, ok := l.escrows[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return e, nil
}

func deriveID(receiptID crypto.Hash, depositor protocol.Address, at ledgertime.Time) crypto.Hash {
	buf := make([]byte, 0, len(receiptID)+len(depositor)+8)
	buf = append(buf, receiptID[:]...)
	buf = append(buf, depositor[:]...)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(uint64(at)>>(8*i)))
	}
	return crypto.HashData(buf)
}
