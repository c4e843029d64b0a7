// Package store persists the protocol audit trail: receipts, disputes,
// evidence and settlements. The trail is append-only; records are written
// once and status snapshots are layered on top, nothing is ever deleted.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/receipt"
	"github.com/intent-solutions-io/irsb-protocol/pkg/db"
	"github.com/intent-solutions-io/irsb-protocol/pkg/db/pebble"
)

var (
	ErrReceiptNotFound = errors.New("receipt not found in trail")
	ErrDisputeNotFound = errors.New("dispute not found in trail")
)

// Prefix constants for all record families
const (
	prefixReceipt byte = iota + 1
	prefixReceiptStatus
	prefixDispute
	prefixEvidence
	prefixEvidenceSeq
	prefixSettlement
)

// ReceiptRecord is the stored form of a posted receipt.
type ReceiptRecord struct {
	Receipt        receipt.Receipt
	DeclaredVolume uint64
	PostedAt       ledgertime.Time
}

// DisputeRecord is the stored form of a dispute opened against a receipt.
type DisputeRecord struct {
	ReceiptID  crypto.Hash
	Challenger protocol.Address
	Reason     protocol.ReasonCode
	Evidence   crypto.Hash
	Bond       uint64
	OpenedAt   ledgertime.Time
	Escalated  bool
}

// EvidenceEntry is one append-only evidence submission.
type EvidenceEntry struct {
	DisputeID  crypto.Hash
	Seq        uint64
	Party      protocol.Address
	Commitment crypto.Hash
	At         ledgertime.Time
}

// SettlementRecord captures the economic outcome of a resolved receipt.
type SettlementRecord struct {
	ReceiptID     crypto.Hash
	Status        protocol.ReceiptStatus
	SlashedAmount uint64
	Reason        protocol.ReasonCode
	SettledAt     ledgertime.Time
}

// Trail is the audit trail store.
type Trail struct {
	db db.KVStore
}

func NewTrail(kv db.KVStore) *Trail {
	return &Trail{db: kv}
}

// PutReceipt stores a posted receipt together with its initial status.
// A receipt id can only be written once.
func (t *Trail) PutReceipt(rec ReceiptRecord) error {
	id := rec.Receipt.Hash()
	key := makeKey(prefixReceipt, id[:])

	if _, err := t.db.Get(key); err == nil {
		return fmt.Errorf("receipt %s already recorded", id)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("check receipt: %w", err)
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	batch := t.db.NewBatch()
	defer batch.Close()

	if err := batch.Put(key, value); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	if err := batch.Put(makeKey(prefixReceiptStatus, id[:]), []byte{byte(protocol.ReceiptPosted)}); err != nil {
		return fmt.Errorf("store receipt status: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt record and its current status.
func (t *Trail) GetReceipt(id crypto.Hash) (ReceiptRecord, protocol.ReceiptStatus, error) {
	value, err := t.db.Get(makeKey(prefixReceipt, id[:]))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ReceiptRecord{}, 0, ErrReceiptNotFound
		}
		return ReceiptRecord{}, 0, fmt.Errorf("get receipt: %w", err)
	}
	var rec ReceiptRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return ReceiptRecord{}, 0, fmt.Errorf("unmarshal receipt: %w", err)
	}

	statusBytes, err := t.db.Get(makeKey(prefixReceiptStatus, id[:]))
	if err != nil {
		return ReceiptRecord{}, 0, fmt.Errorf("get receipt status: %w", err)
	}
	return rec, protocol.ReceiptStatus(statusBytes[0]), nil
}

// SetReceiptStatus updates the status snapshot of a receipt. The receipt
// record itself is immutable.
func (t *Trail) SetReceiptStatus(id crypto.Hash, status protocol.ReceiptStatus) error {
	if err := t.db.Put(makeKey(prefixReceiptStatus, id[:]), []byte{byte(status)}); err != nil {
		return fmt.Errorf("store receipt status: %w", err)
	}
	return nil
}

// PutDispute stores a dispute record keyed by its receipt id.
func (t *Trail) PutDispute(rec DisputeRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dispute: %w", err)
	}
	if err := t.db.Put(makeKey(prefixDispute, rec.ReceiptID[:]), value); err != nil {
		return fmt.Errorf("store dispute: %w", err)
	}
	return nil
}

// GetDispute retrieves the dispute opened against a receipt.
func (t *Trail) GetDispute(receiptID crypto.Hash) (DisputeRecord, error) {
	value, err := t.db.Get(makeKey(prefixDispute, receiptID[:]))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return DisputeRecord{}, ErrDisputeNotFound
		}
		return DisputeRecord{}, fmt.Errorf("get dispute: %w", err)
	}
	var rec DisputeRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return DisputeRecord{}, fmt.Errorf("unmarshal dispute: %w", err)
	}
	return rec, nil
}

// AppendEvidence appends an evidence entry to a dispute's log and returns
// its sequence number. Entries are never overwritten.
func (t *Trail) AppendEvidence(disputeID crypto.Hash, party protocol.Address, commitment crypto.Hash, at ledgertime.Time) (uint64, error) {
	seqKey := makeKey(prefixEvidenceSeq, disputeID[:])

	seq := uint64(0)
	if value, err := t.db.Get(seqKey); err == nil {
		seq = binary.BigEndian.Uint64(value)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return 0, fmt.Errorf("get evidence seq: %w", err)
	}

	entry := EvidenceEntry{
		DisputeID:  disputeID,
		Seq:        seq,
		Party:      party,
		Commitment: commitment,
		At:         at,
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("marshal evidence: %w", err)
	}

	batch := t.db.NewBatch()
	defer batch.Close()

	if err := batch.Put(makeEvidenceKey(disputeID, seq), value); err != nil {
		return 0, fmt.Errorf("store evidence: %w", err)
	}
	nextSeq := make([]byte, 8)
	binary.BigEndian.PutUint64(nextSeq, seq+1)
	if err := batch.Put(seqKey, nextSeq); err != nil {
		return 0, fmt.Errorf("store evidence seq: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return seq, nil
}

// ListEvidence returns all evidence entries for a dispute in submission
// order.
func (t *Trail) ListEvidence(disputeID crypto.Hash) ([]EvidenceEntry, error) {
	start := makeEvidenceKey(disputeID, 0)
	end := makeKey(prefixEvidence, append(disputeID[:], 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff))

	iter, err := t.db.NewIterator(start, end)
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	var entries []EvidenceEntry
	for iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("get iterator value: %w", err)
		}
		var entry EvidenceEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// PutSettlement records the economic outcome of a resolved receipt.
func (t *Trail) PutSettlement(rec SettlementRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}
	if err := t.db.Put(makeKey(prefixSettlement, rec.ReceiptID[:]), value); err != nil {
		return fmt.Errorf("store settlement: %w", err)
	}
	return nil
}

// GetSettlement retrieves the settlement record for a receipt.
func (t *Trail) GetSettlement(receiptID crypto.Hash) (SettlementRecord, bool, error) {
	value, err := t.db.Get(makeKey(prefixSettlement, receiptID[:]))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return SettlementRecord{}, false, nil
		}
		return SettlementRecord{}, false, fmt.Errorf("get settlement: %w", err)
	}
	var rec SettlementRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return SettlementRecord{}, false, fmt.Errorf("unmarshal settlement: %w", err)
	}
	return rec, true, nil
}

// makeKey creates a key from a prefix and hash
func makeKey(prefix byte, hash []byte) []byte {
	key := make([]byte, 1+len(hash))
	key[0] = prefix
	copy(key[1:], hash)
	return key
}

// makeEvidenceKey creates a key for the evidence log.
// The key format is: [prefix(1)][disputeID(32)][seq(8, big-endian)] so that
// iteration order matches submission order.
func makeEvidenceKey(disputeID crypto.Hash, seq uint64) []byte {
	key := make([]byte, 1+len(disputeID)+8)
	key[0] = prefixEvidence
	copy(key[1:], disputeID[:])
	binary.BigEndian.PutUint64(key[1+len(disputeID):], seq)
	return key
}
