// Package receipt defines the signed execution receipt and its
// deterministic content-hash identity. Any adapter translating an external
// settlement event into a receipt must reproduce this exact encoding for
// identifiers to match.
package receipt

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
)

// encodedContentSize is the fixed size of the hashed content tuple:
// five 32-byte commitments, two 8-byte timestamps and the executor id.
const encodedContentSize = 5*crypto.HashSize + 2*8 + 32

// Receipt is a signed commitment to an intent execution. The signature
// covers the content hash and is excluded from it.
type Receipt struct {
	IntentRef            crypto.Hash
	ConstraintCommitment crypto.Hash
	RouteCommitment      crypto.Hash
	OutcomeCommitment    crypto.Hash
	EvidenceCommitment   crypto.Hash
	CreatedAt            ledgertime.Time
	Expiry               ledgertime.Time
	ExecutorID           protocol.ExecutorID
	Signature            crypto.Ed25519Signature
}

// encodeContent produces the canonical binary layout of the content tuple:
// commitments in declaration order, then little-endian timestamps, then the
// executor id.
func (r *Receipt) encodeContent() []byte {
	buf := make([]byte, 0, encodedContentSize)
	buf = append(buf, r.IntentRef[:]...)
	buf = append(buf, r.ConstraintCommitment[:]...)
	buf = append(buf, r.RouteCommitment[:]...)
	buf = append(buf, r.OutcomeCommitment[:]...)
	buf = append(buf, r.EvidenceCommitment[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.CreatedAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Expiry))
	buf = append(buf, r.ExecutorID[:]...)
	return buf
}

// Hash returns the receipt identity: the Blake2b-256 hash of the encoded
// content tuple.
func (r *Receipt) Hash() crypto.Hash {
	return crypto.HashData(r.encodeContent())
}

// Sign sets the operator signature over the content hash.
func (r *Receipt) Sign(priv ed25519.PrivateKey) {
	r.Signature = crypto.SignHash(priv, crypto.SignatureContextReceipt, r.Hash())
}

// VerifySignature checks the operator signature against the bound key.
func (r *Receipt) VerifySignature(operator ed25519.PublicKey) bool {
	return crypto.VerifyHashSignature(operator, crypto.SignatureContextReceipt, r.Hash(), r.Signature)
}
