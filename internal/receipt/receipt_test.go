package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/testutils"
)

func sampleReceipt(t *testing.T) Receipt {
	return Receipt{
		IntentRef:            testutils.RandomHash(t),
		ConstraintCommitment: testutils.RandomHash(t),
		RouteCommitment:      testutils.RandomHash(t),
		OutcomeCommitment:    testutils.RandomHash(t),
		EvidenceCommitment:   testutils.RandomHash(t),
		CreatedAt:            ledgertime.Time(1000),
		Expiry:               ledgertime.Time(2000),
		ExecutorID:           protocol.ExecutorID(testutils.RandomHash(t)),
	}
}

func TestHashIsContentDerived(t *testing.T) {
	r := sampleReceipt(t)
	h1 := r.Hash()

	// Hash is stable
	assert.Equal(t, h1, r.Hash())

	// Signature is excluded from the identity
	pub, priv := testutils.GenerateOperatorKey(t)
	r.Sign(priv)
	assert.Equal(t, h1, r.Hash())
	assert.True(t, r.VerifySignature(pub))

	// Any content change produces a different identity
	r.OutcomeCommitment = testutils.RandomHash(t)
	assert.NotEqual(t, h1, r.Hash())
}

func TestVerifySignatureRejectsWrongKey(t *testing.T) {
	r := sampleReceipt(t)
	_, priv := testutils.GenerateOperatorKey(t)
	r.Sign(priv)

	otherPub, _ := testutils.GenerateOperatorKey(t)
	assert.False(t, r.VerifySignature(otherPub))
}

func TestVerifySignatureRejectsTamperedContent(t *testing.T) {
	r := sampleReceipt(t)
	pub, priv := testutils.GenerateOperatorKey(t)
	r.Sign(priv)

	r.Expiry = ledgertime.Time(3000)
	assert.False(t, r.VerifySignature(pub))
}
