package node

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/escrow"
	"github.com/intent-solutions-io/irsb-protocol/internal/hub"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/receipt"
	"github.com/intent-solutions-io/irsb-protocol/internal/registry"
	"github.com/intent-solutions-io/irsb-protocol/internal/testutils"
)

type harness struct {
	*Node
	t     *testing.T
	clock *testutils.ManualClock
}

func newHarness(t *testing.T) *harness {
	clock := testutils.NewManualClock(ledgertime.Time(1000))
	n, err := New(Config{
		Arbitrator: testutils.RandomAddress(t),
		Treasury:   testutils.RandomAddress(t),
		Clock:      clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, n.Close())
	})
	return &harness{Node: n, t: t, clock: clock}
}

func (h *harness) registerFunded(stake uint64) (protocol.ExecutorID, ed25519.PrivateKey, protocol.Address) {
	pub, priv := testutils.GenerateOperatorKey(h.t)
	id, err := h.Registry.Register(pub, []byte("solver"))
	require.NoError(h.t, err)
	operator := protocol.AddressFromPublicKey(pub)
	require.NoError(h.t, h.Bank.Issue(operator, stake))
	return id, priv, operator
}

func (h *harness) postReceipt(id protocol.ExecutorID, priv ed25519.PrivateKey, expiry ledgertime.Time) crypto.Hash {
	rec := receipt.Receipt{
		IntentRef:            testutils.RandomHash(h.t),
		ConstraintCommitment: testutils.RandomHash(h.t),
		RouteCommitment:      testutils.RandomHash(h.t),
		OutcomeCommitment:    testutils.RandomHash(h.t),
		EvidenceCommitment:   testutils.RandomHash(h.t),
		CreatedAt:            h.clock.Now(),
		Expiry:               expiry,
		ExecutorID:           id,
	}
	rec.Sign(priv)
	receiptID, err := h.Hub.PostReceipt(rec, 1)
	require.NoError(h.t, err)
	return receiptID
}

// A deposit of exactly the minimum stake activates the executor; an
// undisputed receipt finalizes after the challenge window and counts as a
// successful fill.
func TestMinimumStakeHappyPath(t *testing.T) {
	h := newHarness(t)
	id, priv, _ := h.registerFunded(protocol.MinimumStake)

	require.NoError(t, h.Registry.DepositStake(id, protocol.MinimumStake))
	status, err := h.Registry.Status(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.ExecutorActive, status)

	receiptID := h.postReceipt(id, priv, h.clock.Now().Add(24*time.Hour))
	h.clock.Advance(protocol.ChallengeWindow + time.Second)
	require.NoError(t, h.Hub.Finalize(receiptID))

	e, err := h.Registry.Executor(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Reputation.SuccessfulFills)
	assert.Equal(t, h.Bank.TotalIssued(), h.Bank.SumBalances())
}

// An expiry dispute resolves deterministically once the expiry passes,
// slashing the full locked stake 80/15/5.
func TestDeterministicExpirySlash(t *testing.T) {
	h := newHarness(t)
	id, priv, _ := h.registerFunded(protocol.MinimumStake)
	require.NoError(t, h.Registry.DepositStake(id, protocol.MinimumStake))

	challenger := testutils.RandomAddress(t)
	require.NoError(t, h.Bank.Issue(challenger, protocol.MinimumStake))

	receiptID := h.postReceipt(id, priv, h.clock.Now().Add(30*time.Minute))
	require.NoError(t, h.Hub.OpenDispute(receiptID, challenger, protocol.ReasonExpiry, testutils.RandomHash(t)))
	dispute, err := h.Hub.Dispute(receiptID)
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)
	require.NoError(t, h.Hub.ResolveDeterministic(receiptID))

	record, err := h.Hub.Receipt(receiptID)
	require.NoError(t, err)
	assert.Equal(t, protocol.ReceiptSlashed, record.Status)

	// Challenger doubles as beneficiary: 95% of the slash plus the bond back
	want := protocol.MinimumStake - dispute.Bond + // remaining funds
		protocol.MinimumStake*9500/10_000 + dispute.Bond
	assert.Equal(t, want, h.Bank.Balance(challenger))
	assert.Equal(t, protocol.MinimumStake*500/10_000, h.Bank.Balance(h.Roles.Treasury()))
	assert.Equal(t, h.Bank.TotalIssued(), h.Bank.SumBalances())
}

// A contested optimistic dispute where the arbitrator clears the solver
// returns the counter-bond, forfeits the challenger's bond and releases
// the escrow to the executor.
func TestOptimisticSolverClearedEndToEnd(t *testing.T) {
	h := newHarness(t)
	arbitrator := h.Roles.Arbitrator()
	id, priv, operator := h.registerFunded(2 * protocol.MinimumStake)
	require.NoError(t, h.Registry.DepositStake(id, protocol.MinimumStake))

	challenger := testutils.RandomAddress(t)
	require.NoError(t, h.Bank.Issue(challenger, protocol.MinimumStake))
	depositor := testutils.RandomAddress(t)
	require.NoError(t, h.Bank.Issue(depositor, 25_000))

	receiptID := h.postReceipt(id, priv, h.clock.Now().Add(30*24*time.Hour))
	_, err := h.Escrows.Create(receiptID, depositor, protocol.Asset{}, 25_000, h.clock.Now().Add(60*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.Hub.OpenDispute(receiptID, challenger, protocol.ReasonRouteDeviation, testutils.RandomHash(t)))

	disputeID, err := h.Engine.Open(receiptID, challenger)
	require.NoError(t, err)
	d, err := h.Engine.Dispute(disputeID)
	require.NoError(t, err)
	require.NoError(t, h.Engine.PostCounterBond(disputeID, operator, d.Bond))

	require.NoError(t, h.Engine.ResolveByArbitration(disputeID, arbitrator, false, 0, protocol.ReasonRouteDeviation))

	record, err := h.Hub.Receipt(receiptID)
	require.NoError(t, err)
	assert.Equal(t, protocol.ReceiptFinalized, record.Status)

	// Operator keeps its spare funds, wins the challenger bond and the
	// escrow, and gets the counter-bond back
	assert.Equal(t, protocol.MinimumStake+d.Bond+25_000, h.Bank.Balance(operator))
	assert.Zero(t, h.Bank.Balance(depositor))
	assert.Equal(t, h.Bank.TotalIssued(), h.Bank.SumBalances())
}

// Three lost disputes ban the executor permanently; unjail never works
// again.
func TestThirdJailingBans(t *testing.T) {
	h := newHarness(t)
	id, priv, _ := h.registerFunded(10 * protocol.MinimumStake)
	require.NoError(t, h.Registry.DepositStake(id, protocol.MinimumStake))

	challenger := testutils.RandomAddress(t)
	require.NoError(t, h.Bank.Issue(challenger, protocol.MinimumStake))

	for round := 0; round < 3; round++ {
		receiptID := h.postReceipt(id, priv, h.clock.Now().Add(30*time.Minute))
		require.NoError(t, h.Hub.OpenDispute(receiptID, challenger, protocol.ReasonExpiry, testutils.RandomHash(t)))
		h.clock.Advance(31 * time.Minute)
		require.NoError(t, h.Hub.ResolveDeterministic(receiptID))

		status, err := h.Registry.Status(id)
		require.NoError(t, err)
		if round < 2 {
			require.Equal(t, protocol.ExecutorJailed, status)
			require.NoError(t, h.Registry.Unjail(h.AdminCap, id, 0, h.Roles.Treasury()))
			require.NoError(t, h.Registry.DepositStake(id, protocol.MinimumStake))
		} else {
			assert.Equal(t, protocol.ExecutorBanned, status)
		}
	}

	err := h.Registry.Unjail(h.AdminCap, id, 0, h.Roles.Treasury())
	assert.ErrorIs(t, err, registry.ErrExecutorBanned)
	assert.Equal(t, h.Bank.TotalIssued(), h.Bank.SumBalances())
}

// An adapter credential records observations and nothing else: it holds
// no authority over stake, escrow or dispute settlement.
func TestAdapterCapabilityScope(t *testing.T) {
	h := newHarness(t)
	id, priv, _ := h.registerFunded(protocol.MinimumStake)
	require.NoError(t, h.Registry.DepositStake(id, protocol.MinimumStake))
	receiptID := h.postReceipt(id, priv, h.clock.Now().Add(24*time.Hour))

	adapterCap := h.GrantAdapter("settlement-adapter")
	require.NoError(t, h.Hub.RecordObservation(adapterCap, receiptID, hub.Observation{
		SettledAt: h.clock.Now(),
	}))

	attacker := testutils.RandomAddress(t)
	err := h.Registry.Slash(adapterCap, id, protocol.MinimumStake, receiptID, protocol.ReasonExpiry, attacker)
	assert.ErrorIs(t, err, registry.ErrUnauthorized)
	assert.ErrorIs(t, h.Registry.LockStake(adapterCap, id, 1), registry.ErrUnauthorized)
	assert.ErrorIs(t, h.Escrows.Release(adapterCap, receiptID, attacker), escrow.ErrUnauthorized)
	assert.ErrorIs(t, h.Hub.ResolveEscalated(adapterCap, receiptID, true), hub.ErrUnauthorized)
	_, err = h.Hub.Escalate(adapterCap, receiptID, attacker)
	assert.ErrorIs(t, err, hub.ErrUnauthorized)

	// The stake is exactly where it was
	available, locked, err := h.Registry.Stakes(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.MinimumStake, available)
	assert.Zero(t, locked)
}

// If a counter-bond never appears, anyone can resolve by timeout exactly
// once and the challenger receives the full locked stake.
func TestTimeoutLivenessEndToEnd(t *testing.T) {
	h := newHarness(t)
	id, priv, _ := h.registerFunded(protocol.MinimumStake)
	require.NoError(t, h.Registry.DepositStake(id, protocol.MinimumStake))

	challenger := testutils.RandomAddress(t)
	require.NoError(t, h.Bank.Issue(challenger, protocol.MinimumStake))

	receiptID := h.postReceipt(id, priv, h.clock.Now().Add(30*24*time.Hour))
	require.NoError(t, h.Hub.OpenDispute(receiptID, challenger, protocol.ReasonConstraintViolation, testutils.RandomHash(t)))
	disputeID, err := h.Engine.Open(receiptID, challenger)
	require.NoError(t, err)

	h.clock.Advance(protocol.CounterBondWindow + time.Second)
	require.NoError(t, h.Engine.ResolveByTimeout(disputeID))
	assert.Error(t, h.Engine.ResolveByTimeout(disputeID))

	assert.Equal(t, h.Bank.TotalIssued(), h.Bank.SumBalances())
	assert.Equal(t, protocol.MinimumStake+protocol.MinimumStake, h.Bank.Balance(challenger))
}
