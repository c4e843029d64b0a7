package optimistic

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intent-solutions-io/irsb-protocol/internal/authority"
	"github.com/intent-solutions-io/irsb-protocol/internal/bank"
	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/escrow"
	"github.com/intent-solutions-io/irsb-protocol/internal/hub"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/receipt"
	"github.com/intent-solutions-io/irsb-protocol/internal/registry"
	"github.com/intent-solutions-io/irsb-protocol/internal/store"
	"github.com/intent-solutions-io/irsb-protocol/internal/testutils"
	"github.com/intent-solutions-io/irsb-protocol/pkg/db/pebble"
)

type fixture struct {
	t          *testing.T
	clock      *testutils.ManualClock
	bank       *bank.Ledger
	resolvers  *authority.Set
	roles      *authority.Roles
	admin      authority.Capability
	registry   *registry.Registry
	escrows    *escrow.Ledger
	trail      *store.Trail
	hub        *hub.Hub
	engine     *Engine
	arbitrator protocol.Address
	treasury   protocol.Address
	settlement protocol.Address
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:          t,
		clock:      testutils.NewManualClock(ledgertime.Time(1000)),
		bank:       bank.NewLedger(),
		resolvers:  authority.NewSet(),
		arbitrator: testutils.RandomAddress(t),
		treasury:   testutils.RandomAddress(t),
		settlement: testutils.RandomAddress(t),
	}
	f.roles, f.admin = authority.NewRoles(f.arbitrator, f.treasury)
	registryCaps := authority.NewSet()
	escrowCaps := authority.NewSet()
	f.registry = registry.New(f.clock, f.bank, registryCaps, f.admin, testutils.RandomAddress(t))
	f.escrows = escrow.NewLedger(f.clock, f.bank, escrowCaps, testutils.RandomAddress(t))

	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, kv.Close())
	})
	f.trail = store.NewTrail(kv)

	f.hub = hub.New(hub.Config{
		Clock:       f.clock,
		Registry:    f.registry,
		Bank:        f.bank,
		Escrows:     f.escrows,
		Trail:       f.trail,
		Roles:       f.roles,
		Resolvers:   f.resolvers,
		Observers:   authority.NewSet(),
		RegistryCap: registryCaps.Grant("hub"),
		EscrowCap:   escrowCaps.Grant("hub"),
		Settlement:  f.settlement,
	})
	f.engine = New(Config{
		Clock:       f.clock,
		Registry:    f.registry,
		Bank:        f.bank,
		Escrows:     f.escrows,
		Trail:       f.trail,
		Roles:       f.roles,
		Hub:         f.hub,
		RegistryCap: registryCaps.Grant("disputes"),
		EscrowCap:   escrowCaps.Grant("disputes"),
		HubCap:      f.resolvers.Grant("disputes"),
		Settlement:  f.settlement,
	})
	return f
}

type scenario struct {
	executorID protocol.ExecutorID
	operator   protocol.Address
	priv       ed25519.PrivateKey
	challenger protocol.Address
	receiptID  crypto.Hash
	bond       uint64
	reason     protocol.ReasonCode
}

// disputedReceipt sets up an active executor, a posted receipt and an open
// hub dispute with a subjective reason code, ready for escalation.
func (f *fixture) disputedReceipt() scenario {
	pub, priv := testutils.GenerateOperatorKey(f.t)
	id, err := f.registry.Register(pub, []byte("solver"))
	require.NoError(f.t, err)
	operator := protocol.AddressFromPublicKey(pub)
	// Fund the operator with enough spare for a counter-bond on top of stake
	require.NoError(f.t, f.bank.Issue(operator, 2*protocol.MinimumStake))
	require.NoError(f.t, f.registry.DepositStake(id, protocol.MinimumStake))

	rec := receipt.Receipt{
		IntentRef:            testutils.RandomHash(f.t),
		ConstraintCommitment: testutils.RandomHash(f.t),
		RouteCommitment:      testutils.RandomHash(f.t),
		OutcomeCommitment:    testutils.RandomHash(f.t),
		EvidenceCommitment:   testutils.RandomHash(f.t),
		CreatedAt:            f.clock.Now(),
		Expiry:               f.clock.Now().Add(30 * 24 * time.Hour),
		ExecutorID:           id,
	}
	rec.Sign(priv)
	receiptID, err := f.hub.PostReceipt(rec, 1)
	require.NoError(f.t, err)

	challenger := testutils.RandomAddress(f.t)
	require.NoError(f.t, f.bank.Issue(challenger, protocol.MinimumStake))
	require.NoError(f.t, f.hub.OpenDispute(receiptID, challenger, protocol.ReasonOutcomeMismatch, testutils.RandomHash(f.t)))

	dispute, err := f.hub.Dispute(receiptID)
	require.NoError(f.t, err)
	return scenario{
		executorID: id,
		operator:   operator,
		priv:       priv,
		challenger: challenger,
		receiptID:  receiptID,
		bond:       dispute.Bond,
		reason:     dispute.Reason,
	}
}

func (f *fixture) assertConservation() {
	assert.Equal(f.t, f.bank.TotalIssued(), f.bank.SumBalances(), "bank must conserve issued funds")
}

func TestOpenTiesToHubDispute(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()

	// Only the original challenger can escalate
	_, err := f.engine.Open(s.receiptID, testutils.RandomAddress(t))
	assert.ErrorIs(t, err, hub.ErrNotChallenger)

	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)

	d, err := f.engine.Dispute(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.OptimisticOpen, d.Status)
	assert.Equal(t, s.bond, d.Bond)
	assert.Equal(t, protocol.MinimumStake, d.LockedStake)
	assert.Equal(t, f.clock.Now().Add(protocol.CounterBondWindow), d.CounterBondDeadline)

	// One active optimistic dispute per receipt
	_, err = f.engine.Open(s.receiptID, s.challenger)
	assert.ErrorIs(t, err, ErrDisputeActive)

	// A receipt without a hub dispute cannot be escalated
	_, err = f.engine.Open(testutils.RandomHash(t), s.challenger)
	assert.ErrorIs(t, err, hub.ErrReceiptNotFound)
}

func TestPostCounterBondRules(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.PostCounterBond(id, testutils.RandomAddress(t), s.bond), ErrNotOperator)
	assert.ErrorIs(t, f.engine.PostCounterBond(id, s.operator, s.bond-1), ErrCounterBondMismatch)

	require.NoError(t, f.engine.PostCounterBond(id, s.operator, s.bond))
	d, err := f.engine.Dispute(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.OptimisticContested, d.Status)
	assert.Equal(t, s.bond, d.CounterBond)
	assert.Equal(t, f.clock.Now().Add(protocol.ArbitrationWindow), d.ArbitrationDeadline)

	// Contested disputes take no second counter-bond
	assert.ErrorIs(t, f.engine.PostCounterBond(id, s.operator, s.bond), ErrNotOpen)
	f.assertConservation()
}

func TestPostCounterBondDeadline(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)

	f.clock.Advance(protocol.CounterBondWindow + time.Second)
	assert.ErrorIs(t, f.engine.PostCounterBond(id, s.operator, s.bond), ErrCounterBondWindowClosed)
}

func TestResolveByTimeout(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.ResolveByTimeout(id), ErrCounterBondWindowOpen)

	f.clock.Advance(protocol.CounterBondWindow + time.Second)
	challengerBefore := f.bank.Balance(s.challenger)
	require.NoError(t, f.engine.ResolveByTimeout(id))

	// Full locked stake slashed to the challenger plus the returned bond
	assert.Equal(t, challengerBefore+protocol.MinimumStake+s.bond, f.bank.Balance(s.challenger))

	d, err := f.engine.Dispute(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.OptimisticChallengerWins, d.Status)

	record, err := f.hub.Receipt(s.receiptID)
	require.NoError(t, err)
	assert.Equal(t, protocol.ReceiptSlashed, record.Status)

	e, err := f.registry.Executor(s.executorID)
	require.NoError(t, err)
	assert.Equal(t, protocol.ExecutorJailed, e.Status)
	assert.Zero(t, e.TotalStake())

	// Timeout resolution fires exactly once
	assert.ErrorIs(t, f.engine.ResolveByTimeout(id), ErrNotOpen)
	f.assertConservation()
}

func TestResolveByArbitrationSolverCleared(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	depositor := testutils.RandomAddress(t)
	require.NoError(t, f.bank.Issue(depositor, 40_000))
	_, err := f.escrows.Create(s.receiptID, depositor, protocol.Asset{}, 40_000, f.clock.Now().Add(60*24*time.Hour))
	require.NoError(t, err)

	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)
	require.NoError(t, f.engine.PostCounterBond(id, s.operator, s.bond))

	assert.ErrorIs(t, f.engine.ResolveByArbitration(id, testutils.RandomAddress(t), false, 0, s.reason), ErrNotArbitrator)

	operatorBefore := f.bank.Balance(s.operator)
	require.NoError(t, f.engine.ResolveByArbitration(id, f.arbitrator, false, 0, s.reason))

	// Counter-bond returned, challenger bond forfeited to the executor, and
	// the escrow released to it
	assert.Equal(t, operatorBefore+2*s.bond+40_000, f.bank.Balance(s.operator))

	available, locked, err := f.registry.Stakes(s.executorID)
	require.NoError(t, err)
	assert.Equal(t, protocol.MinimumStake, available)
	assert.Zero(t, locked)

	d, err := f.engine.Dispute(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.OptimisticSolverWins, d.Status)

	record, err := f.hub.Receipt(s.receiptID)
	require.NoError(t, err)
	assert.Equal(t, protocol.ReceiptFinalized, record.Status)

	e, err := f.registry.Executor(s.executorID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Reputation.SuccessfulFills)
	assert.Equal(t, protocol.ExecutorActive, e.Status)
	f.assertConservation()
}

func TestResolveByArbitrationSolverFault(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)
	require.NoError(t, f.engine.PostCounterBond(id, s.operator, s.bond))

	assert.ErrorIs(t, f.engine.ResolveByArbitration(id, f.arbitrator, true, 0, s.reason), ErrBadSlashPercentage)
	assert.ErrorIs(t, f.engine.ResolveByArbitration(id, f.arbitrator, true, 101, s.reason), ErrBadSlashPercentage)

	// The arbitrator's ruling can restate the reason; the settlement trail
	// records the ruled one, not the code the dispute was opened under
	challengerBefore := f.bank.Balance(s.challenger)
	require.NoError(t, f.engine.ResolveByArbitration(id, f.arbitrator, true, 50, protocol.ReasonConstraintViolation))

	slashed := protocol.MinimumStake / 2
	// No escrow: the challenger is the beneficiary, taking the 70% share on
	// top of its returned bond and the won counter-bond
	wantChallenger := challengerBefore + slashed*7000/10_000 + 2*s.bond
	assert.Equal(t, wantChallenger, f.bank.Balance(s.challenger))
	assert.Equal(t, slashed*2000/10_000, f.bank.Balance(f.treasury))
	assert.Equal(t, slashed*1000/10_000, f.bank.Balance(f.arbitrator))

	// The unslashed half of the stake unlocks
	available, locked, err := f.registry.Stakes(s.executorID)
	require.NoError(t, err)
	assert.Equal(t, protocol.MinimumStake-slashed, available)
	assert.Zero(t, locked)

	record, err := f.hub.Receipt(s.receiptID)
	require.NoError(t, err)
	assert.Equal(t, protocol.ReceiptSlashed, record.Status)

	settlement, found, err := f.trail.GetSettlement(s.receiptID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, protocol.ReasonConstraintViolation, settlement.Reason)
	assert.Equal(t, slashed, settlement.SlashedAmount)

	e, err := f.registry.Executor(s.executorID)
	require.NoError(t, err)
	assert.Equal(t, protocol.ExecutorJailed, e.Status)
	f.assertConservation()
}

func TestResolveContestedByTimeout(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)
	require.NoError(t, f.engine.PostCounterBond(id, s.operator, s.bond))

	assert.ErrorIs(t, f.engine.ResolveContestedByTimeout(id), ErrArbitrationWindowOpen)

	f.clock.Advance(protocol.ArbitrationWindow + time.Second)
	challengerBefore := f.bank.Balance(s.challenger)
	require.NoError(t, f.engine.ResolveContestedByTimeout(id))

	// Challenger wins by default and additionally receives the counter-bond
	wantChallenger := challengerBefore + protocol.MinimumStake + s.bond + s.bond
	assert.Equal(t, wantChallenger, f.bank.Balance(s.challenger))

	d, err := f.engine.Dispute(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.OptimisticChallengerWins, d.Status)

	assert.ErrorIs(t, f.engine.ResolveContestedByTimeout(id), ErrNotContested)
	f.assertConservation()
}

// Once a dispute has been settled through the hub's review path, the
// engine's timeout resolution must refuse before moving a single unit;
// the shared settlement account pays each bond exactly once.
func TestHubSettledDisputeCannotPayTwice(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)
	reviewCap := f.resolvers.Grant("review")

	f.clock.Advance(protocol.CounterBondWindow + time.Second)
	require.NoError(t, f.hub.ResolveEscalated(reviewCap, s.receiptID, true))

	challengerAfter := f.bank.Balance(s.challenger)
	settlementAfter := f.bank.Balance(f.settlement)
	assert.ErrorIs(t, f.engine.ResolveByTimeout(id), hub.ErrInvalidReceiptState)
	assert.Equal(t, challengerAfter, f.bank.Balance(s.challenger))
	assert.Equal(t, settlementAfter, f.bank.Balance(f.settlement))
	f.assertConservation()
}

// Pause gates new escalations only; timeout resolutions keep working so
// funds never freeze while the protocol is paused.
func TestResolveByTimeoutWhilePaused(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)

	require.NoError(t, f.roles.Pause(f.admin))
	f.clock.Advance(protocol.CounterBondWindow + time.Second)
	require.NoError(t, f.engine.ResolveByTimeout(id))

	d, err := f.engine.Dispute(id)
	require.NoError(t, err)
	assert.Equal(t, protocol.OptimisticChallengerWins, d.Status)
	f.assertConservation()
}

func TestSubmitEvidence(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)

	_, err = f.engine.SubmitEvidence(id, testutils.RandomAddress(t), testutils.RandomHash(t))
	assert.ErrorIs(t, err, ErrNotParty)

	seq, err := f.engine.SubmitEvidence(id, s.challenger, testutils.RandomHash(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)

	require.NoError(t, f.engine.PostCounterBond(id, s.operator, s.bond))
	seq, err = f.engine.SubmitEvidence(id, s.operator, testutils.RandomHash(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	entries, err := f.trail.ListEvidence(id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, s.challenger, entries[0].Party)
	assert.Equal(t, s.operator, entries[1].Party)

	f.clock.Advance(protocol.EvidenceWindow + time.Second)
	_, err = f.engine.SubmitEvidence(id, s.challenger, testutils.RandomHash(t))
	assert.ErrorIs(t, err, ErrEvidenceWindowClosed)
}

func TestSubmitEvidenceAfterResolution(t *testing.T) {
	f := newFixture(t)
	s := f.disputedReceipt()
	id, err := f.engine.Open(s.receiptID, s.challenger)
	require.NoError(t, err)

	f.clock.Advance(protocol.CounterBondWindow + time.Second)
	require.NoError(t, f.engine.ResolveByTimeout(id))

	_, err = f.engine.SubmitEvidence(id, s.challenger, testutils.RandomHash(t))
	assert.ErrorIs(t, err, ErrNotOpen)
}
