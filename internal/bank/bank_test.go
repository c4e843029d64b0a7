package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
)

func TestIssueAndTransfer(t *testing.T) {
	ledger := NewLedger()
	alice := protocol.Address{1}
	bob := protocol.Address{2}

	require.NoError(t, ledger.Issue(alice, 1000))
	assert.Equal(t, uint64(1000), ledger.Balance(alice))
	assert.Equal(t, uint64(1000), ledger.TotalIssued())

	require.NoError(t, ledger.Transfer(alice, bob, 400))
	assert.Equal(t, uint64(600), ledger.Balance(alice))
	assert.Equal(t, uint64(400), ledger.Balance(bob))

	// Transfers conserve the total
	assert.Equal(t, ledger.TotalIssued(), ledger.SumBalances())
}

func TestTransferInsufficient(t *testing.T) {
	ledger := NewLedger()
	alice := protocol.Address{1}
	bob := protocol.Address{2}

	require.NoError(t, ledger.Issue(alice, 100))
	err := ledger.Transfer(alice, bob, 101)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Failed transfer leaves balances untouched
	assert.Equal(t, uint64(100), ledger.Balance(alice))
	assert.Equal(t, uint64(0), ledger.Balance(bob))
}

func TestZeroAmountRejected(t *testing.T) {
	ledger := NewLedger()
	err := ledger.Transfer(protocol.Address{1}, protocol.Address{2}, 0)
	assert.ErrorIs(t, err, ErrZeroAmount)
}
