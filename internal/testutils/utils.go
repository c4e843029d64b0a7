package testutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
)

func RandomHash(t *testing.T) crypto.Hash {
	var hash crypto.Hash
	_, err := rand.Read(hash[:])
	require.NoError(t, err)
	return hash
}

func RandomAddress(t *testing.T) protocol.Address {
	var addr protocol.Address
	_, err := rand.Read(addr[:])
	require.NoError(t, err)
	return addr
}

func GenerateOperatorKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

// ManualClock is a hand-driven clock for testing windows and deadlines.
type ManualClock struct {
	Current ledgertime.Time
}

func NewManualClock(start ledgertime.Time) *ManualClock {
	return &ManualClock{Current: start}
}

func (c *ManualClock) Now() ledgertime.Time {
	return c.Current
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}

// Tick moves the clock forward by a single second.
func (c *ManualClock) Tick() {
	c.Current++
}
