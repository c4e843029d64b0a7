// Package authority implements capability-gated access control. Mutating
// entry points on the registry and escrow ledger require a Capability
// minted by the module owner and granted to the calling component, instead
// of any implicit trust hierarchy between components.
package authority

import (
	"crypto/rand"
	"sync"

	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
)

// Capability is an unforgeable caller token. The token value is random and
// unexported, so a Capability can only be obtained from the Set that minted
// it or from a component that was handed one.
type Capability struct {
	token [16]byte
}

// Set is an allow-list of granted capabilities, maintained by the owning
// component's administrator.
type Set struct {
	mu      sync.RWMutex
	granted map[[16]byte]string
}

func NewSet() *Set {
	return &Set{granted: make(map[[16]byte]string)}
}

// Grant mints a new capability recorded under the given holder name.
func (s *Set) Grant(holder string) Capability {
	var c Capability
	if _, err := rand.Read(c.token[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted[c.token] = holder
	return c
}

// Revoke removes a capability from the allow-list. Subsequent calls
// presenting it fail authorization.
func (s *Set) Revoke(c Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.granted, c.token)
}

// Authorized reports whether the capability is currently granted.
func (s *Set) Authorized(c Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.granted[c.token]
	return ok
}

// Holder returns the name the capability was granted under.
func (s *Set) Holder(c Capability) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	holder, ok := s.granted[c.token]
	return holder, ok
}

// Roles holds the rotatable privileged addresses and the pause switch.
// Pausing blocks new receipts and disputes; timers that are already running
// are unaffected, so timeout resolutions keep working while paused.
type Roles struct {
	mu         sync.RWMutex
	admin      Capability
	arbitrator protocol.Address
	treasury   protocol.Address
	paused     bool
}

// NewRoles creates the role table and mints the admin capability, which is
// returned exactly once to the module owner.
func NewRoles(arbitrator, treasury protocol.Address) (*Roles, Capability) {
	set := NewSet()
	admin := set.Grant("admin")
	return &Roles{
		admin:      admin,
		arbitrator: arbitrator,
		treasury:   treasury,
	}, admin
}

func (r *Roles) isAdmin(c Capability) bool {
	return c.token == r.admin.token
}

// Pause blocks new receipts and disputes. Admin only.
func (r *Roles) Pause(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdmin(c) {
		return ErrNotAdmin
	}
	r.paused = true
	return nil
}

// Unpause re-enables new receipts and disputes. Admin only.
func (r *Roles) Unpause(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdmin(c) {
		return ErrNotAdmin
	}
	r.paused = false
	return nil
}

func (r *Roles) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// RotateArbitrator replaces the designated arbitrator address. Admin only.
func (r *Roles) RotateArbitrator(c Capability, addr protocol.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdmin(c) {
		return ErrNotAdmin
	}
	if addr.IsZero() {
		return ErrZeroAddress
	}
	r.arbitrator = addr
	return nil
}

// RotateTreasury replaces the treasury address. Admin only.
func (r *Roles) RotateTreasury(c Capability, addr protocol.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdmin(c) {
		return ErrNotAdmin
	}
	if addr.IsZero() {
		return ErrZeroAddress
	}
	r.treasury = addr
	return nil
}

func (r *Roles) Arbitrator() protocol.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.arbitrator
}

func (r *Roles) Treasury() protocol.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.treasury
}
