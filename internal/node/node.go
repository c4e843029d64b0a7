// Package node wires the protocol components into one runnable unit: bank,
// registry, escrow ledger, receipt hub and optimistic dispute engine, all
// sharing a clock and a persistent audit trail. Each component guards its
// mutating surface with its own capability set, so a credential granted
// for one surface carries no authority anywhere else.
package node

import (
	"fmt"

	"github.com/intent-solutions-io/irsb-protocol/internal/authority"
	"github.com/intent-solutions-io/irsb-protocol/internal/bank"
	"github.com/intent-solutions-io/irsb-protocol/internal/crypto"
	"github.com/intent-solutions-io/irsb-protocol/internal/escrow"
	"github.com/intent-solutions-io/irsb-protocol/internal/hub"
	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/optimistic"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
	"github.com/intent-solutions-io/irsb-protocol/internal/registry"
	"github.com/intent-solutions-io/irsb-protocol/internal/reputation"
	"github.com/intent-solutions-io/irsb-protocol/internal/store"
	"github.com/intent-solutions-io/irsb-protocol/pkg/db"
	"github.com/intent-solutions-io/irsb-protocol/pkg/db/pebble"
)

// Config selects the node's storage, privileged addresses and optional
// reputation endpoint.
type Config struct {
	// DBPath is the pebble store directory. Empty means in-memory.
	DBPath string

	Arbitrator protocol.Address
	Treasury   protocol.Address

	// ReputationURL is the external reputation registry endpoint. Empty
	// disables publishing.
	ReputationURL string

	// Clock defaults to the system clock when nil.
	Clock ledgertime.Clock
}

// Node is a fully wired protocol instance.
type Node struct {
	Clock    ledgertime.Clock
	Bank     *bank.Ledger
	Roles    *authority.Roles
	Registry *registry.Registry
	Escrows  *escrow.Ledger
	Trail    *store.Trail
	Hub      *hub.Hub
	Engine   *optimistic.Engine

	// AdminCap is the module owner's capability, minted exactly once.
	AdminCap authority.Capability

	// observers holds the adapter credentials; they authorize recording
	// settlement observations on the hub and nothing more.
	observers *authority.Set

	kv db.KVStore
}

// Internal accounts are fixed, derived addresses with no known private
// key, so funds held there move only through component entry points.
func internalAccount(name string) protocol.Address {
	return protocol.Address(crypto.HashData([]byte("irsb/account/" + name)))
}

func New(cfg Config) (*Node, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = ledgertime.SystemClock{}
	}

	var (
		kv  db.KVStore
		err error
	)
	if cfg.DBPath == "" {
		kv, err = pebble.NewKVStore()
	} else {
		kv, err = pebble.NewPersistentKVStore(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}

	bankLedger := bank.NewLedger()
	roles, admin := authority.NewRoles(cfg.Arbitrator, cfg.Treasury)

	// One capability set per guarded surface. The hub holds stake and
	// escrow credentials; the engine additionally holds a hub resolver
	// credential for its settlement callbacks.
	registryCaps := authority.NewSet()
	escrowCaps := authority.NewSet()
	resolvers := authority.NewSet()
	observers := authority.NewSet()

	reg := registry.New(clock, bankLedger, registryCaps, admin, internalAccount("stake-vault"))
	escrows := escrow.NewLedger(clock, bankLedger, escrowCaps, internalAccount("escrow-vault"))
	trail := store.NewTrail(kv)
	settlement := internalAccount("settlement")

	var publisher reputation.Publisher
	if cfg.ReputationURL != "" {
		publisher = reputation.NewHTTPPublisher(cfg.ReputationURL)
	}

	h := hub.New(hub.Config{
		Clock:       clock,
		Registry:    reg,
		Bank:        bankLedger,
		Escrows:     escrows,
		Trail:       trail,
		Roles:       roles,
		Resolvers:   resolvers,
		Observers:   observers,
		RegistryCap: registryCaps.Grant("hub"),
		EscrowCap:   escrowCaps.Grant("hub"),
		Settlement:  settlement,
		Publisher:   publisher,
	})
	engine := optimistic.New(optimistic.Config{
		Clock:       clock,
		Registry:    reg,
		Bank:        bankLedger,
		Escrows:     escrows,
		Trail:       trail,
		Roles:       roles,
		Hub:         h,
		RegistryCap: registryCaps.Grant("disputes"),
		EscrowCap:   escrowCaps.Grant("disputes"),
		HubCap:      resolvers.Grant("disputes"),
		Settlement:  settlement,
	})

	return &Node{
		Clock:     clock,
		Bank:      bankLedger,
		Roles:     roles,
		Registry:  reg,
		Escrows:   escrows,
		Trail:     trail,
		Hub:       h,
		Engine:    engine,
		AdminCap:  admin,
		observers: observers,
		kv:        kv,
	}, nil
}

// GrantAdapter mints a capability for a settlement adapter so it may
// record observations on the hub. The credential is scoped to the hub's
// observer set; it cannot lock, slash or release anything.
func (n *Node) GrantAdapter(name string) authority.Capability {
	return n.observers.Grant(name)
}

// Close releases the underlying store.
func (n *Node) Close() error {
	return n.kv.Close()
}
