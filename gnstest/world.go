// Package gnstest provides in-memory collaborator simulators for testing
// GNS resolution without any running services.
package gnstest

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gnslab/gns"
)

// Zone is a test zone key pair with a helper for signing blocks.
type Zone struct {
	Priv gns.ZonePrivate
	Key  gns.ZoneKey
}

func NewZone(t *testing.T) *Zone {
	t.Helper()
	priv, err := gns.GenerateZone()
	if err != nil {
		t.Fatalf("generate zone: %v", err)
	}
	return &Zone{Priv: priv, Key: priv.Public()}
}

// Sign builds a signed, encrypted block for the given label, expiring an
// hour from now.
func (z *Zone) Sign(t *testing.T, label string, recs ...gns.Record) *gns.Block {
	t.Helper()
	block, err := gns.SignBlock(z.Priv, label, time.Now().Add(time.Hour), recs)
	if err != nil {
		t.Fatalf("sign block: %v", err)
	}
	return block
}

// Store is an in-memory namecache that counts its invocations.
type Store struct {
	mu      sync.Mutex
	blocks  map[gns.QueryHash]*gns.Block
	Lookups int32 // atomic
	Caches  int32 // atomic
	FailPut error // returned from CacheBlock if set
}

func NewStore() *Store {
	return &Store{blocks: make(map[gns.QueryHash]*gns.Block)}
}

func (s *Store) Put(block *gns.Block) {
	s.mu.Lock()
	s.blocks[block.Query] = block
	s.mu.Unlock()
}

func (s *Store) LookupBlock(ctx context.Context, query gns.QueryHash) (*gns.Block, error) {
	atomic.AddInt32(&s.Lookups, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[query], nil
}

func (s *Store) CacheBlock(ctx context.Context, block *gns.Block) error {
	atomic.AddInt32(&s.Caches, 1)
	if s.FailPut != nil {
		return s.FailPut
	}
	s.Put(block)
	return nil
}

// Network is an in-memory DHT. OnGet, if set, replaces the default lookup
// so tests can delay, hang or fail individual gets.
type Network struct {
	Store Store
	Gets  int32 // atomic
	OnGet func(ctx context.Context, query gns.QueryHash) (*gns.Block, error)
}

func NewNetwork() *Network {
	return &Network{Store: Store{blocks: make(map[gns.QueryHash]*gns.Block)}}
}

func (n *Network) Put(block *gns.Block) {
	n.Store.Put(block)
}

func (n *Network) Get(ctx context.Context, query gns.QueryHash, replication int) (*gns.Block, error) {
	atomic.AddInt32(&n.Gets, 1)
	if n.OnGet != nil {
		return n.OnGet(ctx, query)
	}
	n.Store.mu.Lock()
	defer n.Store.mu.Unlock()
	return n.Store.blocks[query], nil
}

// Vpn is a VPN allocator returning a fixed address or error.
type Vpn struct {
	Addr  netip.Addr
	Err   error
	Calls int32 // atomic
}

func (v *Vpn) RedirectToPeer(ctx context.Context, qtype uint16, protocol uint16, peer gns.PeerID, service string, expires time.Time) (netip.Addr, error) {
	atomic.AddInt32(&v.Calls, 1)
	return v.Addr, v.Err
}

// Revocations is a revocation checker backed by a set of revoked keys.
type Revocations struct {
	mu      sync.Mutex
	revoked map[gns.ZoneKey]bool
}

func NewRevocations() *Revocations {
	return &Revocations{revoked: make(map[gns.ZoneKey]bool)}
}

func (r *Revocations) Revoke(zone gns.ZoneKey) {
	r.mu.Lock()
	r.revoked[zone] = true
	r.mu.Unlock()
}

func (r *Revocations) Valid(ctx context.Context, zone gns.ZoneKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.revoked[zone], nil
}
