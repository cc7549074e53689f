package gns

import (
	"context"
	"net/netip"
	"time"
)

// Namecache is the local block cache collaborator. LookupBlock returns
// (nil, nil) on a miss. CacheBlock is best-effort; failures are logged by
// the caller and never fail a resolution.
type Namecache interface {
	LookupBlock(ctx context.Context, query QueryHash) (*Block, error)
	CacheBlock(ctx context.Context, block *Block) error
}

// DHT is the distributed lookup collaborator. Get blocks until a block is
// found, the context is done, or the network gives up; a miss is (nil, nil).
// Cancelling the context is the get_stop of the contract.
type DHT interface {
	Get(ctx context.Context, query QueryHash, replication int) (*Block, error)
}

// VpnAllocator turns a VPN record into a tunnel-local address. qtype is the
// requested address record type (TypeA or TypeAAAA in DNS numbering) and
// selects the address family of the result.
type VpnAllocator interface {
	RedirectToPeer(ctx context.Context, qtype uint16, protocol uint16, peer PeerID, service string, expires time.Time) (netip.Addr, error)
}

// RevocationChecker reports whether a zone key is still valid. A zone that
// is not valid fails the entire resolution.
type RevocationChecker interface {
	Valid(ctx context.Context, zone ZoneKey) (bool, error)
}
