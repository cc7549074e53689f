package gns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/tevino/abool"
	"golang.org/x/net/proxy"
)

const (
	maxRecursion       = 256              // hard bound on recursive steps per request
	dhtReplication     = 5                // replication level for distributed gets
	defaultMaxBgGets   = 1000             // default bound on outstanding distributed gets
	maxSynthNameLen    = 255              // longest DNS name we will synthesize for a pivot
	stubTimeout        = 15 * time.Second // DNS stub query timeout
	dhtTimeout         = 60 * time.Second // distributed lookup timeout
	vpnLifetime        = 30 * time.Minute // VPN allocation timeout and synthesized record TTL
	reverseMaxDepth    = 3                // breadth-first probe bound for reverse lookups
)

var (
	// ErrMaxRecursion is returned when a request exceeds the recursion bound,
	// typically due to a delegation cycle.
	ErrMaxRecursion = fmt.Errorf("recursion limit exceeded %d", maxRecursion)
	// ErrRevoked is returned when an authority zone key has been revoked.
	ErrRevoked = errors.New("zone key revoked")
	// ErrNoRecords is returned when resolution produced no records.
	ErrNoRecords = errors.New("name resolution produced no records")
	// ErrNoDelegation is returned when a non-terminal label yields no
	// delegation record.
	ErrNoDelegation = errors.New("no delegation record found")
	// ErrPolicyDenied is returned when the distributed lookup is disallowed
	// by the lookup options and the cache missed.
	ErrPolicyDenied = errors.New("distributed lookup denied by policy")
	// ErrEvicted is returned when the global distributed-lookup bound evicts
	// the oldest outstanding request.
	ErrEvicted = errors.New("evicted by distributed lookup limit")
	// ErrNameTooLong is returned when a synthesized DNS name exceeds the
	// maximum DNS name length.
	ErrNameTooLong = errors.New("synthesized DNS name too long")
	// ErrNoNameserver is returned when no GNS2DNS nameserver hint resolved
	// to a usable address.
	ErrNoNameserver = errors.New("no usable nameserver address")

	DefaultTimeout = stubTimeout
)

// LookupOption controls whether the distributed lookup may be used.
type LookupOption int

const (
	// LookupDefault permits cache and distributed lookups everywhere.
	LookupDefault LookupOption = iota
	// LookupNoDistributed never consults the distributed lookup.
	LookupNoDistributed
	// LookupLocalMaster denies the distributed lookup for the first
	// delegation only; every later link may use it.
	LookupLocalMaster
)

// Resolver drives recursive GNS resolution. All collaborators are optional
// except the cache/DHT pair: with both nil every lookup fails. A nil
// RevocationChecker treats every zone as valid; a nil VpnAllocator fails
// VPN substitution.
type Resolver struct {
	proxy.ContextDialer                    // (read-only) dialer for stub DNS traffic
	Cache               Namecache          // (read-only) local block cache
	DHT                 DHT                // (read-only) distributed fallback
	Vpn                 VpnAllocator       // (read-only) tunnel address allocator
	Revocation          RevocationChecker  // (read-only) zone validity oracle
	Timeout             time.Duration      // (read-only) stub DNS query timeout
	DefaultLogWriter    io.Writer          // if not nil, write debug logs here unless overridden

	sysResolver *net.Resolver
	rateLimiter <-chan struct{}
	bg          bgQueries
}

// NewWithOptions returns a Resolver wired to the given collaborators.
//
// Passing nil for dialer will use a net.Dialer.
// Passing maxBackground <= 0 uses the default outstanding-gets bound.
// Passing nil for rateLimiter means distributed gets are not rate limited.
func NewWithOptions(dialer proxy.ContextDialer, cache Namecache, dht DHT,
	vpn VpnAllocator, revocation RevocationChecker,
	maxBackground int, rateLimiter <-chan struct{}) *Resolver {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if maxBackground <= 0 {
		maxBackground = defaultMaxBgGets
	}
	return &Resolver{
		ContextDialer: dialer,
		Cache:         cache,
		DHT:           dht,
		Vpn:           vpn,
		Revocation:    revocation,
		Timeout:       DefaultTimeout,
		sysResolver: &net.Resolver{
			PreferGo: true,
			Dial:     dialer.DialContext,
		},
		rateLimiter: rateLimiter,
		bg:          bgQueries{limit: maxBackground},
	}
}

// New returns a Resolver using the given cache and DHT and defaults for
// everything else.
func New(cache Namecache, dht DHT) *Resolver {
	return NewWithOptions(nil, cache, dht, nil, nil, 0, nil)
}

// Resolve performs one recursive resolution on the caller's goroutine.
// It returns the final record set, or an error describing why resolution
// failed. Callers that need the uniform zero-records failure surface use
// Lookup instead.
func (r *Resolver) Resolve(ctx context.Context, zone ZoneKey, qtype uint32,
	name string, opt LookupOption) ([]Record, error) {
	return r.ResolveWithOptions(ctx, r.DefaultLogWriter, zone, qtype, name, opt)
}

// ResolveWithOptions is Resolve with a per-request debug log writer.
func (r *Resolver) ResolveWithOptions(ctx context.Context, logw io.Writer,
	zone ZoneKey, qtype uint32, name string, opt LookupOption) (recs []Record, err error) {
	rr := &request{
		Resolver: r,
		start:    time.Now(),
		logw:     logw,
		zone:     zone,
		qtype:    qtype,
		name:     name,
		opt:      opt,
	}
	recs, err = rr.run(ctx)
	if rr.dbg() {
		if err != nil {
			rr.log("FAILED %s %q: %v\n", RecordTypeToString(qtype), name, err)
		} else {
			rr.log("ANSWER %s %q with %d records\n", RecordTypeToString(qtype), name, len(recs))
		}
	}
	return
}

// LookupRequest is one in-flight asynchronous resolution. The result
// callback fires exactly once unless the request is cancelled first.
type LookupRequest struct {
	cancel    context.CancelFunc
	delivered *abool.AtomicBool
	cancelled *abool.AtomicBool
}

// Lookup starts an asynchronous resolution. proc receives the final record
// set, or nil when resolution failed; no distinct error code crosses this
// boundary. Failure is indistinguishable from a name with no records.
func (r *Resolver) Lookup(ctx context.Context, zone ZoneKey, qtype uint32,
	name string, opt LookupOption, proc func(records []Record)) *LookupRequest {
	ctx, cancel := context.WithCancel(ctx)
	lr := &LookupRequest{
		cancel:    cancel,
		delivered: abool.New(),
		cancelled: abool.New(),
	}
	go func() {
		defer cancel()
		recs, err := r.Resolve(ctx, zone, qtype, name, opt)
		if err != nil {
			recs = nil
		}
		// The delivered flag flips before proc runs so that a Cancel
		// issued from inside the callback cannot re-enter delivery.
		if lr.delivered.SetToIf(false, true) {
			if !lr.cancelled.IsSet() {
				proc(recs)
			}
		}
	}()
	return lr
}

// Cancel stops the request and releases everything it owns. It is
// idempotent and safe to call while the result callback is running; the
// callback will not fire after Cancel returns if it had not already begun.
func (lr *LookupRequest) Cancel() {
	lr.cancelled.Set()
	lr.delivered.SetToIf(false, true)
	lr.cancel()
}
