package gns

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// request is one in-flight top-level resolution. The authority chain is a
// strict stack: only the tail link is ever active, earlier links are
// immutable history used for name reconstruction and logging.
type request struct {
	*Resolver
	start time.Time
	logw  io.Writer
	zone  ZoneKey
	qtype uint32
	opt   LookupOption

	name string // working name, rewritten by CNAME/PKEY semantics
	pos  int    // name[:pos] is still unresolved; 0 means fully consumed

	protocol int // transport protocol parsed from a _SERVICE._PROTO pair
	service  int // service port parsed from a _SERVICE._PROTO pair

	loops int // monotonically increasing recursion step counter
	chain []*authLink
}

// authLink is one hop of delegation. Exactly one of gns and dns is set.
type authLink struct {
	label string
	gns   *ZoneKey
	dns   *dnsAuthority
}

func (rr *request) dbg() bool {
	return rr.logw != nil
}

func (rr *request) log(format string, args ...any) bool {
	depth := len(rr.chain)
	fmt.Fprintf(rr.logw, "[%-5d %2d] %*s", time.Since(rr.start).Milliseconds(), depth, depth, "")
	fmt.Fprintf(rr.logw, format, args...)
	return false
}

func (rr *request) tail() *authLink {
	return rr.chain[len(rr.chain)-1]
}

// step advances the loop limiter. Exceeding the bound is a hard failure,
// never silent truncation; this is the only defense against delegation
// cycles.
func (rr *request) step() (err error) {
	rr.loops++
	if rr.loops > maxRecursion {
		err = ErrMaxRecursion
	}
	return
}

// run resolves the request to completion on the caller's goroutine.
func (rr *request) run(ctx context.Context) (recs []Record, err error) {
	rr.name = strings.TrimSuffix(strings.ToLower(rr.name), ".")
	// Literal addresses never enter delegation logic.
	if recs, handled := literalRecords(rr.name, rr.qtype); handled {
		_ = rr.dbg() && rr.log("literal address %q\n", rr.name)
		if len(recs) == 0 {
			return nil, ErrNoRecords
		}
		return recs, nil
	}
	rr.pos = len(rr.name)
	rr.chain = append(rr.chain, &authLink{gns: &rr.zone})
	return rr.recurse(ctx)
}

// recurse processes the tail authority link: consume the next label,
// fetch and decrypt its block and interpret the record set. It re-enters
// itself on delegation and pivots; each entry pays one loop-limiter step.
func (rr *request) recurse(ctx context.Context) (recs []Record, err error) {
	if err = rr.step(); err != nil {
		return
	}
	if err = ctx.Err(); err != nil {
		return
	}
	link := rr.tail()
	if link.dns != nil {
		return rr.resolveViaDNS(ctx, link)
	}
	zone := *link.gns

	if rr.Revocation != nil {
		valid, rerr := rr.Revocation.Valid(ctx, zone)
		if rerr != nil {
			return nil, fmt.Errorf("revocation check: %w", rerr)
		}
		if !valid {
			_ = rr.dbg() && rr.log("zone %s is revoked\n", zone)
			return nil, ErrRevoked
		}
	}

	label := rr.nextLabel()
	_ = rr.dbg() && rr.log("QUERY %s %q in zone %s\n", RecordTypeToString(rr.qtype), label, zone)

	// A label that is itself a zone key delegates directly to that zone.
	if zk, zerr := ZoneKeyFromString(label); zerr == nil {
		rr.chain = append(rr.chain, &authLink{label: label, gns: &zk})
		return rr.recurse(ctx)
	}

	if recs, err = rr.lookupRecords(ctx, zone, label); err != nil {
		return nil, err
	}
	return rr.interpret(ctx, zone, label, recs)
}

// nextLabel splits the next label off the right end of the unresolved
// name. A remaining name of exactly "_SERVICE._PROTO" is merged into a
// single label and the protocol/service pair is resolved through the
// system databases; an unknown protocol or service abandons the merge
// with a warning but never fails the resolution.
func (rr *request) nextLabel() (label string) {
	if rr.pos == 0 {
		return "@" // apex of the current zone
	}
	rem := rr.name[:rr.pos]
	if svc, proto, ok := splitServiceProto(rem); ok {
		if protonum, port, ok := resolveServiceProto(svc, proto); ok {
			rr.protocol = protonum
			rr.service = port
			rr.pos = 0
			return rem
		}
		_ = rr.dbg() && rr.log("WARNING unknown service/protocol in %q, not merging\n", rem)
	}
	if dot := strings.LastIndexByte(rem, '.'); dot >= 0 {
		rr.pos = dot
		return rem[dot+1:]
	}
	rr.pos = 0
	return rem
}

// splitServiceProto reports whether name is exactly an underscore-prefixed
// label pair "_SERVICE._PROTO".
func splitServiceProto(name string) (svc, proto string, ok bool) {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return
	}
	svc, proto = name[:dot], name[dot+1:]
	if len(svc) < 2 || len(proto) < 2 || svc[0] != '_' || proto[0] != '_' ||
		strings.ContainsRune(svc, '.') {
		return "", "", false
	}
	return svc[1:], proto[1:], true
}

var protocolNumbers = map[string]int{
	"tcp":  6,
	"udp":  17,
	"dccp": 33,
	"sctp": 132,
}

// resolveServiceProto maps a service/protocol name pair to numbers using
// the system services database (via net.LookupPort) and a fixed protocol
// table, the getservbyname/getprotobyname of the original design.
func resolveServiceProto(svc, proto string) (protonum, port int, ok bool) {
	protonum, ok = protocolNumbers[strings.ToLower(proto)]
	if !ok {
		return 0, 0, false
	}
	port, err := net.LookupPort(strings.ToLower(proto), svc)
	if err != nil {
		return 0, 0, false
	}
	return protonum, port, true
}

// lookupRecords fetches the block for (zone, label) from the cache first
// and the DHT as fallback, decrypts it and returns the record set.
func (rr *request) lookupRecords(ctx context.Context, zone ZoneKey, label string) (recs []Record, err error) {
	query := QueryHashFor(zone, label)

	if rr.Cache != nil {
		block, cerr := rr.Cache.LookupBlock(ctx, query)
		if cerr != nil {
			_ = rr.dbg() && rr.log("cache lookup failed: %v\n", cerr)
		} else if block != nil && !block.Expired(time.Now()) {
			if recs, err = block.Decrypt(zone, label); err == nil {
				_ = rr.dbg() && rr.log("cache hit for %q: %d records\n", label, len(recs))
				return recs, nil
			}
			// A cached block that fails to decrypt is a protocol error;
			// fall through to the distributed lookup.
			_ = rr.dbg() && rr.log("cached block for %q undecryptable: %v\n", label, err)
		}
	}

	if !rr.dhtAllowed() {
		_ = rr.dbg() && rr.log("distributed lookup denied for %q\n", label)
		return nil, ErrPolicyDenied
	}

	block, derr := rr.dhtGet(ctx, query)
	if derr != nil {
		return nil, derr
	}
	if block == nil {
		return nil, ErrNoRecords
	}
	if recs, err = block.Decrypt(zone, label); err != nil {
		_ = rr.dbg() && rr.log("block from network undecryptable: %v\n", err)
		return nil, err
	}
	if rr.Cache != nil {
		// Write-back is best effort; a failure to cache is logged only.
		if cerr := rr.Cache.CacheBlock(ctx, block); cerr != nil {
			_ = rr.dbg() && rr.log("failed to cache block: %v\n", cerr)
		}
	}
	return recs, nil
}

// dhtAllowed applies the lookup options to the tail link's position in
// the chain.
func (rr *request) dhtAllowed() bool {
	if rr.DHT == nil || rr.opt == LookupNoDistributed {
		return false
	}
	if rr.opt == LookupLocalMaster && len(rr.chain) == 1 {
		return false
	}
	return true
}

// dhtGet runs one bounded distributed lookup. The get is registered with
// the global concurrency bookkeeping so that the oldest outstanding get is
// evicted when the bound is exceeded.
func (rr *request) dhtGet(ctx context.Context, query QueryHash) (block *Block, err error) {
	if rr.rateLimiter != nil {
		<-rr.rateLimiter
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	entry := rr.bg.add(cancel)
	defer rr.bg.remove(entry)

	tctx, tcancel := context.WithTimeout(ctx, dhtTimeout)
	defer tcancel()

	_ = rr.dbg() && rr.log("DHT GET (outstanding %d)\n", rr.bg.outstanding())
	block, err = rr.DHT.Get(tctx, query, dhtReplication)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			err = cause
		}
	}
	return
}
