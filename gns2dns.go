package gns

import (
	"context"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"github.com/tevino/abool"
	"golang.org/x/sync/errgroup"
)

// dnsAuthority is the DNS variant of an authority link, created by a
// GNS2DNS pivot. The stub context accumulates nameserver addresses as the
// hint resolutions complete.
type dnsAuthority struct {
	nsName   string // the DNS domain resolution continues under
	stub     *StubContext
	found    *abool.AtomicBool // at least one hint resolved to an address
	launched *abool.AtomicBool // DNS recursion has started, do not re-enter
}

// pivotGns2Dns transfers the remaining name into legacy DNS. All GNS2DNS
// records under one label must name the same DNS domain; records that name
// a different one than the first well-formed record are discarded with a
// warning. Each surviving record's hint is resolved to a nameserver
// address; hints may be literal addresses, legacy DNS names, or GNS names
// requiring a nested lookup.
func (rr *request) pivotGns2Dns(ctx context.Context, recs []Record) ([]Record, error) {
	zone := *rr.tail().gns
	var nsName string
	var hints []string
	for _, rec := range recs {
		if rec.Type != TypeGNS2DNS {
			continue
		}
		ns, hint, err := parseGns2Dns(rec.Data)
		if err != nil {
			_ = rr.dbg() && rr.log("WARNING malformed GNS2DNS record dropped\n")
			continue
		}
		ns = strings.TrimSuffix(strings.ToLower(ns), ".")
		if nsName == "" {
			nsName = ns
		} else if ns != nsName {
			_ = rr.dbg() && rr.log("WARNING inconsistent GNS2DNS nameserver %q (using %q)\n", ns, nsName)
			continue
		}
		hints = append(hints, hint)
	}
	if nsName == "" {
		return nil, ErrBadRecord
	}

	qname := nsName
	if rr.pos > 0 {
		qname = rr.name[:rr.pos] + "." + nsName
	}
	if len(qname) > maxSynthNameLen {
		return nil, ErrNameTooLong
	}
	_ = rr.dbg() && rr.log("PIVOT to DNS %q via %v\n", qname, hints)

	auth := &dnsAuthority{
		nsName:   nsName,
		stub:     newStubContext(rr.ContextDialer),
		found:    abool.New(),
		launched: abool.New(),
	}
	rr.pos = 0
	rr.chain = append(rr.chain, &authLink{label: qname, dns: auth})

	if err := rr.resolveHints(ctx, zone, auth, hints); err != nil {
		return nil, err
	}
	// Proceed only once: incremental hint completion must not relaunch
	// the DNS recursion.
	if !auth.found.IsSet() || !auth.launched.SetToIf(false, true) {
		return nil, ErrNoNameserver
	}
	return rr.recurse(ctx)
}

// resolveHints resolves every nameserver hint, registering each address
// with the stub context. Sibling hint resolutions run concurrently, the
// one place a request has more than one outstanding sub-operation; a
// failed sibling is recovered as long as any other hint resolves.
func (rr *request) resolveHints(ctx context.Context, zone ZoneKey, auth *dnsAuthority, hints []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, hint := range hints {
		if addr, err := netip.ParseAddr(hint); err == nil {
			if auth.stub.AddServer(addr) {
				auth.found.Set()
			}
			continue
		}
		hint := hint
		g.Go(func() error {
			var addrs []netip.Addr
			if isLegacyName(hint) {
				ips, err := rr.sysResolver.LookupNetIP(gctx, "ip", hint)
				if err != nil {
					_ = rr.dbg() && rr.log("hint %q failed via system resolver: %v\n", hint, err)
					return nil
				}
				addrs = ips
			} else {
				// The hint itself lives in GNS: nested recursive lookup
				// in the zone the GNS2DNS record came from. The nested
				// request inherits the consumed loop budget so that a hint
				// graph cycling through further pivots still terminates.
				sub := &request{
					Resolver: rr.Resolver,
					start:    rr.start,
					logw:     rr.logw,
					zone:     zone,
					qtype:    TypeAny,
					name:     hint,
					opt:      LookupDefault,
					loops:    rr.loops,
				}
				recs, err := sub.run(gctx)
				if err != nil {
					_ = rr.dbg() && rr.log("hint %q failed via GNS: %v\n", hint, err)
					return nil
				}
				for _, rec := range recs {
					if addr, ok := recordAddr(rec); ok {
						addrs = append(addrs, addr)
					}
				}
			}
			for _, addr := range addrs {
				if auth.stub.AddServer(addr) {
					auth.found.Set()
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// dnsQueryType maps the requested record type onto a DNS question type.
func (rr *request) dnsQueryType() uint16 {
	if rr.qtype <= 0xFFFF {
		return uint16(rr.qtype)
	}
	return dns.TypeANY
}
