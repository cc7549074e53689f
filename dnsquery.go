package gns

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// resolveViaDNS runs the post-pivot legacy DNS recursion for the tail
// link's synthetic name. From here on there are no GNS semantics except
// the LEHO record synthesized across a CNAME follow.
func (rr *request) resolveViaDNS(ctx context.Context, link *authLink) (out []Record, err error) {
	qname := dns.CanonicalName(link.label)
	qtype := rr.dnsQueryType()

	m := new(dns.Msg)
	m.SetQuestion(qname, qtype)
	m.RecursionDesired = true
	m.Id = dns.Id()

	tctx, cancel := context.WithTimeout(ctx, rr.Timeout)
	defer cancel()

	_ = rr.dbg() && rr.log("DNS QUERY %s %q\n", DnsTypeToString(qtype), qname)
	resp, err := link.dns.stub.Exchange(tctx, m)
	if err != nil {
		// Transport failure fails the resolution outright.
		_ = rr.dbg() && rr.log("DNS FAILED %q: %v\n", qname, err)
		return nil, err
	}

	if qtype != dns.TypeCNAME && len(resp.Answer) > 0 {
		if cn, ok := resp.Answer[0].(*dns.CNAME); ok {
			// Follow via the system resolver, remembering the pre-CNAME
			// name in a LEHO record for Host-header rewriting downstream.
			target := strings.TrimSuffix(dns.CanonicalName(cn.Target), ".")
			_ = rr.dbg() && rr.log("DNS CNAME %q => %q\n", qname, target)
			if out, err = rr.systemResolve(ctx, target); err != nil {
				return nil, err
			}
			out = append(out, LehoRecord(strings.TrimSuffix(qname, "."), time.Time{}))
			return out, nil
		}
	}

	for _, sect := range [][]dns.RR{resp.Answer, resp.Ns, resp.Extra} {
		for _, answer := range sect {
			// Discard stray records whose name does not match the
			// question we asked.
			if !strings.EqualFold(dns.CanonicalName(answer.Header().Name), qname) {
				_ = rr.dbg() && rr.log("DNS stray record for %q ignored\n", answer.Header().Name)
				continue
			}
			if rec, ok := recordFromRR(answer); ok {
				out = append(out, rec)
			}
		}
	}
	_ = rr.dbg() && rr.log("DNS ANSWER %s %q with %d records\n", dns.RcodeToString[resp.Rcode], qname, len(out))
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

// systemResolve resolves a fully qualified legacy DNS name through the
// system resolver and synthesizes address records for the requested type.
func (rr *request) systemResolve(ctx context.Context, name string) (out []Record, err error) {
	network := "ip"
	switch rr.qtype {
	case uint32(dns.TypeA):
		network = "ip4"
	case uint32(dns.TypeAAAA):
		network = "ip6"
	}
	tctx, cancel := context.WithTimeout(ctx, rr.Timeout)
	defer cancel()
	addrs, err := rr.sysResolver.LookupNetIP(tctx, network, name)
	if err != nil {
		_ = rr.dbg() && rr.log("system resolver failed for %q: %v\n", name, err)
		return nil, err
	}
	for _, addr := range addrs {
		out = append(out, addrRecord(addr.Unmap(), time.Minute))
	}
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

// DnsTypeToString returns the symbolic DNS type name.
func DnsTypeToString(qtype uint16) string {
	if s, ok := dns.TypeToString[qtype]; ok {
		return s
	}
	return RecordTypeToString(uint32(qtype))
}
