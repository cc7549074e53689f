package gns

import (
	"context"
	"strings"

	"github.com/miekg/dns"
)

// interpret applies the record semantics for the label just resolved.
// At the terminal label the set either produces the final answer or pivots
// (CNAME rewrite, VPN substitution, GNS2DNS, apex delegation); mid-chain,
// only delegation-class records are acceptable.
func (rr *request) interpret(ctx context.Context, zone ZoneKey, label string, recs []Record) ([]Record, error) {
	if len(recs) == 0 {
		return nil, ErrNoRecords
	}
	if rr.pos > 0 {
		return rr.interpretMidChain(ctx, label, recs)
	}

	if recs[0].Type == uint32(dns.TypeCNAME) && rr.qtype != uint32(dns.TypeCNAME) {
		return rr.followCname(ctx, zone, string(recs[0].Data))
	}
	if (rr.qtype == uint32(dns.TypeA) || rr.qtype == uint32(dns.TypeAAAA)) &&
		hasRecordType(recs, TypeVPN) {
		return rr.substituteVpn(ctx, zone, recs)
	}
	if hasRecordType(recs, TypeGNS2DNS) {
		return rr.pivotGns2Dns(ctx, recs)
	}
	if rr.qtype != TypePKEY {
		for _, rec := range recs {
			if rec.Type == TypePKEY {
				sub, err := parsePkey(rec.Data)
				if err != nil {
					_ = rr.dbg() && rr.log("WARNING malformed PKEY under %q\n", label)
					continue
				}
				// Delegation at the terminal label: resolve the apex
				// record set of the delegated zone.
				_ = rr.dbg() && rr.log("DELEGATE %q => zone %s\n", label, sub)
				rr.chain = append(rr.chain, &authLink{label: "@", gns: &sub})
				return rr.recurse(ctx)
			}
		}
	}
	return rr.finalize(zone, recs)
}

// interpretMidChain handles a record set found while labels remain. Only
// PKEY, GNS2DNS and (unusually) CNAME may continue the resolution here.
func (rr *request) interpretMidChain(ctx context.Context, label string, recs []Record) ([]Record, error) {
	if hasRecordType(recs, TypeGNS2DNS) {
		return rr.pivotGns2Dns(ctx, recs)
	}
	for _, rec := range recs {
		switch rec.Type {
		case TypePKEY:
			sub, err := parsePkey(rec.Data)
			if err != nil {
				_ = rr.dbg() && rr.log("WARNING malformed PKEY under %q\n", label)
				continue
			}
			rr.chain = append(rr.chain, &authLink{label: label, gns: &sub})
			return rr.recurse(ctx)
		case uint32(dns.TypeCNAME):
			// A CNAME mid-chain rewrites the rest of the name under the
			// CNAME target.
			tail := rr.tail()
			return rr.followCnamePrefixed(ctx, *tail.gns, rr.name[:rr.pos], string(rec.Data))
		}
	}
	_ = rr.dbg() && rr.log("no delegation under %q with %d labels left\n", label, rr.pos)
	return nil, ErrNoDelegation
}

// followCname rewrites the working name to the CNAME target. A target
// ending in ".+" is relative to the current zone and is expanded with the
// zone key's textual form; anything else is fully qualified and leaves GNS
// for the system resolver.
func (rr *request) followCname(ctx context.Context, zone ZoneKey, target string) ([]Record, error) {
	return rr.followCnamePrefixed(ctx, zone, "", target)
}

func (rr *request) followCnamePrefixed(ctx context.Context, zone ZoneKey, prefix, target string) ([]Record, error) {
	target = strings.TrimSuffix(strings.ToLower(target), ".")
	if rel, ok := strings.CutSuffix(target, ".+"); ok {
		newname := rel + "." + zone.String()
		if prefix != "" {
			newname = prefix + "." + newname
		}
		_ = rr.dbg() && rr.log("CNAME %q => %q\n", target, newname)
		rr.name = newname
		rr.pos = len(newname)
		return rr.recurse(ctx)
	}
	if prefix != "" {
		target = prefix + "." + target
	}
	if !isLegacyName(target) {
		_ = rr.dbg() && rr.log("CNAME %q stays in GNS\n", target)
		rr.name = target
		rr.pos = len(target)
		return rr.recurse(ctx)
	}
	_ = rr.dbg() && rr.log("CNAME %q leaves GNS for system DNS\n", target)
	if err := rr.step(); err != nil {
		return nil, err
	}
	return rr.systemResolve(ctx, target)
}

// finalize rewrites relative names embedded in record payloads to their
// absolute forms, conditionally unwraps BOX records, and delivers.
func (rr *request) finalize(zone ZoneKey, recs []Record) (out []Record, err error) {
	for _, rec := range recs {
		switch rec.Type {
		case TypeBOX:
			proto, svc, rtype, payload, berr := parseBox(rec.Data)
			if berr != nil {
				_ = rr.dbg() && rr.log("WARNING malformed BOX record dropped\n")
				continue
			}
			// Unwrap only when the request carried a matching
			// _SERVICE._PROTO filter; otherwise the BOX stays usable for
			// GNS-aware callers.
			if rr.protocol != 0 && rr.service != 0 &&
				int(proto) == rr.protocol && int(svc) == rr.service {
				_ = rr.dbg() && rr.log("BOX unwrap => %s\n", RecordTypeToString(rtype))
				out = append(out, Record{Type: rtype, Data: payload, Expiry: rec.Expiry})
				continue
			}
			out = append(out, rec)
		case uint32(dns.TypeCNAME), uint32(dns.TypeMX), uint32(dns.TypeSRV), uint32(dns.TypeSOA):
			out = append(out, expandRelative(rec, zone))
		default:
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		err = ErrNoRecords
	}
	return
}

// expandRelative rewrites a ".+"-suffixed name inside a CNAME, MX, SRV or
// SOA payload to its absolute form under the given zone.
func expandRelative(rec Record, zone ZoneKey) Record {
	expand := func(name string) string {
		if rel, ok := strings.CutSuffix(name, ".+"); ok {
			return rel + "." + zone.String()
		}
		return name
	}
	switch rec.Type {
	case uint32(dns.TypeCNAME):
		rec.Data = []byte(expand(string(rec.Data)))
	case uint32(dns.TypeMX):
		if len(rec.Data) > 2 {
			name := expand(string(rec.Data[2:]))
			data := make([]byte, 2, 2+len(name))
			copy(data, rec.Data[:2])
			rec.Data = append(data, name...)
		}
	case uint32(dns.TypeSRV):
		if len(rec.Data) > 6 {
			name := expand(string(rec.Data[6:]))
			data := make([]byte, 6, 6+len(name))
			copy(data, rec.Data[:6])
			rec.Data = append(data, name...)
		}
	case uint32(dns.TypeSOA):
		// SOA payload starts with two NUL-terminated names.
		parts := strings.SplitN(string(rec.Data), "\x00", 3)
		if len(parts) == 3 {
			var data []byte
			data = append(data, expand(parts[0])...)
			data = append(data, 0)
			data = append(data, expand(parts[1])...)
			data = append(data, 0)
			rec.Data = append(data, parts[2]...)
		}
	}
	return rec
}
