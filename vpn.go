package gns

import (
	"context"
	"time"
)

// substituteVpn converts the first VPN record in the set into a concrete
// address record via the VPN allocator, preserving every sibling record.
// The full pre-substitution set is serialized first so the substitution
// can splice into an exact copy once the allocator answers.
func (rr *request) substituteVpn(ctx context.Context, zone ZoneKey, recs []Record) ([]Record, error) {
	if rr.Vpn == nil {
		return nil, ErrNoRecords
	}
	saved, err := recordsSerialize(recs)
	if err != nil {
		return nil, err
	}
	var peer PeerID
	var protocol uint16
	var service string
	found := -1
	for i, rec := range recs {
		if rec.Type == TypeVPN {
			if peer, protocol, service, err = parseVpn(rec.Data); err != nil {
				_ = rr.dbg() && rr.log("WARNING malformed VPN record\n")
				return nil, err
			}
			found = i
			break
		}
	}
	if found < 0 {
		return rr.finalize(zone, recs)
	}

	tctx, cancel := context.WithTimeout(ctx, vpnLifetime)
	defer cancel()
	expires := time.Now().Add(vpnLifetime)
	_ = rr.dbg() && rr.log("VPN allocation for service %q proto %d\n", service, protocol)
	addr, err := rr.Vpn.RedirectToPeer(tctx, uint16(rr.qtype), protocol, peer, service, expires) // #nosec G115
	if err != nil {
		_ = rr.dbg() && rr.log("VPN allocation failed: %v\n", err)
		return nil, err
	}

	restored, err := recordsDeserialize(saved)
	if err != nil {
		return nil, err
	}
	restored[found] = addrRecord(addr, vpnLifetime)
	return rr.finalize(zone, restored)
}
