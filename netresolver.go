package gns

import (
	"context"
	"net"
	"net/netip"

	"github.com/miekg/dns"
)

// Convenience lookups mirroring the net.Resolver surface, resolved through
// GNS starting from the given zone.

func (r *Resolver) lookupNetIP(ctx context.Context, ips []net.IP, zone ZoneKey, host string, qtype uint32) ([]net.IP, error) {
	recs, err := r.Resolve(ctx, zone, qtype, host, LookupDefault)
	for _, rec := range recs {
		if rec.Type == qtype {
			ips = append(ips, net.IP(rec.Data))
		}
	}
	return ips, err
}

func (r *Resolver) LookupIP(ctx context.Context, zone ZoneKey, network, host string) (ips []net.IP, err error) {
	if network == "ip" || network == "ip4" {
		ips, err = r.lookupNetIP(ctx, ips, zone, host, uint32(dns.TypeA))
	}
	if network == "ip" || network == "ip6" {
		ips, err = r.lookupNetIP(ctx, ips, zone, host, uint32(dns.TypeAAAA))
	}
	if len(ips) > 0 {
		err = nil
	}
	return
}

func (r *Resolver) LookupHost(ctx context.Context, zone ZoneKey, host string) (addrs []string, err error) {
	var ips []net.IP
	if ips, err = r.LookupIP(ctx, zone, "ip", host); err == nil {
		for _, ip := range ips {
			addrs = append(addrs, ip.String())
		}
	}
	return
}

func (r *Resolver) LookupNetIP(ctx context.Context, zone ZoneKey, network, host string) (addrs []netip.Addr, err error) {
	var ips []net.IP
	if ips, err = r.LookupIP(ctx, zone, network, host); err == nil {
		for _, ip := range ips {
			if addr, ok := netip.AddrFromSlice(ip); ok {
				addrs = append(addrs, addr.Unmap())
			}
		}
	}
	return
}
