package gns

import (
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// literalRecords recognizes names that are literal IPv4/IPv6 addresses and
// synthesizes the matching address record without any network activity.
// handled is true whenever the name parses as an address, even if the
// requested type does not match the address family.
func literalRecords(name string, qtype uint32) (recs []Record, handled bool) {
	addr, err := netip.ParseAddr(name)
	if err != nil {
		return nil, false
	}
	handled = true
	switch {
	case addr.Is4() && (qtype == uint32(dns.TypeA) || qtype == TypeAny):
		b := addr.As4()
		recs = []Record{{Type: uint32(dns.TypeA), Data: b[:]}}
	case addr.Is6() && (qtype == uint32(dns.TypeAAAA) || qtype == TypeAny):
		b := addr.As16()
		recs = []Record{{Type: uint32(dns.TypeAAAA), Data: b[:]}}
	}
	return
}

// addrRecord synthesizes an A or AAAA record for addr with the given TTL.
func addrRecord(addr netip.Addr, ttl time.Duration) (rec Record) {
	rec.Expiry = time.Now().Add(ttl)
	if addr.Is4() {
		b := addr.As4()
		rec.Type = uint32(dns.TypeA)
		rec.Data = b[:]
	} else {
		b := addr.As16()
		rec.Type = uint32(dns.TypeAAAA)
		rec.Data = b[:]
	}
	return
}

// recordAddr extracts the address from an A or AAAA record.
func recordAddr(rec Record) (addr netip.Addr, ok bool) {
	switch rec.Type {
	case uint32(dns.TypeA), uint32(dns.TypeAAAA):
		return netip.AddrFromSlice(rec.Data)
	}
	return
}

// isLegacyName reports whether the rightmost label of name is a legacy DNS
// top-level domain rather than a zone key, meaning the name must be
// resolved via the system resolver instead of GNS.
func isLegacyName(name string) bool {
	tld := name
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		tld = name[dot+1:]
	}
	_, err := ZoneKeyFromString(tld)
	return err != nil
}
