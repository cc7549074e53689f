package gns_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/gnslab/gns"
	"github.com/gnslab/gns/gnstest"
	"github.com/miekg/dns"
)

func Test_LookupHost(t *testing.T) {
	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	store.Put(z.Sign(t, "www",
		aRecord(192, 0, 2, 30),
		gns.Record{
			Type:   uint32(dns.TypeAAAA),
			Data:   netip.MustParseAddr("2001:db8::30").AsSlice(),
			Expiry: time.Now().Add(time.Hour),
		}))
	resolver := gns.New(store, gnstest.NewNetwork())

	addrs, err := resolver.LookupHost(t.Context(), z.Key, "www")
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 2 {
		t.Fatalf("got %v", addrs)
	}
	if addrs[0] != "192.0.2.30" || addrs[1] != "2001:db8::30" {
		t.Errorf("got %v", addrs)
	}
}

func Test_LookupNetIPSingleFamily(t *testing.T) {
	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	store.Put(z.Sign(t, "www", aRecord(192, 0, 2, 31)))
	resolver := gns.New(store, gnstest.NewNetwork())

	addrs, err := resolver.LookupNetIP(t.Context(), z.Key, "ip4", "www")
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 1 || addrs[0] != netip.MustParseAddr("192.0.2.31") {
		t.Errorf("got %v", addrs)
	}

	// no AAAA published: the v6 query fails but the v4 one suffices for "ip"
	addrs, err = resolver.LookupNetIP(t.Context(), z.Key, "ip", "www")
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 1 {
		t.Errorf("got %v", addrs)
	}
}
