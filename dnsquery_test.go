package gns_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gnslab/gns"
	"github.com/gnslab/gns/dnstest"
	"github.com/gnslab/gns/gnstest"
	"github.com/miekg/dns"
)

// redirectDialer sends every connection to one fixed address, so both the
// stub context and the system resolver end up talking to a test server.
type redirectDialer struct {
	addr string
}

func (rd redirectDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, rd.addr)
}

func Test_DnsCnameFollowSynthesizesLeho(t *testing.T) {
	srv, err := dnstest.NewServer("127.0.0.1:0", map[string]*dnstest.Response{
		dnstest.Key("www.example.com.", dns.TypeA):     {Msg: dnstest.CnameMsg("www.example.com.", "web.hosting.example.")},
		dnstest.Key("web.hosting.example.", dns.TypeA): {Msg: dnstest.AMsg("web.hosting.example.", "192.0.2.80")},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	store.Put(z.Sign(t, "pivot", gns.Gns2DnsRecord("example.com", "127.0.0.1", time.Now().Add(time.Hour))))
	resolver := gns.NewWithOptions(redirectDialer{addr: srv.Addr}, store, gnstest.NewNetwork(), nil, nil, 0, nil)

	recs, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if err != nil {
		t.Fatal(err)
	}
	// the CNAME is followed through the system resolver and the pre-CNAME
	// name is remembered in a LEHO record
	var gotAddr, gotLeho bool
	for _, rec := range recs {
		switch rec.Type {
		case uint32(dns.TypeA):
			if rec.Data[3] != 80 {
				t.Errorf("got address record %v", rec.Data)
			}
			gotAddr = true
		case gns.TypeLEHO:
			if string(rec.Data) != "www.example.com" {
				t.Errorf("got LEHO %q, want the pre-CNAME name", rec.Data)
			}
			if !rec.Expiry.IsZero() {
				t.Error("relayed LEHO must not claim an expiration time")
			}
			gotLeho = true
		default:
			t.Errorf("unexpected record %v", rec)
		}
	}
	if !gotAddr || !gotLeho {
		t.Errorf("got %v, want an address and a LEHO record", recs)
	}
}

func Test_CnameLegacyTargetLeavesGns(t *testing.T) {
	srv, err := dnstest.NewServer("127.0.0.1:0", map[string]*dnstest.Response{
		dnstest.Key("www.example.com.", dns.TypeA): {Msg: dnstest.AMsg("www.example.com.", "192.0.2.81")},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	// a fully qualified CNAME target with a legacy TLD exits to system DNS
	store.Put(z.Sign(t, "alias", cnameRecord("www.example.com")))
	resolver := gns.NewWithOptions(redirectDialer{addr: srv.Addr}, store, gnstest.NewNetwork(), nil, nil, 0, nil)

	recs, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "alias", gns.LookupDefault)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Type != uint32(dns.TypeA) || recs[0].Data[3] != 81 {
		t.Fatalf("got %v", recs)
	}
}
