package gns_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gnslab/gns"
	"github.com/gnslab/gns/dnstest"
	"github.com/gnslab/gns/gnstest"
	"github.com/miekg/dns"
)

func startDNS(t *testing.T, responses map[string]*dnstest.Response) *dnstest.Server {
	t.Helper()
	srv, err := dnstest.NewServer("127.0.0.1:0", responses)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	t.Cleanup(gns.SetStubPort(srv.Port()))
	return srv
}

func Test_Gns2DnsPivot(t *testing.T) {
	srv := startDNS(t, map[string]*dnstest.Response{
		dnstest.Key("www.example.com.", dns.TypeA): {Msg: dnstest.AMsg("www.example.com.", "192.0.2.99")},
	})

	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	store.Put(z.Sign(t, "pivot", gns.Gns2DnsRecord("example.com", "127.0.0.1", time.Now().Add(time.Hour))))
	resolver := gns.New(store, gnstest.NewNetwork())

	recs, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Type != uint32(dns.TypeA) || recs[0].Data[3] != 99 {
		t.Fatalf("got %v", recs)
	}
	if srv.Queries != 1 {
		t.Errorf("server queries = %d, want 1", srv.Queries)
	}
}

func Test_Gns2DnsPivotAtTerminalLabel(t *testing.T) {
	startDNS(t, map[string]*dnstest.Response{
		dnstest.Key("example.com.", dns.TypeA): {Msg: dnstest.AMsg("example.com.", "192.0.2.98")},
	})

	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	store.Put(z.Sign(t, "pivot", gns.Gns2DnsRecord("example.com", "127.0.0.1", time.Now().Add(time.Hour))))
	resolver := gns.New(store, gnstest.NewNetwork())

	// no labels remain: the query goes to the nameserver name itself
	recs, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "pivot", gns.LookupDefault)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Data[3] != 98 {
		t.Fatalf("got %v", recs)
	}
}

func Test_Gns2DnsInconsistentNameserversDiscarded(t *testing.T) {
	srv := startDNS(t, map[string]*dnstest.Response{
		dnstest.Key("www.example.com.", dns.TypeA): {Msg: dnstest.AMsg("www.example.com.", "192.0.2.97")},
	})

	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	// the second record names a different DNS zone: first one wins
	store.Put(z.Sign(t, "pivot",
		gns.Gns2DnsRecord("example.com", "127.0.0.1", time.Now().Add(time.Hour)),
		gns.Gns2DnsRecord("evil.example", "192.0.2.66", time.Now().Add(time.Hour))))
	resolver := gns.New(store, gnstest.NewNetwork())

	recs, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Data[3] != 97 {
		t.Fatalf("got %v", recs)
	}
	if srv.Queries != 1 {
		t.Errorf("server queries = %d, want 1", srv.Queries)
	}
}

func Test_Gns2DnsStrayAnswersIgnored(t *testing.T) {
	// the response carries an extra record for a name nobody asked about
	msg := dnstest.AMsg("www.example.com.", "192.0.2.96")
	msg.Answer = append(msg.Answer, dnstest.AMsg("other.example.com.", "192.0.2.66").Answer...)
	startDNS(t, map[string]*dnstest.Response{
		dnstest.Key("www.example.com.", dns.TypeA): {Msg: msg},
	})

	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	store.Put(z.Sign(t, "pivot", gns.Gns2DnsRecord("example.com", "127.0.0.1", time.Now().Add(time.Hour))))
	resolver := gns.New(store, gnstest.NewNetwork())

	recs, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Data[3] != 96 {
		t.Fatalf("stray answer leaked through: %v", recs)
	}
}

func Test_Gns2DnsHintViaGns(t *testing.T) {
	startDNS(t, map[string]*dnstest.Response{
		dnstest.Key("www.example.com.", dns.TypeA): {Msg: dnstest.AMsg("www.example.com.", "192.0.2.95")},
	})

	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	// the nameserver hint is itself a GNS name
	store.Put(z.Sign(t, "pivot", gns.Gns2DnsRecord("example.com", "ns."+z.Key.String(), time.Now().Add(time.Hour))))
	store.Put(z.Sign(t, "ns", aRecord(127, 0, 0, 1)))
	resolver := gns.New(store, gnstest.NewNetwork())

	recs, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Data[3] != 95 {
		t.Fatalf("got %v", recs)
	}
}

func Test_Gns2DnsNoUsableNameserver(t *testing.T) {
	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	// an empty hint resolves nowhere
	store.Put(z.Sign(t, "pivot", gns.Gns2DnsRecord("example.com", "", time.Now().Add(time.Hour))))
	resolver := gns.New(store, gnstest.NewNetwork())

	_, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if !errors.Is(err, gns.ErrNoNameserver) {
		t.Errorf("got %v, want ErrNoNameserver", err)
	}
}

func Test_Gns2DnsMalformedRecords(t *testing.T) {
	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	store.Put(z.Sign(t, "pivot",
		gns.Record{Type: gns.TypeGNS2DNS, Data: []byte("junk"), Expiry: time.Now().Add(time.Hour)}))
	resolver := gns.New(store, gnstest.NewNetwork())

	_, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if !errors.Is(err, gns.ErrBadRecord) {
		t.Errorf("got %v, want ErrBadRecord", err)
	}
}

func Test_Gns2DnsCyclicHintsBounded(t *testing.T) {
	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	// the nameserver hint is a GNS name that resolves back to the same
	// pivot: the nested lookups must run out of loop budget, not nest
	// until the context expires
	store.Put(z.Sign(t, "pivot",
		gns.Gns2DnsRecord("example.com", "pivot."+z.Key.String(), time.Now().Add(time.Hour))))
	resolver := gns.New(store, gnstest.NewNetwork())

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()
	begin := time.Now()
	_, err := resolver.Resolve(ctx, z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if !errors.Is(err, gns.ErrNoNameserver) {
		t.Errorf("got %v, want ErrNoNameserver", err)
	}
	if time.Since(begin) > 10*time.Second {
		t.Error("cyclic hints must fail on the loop budget, not the deadline")
	}
}

func Test_Gns2DnsSynthesizedNameTooLong(t *testing.T) {
	store := gnstest.NewStore()
	z := gnstest.NewZone(t)
	long := strings.Repeat("a", 260) + ".example"
	store.Put(z.Sign(t, "pivot", gns.Gns2DnsRecord(long, "127.0.0.1", time.Now().Add(time.Hour))))
	resolver := gns.New(store, gnstest.NewNetwork())

	_, err := resolver.Resolve(t.Context(), z.Key, uint32(dns.TypeA), "www.pivot", gns.LookupDefault)
	if !errors.Is(err, gns.ErrNameTooLong) {
		t.Errorf("got %v, want ErrNameTooLong", err)
	}
}
