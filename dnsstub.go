package gns

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/miekg/dns"
	"golang.org/x/net/proxy"
)

// stubPort is the DNS port the stub context targets (overridable in tests).
var stubPort uint16 = 53

// StubContext is a round-robin pool of upstream DNS servers used after a
// GNS2DNS pivot. Servers are registered as hints resolve; queries rotate
// through them.
type StubContext struct {
	dialer proxy.ContextDialer

	mu      sync.Mutex
	servers []netip.Addr
	next    int
}

func newStubContext(dialer proxy.ContextDialer) *StubContext {
	return &StubContext{dialer: dialer}
}

// AddServer registers an upstream server address. Returns false if the
// address is invalid or already registered.
func (sc *StubContext) AddServer(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, have := range sc.servers {
		if have == addr {
			return false
		}
	}
	sc.servers = append(sc.servers, addr)
	return true
}

// Servers returns the number of registered upstream servers.
func (sc *StubContext) Servers() (n int) {
	sc.mu.Lock()
	n = len(sc.servers)
	sc.mu.Unlock()
	return
}

func (sc *StubContext) pick() (addr netip.Addr, ok bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if len(sc.servers) == 0 {
		return
	}
	addr = sc.servers[sc.next%len(sc.servers)]
	sc.next++
	return addr, true
}

// Exchange sends the query over UDP to the next server in the pool and
// waits for the response carrying the query's transaction ID. Datagrams
// with a mismatched ID are stray answers from earlier queries and are
// silently discarded, not errors.
func (sc *StubContext) Exchange(ctx context.Context, m *dns.Msg) (msg *dns.Msg, err error) {
	addr, ok := sc.pick()
	if !ok {
		return nil, ErrNoNameserver
	}
	var network string
	if addr.Is4() {
		network = "udp4"
	} else {
		network = "udp6"
	}
	var nconn net.Conn
	if nconn, err = sc.dialer.DialContext(ctx, network, netip.AddrPortFrom(addr, stubPort).String()); err != nil {
		return
	}
	dnsconn := &dns.Conn{Conn: nconn, UDPSize: dns.DefaultMsgSize}
	defer dnsconn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = nconn.SetDeadline(deadline)
	}
	if err = dnsconn.WriteMsg(m); err != nil {
		return
	}
	for {
		if msg, err = dnsconn.ReadMsg(); err != nil {
			return nil, err
		}
		if msg.Id == m.Id {
			return msg, nil
		}
		// a mismatched ID is a stray datagram from an earlier query
	}
}
