package gns

import (
	"testing"
)

func Test_NextLabelSplitsRightToLeft(t *testing.T) {
	rr := &request{name: "www.shop.alice", pos: len("www.shop.alice")}
	for i, want := range []string{"alice", "shop", "www"} {
		if got := rr.nextLabel(); got != want {
			t.Errorf("label %d: got %q, want %q", i, got, want)
		}
	}
	if rr.pos != 0 {
		t.Error("name not fully consumed")
	}
	if got := rr.nextLabel(); got != "@" {
		t.Errorf("exhausted name: got %q, want apex", got)
	}
}

func Test_NextLabelMergesServiceProto(t *testing.T) {
	rr := &request{name: "_443._tcp", pos: len("_443._tcp")}
	if got := rr.nextLabel(); got != "_443._tcp" {
		t.Fatalf("got %q, want merged label", got)
	}
	if rr.pos != 0 {
		t.Error("merged label must consume the whole remaining name")
	}
	if rr.protocol != 6 || rr.service != 443 {
		t.Errorf("got protocol %d service %d, want 6/443", rr.protocol, rr.service)
	}
}

func Test_NextLabelNoMergeWithLabelsLeft(t *testing.T) {
	// three labels; the pair is not the whole remaining name
	rr := &request{name: "_443._tcp.alice", pos: len("_443._tcp.alice")}
	if got := rr.nextLabel(); got != "alice" {
		t.Errorf("got %q, want %q", got, "alice")
	}
	if rr.protocol != 0 || rr.service != 0 {
		t.Error("no merge must leave protocol/service unset")
	}
}

func Test_NextLabelUnknownProtoSplitsNormally(t *testing.T) {
	rr := &request{name: "_443._bogus", pos: len("_443._bogus")}
	if got := rr.nextLabel(); got != "_bogus" {
		t.Errorf("got %q, want normal split", got)
	}
	if rr.protocol != 0 || rr.service != 0 {
		t.Error("failed merge must leave protocol/service unset")
	}
}

func Test_SplitServiceProto(t *testing.T) {
	for _, tc := range []struct {
		name       string
		svc, proto string
		ok         bool
	}{
		{"_http._tcp", "http", "tcp", true},
		{"_443._udp", "443", "udp", true},
		{"http._tcp", "", "", false},
		{"_http.tcp", "", "", false},
		{"_a._b._c", "", "", false},
		{"plain", "", "", false},
		{"_._tcp", "", "", false},
	} {
		svc, proto, ok := splitServiceProto(tc.name)
		if svc != tc.svc || proto != tc.proto || ok != tc.ok {
			t.Errorf("%q: got (%q, %q, %v), want (%q, %q, %v)",
				tc.name, svc, proto, ok, tc.svc, tc.proto, tc.ok)
		}
	}
}

func Test_ResolveServiceProto(t *testing.T) {
	protonum, port, ok := resolveServiceProto("443", "tcp")
	if !ok || protonum != 6 || port != 443 {
		t.Errorf("got (%d, %d, %v)", protonum, port, ok)
	}
	if _, _, ok := resolveServiceProto("443", "igmp"); ok {
		t.Error("unknown protocol must not resolve")
	}
	if _, _, ok := resolveServiceProto("no-such-service-surely", "tcp"); ok {
		t.Error("unknown service must not resolve")
	}
}

func Test_StepEnforcesBound(t *testing.T) {
	rr := &request{}
	for i := 0; i < maxRecursion; i++ {
		if err := rr.step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if err := rr.step(); err != ErrMaxRecursion {
		t.Errorf("got %v, want ErrMaxRecursion", err)
	}
}
