package main

import (
	"testing"

	"github.com/gnslab/gns"
	"github.com/miekg/dns"
)

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want uint32
	}{
		{"A", uint32(dns.TypeA)},
		{"aaaa", uint32(dns.TypeAAAA)},
		{"pkey", gns.TypePKEY},
		{"GNS2DNS", gns.TypeGNS2DNS},
		{"any", gns.TypeAny},
	} {
		got, err := parseType(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("%q: got %d, want %d", tc.in, got, tc.want)
		}
	}

	if _, err := parseType("NOTATYPE"); err == nil {
		t.Error("expected an error for an unknown type")
	}
}
