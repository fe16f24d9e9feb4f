package models

import (
	"errors"
	"net/netip"
	"testing"
)

func TestParseAddressAcceptsCommonForms(t *testing.T) {
	cases := map[string]string{
		"10.0.0.1:5000":                  "10.0.0.1:5000",
		"node.example.org/10.0.0.1:5000": "10.0.0.1:5000",
		"/10.0.0.1:5000":                 "10.0.0.1:5000",
		"[::1]:1338":                     "[::1]:1338",
		"[::ffff:10.0.0.7]:1338":         "10.0.0.7:1338",
		"Example.ORG:1338":               "example.org:1338",
	}

	for input, want := range cases {
		addr, err := ParseAddress(input)
		if err != nil {
			t.Fatalf("ParseAddress(%q) failed: %v", input, err)
		}
		if got := addr.String(); got != want {
			t.Fatalf("ParseAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseAddressRejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "10.0.0.1", "10.0.0.1:", "10.0.0.1:abc", ":1338", "10.0.0.1:0", "10.0.0.1:70000"} {
		if _, err := ParseAddress(input); !errors.Is(err, ErrFormat) {
			t.Fatalf("ParseAddress(%q) error = %v, want ErrFormat", input, err)
		}
	}
}

func TestAddressComparisons(t *testing.T) {
	a, _ := NewAddress("10.0.0.1", 5000)
	b, _ := NewAddress("10.0.0.1", 6000)
	c, _ := NewAddress("10.0.0.2", 5000)

	if !a.Equal(a) {
		t.Fatalf("expected address to equal itself")
	}
	if a.Equal(b) {
		t.Fatalf("expected strict comparison to consider the port")
	}
	if !a.SameHost(b) {
		t.Fatalf("expected non-strict comparison to ignore the port")
	}
	if a.SameHost(c) {
		t.Fatalf("expected different hosts to differ")
	}
}

func TestAddressFromAddrPortMatchesParsedAddress(t *testing.T) {
	configured, err := ParseAddress("10.0.0.1:5000")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}

	source := AddressFromAddrPort(netip.MustParseAddrPort("[::ffff:10.0.0.1]:5000"))
	if !configured.Equal(source) {
		t.Fatalf("expected %s to equal packet source %s", configured, source)
	}
}
