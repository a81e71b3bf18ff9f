package support

import (
	"net/http/httptest"
	"testing"
)

func TestFirstForwardedIP(t *testing.T) {
	if got := FirstForwardedIP("203.0.113.5, 10.0.0.1"); got != "203.0.113.5" {
		t.Fatalf("FirstForwardedIP returned %q, want 203.0.113.5", got)
	}

	if got := FirstForwardedIP(""); got != "" {
		t.Fatalf("FirstForwardedIP returned %q for empty header", got)
	}

	if got := FirstForwardedIP(" 198.51.100.7 "); got != "198.51.100.7" {
		t.Fatalf("FirstForwardedIP returned %q, want trimmed value", got)
	}
}

func TestNormalizeIP(t *testing.T) {
	cases := map[string]string{
		"":                     UnknownIP,
		"::1":                  "127.0.0.1",
		"::ffff:203.0.113.5":   "203.0.113.5",
		"203.0.113.5":          "203.0.113.5",
		"2001:db8::2:1":        "2001:db8::2:1",
	}

	for in, want := range cases {
		if got := NormalizeIP(in); got != want {
			t.Fatalf("NormalizeIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:52012"
	r.Header.Set("X-Forwarded-For", "::ffff:203.0.113.5, 10.0.0.1")

	if got := ClientIP(r); got != "203.0.113.5" {
		t.Fatalf("ClientIP returned %q, want 203.0.113.5", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.7:40000"

	if got := ClientIP(r); got != "198.51.100.7" {
		t.Fatalf("ClientIP returned %q, want 198.51.100.7", got)
	}
}
