package util

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last+tag@example.io", "x@sub.domain.org"}
	invalid := []string{"", "bad-email", "a@b", "a b@c.com", "@example.com", "a@.", "a@b."}

	for _, e := range valid {
		assert.True(t, IsValidEmail(e), e)
	}
	for _, e := range invalid {
		assert.False(t, IsValidEmail(e), e)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeEmail("  Jane@Example.COM "))
	assert.True(t, IsBlank("  \t"))
	assert.False(t, IsBlank(" x "))
}

func TestClientIP_UntrustedPeerIgnoresHeaders(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/contact", nil)
	r.RemoteAddr = "192.0.2.10:5123"
	assert.Equal(t, "192.0.2.10", ClientIP(r, nil))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "192.0.2.10", ClientIP(r, nil))
	assert.Equal(t, "192.0.2.10", ClientIP(r, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}))

	r = httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = ""
	assert.Equal(t, UnknownIP, ClientIP(r, nil))
	assert.Equal(t, "", RemoteIP(UnknownIP))
	assert.Equal(t, "203.0.113.5", RemoteIP("203.0.113.5"))
}

func TestClientIP_TrustedProxy(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		desc    string
		realIP  string
		forward string
		want    string
	}{
		{desc: "no headers", want: "10.1.2.3"},
		{desc: "real ip", realIP: "198.51.100.7", forward: "203.0.113.5", want: "198.51.100.7"},
		{desc: "single hop", forward: "203.0.113.5", want: "203.0.113.5"},
		{desc: "spoofed left hop", forward: "1.2.3.4, 203.0.113.5", want: "203.0.113.5"},
		{desc: "proxy chain", forward: "203.0.113.5, 10.9.9.9", want: "203.0.113.5"},
		{desc: "garbage hop", forward: "nonsense, 203.0.113.5", want: "203.0.113.5"},
		{desc: "all trusted", forward: "10.4.4.4, 10.9.9.9", want: "10.4.4.4"},
		{desc: "invalid real ip", realIP: "nope", want: "10.1.2.3"},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/contact", nil)
			r.RemoteAddr = "10.1.2.3:443"
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if tc.forward != "" {
				r.Header.Set("X-Forwarded-For", tc.forward)
			}
			assert.Equal(t, tc.want, ClientIP(r, trusted))
		})
	}
}

func TestIsTrusted(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("2001:db8::/32")}

	assert.True(t, IsTrusted("10.20.30.40", trusted))
	assert.True(t, IsTrusted("::ffff:10.0.0.1", trusted))
	assert.True(t, IsTrusted("2001:db8::1", trusted))
	assert.False(t, IsTrusted("192.0.2.1", trusted))
	assert.False(t, IsTrusted("not-an-ip", trusted))
	assert.False(t, IsTrusted("10.0.0.1", nil))
}
