package util

import (
	"net"
	"net/http"
	"net/netip"
	"regexp"
	"strings"
)

// UnknownIP is used as the rate-limit identifier when no address can be derived.
const UnknownIP = "unknown"

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsValidEmail applies the deliberately loose address check shared by all forms.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeEmail trims and lowercases an address for use as a counter key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsBlank reports whether s is empty after trimming.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ClientIP returns the caller address. Forwarding headers are only believed
// when the connection comes from a trusted proxy; X-Real-IP wins, then the
// right-most X-Forwarded-For hop that is not itself a trusted proxy.
// Untrusted peers are identified by RemoteAddr alone.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := peerAddr(r.RemoteAddr)
	if peer == "" {
		return UnknownIP
	}
	if !IsTrusted(peer, trusted) {
		return peer
	}

	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	client := ""
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = addr.Unmap().String()
		if !IsTrusted(client, trusted) {
			break
		}
	}
	if client != "" {
		return client
	}
	return peer
}

// IsTrusted reports whether ip falls inside one of the trusted prefixes.
func IsTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remoteAddr string) string {
	addr := strings.TrimSpace(remoteAddr)
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// RemoteIP returns ip unless it is the UnknownIP placeholder.
func RemoteIP(ip string) string {
	if ip == UnknownIP {
		return ""
	}
	return ip
}
