// Package clientip derives the caller's network address from an HTTP request,
// honouring Forwarded / X-Forwarded-For only when the direct peer is a trusted proxy.
package clientip

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ErrInvalidProxy is returned by New for entries that are neither an IP nor a CIDR.
var ErrInvalidProxy = errors.New("invalid trusted proxy entry")

// Resolver resolves client addresses. A nil *Resolver trusts no proxies.
type Resolver struct {
	prefixes []netip.Prefix
}

// New builds a Resolver from IP or CIDR entries. Blank entries are ignored.
func New(trusted []string) (*Resolver, error) {
	r := &Resolver{}
	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
			}
			r.prefixes = append(r.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
		}
		addr = addr.Unmap()
		r.prefixes = append(r.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

// ClientIP returns the caller address, or "" when none can be parsed.
func (r *Resolver) ClientIP(req *http.Request) string {
	if req == nil {
		return ""
	}
	remote, ok := parseHost(req.RemoteAddr)
	if !ok {
		return ""
	}
	if !r.trusted(remote) {
		return remote.String()
	}

	forwarded := parseForwardedFor(req.Header.Get("Forwarded"))
	if len(forwarded) == 0 {
		forwarded = parseXForwardedFor(req.Header.Get("X-Forwarded-For"))
	}
	if len(forwarded) == 0 {
		return remote.String()
	}

	for i := len(forwarded) - 1; i >= 0; i-- {
		if !r.trusted(forwarded[i]) {
			return forwarded[i].String()
		}
	}
	return forwarded[0].String()
}

func (r *Resolver) trusted(addr netip.Addr) bool {
	if r == nil {
		return false
	}
	for _, p := range r.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseForwardedFor(header string) []netip.Addr {
	if header == "" {
		return nil
	}
	var out []netip.Addr
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "for") {
				continue
			}
			if addr, ok := parseHost(value); ok {
				out = append(out, addr)
			}
		}
	}
	return out
}

func parseXForwardedFor(header string) []netip.Addr {
	if header == "" {
		return nil
	}
	var out []netip.Addr
	for _, part := range strings.Split(header, ",") {
		if addr, ok := parseHost(part); ok {
			out = append(out, addr)
		}
	}
	return out
}

// parseHost accepts "ip", "ip:port", "[v6]:port" and quoted forms.
func parseHost(value string) (netip.Addr, bool) {
	value = strings.Trim(strings.TrimSpace(value), "\"")
	if value == "" || strings.EqualFold(value, "unknown") {
		return netip.Addr{}, false
	}

	host := value
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end != -1 {
			host = host[1:end]
		}
	} else if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if zone := strings.Index(host, "%"); zone != -1 {
		host = host[:zone]
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
