// Package policy decides which upstream targets the relay is willing to fetch.
package policy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInvalidTarget means the request does not carry a usable absolute URL.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrNotAllowed means the target is well formed but refused by policy.
	ErrNotAllowed = errors.New("target not allowed")
)

var blockedCIDRs = []*net.IPNet{
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("169.254.0.0/16"),
	mustParseCIDR("0.0.0.0/8"),
	mustParseCIDR("::1/128"),
	mustParseCIDR("fc00::/7"),
	mustParseCIDR("fe80::/10"),
}

func mustParseCIDR(value string) *net.IPNet {
	_, parsed, err := net.ParseCIDR(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

// Policy gates targets before they are fetched.
type Policy struct {
	// AllowedPrefixes restricts targets to URLs starting with one of these
	// strings. Empty allows any target.
	AllowedPrefixes []string
	RequireHTTPS    bool
	BlockPrivate    bool
}

// ParseTarget extracts the target URL from a relay request URI such as
// "/https://example.org/page?q=1".
func (p Policy) ParseTarget(requestURI string) (*url.URL, error) {
	raw := strings.TrimPrefix(requestURI, "/")
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: target URL is required", ErrInvalidTarget)
	}

	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if !target.IsAbs() || target.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidTarget, raw)
	}

	switch strings.ToLower(target.Scheme) {
	case "https":
	case "http":
		if p.RequireHTTPS {
			return nil, fmt.Errorf("%w: only https targets are accepted", ErrInvalidTarget)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, target.Scheme)
	}
	return target, nil
}

// Check applies the allow-list and private address rules to target.
func (p Policy) Check(target *url.URL) error {
	if target == nil {
		return fmt.Errorf("%w: target URL is required", ErrInvalidTarget)
	}

	if len(p.AllowedPrefixes) > 0 && !p.hasAllowedPrefix(target.String()) {
		return fmt.Errorf("%w: %s is outside the allowed prefixes", ErrNotAllowed, target)
	}

	if p.BlockPrivate && isPrivateHost(target.Hostname()) {
		return fmt.Errorf("%w: %s resolves to a private address", ErrNotAllowed, target.Hostname())
	}
	return nil
}

func (p Policy) hasAllowedPrefix(target string) bool {
	for _, prefix := range p.AllowedPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}

// isPrivateHost only inspects literal addresses; names are not resolved.
func isPrivateHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
