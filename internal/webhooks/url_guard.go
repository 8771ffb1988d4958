package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// ErrBlockedTarget is returned when every address of a webhook host is private or reserved.
var ErrBlockedTarget = errors.New("webhook target address is blocked")

// reservedPrefixes are loopback, private, link-local and carrier-grade NAT ranges.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// ValidateURL checks that a webhook URL is an absolute http or https URL.
// Address checks happen when dialing, see guardedDialer.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("webhook URL is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return errors.New("webhook URL must use http or https")
	case u.Hostname() == "":
		return errors.New("webhook URL must have a host")
	}
	return nil
}

// blockedAddr reports whether addr must not receive webhook traffic.
func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() || addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() || addr.IsMulticast() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// guardedDialer resolves the host itself and dials only public addresses,
// trying each in turn. Resolving at dial time keeps DNS rebinding out.
func guardedDialer(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("split webhook address %q: %w", addr, err)
		}

		addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, fmt.Errorf("resolve webhook host %q: %w", host, err)
		}

		var lastErr error
		for _, a := range addrs {
			if blockedAddr(a) {
				continue
			}
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(a.Unmap().String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: %s", ErrBlockedTarget, host)
	}
}
