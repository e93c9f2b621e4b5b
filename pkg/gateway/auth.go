package gateway

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// Authorizer decides whether a remote address may call the gateway.
type Authorizer interface {
	Allow(ctx context.Context, remoteAddr string) error
}

type NoopAuthorizer struct{}

func (NoopAuthorizer) Allow(context.Context, string) error {
	return nil
}

// AllowlistAuthorizer allows only listed hosts or CIDR ranges. An empty list
// allows everyone.
type AllowlistAuthorizer struct {
	Allowed []string
}

func (a AllowlistAuthorizer) Allow(_ context.Context, remoteAddr string) error {
	if len(a.Allowed) == 0 {
		return nil
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	for _, entry := range a.Allowed {
		entry = strings.TrimSpace(entry)
		if entry == remoteAddr || entry == host {
			return nil
		}
		if ip == nil || !strings.Contains(entry, "/") {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil && network.Contains(ip) {
			return nil
		}
	}
	return fmt.Errorf("remote address not allowed: %s", remoteAddr)
}
