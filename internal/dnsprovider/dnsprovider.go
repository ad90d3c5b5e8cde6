// Package dnsprovider is the narrow DNS collaborator boundary (spec §6):
// domain ownership verification and ACME challenge record management.
// Concrete providers (Cloudflare, Route53, ...) are out of scope; this
// package defines the interface and a no-op implementation for manual
// certificate workflows.
package dnsprovider

import (
	"context"

	"github.com/cuemby/temps/internal/log"
)

// Record is a DNS record as reported by a provider.
type Record struct {
	Name    string
	Type    string
	Content string
	TTL     int
}

// Provider manages the DNS records a domain's certificate lifecycle needs:
// TXT records for DNS-01 ACME challenges, and A records for automated
// provisioning.
type Provider interface {
	SetTXTRecord(ctx context.Context, domain, name, value string) error
	RemoveTXTRecord(ctx context.Context, domain, name string) error
	SetARecord(ctx context.Context, domain, name, ipAddress string) error
	GetARecord(ctx context.Context, domain, name string) (*Record, error)
	SupportsAutomaticChallenges(ctx context.Context, domain string) bool
	ProviderType() string
}

// NoopProvider is the provider used when no DNS automation is configured:
// certificates are issued manually via the HTTP-01 challenge the Edge
// Proxy already intercepts.
type NoopProvider struct{}

func (NoopProvider) SetTXTRecord(ctx context.Context, domain, name, value string) error {
	log.WithComponent("dns-provider").Warn().Str("domain", domain).Msg("no DNS provider configured, cannot set TXT record")
	return nil
}

func (NoopProvider) RemoveTXTRecord(ctx context.Context, domain, name string) error {
	return nil
}

func (NoopProvider) SetARecord(ctx context.Context, domain, name, ipAddress string) error {
	log.WithComponent("dns-provider").Warn().Str("domain", domain).Msg("no DNS provider configured, cannot set A record")
	return nil
}

func (NoopProvider) GetARecord(ctx context.Context, domain, name string) (*Record, error) {
	return nil, nil
}

func (NoopProvider) SupportsAutomaticChallenges(ctx context.Context, domain string) bool {
	return false
}

func (NoopProvider) ProviderType() string { return "noop" }

var _ Provider = NoopProvider{}
