package ingress

import (
	"context"
	"net"
	"net/url"

	"github.com/cuemby/temps/internal/paaserr"
)

// ValidateExternalURL is the SSRF guard consumed at the boundary the
// certificate-issuance collaborator calls into (spec §4.8), and also
// applies the url_validation.rs superset (documentation ranges, multicast,
// broadcast, unspecified) per SPEC_FULL.md §D. Only http/https are
// permitted; any literal IP host is checked directly, and any domain host
// has all its A/AAAA records resolved and checked.
func ValidateExternalURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return paaserr.Wrap(paaserr.KindValidation, "malformed URL", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return paaserr.New(paaserr.KindValidation, "URL scheme must be http or https")
	}

	host := parsed.Hostname()
	if host == "" {
		return paaserr.New(paaserr.KindValidation, "URL must have a host")
	}

	if ip := net.ParseIP(host); ip != nil {
		return validateIP(ip)
	}

	return validateDomain(ctx, host)
}

// validateDomain resolves all A/AAAA records for domain and rejects if any
// maps to a blocked range (spec §4.8).
func validateDomain(ctx context.Context, domain string) error {
	resolver := net.DefaultResolver
	addrs, err := resolver.LookupIPAddr(ctx, domain)
	if err != nil {
		return paaserr.Wrap(paaserr.KindSourceUnavailable, "DNS resolution failed", err)
	}
	if len(addrs) == 0 {
		return paaserr.New(paaserr.KindSourceUnavailable, "domain has no resolvable addresses")
	}

	for _, addr := range addrs {
		if err := validateIP(addr.IP); err != nil {
			return err
		}
	}
	return nil
}

var (
	documentationRanges = []*net.IPNet{
		mustParseCIDR("192.0.2.0/24"),
		mustParseCIDR("198.51.100.0/24"),
		mustParseCIDR("203.0.113.0/24"),
	}

	cloudMetadataIPv4 = map[string]bool{
		"169.254.169.254": true, // AWS/Azure/GCP/Oracle
		"100.100.100.200": true, // Alibaba Cloud
	}
)

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// validateIP rejects the blocked ranges named in spec §4.8: private IPv4
// (RFC 1918), loopback, link-local, cloud-metadata, broadcast,
// documentation ranges, and the IPv6 equivalents (::1, fe80::/10,
// fc00::/7, ff00::/8, fd00:ec2::254).
func validateIP(ip net.IP) error {
	if ip4 := ip.To4(); ip4 != nil {
		if cloudMetadataIPv4[ip4.String()] {
			return paaserr.New(paaserr.KindValidation, "cloud metadata service addresses are not allowed")
		}
		if ip4.IsPrivate() {
			return paaserr.New(paaserr.KindValidation, "private IP addresses are not allowed")
		}
		if ip4.IsLoopback() {
			return paaserr.New(paaserr.KindValidation, "loopback addresses are not allowed")
		}
		if ip4.IsLinkLocalUnicast() {
			return paaserr.New(paaserr.KindValidation, "link-local addresses are not allowed")
		}
		if ip4.IsMulticast() {
			return paaserr.New(paaserr.KindValidation, "multicast addresses are not allowed")
		}
		if ip4.Equal(net.IPv4bcast) {
			return paaserr.New(paaserr.KindValidation, "broadcast addresses are not allowed")
		}
		if ip4.IsUnspecified() {
			return paaserr.New(paaserr.KindValidation, "unspecified addresses are not allowed")
		}
		for _, r := range documentationRanges {
			if r.Contains(ip4) {
				return paaserr.New(paaserr.KindValidation, "documentation addresses are not allowed")
			}
		}
		return nil
	}

	if isAWSIPv6Metadata(ip) {
		return paaserr.New(paaserr.KindValidation, "cloud metadata service addresses are not allowed")
	}
	if ip.IsLoopback() {
		return paaserr.New(paaserr.KindValidation, "loopback addresses are not allowed")
	}
	if ip.IsLinkLocalUnicast() {
		return paaserr.New(paaserr.KindValidation, "link-local addresses are not allowed")
	}
	if isUniqueLocalIPv6(ip) {
		return paaserr.New(paaserr.KindValidation, "private IP addresses are not allowed")
	}
	if ip.IsMulticast() {
		return paaserr.New(paaserr.KindValidation, "multicast addresses are not allowed")
	}
	if ip.IsUnspecified() {
		return paaserr.New(paaserr.KindValidation, "unspecified addresses are not allowed")
	}
	return nil
}

// isUniqueLocalIPv6 reports membership in fc00::/7.
func isUniqueLocalIPv6(ip net.IP) bool {
	ip16 := ip.To16()
	if ip16 == nil {
		return false
	}
	return ip16[0]&0xfe == 0xfc
}

// isAWSIPv6Metadata reports whether ip is fd00:ec2::254, the AWS IPv6
// metadata address (spec §4.8).
func isAWSIPv6Metadata(ip net.IP) bool {
	ip16 := ip.To16()
	if ip16 == nil {
		return false
	}
	if ip16[0] != 0xfd || ip16[1] != 0x00 || ip16[2] != 0x0e || ip16[3] != 0xc2 {
		return false
	}
	for i := 4; i < 14; i++ {
		if ip16[i] != 0 {
			return false
		}
	}
	return ip16[14] == 0x02 && ip16[15] == 0x54
}
