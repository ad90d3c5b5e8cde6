package security

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/temps/internal/paaserr"
	"github.com/cuemby/temps/internal/types"
)

// ParsedCertificate is a decoded DomainCertificate's leaf plus its SAN set,
// used by `domain import` validation.
type ParsedCertificate struct {
	Leaf    *x509.Certificate
	SANs    []string
	NotAfter time.Time
}

// ParsePEMChain decodes a PEM certificate chain and returns the leaf
// certificate's metadata. Returns a validation error if the PEM is
// malformed or the certificate has already expired.
func ParsePEMChain(pemChain string) (*ParsedCertificate, error) {
	block, _ := pem.Decode([]byte(pemChain))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, paaserr.New(paaserr.KindValidation, "certificate is not valid PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, paaserr.Wrap(paaserr.KindValidation, "certificate could not be parsed", err)
	}

	if time.Now().After(cert.NotAfter) {
		return nil, paaserr.New(paaserr.KindValidation, fmt.Sprintf("certificate expired at %s", cert.NotAfter.Format(time.RFC3339)))
	}

	sans := make([]string, 0, len(cert.DNSNames))
	sans = append(sans, cert.DNSNames...)

	return &ParsedCertificate{Leaf: cert, SANs: sans, NotAfter: cert.NotAfter}, nil
}

// CoversDomain reports whether domain is covered by the SAN set, including
// single-label wildcard matches ("*.example.com" covers "api.example.com"
// but not "a.b.example.com").
func (p *ParsedCertificate) CoversDomain(domain string) bool {
	for _, san := range p.SANs {
		if san == domain {
			return true
		}
		if strings.HasPrefix(san, "*.") {
			parent := san[2:]
			if strings.HasSuffix(domain, "."+parent) {
				label := strings.TrimSuffix(domain, "."+parent)
				if !strings.Contains(label, ".") && label != "" {
					return true
				}
			}
		}
	}
	return false
}

// LoadTLSCertificate decrypts the private key with svc and assembles a
// tls.Certificate for use by the Edge Proxy's SNI selection. Private keys
// are decrypted on load and held only in memory (spec §4.8).
func LoadTLSCertificate(svc *EncryptionService, domainCert *types.DomainCertificate) (*tls.Certificate, error) {
	keyPEM, err := svc.Decrypt(domainCert.EncryptedPrivateKey)
	if err != nil {
		return nil, paaserr.Wrap(paaserr.KindValidation, "private key decryption failed", err)
	}

	cert, err := tls.X509KeyPair([]byte(domainCert.PEMChain), keyPEM)
	if err != nil {
		return nil, paaserr.Wrap(paaserr.KindValidation, "certificate/key pair is invalid", err)
	}

	return &cert, nil
}
