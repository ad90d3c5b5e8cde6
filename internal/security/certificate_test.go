package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/temps/internal/types"
)

func generateTestCert(t *testing.T, sans []string, notAfter time.Time) (certPEM, keyPEM string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: sans[0]},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		DNSNames:     sans,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)

	certBlock := &pem.Block{Type: "CERTIFICATE", Bytes: der}
	certPEM = string(pem.EncodeToMemory(certBlock))

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyBlock := &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}
	keyPEM = string(pem.EncodeToMemory(keyBlock))

	return certPEM, keyPEM
}

func TestParsePEMChainValid(t *testing.T) {
	certPEM, _ := generateTestCert(t, []string{"example.com", "*.example.com"}, time.Now().Add(24*time.Hour))

	parsed, err := ParsePEMChain(certPEM)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"example.com", "*.example.com"}, parsed.SANs)
}

func TestParsePEMChainRejectsExpired(t *testing.T) {
	certPEM, _ := generateTestCert(t, []string{"example.com"}, time.Now().Add(-time.Hour))

	_, err := ParsePEMChain(certPEM)
	assert.Error(t, err)
}

func TestParsePEMChainRejectsGarbage(t *testing.T) {
	_, err := ParsePEMChain("not a pem chain")
	assert.Error(t, err)
}

func TestCoversDomainExactMatch(t *testing.T) {
	p := &ParsedCertificate{SANs: []string{"example.com"}}
	assert.True(t, p.CoversDomain("example.com"))
	assert.False(t, p.CoversDomain("api.example.com"))
}

func TestCoversDomainWildcardSingleLabel(t *testing.T) {
	p := &ParsedCertificate{SANs: []string{"*.example.com"}}
	assert.True(t, p.CoversDomain("api.example.com"))
	assert.False(t, p.CoversDomain("a.b.example.com"), "wildcard must not cover two labels deep")
	assert.False(t, p.CoversDomain("example.com"), "wildcard alone does not cover the bare apex")
}

func TestLoadTLSCertificateRoundtrip(t *testing.T) {
	svc, err := NewEncryptionService([]byte(testKeyHex))
	require.NoError(t, err)

	certPEM, keyPEM := generateTestCert(t, []string{"example.com"}, time.Now().Add(24*time.Hour))

	encryptedKey, err := svc.Encrypt([]byte(keyPEM))
	require.NoError(t, err)

	domainCert := &types.DomainCertificate{
		Domain:              "example.com",
		PEMChain:            certPEM,
		EncryptedPrivateKey: encryptedKey,
	}

	tlsCert, err := LoadTLSCertificate(svc, domainCert)
	require.NoError(t, err)
	assert.NotNil(t, tlsCert.PrivateKey)
	require.Len(t, tlsCert.Certificate, 1)
}

func TestLoadTLSCertificateFailsOnBadKey(t *testing.T) {
	svc, err := NewEncryptionService([]byte(testKeyHex))
	require.NoError(t, err)

	certPEM, _ := generateTestCert(t, []string{"example.com"}, time.Now().Add(24*time.Hour))

	encryptedGarbage, err := svc.Encrypt([]byte("not a private key"))
	require.NoError(t, err)

	domainCert := &types.DomainCertificate{
		Domain:              "example.com",
		PEMChain:            certPEM,
		EncryptedPrivateKey: encryptedGarbage,
	}

	_, err = LoadTLSCertificate(svc, domainCert)
	assert.Error(t, err)
}
