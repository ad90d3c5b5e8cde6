package ingress

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/temps/internal/log"
	"github.com/cuemby/temps/internal/metrics"
	"github.com/cuemby/temps/internal/security"
)

// AcmeChallengeStore is the narrow boundary to the certificate lifecycle
// collaborator (out of scope): it writes HTTP-01 challenge tokens, the
// proxy only reads them (spec §4.8).
type AcmeChallengeStore interface {
	Lookup(token string) (keyAuth string, ok bool)
}

// CertificateProvider resolves a domain to a loaded TLS certificate, used
// for SNI-based cert selection.
type CertificateProvider interface {
	// CertificateFor returns the certificate covering hostname (exact
	// match first, then a single-label wildcard), or ok=false.
	CertificateFor(hostname string) (*tls.Certificate, bool)
}

// Proxy is the HTTP(S) entrypoint: it resolves a hostname via the
// RouteTable, then forwards or redirects (spec §4.8).
type Proxy struct {
	table    *RouteTable
	acme     AcmeChallengeStore
	certs    CertificateProvider
	httpAddr  string
	httpsAddr string

	mu          sync.Mutex
	httpServer  *http.Server
	httpsServer *http.Server
}

// NewProxy builds a Proxy that looks up routes in table, intercepts ACME
// HTTP-01 challenges via acme, and selects TLS certificates via certs.
func NewProxy(table *RouteTable, acme AcmeChallengeStore, certs CertificateProvider, httpAddr, httpsAddr string) *Proxy {
	return &Proxy{table: table, acme: acme, certs: certs, httpAddr: httpAddr, httpsAddr: httpsAddr}
}

// Start runs the HTTP and (if certs are available) HTTPS servers until ctx
// is cancelled.
func (p *Proxy) Start(ctx context.Context) error {
	logger := log.WithComponent("proxy")

	p.mu.Lock()
	p.httpServer = &http.Server{
		Addr:         p.httpAddr,
		Handler:      http.HandlerFunc(p.handle),
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  120 * time.Second,
		// WriteTimeout is intentionally unset: streaming/chunked backend
		// responses have no total timeout. forward() closes idle pooled
		// backend connections after 60s; it applies no per-read idle
		// timeout to a response body that is already streaming.
	}
	p.mu.Unlock()

	httpListener, err := net.Listen("tcp", p.httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", p.httpAddr, err)
	}

	logger.Info().Str("addr", p.httpAddr).Msg("proxy listening (HTTP)")
	go func() {
		if err := p.httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if p.certs != nil {
		p.mu.Lock()
		p.httpsServer = &http.Server{
			Addr:    p.httpsAddr,
			Handler: http.HandlerFunc(p.handle),
			TLSConfig: &tls.Config{
				MinVersion:     tls.VersionTLS12,
				GetCertificate: p.getCertificate,
			},
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
		}
		p.mu.Unlock()

		httpsListener, err := net.Listen("tcp", p.httpsAddr)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to listen for HTTPS, TLS disabled")
		} else {
			logger.Info().Str("addr", p.httpsAddr).Msg("proxy listening (HTTPS)")
			go func() {
				tlsListener := tls.NewListener(httpsListener, p.httpsServer.TLSConfig)
				if err := p.httpsServer.Serve(tlsListener); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("HTTPS server error")
				}
			}()
		}
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down proxy")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if p.httpsServer != nil {
		if err := p.httpsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTPS server shutdown error")
		}
	}
	return nil
}

// getCertificate implements SNI selection: exact match first, then a
// wildcard matching exactly one label. No match refuses the handshake.
func (p *Proxy) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert, ok := p.certs.CertificateFor(hello.ServerName)
	if !ok {
		return nil, fmt.Errorf("no certificate for %s", hello.ServerName)
	}
	return cert, nil
}

const acmeChallengePrefix = "/.well-known/acme-challenge/"

func (p *Proxy) handle(w http.ResponseWriter, r *http.Request) {
	if p.acme != nil && strings.HasPrefix(r.URL.Path, acmeChallengePrefix) {
		p.serveAcmeChallenge(w, r)
		return
	}

	hostname := hostOnly(r.Host)
	logger := log.WithComponent("proxy")
	timer := metrics.NewTimer()

	info, ok := p.table.Lookup(hostname)
	if !ok {
		metrics.ProxyRequestsTotal.WithLabelValues(hostname, "not-found").Inc()
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if info.Redirect != nil {
		location := resolveRedirectLocation(info.Redirect.Target, r.URL)
		w.Header().Set("Location", location)
		w.WriteHeader(info.Redirect.StatusCode)
		metrics.ProxyRequestsTotal.WithLabelValues(hostname, "redirect").Inc()
		return
	}

	backendAddr := fmt.Sprintf("%s:%d", info.Backend.Host, info.Backend.Port)
	if err := p.forward(w, r, backendAddr); err != nil {
		logger.Error().Err(err).Str("backend", backendAddr).Msg("proxy error")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		metrics.ProxyRequestsTotal.WithLabelValues(hostname, "error").Inc()
		return
	}

	timer.ObserveDurationVec(metrics.ProxyRequestDuration, hostname)
	metrics.ProxyRequestsTotal.WithLabelValues(hostname, "ok").Inc()
}

// resolveRedirectLocation preserves path+query if target does not already
// include a path (spec §4.8).
func resolveRedirectLocation(target string, reqURL *url.URL) string {
	targetURL, err := url.Parse(target)
	if err != nil {
		return target
	}
	if targetURL.Path == "" {
		targetURL.Path = reqURL.Path
		targetURL.RawQuery = reqURL.RawQuery
	}
	return targetURL.String()
}

func (p *Proxy) serveAcmeChallenge(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, acmeChallengePrefix)
	keyAuth, ok := p.acme.Lookup(token)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(keyAuth))
}

// forward opens a reverse proxy to backendAddr with chunk-preserving
// streaming: FlushInterval -1 flushes after every write instead of
// buffering to completion, satisfying the chunked-streaming test invariant
// of spec §4.8/§8 (N backend chunks produce ≥N discrete client arrivals).
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, backendAddr string) error {
	target, err := url.Parse("http://" + backendAddr)
	if err != nil {
		return fmt.Errorf("invalid backend address: %w", err)
	}

	reverseProxy := httputil.NewSingleHostReverseProxy(target)
	reverseProxy.FlushInterval = -1 // stream every write, never buffer to completion

	reverseProxy.Transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		IdleConnTimeout:       60 * time.Second, // idle keep-alive connections only, not reads in progress
		ResponseHeaderTimeout: 30 * time.Second,
	}

	originalDirector := reverseProxy.Director
	reverseProxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = r.Host
		req.Header.Set("X-Forwarded-For", r.RemoteAddr)
		req.Header.Set("X-Forwarded-Proto", schemeOf(r))
		req.Header.Set("X-Forwarded-Host", r.Host)
	}

	var proxyErr error
	reverseProxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		proxyErr = err
		w.WriteHeader(http.StatusBadGateway)
	}

	reverseProxy.ServeHTTP(w, r)
	return proxyErr
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func hostOnly(host string) string {
	if idx := strings.IndexByte(host, ':'); idx != -1 {
		return host[:idx]
	}
	return host
}

// encryptionCertificateProvider is a CertificateProvider over a set of
// already-decrypted tls.Certificates supplied through Update; it does no
// decryption itself (callers decrypt with security.LoadTLSCertificate).
type encryptionCertificateProvider struct {
	mu    sync.RWMutex
	certs map[string]*tls.Certificate
	svc   *security.EncryptionService
}

// NewCertificateProvider builds a CertificateProvider with an empty
// certificate set; call Update to load or replace the set after a
// certificate is issued or renewed.
func NewCertificateProvider(svc *security.EncryptionService) *encryptionCertificateProvider {
	return &encryptionCertificateProvider{certs: map[string]*tls.Certificate{}, svc: svc}
}

// Update replaces the loaded certificate set.
func (c *encryptionCertificateProvider) Update(certs map[string]*tls.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.certs = certs
}

// CertificateFor implements CertificateProvider: exact match, then a
// single-label wildcard match against "*.<parent>".
func (c *encryptionCertificateProvider) CertificateFor(hostname string) (*tls.Certificate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cert, ok := c.certs[hostname]; ok {
		return cert, true
	}

	if idx := strings.IndexByte(hostname, '.'); idx != -1 {
		wildcard := "*." + hostname[idx+1:]
		if cert, ok := c.certs[wildcard]; ok {
			return cert, true
		}
	}

	return nil, false
}
