package ingress

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/temps/internal/types"
)

func TestResolveRedirectLocationPreservesPathAndQuery(t *testing.T) {
	reqURL, err := url.Parse("/foo?bar=baz")
	require.NoError(t, err)

	got := resolveRedirectLocation("https://new.example.com", reqURL)
	assert.Equal(t, "https://new.example.com/foo?bar=baz", got)
}

func TestResolveRedirectLocationKeepsOwnPath(t *testing.T) {
	reqURL, err := url.Parse("/foo?bar=baz")
	require.NoError(t, err)

	got := resolveRedirectLocation("https://new.example.com/elsewhere", reqURL)
	assert.Equal(t, "https://new.example.com/elsewhere", got)
}

func TestHostOnlyStripsPort(t *testing.T) {
	assert.Equal(t, "example.com", hostOnly("example.com:8443"))
	assert.Equal(t, "example.com", hostOnly("example.com"))
}

func TestCertificateForExactAndWildcard(t *testing.T) {
	provider := NewCertificateProvider(nil)
	exact := &tls.Certificate{}
	wildcard := &tls.Certificate{}
	provider.Update(map[string]*tls.Certificate{
		"api.example.com": exact,
		"*.example.com":   wildcard,
	})

	cert, ok := provider.CertificateFor("api.example.com")
	assert.True(t, ok)
	assert.Same(t, exact, cert)

	cert, ok = provider.CertificateFor("other.example.com")
	assert.True(t, ok)
	assert.Same(t, wildcard, cert)

	_, ok = provider.CertificateFor("unrelated.com")
	assert.False(t, ok)
}

func TestProxyHandleNotFound(t *testing.T) {
	table := NewRouteTable()
	p := NewProxy(table, nil, nil, "", "")

	req := httptest.NewRequest(http.MethodGet, "http://missing.example.com/", nil)
	rec := httptest.NewRecorder()
	p.handle(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProxyHandleRedirect(t *testing.T) {
	table := NewRouteTable()
	table.swap(buildSnapshot([]*types.RouteRecord{
		{Domain: "old.example.com", Source: types.RouteSourceCustomRoute, RedirectTo: "https://new.example.com", StatusCode: 301},
	}))
	p := NewProxy(table, nil, nil, "", "")

	req := httptest.NewRequest(http.MethodGet, "http://old.example.com/path?x=1", nil)
	rec := httptest.NewRecorder()
	p.handle(rec, req)

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://new.example.com/path?x=1", rec.Header().Get("Location"))
}

func TestProxyForwardsToBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", "reached")
		w.Write([]byte("hello"))
	}))
	defer backend.Close()

	backendURL, err := url.Parse(backend.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(backendURL.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	table := NewRouteTable()
	table.swap(buildSnapshot([]*types.RouteRecord{
		{Domain: "app.example.com", Source: types.RouteSourceCustomRoute, BackendHost: host, BackendPort: port},
	}))
	p := NewProxy(table, nil, nil, "", "")

	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	rec := httptest.NewRecorder()
	p.handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reached", rec.Header().Get("X-Backend"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestProxyHandleAcmeChallenge(t *testing.T) {
	table := NewRouteTable()
	p := NewProxy(table, fakeAcmeStore{"tok1": "key-auth-1"}, nil, "", "")

	req := httptest.NewRequest(http.MethodGet, "http://example.com/.well-known/acme-challenge/tok1", nil)
	rec := httptest.NewRecorder()
	p.handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "key-auth-1", rec.Body.String())
}

type fakeAcmeStore map[string]string

func (f fakeAcmeStore) Lookup(token string) (string, bool) {
	v, ok := f[token]
	return v, ok
}

// TestProxyStreamsChunksIncrementally exercises the chunked-streaming
// invariant: a backend that writes and flushes N chunks with gaps between
// them must produce N discrete client-visible arrivals rather than one
// buffered burst at the end.
func TestProxyStreamsChunksIncrementally(t *testing.T) {
	const chunks = 3
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < chunks; i++ {
			fmt.Fprintf(w, "chunk-%d\n", i)
			flusher.Flush()
			time.Sleep(20 * time.Millisecond)
		}
	}))
	defer backend.Close()

	backendURL, err := url.Parse(backend.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(backendURL.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	table := NewRouteTable()
	table.swap(buildSnapshot([]*types.RouteRecord{
		{Domain: "stream.example.com", Source: types.RouteSourceCustomRoute, BackendHost: host, BackendPort: port},
	}))
	p := NewProxy(table, nil, nil, "", "")
	front := httptest.NewServer(http.HandlerFunc(p.handle))
	defer front.Close()

	frontURL, err := url.Parse(front.URL)
	require.NoError(t, err)
	conn, err := net.Dial("tcp", frontURL.Host)
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "GET / HTTP/1.1\r\nHost: stream.example.com\r\nConnection: close\r\n\r\n")

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	arrivals := 0
	buf := make([]byte, 64)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 && strings.Contains(string(buf[:n]), "chunk-") {
			arrivals++
		}
		if err != nil {
			break
		}
	}

	assert.GreaterOrEqual(t, arrivals, chunks, "expected at least one client-visible arrival per backend chunk")
}
