package downloader

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerEchoServer(t *testing.T, got *http.Header) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*got = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestConsistentTransportSetsDefaultHeaders(t *testing.T) {
	var received http.Header
	server := headerEchoServer(t, &received)
	transport := &consistentTransport{base: http.DefaultTransport, userAgent: "TestAgent/1.0"}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "TestAgent/1.0", received.Get("User-Agent"))
	assert.Equal(t, "en-US,en;q=0.9", received.Get("Accept-Language"))
	assert.Equal(t, "*/*", received.Get("Accept"))

	assert.Empty(t, req.Header.Get("User-Agent"), "original request must not be mutated")
	assert.Empty(t, req.Header.Get("Accept"))
}

func TestConsistentTransportPreservesExistingHeaders(t *testing.T) {
	var received http.Header
	server := headerEchoServer(t, &received)
	transport := &consistentTransport{base: http.DefaultTransport, userAgent: "TestAgent/1.0"}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "CustomAgent/2.0")
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "CustomAgent/2.0", received.Get("User-Agent"))
}

func TestConsistentTransportConcurrentSafety(t *testing.T) {
	var received http.Header
	server := headerEchoServer(t, &received)
	transport := &consistentTransport{base: http.DefaultTransport, userAgent: "TestAgent/1.0"}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := transport.RoundTrip(req)
			if err != nil {
				t.Errorf("RoundTrip: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	assert.Empty(t, req.Header.Get("User-Agent"))
}

func TestNewHTTPClient(t *testing.T) {
	client := newHTTPClient(5 * time.Second)
	assert.Equal(t, 5*time.Second, client.Timeout)
	assert.NotNil(t, client.Jar)
	transport, ok := client.Transport.(*consistentTransport)
	require.True(t, ok)
	assert.Same(t, sharedTransport, transport.base)
}
