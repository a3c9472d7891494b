package exporter

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/irctrakz/wgexporter/pkg/dump"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Store) {
	t.Helper()
	store := NewStore()
	reg := prometheus.NewRegistry()
	m := NewSelfMetrics("wireguard")
	require.NoError(t, m.Register(reg))
	reg.MustRegister(NewCollector(store, CollectorOptions{Metrics: m}))
	return NewServer(reg, store, ServerOptions{ListenAddress: "127.0.0.1:0"}), store
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServer_MetricsBeforeFirstRefresh(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := get(t, srv.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "wireguard_sent_bytes_total")
	assert.Contains(t, body, "wireguard_exporter_up 0")

	code, _ = get(t, srv.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_MetricsAfterRefresh(t *testing.T) {
	srv, store := newTestServer(t)
	snap, err := dump.Parse([]byte(sampleDump))
	require.NoError(t, err)
	store.Swap(snap)

	code, body := get(t, srv.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `wireguard_sent_bytes_total{allowed_ips="192.168.0.100/32",interface="wg0",public_key="ABCD=="} 1.2216644e+07`)
	assert.Contains(t, body, `wireguard_device_info{interface="wg0",public_key="IFACEPUB="} 1`)

	code, _ = get(t, srv.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_HealthAndLanding(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, srv.Handler(), "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `href="/metrics"`)

	code, _ = get(t, srv.Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.opts.MaxConnections = 2

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-errc, http.ErrServerClosed)
}
