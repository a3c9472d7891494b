package exporter

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/irctrakz/wgexporter/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
)

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	ListenAddress  string
	MetricsPath    string
	HealthPath     string
	MaxConnections int
}

// Server serves the metrics endpoint plus health and readiness probes.
type Server struct {
	opts  ServerOptions
	store *Store
	srv   *http.Server
}

// NewServer wires the routes for gatherer and store. Empty paths default to
// /metrics and /health.
func NewServer(gatherer prometheus.Gatherer, store *Store, opts ServerOptions) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.HealthPath == "" {
		opts.HealthPath = "/health"
	}
	s := &Server{opts: opts, store: store}
	s.srv = &http.Server{
		Addr:              opts.ListenAddress,
		Handler:           s.routes(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.opts.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      logging.WithComponent("promhttp"),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc(s.opts.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.store.Ready() {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ready"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := landingPage.Execute(w, s.opts); err != nil {
			logging.Errorf("landing page: %v", err)
		}
	})
	return mux
}

var landingPage = template.Must(template.New("landing").Parse(`<html>
<head><title>WireGuard Exporter</title></head>
<body>
<h1>WireGuard Exporter</h1>
<p><a href="{{.MetricsPath}}">Metrics</a></p>
</body>
</html>
`))

// ListenAndServe binds the listen address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.ListenAddress, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln, capping concurrent connections when configured.
func (s *Server) Serve(ln net.Listener) error {
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}
	logging.Infof("serving metrics on %s%s", ln.Addr(), s.opts.MetricsPath)
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight scrapes
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
