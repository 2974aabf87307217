package prometheus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 10 * time.Second

// Exporter serves the assistant's metrics, plus Go runtime and process
// collectors, on /metrics. /health answers "ok" while the server is up.
type Exporter struct {
	server  *http.Server
	handler http.Handler

	mu      sync.Mutex
	running bool
}

// NewExporter builds an exporter for addr on a private registry. Nothing
// listens until Start.
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(allMetrics...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e := &Exporter{
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}),
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	return e
}

// Start listens and serves until Shutdown, then returns http.ErrServerClosed.
// A second call while running returns nil immediately.
func (e *Exporter) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()
	return e.server.ListenAndServe()
}

// Shutdown stops a running exporter. It is a no-op before Start.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false
	return e.server.Shutdown(ctx)
}

// Handler returns the /metrics handler without starting a server.
func (e *Exporter) Handler() http.Handler {
	return e.handler
}
