package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/relaysim/internal/circuit"
	"github.com/nvandessel/relaysim/internal/metrics"
	"github.com/nvandessel/relaysim/internal/ratelimit"
)

// Power switching is limited per client to powerRate requests per second
// with bursts of powerBurst.
const (
	powerRate  = 5
	powerBurst = 10
)

// Server exposes a live circuit over HTTP: DOT and JSON views, a power
// switch endpoint and Prometheus metrics.
type Server struct {
	circuit    *circuit.Circuit
	circuitMu  sync.Mutex // Circuit is single-owner
	metrics    *metrics.Registry
	powerLimit *ratelimit.Limiter
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a server for c. A nil registry disables /metrics.
func NewServer(c *circuit.Circuit, reg *metrics.Registry) *Server {
	return &Server{
		circuit:    c,
		metrics:    reg,
		powerLimit: ratelimit.New(powerRate, powerBurst),
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDOT)
	mux.HandleFunc("/api/state", s.handleState)
	mux.Handle("/api/power", s.powerLimit.Middleware(http.HandlerFunc(s.handlePower)))
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe starts the HTTP server on addr ("localhost:0" picks a free
// port) and blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) view() View {
	s.circuitMu.Lock()
	defer s.circuitMu.Unlock()
	return FromCircuit(s.circuit)
}

// handleDOT serves the circuit as Graphviz DOT.
func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.Write([]byte(RenderDOT(s.view())))
}

// handleState serves the resolved state as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, RenderJSON(s.view()))
}

// handlePower switches a power supply: POST /api/power?prefix=PS&on=true.
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		http.Error(w, "missing 'prefix' query parameter", http.StatusBadRequest)
		return
	}
	on, err := strconv.ParseBool(r.URL.Query().Get("on"))
	if err != nil {
		http.Error(w, "invalid 'on' query parameter", http.StatusBadRequest)
		return
	}

	s.circuitMu.Lock()
	supply := false
	for _, p := range s.circuit.Placements() {
		if p.Prefix == prefix && p.Kind == circuit.KindPower {
			supply = true
			break
		}
	}
	if supply {
		s.circuit.SetPower(prefix, on)
	}
	view := FromCircuit(s.circuit)
	s.circuitMu.Unlock()

	if !supply {
		http.Error(w, "power supply not found: "+prefix, http.StatusNotFound)
		return
	}
	writeJSON(w, RenderJSON(view))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
