// internal/monitoring/server.go
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/SocialScrapexter/internal/utils"
)

var logger = utils.NewComponentLogger("monitoring")

// HealthCheck reports the liveness of one subsystem.
type HealthCheck func() error

// Server exposes /metrics and /healthz. It is the only HTTP surface the
// engine has; everything else goes through the CLI.
type Server struct {
	srv     *http.Server
	metrics *Metrics
	checks  map[string]HealthCheck
}

// NewServer builds the observability server on the given listen address.
func NewServer(addr string, metrics *Metrics) *Server {
	s := &Server{
		metrics: metrics,
		checks:  make(map[string]HealthCheck),
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// AddCheck registers a named health check. Checks run on every /healthz
// request; any failure turns the response into 503.
func (s *Server) AddCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type checkResult struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	results := make(map[string]checkResult, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(); err != nil {
			healthy = false
			results[name] = checkResult{Status: "unhealthy", Error: err.Error()}
			continue
		}
		results[name] = checkResult{Status: "ok"}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": overall,
		"checks": results,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start serves until Shutdown. It returns http.ErrServerClosed on a clean
// shutdown like net/http does.
func (s *Server) Start() error {
	logger.Infof("metrics listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
