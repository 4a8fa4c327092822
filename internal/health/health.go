// Package health serves the liveness and readiness probes for the voice
// assistant server.
//
// Liveness (/healthz) only proves the process still answers HTTP. Readiness
// (/readyz) additionally runs the registered probes, in this deployment the
// entitlement database and the three speech pipeline backends, and flips to
// 503 while any of them is down so the load balancer stops routing new voice
// sessions here.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout caps a single readiness probe. A stalled entitlement database
// must not hold the whole /readyz response open.
const probeTimeout = 5 * time.Second

// Checker is one named readiness probe.
type Checker struct {
	// Name keys the probe's verdict in the /readyz response body, e.g.
	// "database" or "providers".
	Name string

	// Check probes one dependency. Nil means healthy. It must honour ctx,
	// which carries the probe deadline.
	Check func(ctx context.Context) error
}

// report is the response body for both probe endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the probe endpoints. The probe set is fixed at
// construction and Handler keeps no mutable state, so it is safe for
// concurrent use.
type Handler struct {
	probes []Checker
}

// New builds a Handler over the given probes. /readyz evaluates them in the
// order given.
func New(probes ...Checker) *Handler {
	h := &Handler{probes: make([]Checker, len(probes))}
	copy(h.probes, probes)
	return h
}

// Healthz answers the liveness probe. Reaching this handler is the proof;
// no probes run.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers the readiness probe: 200 with per-probe verdicts while
// every probe passes, 503 as soon as one fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.probes)),
	}
	status := http.StatusOK

	for _, p := range h.probes {
		if err := runProbe(r.Context(), p); err != nil {
			rep.Checks[p.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			rep.Checks[p.Name] = "ok"
		}
	}

	writeReport(w, status, rep)
}

// runProbe executes one probe under the probe deadline.
func runProbe(ctx context.Context, p Checker) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return p.Check(ctx)
}

// Register mounts both probe endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeReport encodes rep as the JSON probe response.
func writeReport(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
