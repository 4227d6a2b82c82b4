package expose

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/netpulse/netpulse/internal/registry"
	"github.com/netpulse/netpulse/internal/sched"
)

// HealthSource reports per-target scheduler state for the JSON API.
type HealthSource interface {
	Statuses() []sched.TargetStatus
}

// Handler serves the Prometheus exposition and the JSON status API. Every
// scrape renders from a single registry snapshot, so one response is
// internally consistent even while collection cycles keep writing.
type Handler struct {
	reg    *registry.Registry
	health HealthSource
	mux    *http.ServeMux
	start  time.Time
}

// New creates a Handler wired to the registry and scheduler state and
// registers all routes.
func New(reg *registry.Registry, health HealthSource) http.Handler {
	h := &Handler{reg: reg, health: health, mux: http.NewServeMux(), start: time.Now()}

	h.mux.HandleFunc("/metrics", h.metrics)
	h.mux.HandleFunc("/healthz", h.healthz)
	h.mux.HandleFunc("/api/v1/targets", h.listTargets)
	h.mux.HandleFunc("/api/v1/targets/", h.getTarget) // subtree route; extracts {name}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// metrics serves GET /metrics in the Prometheus text exposition format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Counted before the snapshot so the scrape observes itself.
	h.reg.AddCounter("netpulse_scrapes_total", nil, 1)

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))

	enc := expfmt.NewEncoder(w, format)
	for _, fam := range render(h.reg.Snapshot()) {
		if err := enc.Encode(fam); err != nil {
			slog.Error("expose: encode metric family", "family", fam.GetName(), "err", err)
			return
		}
	}
}

// healthz serves GET /healthz: process liveness plus a target roll-up.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sts := h.health.Statuses()
	resp := HealthzResponse{
		Status:      "ok",
		TargetCount: len(sts),
		UptimeSec:   int64(time.Since(h.start).Seconds()),
	}
	for _, st := range sts {
		switch st.State {
		case sched.StateHealthy:
			resp.Healthy++
		case sched.StateDegraded:
			resp.Degraded++
		case sched.StateDown:
			resp.Down++
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// listTargets serves GET /api/v1/targets: all targets with health state.
func (h *Handler) listTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.health.Statuses())
}

// getTarget serves GET /api/v1/targets/{name}: a single target.
func (h *Handler) getTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/targets/")
	if name == "" {
		// A bare trailing slash serves the list.
		h.listTargets(w, r)
		return
	}

	for _, st := range h.health.Statuses() {
		if st.Name == name {
			jsonResp(w, http.StatusOK, st)
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "target not found")
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
