package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/releasedeck/releasedeck/internal/build"
	"github.com/releasedeck/releasedeck/internal/config"
	"github.com/releasedeck/releasedeck/internal/monitor"
	"github.com/releasedeck/releasedeck/internal/report"
	"github.com/releasedeck/releasedeck/internal/workqueue"
)

// Options wires the handler's collaborators.
type Options struct {
	Builds   *build.Store
	Monitors *monitor.Store
	Queue    *workqueue.Queue
	Reporter *report.Service

	// Services returns the current monitored-service configuration. A
	// function so config reloads take effect without rebuilding the handler.
	Services func() []config.Service

	// ClientCount reports connected dashboard clients. May be nil.
	ClientCount func() int

	// Auth guards the mutating endpoints.
	Auth config.AuthConfig
}

// Handler is the HTTP handler for all /api/v1/* endpoints plus /metrics.
type Handler struct {
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes. Mutating endpoints go
// through API-key authentication when it is configured.
func New(opts Options) http.Handler {
	h := &Handler{opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/portal", h.portal)
	h.mux.HandleFunc("/api/v1/applications", h.listApplications)
	h.mux.HandleFunc("/api/v1/applications/", h.application) // subtree — {name}/{version}
	h.mux.HandleFunc("/api/v1/report", h.requireKey(h.postReport))
	h.mux.HandleFunc("/api/v1/services", h.listServices)
	h.mux.HandleFunc("/api/v1/services/", h.service) // subtree — {id}
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — coarse liveness plus object counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		State:            "ok",
		ApplicationCount: h.opts.Builds.Count(),
		DeferredAudits:   h.opts.Queue.Len(),
	}
	for _, m := range h.opts.Monitors.List() {
		resp.ServiceCount++
		if m.IsFailure() {
			resp.FailingServices++
		}
	}
	if resp.FailingServices > 0 {
		resp.State = "degraded"
	}
	if h.opts.ClientCount != nil {
		resp.ConnectedClients = h.opts.ClientCount()
	}
	jsonResp(w, http.StatusOK, resp)
}

// portal returns GET /api/v1/portal — the full dashboard state.
func (h *Handler) portal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildPortal(h.opts.Builds, h.opts.Monitors, h.opts.Services(), time.Now()))
}

// listApplications returns GET /api/v1/applications — ledger summaries.
func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records := h.opts.Builds.List()
	out := make([]ApplicationSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, toSummary(rec))
	}
	jsonResp(w, http.StatusOK, out)
}

// application handles /api/v1/applications/{name}/{version}:
// GET returns the full ledger entry, DELETE removes it.
func (h *Handler) application(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/applications/")
	name, version, ok := strings.Cut(rest, "/")
	if !ok || name == "" || version == "" {
		jsonErr(w, http.StatusBadRequest, "expected /api/v1/applications/{name}/{version}")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, ok := h.opts.Builds.Find(name, version)
		if !ok {
			jsonErr(w, http.StatusNotFound, "application version not found")
			return
		}
		jsonResp(w, http.StatusOK, rec)

	case http.MethodDelete:
		h.requireKey(func(w http.ResponseWriter, r *http.Request) {
			if !h.opts.Builds.Delete(name, version) {
				jsonErr(w, http.StatusNotFound, "application version not found")
				return
			}
			jsonResp(w, http.StatusOK, statusResponse{Status: "deleted"})
		})(w, r)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// postReport handles POST /api/v1/report — the CI call-in.
func (h *Handler) postReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req report.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.opts.Reporter.Apply(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, statusResponse{Status: "recorded"})
}

// listServices returns GET /api/v1/services — merged config and state.
func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, toServiceResponses(h.opts.Monitors, h.opts.Services(), time.Now()))
}

// service handles DELETE /api/v1/services/{id} — drops the availability
// record so the next probe starts from a clean slate.
func (h *Handler) service(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/services/")
	if id == "" {
		h.listServices(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.requireKey(func(w http.ResponseWriter, r *http.Request) {
		if !h.opts.Monitors.Delete(id) {
			jsonErr(w, http.StatusNotFound, "service record not found")
			return
		}
		jsonResp(w, http.StatusOK, statusResponse{Status: "deleted"})
	})(w, r)
}

// --- portal assembly --------------------------------------------------------

// BuildPortal assembles the complete dashboard state. Shared by the REST
// endpoint and the WebSocket stream.
func BuildPortal(builds *build.Store, monitors *monitor.Store, services []config.Service, now time.Time) PortalResponse {
	records := builds.List()
	apps := make([]ApplicationSummary, 0, len(records))
	for _, rec := range records {
		apps = append(apps, toSummary(rec))
	}
	return PortalResponse{
		Applications: apps,
		Services:     toServiceResponses(monitors, services, now),
		GeneratedAt:  now.UTC().Format(time.RFC3339),
	}
}

// toServiceResponses merges configured services with their availability
// records. Services never probed show up as DISABLED with no history.
func toServiceResponses(monitors *monitor.Store, services []config.Service, now time.Time) []ServiceResponse {
	out := make([]ServiceResponse, 0, len(services))
	for _, svc := range services {
		resp := ServiceResponse{
			ID:       svc.ID,
			Label:    svc.Label,
			Category: svc.Category,
			URL:      svc.URL,
			Status:   string(monitor.StatusDisabled),
			Icon:     monitor.StatusDisabled.Icon(),
		}
		if m, ok := monitors.Get(svc.ID); ok {
			resp.Status = string(m.Status)
			resp.Icon = m.Status.Icon()
			resp.LastSuccessTimestamp = m.LastSuccessTimestamp
			resp.LastFailureTimestamp = m.LastFailureTimestamp
			resp.LastFailureReason = m.LastFailureReason
			resp.FailureCount = m.FailureCount
			resp.CertificateExpiration = m.CertificateExpiration
			resp.CertificateExpired = m.CertificateExpired(now)
		}
		out = append(out, resp)
	}
	return out
}

func toSummary(rec *build.Record) ApplicationSummary {
	// Run metadata is written under the record lock; read it through the
	// locked snapshot, never off the live record.
	s := rec.Summary()
	return ApplicationSummary{
		ApplicationName:    s.ApplicationName,
		ApplicationVersion: s.ApplicationVersion,
		BuildJob:           s.BuildJob,
		BuildNumber:        s.BuildNumber,
		BuildBranch:        s.BuildBranch,
		BuildTimestamp:     s.BuildTimestamp,
		ActivityCount:      s.ActivityCount,
	}
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
