// Package api serves run status over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/phylomc/internal/config"
	"github.com/gyaneshwarpardhi/phylomc/internal/mcmc"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	runID   string
	tracker *mcmc.Tracker
	loader  *config.Loader
	mux     *http.ServeMux
}

// New creates an HTTP handler and registers all routes. loader may be nil
// when the analysis was not read from a file.
func New(runID string, tracker *mcmc.Tracker, loader *config.Loader) http.Handler {
	h := &Handler{runID: runID, tracker: tracker, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /v1/runs", h.listRuns)
	h.mux.HandleFunc("GET /v1/runs/{id}", h.getRun)
	h.mux.HandleFunc("GET /v1/config", h.getConfig)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// GET /v1/runs: status of every chain in the run.
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": h.runID,
		"chains": h.tracker.Statuses(),
	})
}

// GET /v1/runs/{id}: status of one chain.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	st, err := h.tracker.Status(r.PathValue("id"))
	if errors.Is(err, mcmc.ErrUnknownChain) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /v1/config: the run section currently in effect.
func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "no config file")
		return
	}
	cfg := h.loader.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version": cfg.Version,
		"path":    h.loader.Path(),
		"run":     cfg.Run,
	})
}

// POST /v1/config/reload: re-read the config and push run settings to the chains.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "no config file")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":    true,
		"generations": cfg.Run.Generations,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 until at least one chain is registered, or once any chain failed.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	statuses := h.tracker.Statuses()
	if len(statuses) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "starting"})
		return
	}
	for _, st := range statuses {
		if st.State == mcmc.StateFailed {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "failed",
				"chain":  st.ID,
				"error":  st.Error,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"chains": len(statuses),
	})
}
