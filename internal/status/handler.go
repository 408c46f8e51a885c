package status

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/alertsync/alertsync/internal/pipeline"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads run history from the Store and returns JSON responses.
type Handler struct {
	store *Store
	mux   *http.ServeMux
}

// NewHandler creates a Handler wired to st and registers all routes.
func NewHandler(st *Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/runs", h.listRuns)
	h.mux.HandleFunc("/api/v1/runs/", h.getRun) // subtree, extracts {id}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns GET /api/v1/health: last status and failure streak.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	runs := h.store.List()
	resp := HealthResponse{State: "unknown", RunCount: len(runs)}
	if len(runs) == 0 {
		jsonResp(w, http.StatusOK, resp)
		return
	}

	last := toRunResponse(runs[0])
	resp.LastRun = &last
	resp.State = last.Status

	streak := true
	for _, run := range runs {
		if run.Status == pipeline.StatusSuccess {
			if resp.LastSuccessAt == "" {
				resp.LastSuccessAt = run.FinishedAt.UTC().Format(time.RFC3339)
			}
			streak = false
		}
		if streak && run.Status == pipeline.StatusFailed {
			resp.ConsecutiveFailures++
		} else {
			streak = false
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// listRuns returns GET /api/v1/runs: the held history, newest first.
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	runs := h.store.List()
	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	jsonResp(w, http.StatusOK, out)
}

// getRun returns GET /api/v1/runs/{id}.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" {
		h.listRuns(w, r)
		return
	}

	run, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "run not found")
		return
	}
	jsonResp(w, http.StatusOK, toRunResponse(run))
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
