package httpapi

import (
	"net/http"

	"github.com/noetl/noetl/internal/apperrors"
)

func (h *handler) workerRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		WorkerID string `json:"worker_id"`
		PoolName string `json:"pool_name"`
		Hostname string `json:"hostname"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.WorkerID == "" {
		writeError(w, apperrors.RequiredError("worker_id"))
		return
	}
	if err := h.deps.Registry.Register(r.Context(), payload.PoolName, payload.WorkerID, payload.Hostname); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (h *handler) workerDeregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		WorkerID string `json:"worker_id"`
		PoolName string `json:"pool_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Registry.Deregister(r.Context(), payload.PoolName, payload.WorkerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deregistered"})
}

func (h *handler) workerHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		WorkerID string `json:"worker_id"`
		PoolName string `json:"pool_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Registry.Heartbeat(r.Context(), payload.PoolName, payload.WorkerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) workerPools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pools, err := h.deps.Registry.Pools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

// runtimes reports the tool kinds this deployment's workers can
// execute (§6 "GET /api/runtimes"), backed by the tool registry every
// worker process builds at startup.
func (h *handler) runtimes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var kinds []string
	if h.deps.Tools != nil {
		kinds = h.deps.Tools.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"runtimes": kinds, "bus_subject": h.deps.BusSubject})
}
