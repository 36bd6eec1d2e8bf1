package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/noetl/noetl/internal/apperrors"
	"github.com/noetl/noetl/internal/event"
	"github.com/noetl/noetl/internal/execution"
)

func (h *handler) runPlaybook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Path      string         `json:"path"`
		Args      map[string]any `json:"args"`
		CatalogID int64          `json:"catalog_id"`
		Version   string         `json:"version"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.CatalogID == 0 && payload.Path == "" {
		writeError(w, apperrors.RequiredError("path"))
		return
	}

	entry, err := h.deps.Catalog.Resource(r.Context(), payload.CatalogID, payload.Path, payload.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry.Layout == nil {
		writeError(w, apperrors.NewValidationError("path", "catalog entry does not parse as a playbook"))
		return
	}

	executionID, err := h.deps.Executions.Run(r.Context(), entry.ID, entry.Path, entry.Version, payload.Args, entry.Layout)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": executionID,
		"name":         entry.Layout.Metadata.Name,
		"status":       "RUNNING",
		"path":         entry.Path,
	})
}

func (h *handler) executionsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	filter := execution.Filter{
		CatalogID: parseQueryInt64(q.Get("catalog_id")),
		Path:      q.Get("path"),
		Status:    q.Get("status"),
		Limit:     parseQueryInt(q.Get("limit"), 100),
		Offset:    parseQueryInt(q.Get("offset"), 0),
	}
	rows, err := h.deps.Executions.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": rows})
}

// executionResource dispatches /api/executions/{id}[/status|/cancel|
// /cancellation-check|/finalize|/events].
func (h *handler) executionResource(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/executions/"), "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	executionID := parseQueryInt64(parts[0])
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		h.executionGet(w, r, executionID)
	case "status":
		h.executionStatus(w, r, executionID)
	case "cancel":
		h.executionCancel(w, r, executionID)
	case "cancellation-check":
		h.executionCancellationCheck(w, r, executionID)
	case "finalize":
		h.executionFinalize(w, r, executionID)
	case "events":
		h.executionEmitEvent(w, r, executionID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) executionGet(w http.ResponseWriter, r *http.Request, executionID int64) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	row, err := h.deps.Executions.Get(r.Context(), executionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if row == nil {
		writeError(w, apperrors.NewNotFoundError("execution", trimID(executionID)))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *handler) executionStatus(w http.ResponseWriter, r *http.Request, executionID int64) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	proj, err := h.deps.Executions.Status(r.Context(), executionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (h *handler) executionCancel(w http.ResponseWriter, r *http.Request, executionID int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.deps.Executions.Cancel(r.Context(), executionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (h *handler) executionCancellationCheck(w http.ResponseWriter, r *http.Request, executionID int64) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cancelled, err := h.deps.Executions.CancellationCheck(r.Context(), executionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (h *handler) executionFinalize(w http.ResponseWriter, r *http.Request, executionID int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	proj, err := h.deps.Executions.Finalize(r.Context(), executionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

// executionEmitEvent is a wire-level extension spec.md does not name
// literally, but §4.8/§4.10 require a channel for workers to report
// command.started/call.done/call.error/command.completed/
// command.failed/step.exit/var.set back to the orchestrator. It
// appends the event, then re-drives Advance so any newly-ready
// successor steps are dispatched in the same request.
func (h *handler) executionEmitEvent(w http.ResponseWriter, r *http.Request, executionID int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		EventType string         `json:"event_type"`
		Payload   map[string]any `json:"payload"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.EventType == "" {
		writeError(w, apperrors.RequiredError("event_type"))
		return
	}

	eventID, err := h.deps.Events.Append(r.Context(), executionID, event.Type(payload.EventType), payload.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.deps.Orchestrator != nil {
		pb, err := h.playbookForExecution(r.Context(), executionID)
		if err == nil && pb != nil {
			_ = h.deps.Orchestrator.Advance(r.Context(), executionID, pb)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int64{"event_id": eventID})
}

func trimID(id int64) string {
	return strconv.FormatInt(id, 10)
}
