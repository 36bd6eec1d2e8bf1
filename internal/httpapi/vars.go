package httpapi

import (
	"net/http"
	"strings"

	"github.com/noetl/noetl/internal/apperrors"
	"github.com/noetl/noetl/internal/event"
)

// vars handles /api/vars/{execution_id}[/{var_name}]. The set of
// variables is folded from var.set events the same way the
// orchestrator's own projection is; DELETE is expressed as a var.set
// to nil since the event log has no separate "unset" event type.
func (h *handler) vars(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/vars/"), "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	executionID := parseQueryInt64(parts[0])
	varName := ""
	if len(parts) == 2 {
		varName = parts[1]
	}

	switch r.Method {
	case http.MethodGet:
		proj, err := h.deps.Executions.Status(r.Context(), executionID)
		if err != nil {
			writeError(w, err)
			return
		}
		if varName == "" {
			writeJSON(w, http.StatusOK, map[string]any{"variables": proj.Variables})
			return
		}
		value, ok := proj.Variables[varName]
		if !ok {
			writeError(w, apperrors.NewNotFoundError("variable", varName))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": varName, "value": value})

	case http.MethodPost:
		var payload struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
		name := payload.Name
		if name == "" {
			name = varName
		}
		if name == "" {
			writeError(w, apperrors.RequiredError("name"))
			return
		}
		if _, err := h.deps.Events.Append(r.Context(), executionID, event.TypeVarSet, event.VarSetPayload{
			Name: name, Value: payload.Value,
		}); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case http.MethodDelete:
		if varName == "" {
			writeError(w, apperrors.RequiredError("var_name"))
			return
		}
		if _, err := h.deps.Events.Append(r.Context(), executionID, event.TypeVarSet, event.VarSetPayload{
			Name: varName, Value: nil,
		}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
