package httpapi

import (
	"net/http"
	"strings"
)

func (h *handler) credentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Name        string         `json:"name"`
			Type        string         `json:"type"`
			Data        map[string]any `json:"data"`
			Meta        map[string]any `json:"meta"`
			Tags        []string       `json:"tags"`
			Description string         `json:"description"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
		cred, err := h.deps.Credentials.Upsert(r.Context(), payload.Name, payload.Type, payload.Data, payload.Meta, payload.Tags, payload.Description)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cred.Redacted())

	case http.MethodGet:
		q := r.URL.Query()
		creds, err := h.deps.Credentials.List(r.Context(), q.Get("type"), q.Get("q"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, creds)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) credentialResource(w http.ResponseWriter, r *http.Request) {
	idOrName := strings.TrimPrefix(r.URL.Path, "/api/credentials/")
	if idOrName == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		includeData := parseQueryBool(r.URL.Query().Get("include_data"))
		cred, err := h.deps.Credentials.Get(r.Context(), idOrName, includeData)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cred)

	case http.MethodDelete:
		if err := h.deps.Credentials.Delete(r.Context(), idOrName); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
