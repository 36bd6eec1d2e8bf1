package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/noetl/noetl/internal/apperrors"
	"github.com/noetl/noetl/internal/keychain"
)

func (h *handler) keychainByCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	catalogID := parseQueryInt64(strings.TrimPrefix(r.URL.Path, "/api/keychain/catalog/"))
	entries, err := h.deps.Keychain.ListByCatalog(r.Context(), catalogID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// keychainResource handles /api/keychain/{catalog_id}/{name}.
func (h *handler) keychainResource(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/keychain/"), "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	catalogID := parseQueryInt64(parts[0])
	name := parts[1]

	q := r.URL.Query()
	scope := keychain.Scope(q.Get("scope_type"))
	if scope == "" {
		scope = keychain.ScopeLocal
	}
	executionID := parseQueryInt64(q.Get("execution_id"))

	switch r.Method {
	case http.MethodGet:
		result, err := h.deps.Keychain.Get(r.Context(), name, catalogID, scope, executionID)
		if err != nil {
			writeError(w, err)
			return
		}
		if result.Status == keychain.StatusNotFound {
			writeError(w, apperrors.NewNotFoundError("keychain entry", name))
			return
		}
		writeJSON(w, http.StatusOK, result)

	case http.MethodPost:
		var payload struct {
			Data        map[string]any `json:"data"`
			ExpiresInS  int            `json:"expires_in_seconds"`
			AutoRenew   bool           `json:"auto_renew"`
			RenewConfig map[string]any `json:"renew_config"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
		opts := keychain.SetOptions{
			AutoRenew:   payload.AutoRenew,
			RenewConfig: payload.RenewConfig,
		}
		if payload.ExpiresInS > 0 {
			opts.ExpiresIn = time.Duration(payload.ExpiresInS) * time.Second
		}
		if err := h.deps.Keychain.Set(r.Context(), name, catalogID, scope, executionID, payload.Data, opts); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case http.MethodDelete:
		if err := h.deps.Keychain.Delete(r.Context(), name, catalogID, scope, executionID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
