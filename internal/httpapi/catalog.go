package httpapi

import (
	"net/http"
)

func (h *handler) catalogRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Content      string `json:"content"`
		ResourceType string `json:"resource_type"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.deps.Catalog.Register(r.Context(), payload.Content, payload.ResourceType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     result.Status,
		"message":    result.Message,
		"path":       result.Path,
		"version":    result.Version,
		"catalog_id": result.CatalogID,
		"kind":       result.Kind,
	})
}

func (h *handler) catalogList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		ResourceType string `json:"resource_type"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
	}
	entries, err := h.deps.Catalog.List(r.Context(), payload.ResourceType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *handler) catalogResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		CatalogID int64  `json:"catalog_id"`
		Path      string `json:"path"`
		Version   string `json:"version"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
	}
	entry, err := h.deps.Catalog.Resource(r.Context(), payload.CatalogID, payload.Path, payload.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
