// SPDX-License-Identifier: AGPL-3.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/uran-qa/uran/internal/assets"
	"github.com/uran-qa/uran/internal/domain"
)

type assetsHandler struct {
	store *assets.Store
}

// NewAssetsHandler serves /api/assets.
func NewAssetsHandler(store *assets.Store) http.Handler {
	return &assetsHandler{store: store}
}

func (h *assetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/assets"), "/")

	switch {
	case id == "" && r.Method == http.MethodPost:
		var payload struct {
			ProjectID string `json:"project_id"`
			assets.AssetParams
		}
		if !decodeJSON(w, r, &payload) {
			return
		}
		asset, err := h.store.CreateAsset(r.Context(), actor, payload.ProjectID, payload.AssetParams)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, asset, http.StatusCreated)
	case id == "" && r.Method == http.MethodGet:
		projectID := r.URL.Query().Get("project_id")
		if projectID == "" {
			writeError(w, domain.Validationf("project_id query parameter required"))
			return
		}
		list, err := h.store.ListAssets(r.Context(), projectID)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []domain.Asset{}
		}
		writeJSON(w, list, http.StatusOK)
	case id != "" && r.Method == http.MethodPatch:
		var params assets.AssetParams
		if !decodeJSON(w, r, &params) {
			return
		}
		asset, err := h.store.UpdateAsset(r.Context(), actor, id, params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, asset, http.StatusOK)
	case id != "" && r.Method == http.MethodGet:
		asset, err := h.store.GetAsset(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, asset, http.StatusOK)
	default:
		methodNotAllowed(w)
	}
}

type templatesHandler struct {
	store *assets.Store
}

// NewTemplatesHandler serves /api/templates.
func NewTemplatesHandler(store *assets.Store) http.Handler {
	return &templatesHandler{store: store}
}

func (h *templatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/templates"), "/")

	switch {
	case id == "" && r.Method == http.MethodPost:
		var payload struct {
			ProjectID string                      `json:"project_id"`
			Name      string                      `json:"name"`
			Items     []assets.TemplateItemParams `json:"items"`
		}
		if !decodeJSON(w, r, &payload) {
			return
		}
		tpl, err := h.store.CreateTemplate(r.Context(), actor, payload.ProjectID, payload.Name, payload.Items)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, tpl, http.StatusCreated)
	case id == "" && r.Method == http.MethodGet:
		projectID := r.URL.Query().Get("project_id")
		if projectID == "" {
			writeError(w, domain.Validationf("project_id query parameter required"))
			return
		}
		list, err := h.store.ListTemplates(r.Context(), projectID)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []domain.RunTemplate{}
		}
		writeJSON(w, list, http.StatusOK)
	case id != "" && r.Method == http.MethodGet:
		tpl, err := h.store.GetTemplate(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, tpl, http.StatusOK)
	default:
		methodNotAllowed(w)
	}
}
