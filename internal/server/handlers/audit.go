// SPDX-License-Identifier: AGPL-3.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/uran-qa/uran/internal/audit"
	"github.com/uran-qa/uran/internal/domain"
)

type auditHandler struct {
	recorder *audit.Recorder
}

// NewAuditHandler serves GET /api/audit.
func NewAuditHandler(recorder *audit.Recorder) http.Handler {
	return &auditHandler{recorder: recorder}
}

func (h *auditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	query := audit.Query{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		ProjectID:  q.Get("project_id"),
		RunID:      q.Get("run_id"),
	}
	if query.EntityType == "" && query.EntityID == "" && query.ProjectID == "" && query.RunID == "" {
		writeError(w, domain.Validationf("at least one of entity_type/entity_id, project_id, run_id required"))
		return
	}
	if raw := q.Get("after_seq"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, domain.Validationf("after_seq must be an integer"))
			return
		}
		query.AfterSeq = seq
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, domain.Validationf("limit must be an integer"))
			return
		}
		query.Limit = limit
	}
	entries, err := h.recorder.List(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, entries, http.StatusOK)
}
