// SPDX-License-Identifier: AGPL-3.0-or-later

package handlers

import (
	"net/http"

	"github.com/uran-qa/uran/internal/attachments"
	"github.com/uran-qa/uran/internal/domain"
)

type attachmentsHandler struct {
	binder *attachments.Binder
}

// NewAttachmentsHandler serves /api/attachments.
func NewAttachmentsHandler(binder *attachments.Binder) http.Handler {
	return &attachmentsHandler{binder: binder}
}

func (h *attachmentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			RunID       string `json:"run_id"`
			RunResultID string `json:"run_result_id"`
			attachments.Meta
		}
		if !decodeJSON(w, r, &payload) {
			return
		}
		att, err := h.binder.Attach(r.Context(), actor, payload.RunID, payload.RunResultID, payload.Meta)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, att, http.StatusCreated)
	case http.MethodGet:
		q := r.URL.Query()
		runID := q.Get("run_id")
		resultID := q.Get("result_id")
		var (
			list []domain.Attachment
			err  error
		)
		switch {
		case runID != "" && resultID != "":
			writeError(w, domain.Validationf("run_id and result_id are mutually exclusive"))
			return
		case runID != "":
			list, err = h.binder.ListByRun(r.Context(), runID)
		case resultID != "":
			list, err = h.binder.ListByResult(r.Context(), resultID)
		default:
			writeError(w, domain.Validationf("run_id or result_id query parameter required"))
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []domain.Attachment{}
		}
		writeJSON(w, list, http.StatusOK)
	default:
		methodNotAllowed(w)
	}
}
