// SPDX-License-Identifier: AGPL-3.0-or-later

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/uran-qa/uran/internal/domain"
	"github.com/uran-qa/uran/internal/runs"
)

type runsHandler struct {
	engine *runs.Engine
}

// NewRunsHandler serves /api/runs and the item/result/status subroutes.
func NewRunsHandler(engine *runs.Engine) http.Handler {
	return &runsHandler{engine: engine}
}

func (h *runsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs"), "/")

	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			h.create(w, r, actor)
		case http.MethodGet:
			h.list(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	}

	parts := strings.Split(rest, "/")
	runID := parts[0]
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, runID)
		case http.MethodPatch:
			h.patchRun(w, r, actor, runID)
		default:
			methodNotAllowed(w)
		}
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		h.transition(w, r, actor, runID)
	case len(parts) == 2 && parts[1] == "items":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.addItem(w, r, actor, runID)
	case len(parts) == 3 && parts[1] == "items":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		if err := h.engine.RemoveItem(r.Context(), actor, runID, parts[2]); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 4 && parts[1] == "items" && parts[3] == "result":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		h.recordResult(w, r, actor, runID, parts[2])
	default:
		notFound(w)
	}
}

func (h *runsHandler) create(w http.ResponseWriter, r *http.Request, actor string) {
	var params runs.CreateParams
	if !decodeJSON(w, r, &params) {
		return
	}
	run, err := h.engine.Create(r.Context(), actor, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, run, http.StatusCreated)
}

func (h *runsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := runs.ListFilter{
		ProjectID: q.Get("project_id"),
		Status:    domain.RunStatus(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, domain.Validationf("limit must be an integer"))
			return
		}
		filter.Limit = limit
	}
	list, err := h.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.Run{}
	}
	writeJSON(w, list, http.StatusOK)
}

func (h *runsHandler) get(w http.ResponseWriter, r *http.Request, runID string) {
	detail, err := h.engine.Get(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if detail.Items == nil {
		detail.Items = []domain.RunItemDetail{}
	}
	writeJSON(w, detail, http.StatusOK)
}

// patchRun updates mutable run fields outside the state machine; currently
// only the fail summary.
func (h *runsHandler) patchRun(w http.ResponseWriter, r *http.Request, actor, runID string) {
	var payload struct {
		FailSummary *string `json:"fail_summary"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.FailSummary == nil {
		writeError(w, domain.Validationf("fail_summary required"))
		return
	}
	run, err := h.engine.SetFailSummary(r.Context(), actor, runID, *payload.FailSummary)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, run, http.StatusOK)
}

func (h *runsHandler) transition(w http.ResponseWriter, r *http.Request, actor, runID string) {
	var payload struct {
		Action string `json:"action"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	var (
		run domain.Run
		err error
	)
	switch payload.Action {
	case "start":
		run, err = h.engine.Start(r.Context(), actor, runID)
	case "finish":
		run, err = h.engine.Finish(r.Context(), actor, runID)
	case "lock":
		run, err = h.engine.Lock(r.Context(), actor, runID)
	default:
		writeError(w, domain.Validationf("action must be start, finish, or lock"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, run, http.StatusOK)
}

func (h *runsHandler) addItem(w http.ResponseWriter, r *http.Request, actor, runID string) {
	var payload struct {
		TestCaseVersionID string `json:"testcase_version_id"`
		Position          int    `json:"position"`
		IsRequired        *bool  `json:"is_required"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	required := true
	if payload.IsRequired != nil {
		required = *payload.IsRequired
	}
	item, err := h.engine.AddItem(r.Context(), actor, runID, payload.TestCaseVersionID, payload.Position, required)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, item, http.StatusCreated)
}

func (h *runsHandler) recordResult(w http.ResponseWriter, r *http.Request, actor, runID, itemID string) {
	var payload struct {
		Status         string `json:"status"`
		FailReasonCode string `json:"fail_reason_code"`
		Comment        string `json:"comment"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	result, err := h.engine.RecordResult(r.Context(), actor, runID, itemID,
		domain.ResultStatus(payload.Status), payload.FailReasonCode, payload.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}
