// SPDX-License-Identifier: AGPL-3.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/uran-qa/uran/internal/catalog"
	"github.com/uran-qa/uran/internal/domain"
)

type suitesHandler struct {
	store *catalog.Store
}

// NewSuitesHandler serves /api/suites.
func NewSuitesHandler(store *catalog.Store) http.Handler {
	return &suitesHandler{store: store}
}

func (h *suitesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ProjectID string `json:"project_id"`
			Name      string `json:"name"`
		}
		if !decodeJSON(w, r, &payload) {
			return
		}
		suite, err := h.store.CreateSuite(r.Context(), actor, payload.ProjectID, payload.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, suite, http.StatusCreated)
	case http.MethodGet:
		projectID := r.URL.Query().Get("project_id")
		if projectID == "" {
			writeError(w, domain.Validationf("project_id query parameter required"))
			return
		}
		suites, err := h.store.ListSuites(r.Context(), projectID)
		if err != nil {
			writeError(w, err)
			return
		}
		if suites == nil {
			suites = []domain.Suite{}
		}
		writeJSON(w, suites, http.StatusOK)
	default:
		methodNotAllowed(w)
	}
}

type testCasesHandler struct {
	store *catalog.Store
}

// NewTestCasesHandler serves /api/testcases and its version/archive subroutes.
func NewTestCasesHandler(store *catalog.Store) http.Handler {
	return &testCasesHandler{store: store}
}

func (h *testCasesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/testcases"), "/")

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
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.get(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "versions":
		switch r.Method {
		case http.MethodPost:
			h.publish(w, r, actor, parts[0])
		case http.MethodGet:
			h.listVersions(w, r, parts[0])
		default:
			methodNotAllowed(w)
		}
	case len(parts) == 2 && parts[1] == "archive":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if err := h.store.ArchiveTestCase(r.Context(), actor, parts[0]); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		notFound(w)
	}
}

func (h *testCasesHandler) create(w http.ResponseWriter, r *http.Request, actor string) {
	var payload struct {
		SuiteID string `json:"suite_id"`
		Key     string `json:"key"`
		Title   string `json:"title"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	tc, err := h.store.CreateTestCase(r.Context(), actor, payload.SuiteID, payload.Key, payload.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, tc, http.StatusCreated)
}

func (h *testCasesHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	tc, err := h.store.GetTestCase(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, tc, http.StatusOK)
}

func (h *testCasesHandler) list(w http.ResponseWriter, r *http.Request) {
	suiteID := r.URL.Query().Get("suite_id")
	if suiteID == "" {
		writeError(w, domain.Validationf("suite_id query parameter required"))
		return
	}
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	cases, err := h.store.ListTestCases(r.Context(), suiteID, includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	if cases == nil {
		cases = []domain.TestCase{}
	}
	writeJSON(w, cases, http.StatusOK)
}

func (h *testCasesHandler) publish(w http.ResponseWriter, r *http.Request, actor, testcaseID string) {
	var content domain.VersionContent
	if !decodeJSON(w, r, &content) {
		return
	}
	version, err := h.store.PublishVersion(r.Context(), actor, testcaseID, content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, version, http.StatusCreated)
}

func (h *testCasesHandler) listVersions(w http.ResponseWriter, r *http.Request, testcaseID string) {
	versions, err := h.store.ListVersions(r.Context(), testcaseID)
	if err != nil {
		writeError(w, err)
		return
	}
	if versions == nil {
		versions = []domain.TestCaseVersion{}
	}
	writeJSON(w, versions, http.StatusOK)
}

type failReasonsHandler struct {
	store *catalog.Store
}

// NewFailReasonsHandler serves the fail-reason vocabulary.
func NewFailReasonsHandler(store *catalog.Store) http.Handler {
	return &failReasonsHandler{store: store}
}

func (h *failReasonsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		actor, ok := principal(w, r)
		if !ok {
			return
		}
		code := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/fail-reasons"), "/")
		if code == "" {
			writeError(w, domain.Validationf("fail reason code required in path"))
			return
		}
		var payload struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			IsActive    *bool  `json:"is_active"`
		}
		if !decodeJSON(w, r, &payload) {
			return
		}
		active := true
		if payload.IsActive != nil {
			active = *payload.IsActive
		}
		reason, err := h.store.SetFailReason(r.Context(), actor, domain.FailReason{
			Code:        code,
			Title:       payload.Title,
			Description: payload.Description,
			IsActive:    active,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, reason, http.StatusOK)
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") != "false"
		reasons, err := h.store.ListFailReasons(r.Context(), activeOnly)
		if err != nil {
			writeError(w, err)
			return
		}
		if reasons == nil {
			reasons = []domain.FailReason{}
		}
		writeJSON(w, reasons, http.StatusOK)
	default:
		methodNotAllowed(w)
	}
}
