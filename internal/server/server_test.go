// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/uran-qa/uran/internal/access"
	"github.com/uran-qa/uran/internal/audit"
	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/domain"
)

type testAPI struct {
	handler http.Handler
	access  *access.Service
	admin   domain.User
}

func newTestAPI(t *testing.T, dev bool) testAPI {
	t.Helper()
	ctx := context.Background()
	db, err := coredb.Open(ctx, coredb.Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	recorder := audit.NewRecorder(db)
	accessSvc := access.NewService(db, recorder)
	admin, err := accessSvc.CreateUser(ctx, "", "admin@test", "Admin", domain.GlobalAdmin)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	cfg := Config{
		Bind:              "127.0.0.1:0",
		Dev:               dev,
		Log:               "text",
		StdOut:            io.Discard,
		StdErr:            io.Discard,
		MetricsEnabled:    false,
		MetricsConfigured: true,
		CoreDB:            db,
	}
	if dev {
		cfg.DevUserID = admin.ID
	}
	return testAPI{handler: buildHandler(cfg), access: accessSvc, admin: admin}
}

func (api testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthzOpenWithoutAuth(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, false)
	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, false)

	rec := api.do(t, http.MethodGet, "/api/runs", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate challenge")
	}

	rec = api.do(t, http.MethodGet, "/api/runs", "not-a-uran-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", rec.Code)
	}

	// Well-formed token for a principal that does not exist.
	rec = api.do(t, http.MethodGet, "/api/runs", "uran.00000000-0000-0000-0000-000000000000", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown principal, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/api/runs", "uran."+api.admin.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuditReadGatedAtMiddleware(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, false)
	viewer, err := api.access.CreateUser(context.Background(), "", "viewer@test", "Viewer", domain.GlobalViewer)
	if err != nil {
		t.Fatalf("create viewer: %v", err)
	}

	rec := api.do(t, http.MethodGet, "/api/audit?run_id=some-run", "uran."+viewer.ID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for global viewer, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/audit?run_id=some-run", "uran."+api.admin.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuditEndpointRequiresFilter(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, true)
	rec := api.do(t, http.MethodGet, "/api/audit", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unfiltered audit read, got %d", rec.Code)
	}
}

func TestProblemShapeForUnknownRun(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, true)
	rec := api.do(t, http.MethodGet, "/api/runs/no-such-run", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected problem content type, got %q", ct)
	}
	var problem struct {
		Status int    `json:"status"`
		Kind   string `json:"kind"`
		Entity string `json:"entity"`
	}
	decodeBody(t, rec, &problem)
	if problem.Status != http.StatusNotFound || problem.Kind != "not_found" || problem.Entity != "run" {
		t.Fatalf("unexpected problem body: %+v", problem)
	}
}

func TestRunWorkflowOverHTTP(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, true)

	var project struct {
		ID string `json:"id"`
	}
	rec := api.do(t, http.MethodPost, "/api/projects", "", map[string]string{"name": "HTTP QA"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &project)

	var suite struct {
		ID string `json:"id"`
	}
	rec = api.do(t, http.MethodPost, "/api/suites", "", map[string]string{"project_id": project.ID, "name": "Smoke"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create suite: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &suite)

	var testCase struct {
		ID string `json:"id"`
	}
	rec = api.do(t, http.MethodPost, "/api/testcases", "", map[string]string{"suite_id": suite.ID, "key": "HTTP-1", "title": "Round trip"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create test case: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &testCase)

	var version struct {
		ID            string `json:"id"`
		VersionNumber int    `json:"version_number"`
	}
	rec = api.do(t, http.MethodPost, "/api/testcases/"+testCase.ID+"/versions", "", map[string]string{
		"steps":            "send request",
		"expected_results": "200 back",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish version: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &version)
	if version.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %d", version.VersionNumber)
	}

	var run struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Title  string `json:"title"`
	}
	rec = api.do(t, http.MethodPost, "/api/runs", "", map[string]string{"project_id": project.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create run: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &run)
	if run.Status != "draft" || run.Title != "New run" {
		t.Fatalf("unexpected fresh run: %+v", run)
	}

	var item struct {
		ID string `json:"id"`
	}
	rec = api.do(t, http.MethodPost, "/api/runs/"+run.ID+"/items", "", map[string]any{
		"testcase_version_id": version.ID,
		"position":            1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &item)

	rec = api.do(t, http.MethodPatch, "/api/runs/"+run.ID+"/status", "", map[string]string{"action": "start"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start run: %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPatch, "/api/runs/"+run.ID+"/items/"+item.ID+"/result", "", map[string]string{
		"status":  "ok",
		"comment": "round trip fine",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("record result: %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPatch, "/api/runs/"+run.ID+"/status", "", map[string]string{"action": "finish"})
	if rec.Code != http.StatusOK {
		t.Fatalf("finish run: %d: %s", rec.Code, rec.Body.String())
	}
	rec = api.do(t, http.MethodPatch, "/api/runs/"+run.ID+"/status", "", map[string]string{"action": "lock"})
	if rec.Code != http.StatusOK {
		t.Fatalf("lock run: %d: %s", rec.Code, rec.Body.String())
	}

	// The locked run refuses further result writes with a typed problem.
	rec = api.do(t, http.MethodPatch, "/api/runs/"+run.ID+"/items/"+item.ID+"/result", "", map[string]string{"status": "fail"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on locked run, got %d: %s", rec.Code, rec.Body.String())
	}
	var problem struct {
		Kind string `json:"kind"`
	}
	decodeBody(t, rec, &problem)
	if problem.Kind != "run_locked" {
		t.Fatalf("expected run_locked kind, got %q", problem.Kind)
	}

	var detail struct {
		Run struct {
			Status string `json:"status"`
		} `json:"run"`
		Items []struct {
			Result struct {
				Status string `json:"status"`
			} `json:"result"`
		} `json:"items"`
	}
	rec = api.do(t, http.MethodGet, "/api/runs/"+run.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get run: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &detail)
	if detail.Run.Status != "locked" || len(detail.Items) != 1 || detail.Items[0].Result.Status != "ok" {
		t.Fatalf("unexpected run detail: %+v", detail)
	}

	var entries []struct {
		Action string `json:"action"`
	}
	rec = api.do(t, http.MethodGet, "/api/audit?run_id="+run.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit read: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &entries)
	if len(entries) < 5 {
		t.Fatalf("expected full audit trail, got %d entries", len(entries))
	}
}

func TestTransitionActionValidated(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, true)

	var project struct {
		ID string `json:"id"`
	}
	rec := api.do(t, http.MethodPost, "/api/projects", "", map[string]string{"name": "Guard"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d", rec.Code)
	}
	decodeBody(t, rec, &project)

	var run struct {
		ID string `json:"id"`
	}
	rec = api.do(t, http.MethodPost, "/api/runs", "", map[string]string{"project_id": project.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create run: %d", rec.Code)
	}
	decodeBody(t, rec, &run)

	rec = api.do(t, http.MethodPatch, "/api/runs/"+run.ID+"/status", "", map[string]string{"action": "explode"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}

	// Skipping straight to lock is a state machine violation.
	rec = api.do(t, http.MethodPatch, "/api/runs/"+run.ID+"/status", "", map[string]string{"action": "lock"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for draft lock, got %d", rec.Code)
	}
}
