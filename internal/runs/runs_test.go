// SPDX-License-Identifier: AGPL-3.0-or-later

package runs

import (
	"context"
	"testing"

	"github.com/uran-qa/uran/internal/access"
	"github.com/uran-qa/uran/internal/assets"
	"github.com/uran-qa/uran/internal/audit"
	"github.com/uran-qa/uran/internal/catalog"
	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/domain"
)

type runEnv struct {
	engine   *Engine
	recorder *audit.Recorder
	access   *access.Service
	catalog  *catalog.Store
	assets   *assets.Store
	owner    domain.User
	editor   domain.User
	lead     domain.User
	project  domain.Project
	versions []domain.TestCaseVersion
}

func newRunEnv(t *testing.T) runEnv {
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
	catalogStore := catalog.NewStore(db, recorder, accessSvc)
	assetStore := assets.NewStore(db, recorder, accessSvc)
	engine := NewEngine(db, recorder, accessSvc)

	owner, err := accessSvc.CreateUser(ctx, "", "owner@test", "Owner", domain.GlobalViewer)
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	editor, err := accessSvc.CreateUser(ctx, "", "editor@test", "Editor", domain.GlobalViewer)
	if err != nil {
		t.Fatalf("create editor: %v", err)
	}
	lead, err := accessSvc.CreateUser(ctx, "", "lead@test", "Lead", domain.GlobalLead)
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	project, err := accessSvc.CreateProject(ctx, owner.ID, "Router QA")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := accessSvc.AddMember(ctx, owner.ID, project.ID, editor.ID, domain.ProjectEditor); err != nil {
		t.Fatalf("add editor: %v", err)
	}
	suite, err := catalogStore.CreateSuite(ctx, owner.ID, project.ID, "Smoke")
	if err != nil {
		t.Fatalf("create suite: %v", err)
	}
	var versions []domain.TestCaseVersion
	for _, key := range []string{"S-1", "S-2", "S-3"} {
		tc, err := catalogStore.CreateTestCase(ctx, owner.ID, suite.ID, key, "Case "+key)
		if err != nil {
			t.Fatalf("create case %s: %v", key, err)
		}
		v, err := catalogStore.PublishVersion(ctx, owner.ID, tc.ID, domain.VersionContent{
			Steps:           "execute " + key,
			ExpectedResults: "passes",
		})
		if err != nil {
			t.Fatalf("publish %s: %v", key, err)
		}
		versions = append(versions, v)
	}
	if _, err := catalogStore.SetFailReason(ctx, lead.ID, domain.FailReason{Code: "defect", Title: "Product defect", IsActive: true}); err != nil {
		t.Fatalf("seed fail reason: %v", err)
	}
	return runEnv{
		engine:   engine,
		recorder: recorder,
		access:   accessSvc,
		catalog:  catalogStore,
		assets:   assetStore,
		owner:    owner,
		editor:   editor,
		lead:     lead,
		project:  project,
		versions: versions,
	}
}

func (env runEnv) mustRun(t *testing.T, actorID string) domain.Run {
	t.Helper()
	run, err := env.engine.Create(context.Background(), actorID, CreateParams{ProjectID: env.project.ID})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	run := env.mustRun(t, env.editor.ID)
	if run.Status != domain.RunStatusDraft || run.Title != "New run" {
		t.Fatalf("unexpected fresh run: %+v", run)
	}
	if run.StartedAt != nil || run.FinishedAt != nil || run.LockedAt != nil {
		t.Fatalf("fresh run must carry no lifecycle timestamps: %+v", run)
	}

	started, err := env.engine.Start(ctx, env.editor.ID, run.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.RunStatusInProgress || started.StartedAt == nil {
		t.Fatalf("unexpected run after start: %+v", started)
	}

	finished, err := env.engine.Finish(ctx, env.editor.ID, run.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if finished.Status != domain.RunStatusDone || finished.FinishedAt == nil {
		t.Fatalf("unexpected run after finish: %+v", finished)
	}

	locked, err := env.engine.Lock(ctx, env.owner.ID, run.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if locked.Status != domain.RunStatusLocked {
		t.Fatalf("expected locked status, got %s", locked.Status)
	}
	// A locked run carries the complete lifecycle trail.
	if locked.StartedAt == nil || locked.FinishedAt == nil || locked.LockedAt == nil || locked.LockedBy != env.owner.ID {
		t.Fatalf("locked run missing lifecycle stamps: %+v", locked)
	}

	// Locking is terminal; a repeated lock is a violation, not a no-op.
	if _, err := env.engine.Lock(ctx, env.owner.ID, run.ID); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("expected invalid transition for repeated lock, got %v", err)
	}
	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("expected invalid transition for start on locked run, got %v", err)
	}
}

func TestTransitionCannotSkipStates(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()
	run := env.mustRun(t, env.editor.ID)

	if _, err := env.engine.Finish(ctx, env.editor.ID, run.ID); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("expected invalid transition for draft finish, got %v", err)
	}
	if _, err := env.engine.Lock(ctx, env.owner.ID, run.ID); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("expected invalid transition for draft lock, got %v", err)
	}
	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("expected invalid transition for repeated start, got %v", err)
	}
}

func TestLockRequiresOwnerOrLead(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	run := env.mustRun(t, env.editor.ID)
	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.engine.Finish(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := env.engine.Lock(ctx, env.editor.ID, run.ID); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden for editor lock, got %v", err)
	}
	// A global lead locks without project membership.
	if _, err := env.engine.Lock(ctx, env.lead.ID, run.ID); err != nil {
		t.Fatalf("lead lock: %v", err)
	}
}

func TestRecordResultLifecycle(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	run := env.mustRun(t, env.editor.ID)
	item, err := env.engine.AddItem(ctx, env.editor.ID, run.ID, env.versions[0].ID, 1, true)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	// Results are only writable while the run is in progress.
	if _, err := env.engine.RecordResult(ctx, env.editor.ID, run.ID, item.ID, domain.ResultOK, "", ""); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("expected invalid transition recording in draft, got %v", err)
	}
	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	failed, err := env.engine.RecordResult(ctx, env.editor.ID, run.ID, item.ID, domain.ResultFail, "defect", "LED stays red")
	if err != nil {
		t.Fatalf("record fail: %v", err)
	}
	if failed.Status != domain.ResultFail || failed.FailReasonCode != "defect" || failed.Comment != "LED stays red" {
		t.Fatalf("unexpected fail result: %+v", failed)
	}

	// The latest write wins and the fail reason is dropped on non-fail.
	passed, err := env.engine.RecordResult(ctx, env.editor.ID, run.ID, item.ID, domain.ResultOK, "defect", "retested fine")
	if err != nil {
		t.Fatalf("record ok: %v", err)
	}
	if passed.ID != failed.ID {
		t.Fatalf("expected the single bound result row, got %s then %s", failed.ID, passed.ID)
	}
	if passed.Status != domain.ResultOK || passed.FailReasonCode != "" {
		t.Fatalf("expected ok without fail reason, got %+v", passed)
	}

	if _, err := env.engine.RecordResult(ctx, env.editor.ID, run.ID, "no-such-item", domain.ResultOK, "", ""); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found for unknown item, got %v", err)
	}
	if _, err := env.engine.RecordResult(ctx, env.editor.ID, run.ID, item.ID, domain.ResultFail, "no-such-reason", ""); domain.KindOf(err) != domain.KindInvalidReference {
		t.Fatalf("expected invalid reference for unknown fail reason, got %v", err)
	}
	if _, err := env.engine.RecordResult(ctx, env.editor.ID, run.ID, item.ID, "maybe", "", ""); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for bogus status, got %v", err)
	}
}

func TestRecordResultAfterFinishAndLock(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	run := env.mustRun(t, env.editor.ID)
	item, err := env.engine.AddItem(ctx, env.editor.ID, run.ID, env.versions[0].ID, 1, true)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.engine.Finish(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := env.engine.RecordResult(ctx, env.editor.ID, run.ID, item.ID, domain.ResultOK, "", ""); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("expected invalid transition recording on done run, got %v", err)
	}

	if _, err := env.engine.Lock(ctx, env.owner.ID, run.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := env.engine.RecordResult(ctx, env.editor.ID, run.ID, item.ID, domain.ResultOK, "", ""); domain.KindOf(err) != domain.KindRunLocked {
		t.Fatalf("expected run locked, got %v", err)
	}
}

func TestItemManagement(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	run := env.mustRun(t, env.editor.ID)
	item, err := env.engine.AddItem(ctx, env.editor.ID, run.ID, env.versions[0].ID, 1, true)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := env.engine.AddItem(ctx, env.editor.ID, run.ID, env.versions[0].ID, 2, true); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected conflict for duplicate version in run, got %v", err)
	}
	if _, err := env.engine.AddItem(ctx, env.editor.ID, run.ID, "no-such-version", 2, true); domain.KindOf(err) != domain.KindInvalidReference {
		t.Fatalf("expected invalid reference for dangling version, got %v", err)
	}

	if err := env.engine.RemoveItem(ctx, env.editor.ID, run.ID, item.ID); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if err := env.engine.RemoveItem(ctx, env.editor.ID, run.ID, item.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found for second removal, got %v", err)
	}

	// Lock the run and verify the item surface is frozen with it.
	if _, err := env.engine.AddItem(ctx, env.editor.ID, run.ID, env.versions[1].ID, 1, true); err != nil {
		t.Fatalf("re-add item: %v", err)
	}
	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.engine.Finish(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := env.engine.Lock(ctx, env.owner.ID, run.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := env.engine.AddItem(ctx, env.editor.ID, run.ID, env.versions[2].ID, 2, true); domain.KindOf(err) != domain.KindRunLocked {
		t.Fatalf("expected run locked for item add, got %v", err)
	}
}

func TestTemplateCopySeedsItemsAndResults(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	tpl, err := env.assets.CreateTemplate(ctx, env.owner.ID, env.project.ID, "Nightly", []assets.TemplateItemParams{
		{TestCaseVersionID: env.versions[1].ID, Position: 2, IsRequired: false},
		{TestCaseVersionID: env.versions[0].ID, Position: 1, IsRequired: true},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	run, err := env.engine.Create(ctx, env.editor.ID, CreateParams{
		ProjectID:  env.project.ID,
		TemplateID: tpl.ID,
		Title:      "Nightly on bench-7",
	})
	if err != nil {
		t.Fatalf("create run from template: %v", err)
	}

	detail, err := env.engine.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if len(detail.Items) != 2 {
		t.Fatalf("expected 2 copied items, got %d", len(detail.Items))
	}
	if detail.Items[0].Item.TestCaseVersionID != env.versions[0].ID || detail.Items[1].Item.TestCaseVersionID != env.versions[1].ID {
		t.Fatalf("expected items ordered by position, got %+v", detail.Items)
	}
	for _, d := range detail.Items {
		if d.Result.Status != domain.ResultNA {
			t.Fatalf("expected seeded na result, got %+v", d.Result)
		}
		if d.Version == nil || d.Version.Content.Steps == "" {
			t.Fatalf("expected bound version content, got %+v", d.Version)
		}
	}
	if !detail.Items[0].Item.IsRequired || detail.Items[1].Item.IsRequired {
		t.Fatalf("unexpected required flags: %+v", detail.Items)
	}
}

func TestCorrectionRunReference(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	_, err := env.engine.Create(ctx, env.editor.ID, CreateParams{
		ProjectID:         env.project.ID,
		CorrectionOfRunID: "no-such-run",
	})
	if domain.KindOf(err) != domain.KindInvalidReference {
		t.Fatalf("expected invalid reference for dangling correction, got %v", err)
	}

	original := env.mustRun(t, env.editor.ID)
	correction, err := env.engine.Create(ctx, env.editor.ID, CreateParams{
		ProjectID:         env.project.ID,
		CorrectionOfRunID: original.ID,
	})
	if err != nil {
		t.Fatalf("create correction run: %v", err)
	}
	if correction.CorrectionOfRunID != original.ID {
		t.Fatalf("expected correction reference %s, got %s", original.ID, correction.CorrectionOfRunID)
	}
}

func TestListFiltersAndClampsLimit(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	first := env.mustRun(t, env.editor.ID)
	env.mustRun(t, env.editor.ID)
	env.mustRun(t, env.editor.ID)
	if _, err := env.engine.Start(ctx, env.editor.ID, first.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	all, err := env.engine.List(ctx, ListFilter{ProjectID: env.project.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}

	inProgress, err := env.engine.List(ctx, ListFilter{ProjectID: env.project.ID, Status: domain.RunStatusInProgress})
	if err != nil {
		t.Fatalf("list in_progress: %v", err)
	}
	if len(inProgress) != 1 || inProgress[0].ID != first.ID {
		t.Fatalf("unexpected in_progress list: %+v", inProgress)
	}

	limited, err := env.engine.List(ctx, ListFilter{ProjectID: env.project.ID, Limit: 2})
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit 2 respected, got %d", len(limited))
	}

	huge, err := env.engine.List(ctx, ListFilter{ProjectID: env.project.ID, Limit: 100000})
	if err != nil {
		t.Fatalf("huge limit list: %v", err)
	}
	if len(huge) != 3 {
		t.Fatalf("expected clamped limit to return all 3 runs, got %d", len(huge))
	}

	if _, err := env.engine.List(ctx, ListFilter{Status: "sideways"}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for bogus status, got %v", err)
	}
}

func TestFailSummaryEditableUntilLock(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	run := env.mustRun(t, env.editor.ID)
	updated, err := env.engine.SetFailSummary(ctx, env.editor.ID, run.ID, "flaky power rail")
	if err != nil {
		t.Fatalf("set fail summary: %v", err)
	}
	if updated.FailSummary != "flaky power rail" {
		t.Fatalf("unexpected summary: %q", updated.FailSummary)
	}

	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.engine.Finish(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := env.engine.SetFailSummary(ctx, env.editor.ID, run.ID, "confirmed defect"); err != nil {
		t.Fatalf("set summary on done run: %v", err)
	}
	if _, err := env.engine.Lock(ctx, env.owner.ID, run.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := env.engine.SetFailSummary(ctx, env.editor.ID, run.ID, "too late"); domain.KindOf(err) != domain.KindRunLocked {
		t.Fatalf("expected run locked, got %v", err)
	}
}

func TestLifecycleLeavesAuditTrail(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	run := env.mustRun(t, env.editor.ID)
	if _, err := env.engine.Start(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.engine.Finish(ctx, env.editor.ID, run.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := env.engine.Lock(ctx, env.owner.ID, run.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}

	entries, err := env.recorder.ByRun(ctx, run.ID, 0, 0)
	if err != nil {
		t.Fatalf("audit by run: %v", err)
	}
	want := []string{audit.ActionCreate, audit.ActionStart, audit.ActionFinish, audit.ActionLock}
	if len(entries) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(entries))
	}
	for i, entry := range entries {
		if entry.Action != want[i] {
			t.Fatalf("entry %d: expected action %s, got %s", i, want[i], entry.Action)
		}
	}
	if entries[3].ActorUserID != env.owner.ID {
		t.Fatalf("expected lock recorded for owner, got %s", entries[3].ActorUserID)
	}
}

func TestCreateRequiresExecuteRights(t *testing.T) {
	t.Parallel()

	env := newRunEnv(t)
	ctx := context.Background()

	outsider, err := env.access.CreateUser(ctx, "", "outsider@test", "Outsider", domain.GlobalViewer)
	if err != nil {
		t.Fatalf("create outsider: %v", err)
	}
	if _, err := env.engine.Create(ctx, outsider.ID, CreateParams{ProjectID: env.project.ID}); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
}
