// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runs implements the run lifecycle. A run moves strictly forward
// through draft -> in_progress -> done -> locked; no skipping and no
// same-state repeats. Once locked, a run and everything under it is
// immutable.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uran-qa/uran/internal/access"
	"github.com/uran-qa/uran/internal/audit"
	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/domain"
	"github.com/uran-qa/uran/internal/metrics"
)

const defaultRunTitle = "New run"

// Engine owns run state and enforces the lifecycle rules.
type Engine struct {
	db       *coredb.DB
	recorder *audit.Recorder
	access   *access.Service
	nowFn    func() time.Time
}

// NewEngine returns a run Engine.
func NewEngine(db *coredb.DB, recorder *audit.Recorder, accessSvc *access.Service) *Engine {
	return &Engine{
		db:       db,
		recorder: recorder,
		access:   accessSvc,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// CreateParams describes a new run. Asset, template, lead, and correction
// reference are optional.
type CreateParams struct {
	ProjectID         string `json:"project_id"`
	AssetID           string `json:"asset_id,omitempty"`
	TemplateID        string `json:"template_id,omitempty"`
	Title             string `json:"title,omitempty"`
	LeadUserID        string `json:"lead_user_id,omitempty"`
	CorrectionOfRunID string `json:"correction_of_run_id,omitempty"`
}

// Create starts a new draft run. When a template is given, its items are
// copied point-in-time into run items, each with an `na` result, in the same
// transaction; later template edits never touch existing runs.
func (e *Engine) Create(ctx context.Context, actorID string, params CreateParams) (domain.Run, error) {
	var run domain.Run
	if params.ProjectID == "" {
		return run, domain.Validationf("project id required")
	}
	if _, err := e.access.Require(ctx, actorID, params.ProjectID, access.ActionExecuteRuns); err != nil {
		return run, err
	}
	title := params.Title
	if title == "" {
		title = defaultRunTitle
	}
	now := e.nowFn()
	run = domain.Run{
		ID:                uuid.NewString(),
		ProjectID:         params.ProjectID,
		AssetID:           params.AssetID,
		TemplateID:        params.TemplateID,
		Title:             title,
		Status:            domain.RunStatusDraft,
		ExecutedBy:        actorID,
		LeadUserID:        params.LeadUserID,
		CorrectionOfRunID: params.CorrectionOfRunID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if params.CorrectionOfRunID != "" {
			var one int
			err := tx.QueryRowContext(ctx,
				`SELECT 1 FROM runs WHERE id = ?`, params.CorrectionOfRunID,
			).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.InvalidReference("run",
					fmt.Sprintf("corrected run %s does not exist", params.CorrectionOfRunID))
			}
			if err != nil {
				return fmt.Errorf("lookup corrected run: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO runs (id, project_id, asset_id, template_id, title, status, executed_by, lead_user_id, correction_of_run_id, fail_summary, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)
`, run.ID, run.ProjectID, nullable(run.AssetID), nullable(run.TemplateID), run.Title,
			string(run.Status), actorID, nullable(run.LeadUserID), nullable(run.CorrectionOfRunID),
			now.UnixMilli(), now.UnixMilli())
		if coredb.IsForeignKeyViolation(err) {
			return domain.InvalidReference("run", "referenced project, asset, template, or lead does not exist")
		}
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		if params.TemplateID != "" {
			if err := copyTemplateItems(ctx, tx, params.TemplateID, run.ID, actorID, now); err != nil {
				return err
			}
		}

		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionCreate,
			EntityType:  "run",
			EntityID:    run.ID,
			ProjectID:   run.ProjectID,
			RunID:       run.ID,
			AfterState:  audit.Snapshot(run),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Run{}, err
	}
	metrics.RecordMutation("run", "create")
	return run, nil
}

func copyTemplateItems(ctx context.Context, tx *sql.Tx, templateID, runID, actorID string, now time.Time) error {
	rows, err := tx.QueryContext(ctx, `
SELECT testcase_version_id, position, is_required
FROM run_template_items
WHERE template_id = ?
ORDER BY position, id
`, templateID)
	if err != nil {
		return fmt.Errorf("read template items: %w", err)
	}
	type tplItem struct {
		versionID string
		position  int
		required  int
	}
	var items []tplItem
	for rows.Next() {
		var it tplItem
		if err := rows.Scan(&it.versionID, &it.position, &it.required); err != nil {
			rows.Close()
			return fmt.Errorf("scan template item: %w", err)
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("template item rows: %w", err)
	}

	for _, it := range items {
		itemID := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
INSERT INTO run_items (id, run_id, testcase_version_id, position, is_required, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, itemID, runID, it.versionID, it.position, it.required, now.UnixMilli()); err != nil {
			return fmt.Errorf("copy template item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO run_results (id, run_item_id, status, comment, updated_by, updated_at)
VALUES (?, ?, 'na', '', ?, ?)
`, uuid.NewString(), itemID, actorID, now.UnixMilli()); err != nil {
			return fmt.Errorf("seed item result: %w", err)
		}
	}
	return nil
}

// Start moves a draft run to in_progress and stamps started_at.
func (e *Engine) Start(ctx context.Context, actorID, runID string) (domain.Run, error) {
	return e.transition(ctx, actorID, runID, domain.RunStatusInProgress, access.ActionExecuteRuns, audit.ActionStart)
}

// Finish moves an in_progress run to done and stamps finished_at. Items may
// still carry `na` results; completeness is a reporting concern, not a
// transition gate.
func (e *Engine) Finish(ctx context.Context, actorID, runID string) (domain.Run, error) {
	return e.transition(ctx, actorID, runID, domain.RunStatusDone, access.ActionExecuteRuns, audit.ActionFinish)
}

// Lock freezes a done run and stamps locked_at and locked_by. Locking is
// terminal; repeated locks are invalid transitions, not no-ops.
func (e *Engine) Lock(ctx context.Context, actorID, runID string) (domain.Run, error) {
	return e.transition(ctx, actorID, runID, domain.RunStatusLocked, access.ActionLockRuns, audit.ActionLock)
}

var forward = map[domain.RunStatus]domain.RunStatus{
	domain.RunStatusDraft:      domain.RunStatusInProgress,
	domain.RunStatusInProgress: domain.RunStatusDone,
	domain.RunStatusDone:       domain.RunStatusLocked,
}

func (e *Engine) transition(ctx context.Context, actorID, runID string, target domain.RunStatus, action access.Action, auditAction string) (domain.Run, error) {
	before, err := e.loadRun(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if _, err := e.access.Require(ctx, actorID, before.ProjectID, action); err != nil {
		return domain.Run{}, err
	}
	if forward[before.Status] != target {
		return domain.Run{}, domain.InvalidTransitionf("cannot move run from %s to %s", before.Status, target)
	}
	now := e.nowFn()
	run := before
	run.Status = target
	run.UpdatedAt = now
	set := "status = ?, updated_at = ?"
	args := []any{string(target), now.UnixMilli()}
	switch target {
	case domain.RunStatusInProgress:
		run.StartedAt = &now
		set += ", started_at = ?"
		args = append(args, now.UnixMilli())
	case domain.RunStatusDone:
		run.FinishedAt = &now
		set += ", finished_at = ?"
		args = append(args, now.UnixMilli())
	case domain.RunStatusLocked:
		run.LockedAt = &now
		run.LockedBy = actorID
		set += ", locked_at = ?, locked_by = ?"
		args = append(args, now.UnixMilli(), actorID)
	}
	args = append(args, runID, string(before.Status))

	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET `+set+` WHERE id = ? AND status = ?`, args...)
		if err != nil {
			return fmt.Errorf("transition run: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("transition rows affected: %w", err)
		}
		if affected == 0 {
			// run moved under us between the read and the update
			return domain.InvalidTransitionf("run %s changed state concurrently", runID)
		}
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      auditAction,
			EntityType:  "run",
			EntityID:    runID,
			ProjectID:   run.ProjectID,
			RunID:       runID,
			BeforeState: audit.Snapshot(before),
			AfterState:  audit.Snapshot(run),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Run{}, err
	}
	metrics.RecordRunTransition(string(target))
	metrics.RecordMutation("run", auditAction)
	return run, nil
}

// RecordResult records or overwrites the outcome of a run item. Only
// in_progress runs accept results; the latest write wins. A fail reason is
// kept only when the status is fail.
func (e *Engine) RecordResult(ctx context.Context, actorID, runID, itemID string, status domain.ResultStatus, failReasonCode, comment string) (domain.RunResult, error) {
	var result domain.RunResult
	if !status.Valid() {
		return result, domain.Validationf("unknown result status %q", status)
	}
	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return result, err
	}
	if _, err := e.access.Require(ctx, actorID, run.ProjectID, access.ActionExecuteRuns); err != nil {
		return result, err
	}
	switch run.Status {
	case domain.RunStatusInProgress:
	case domain.RunStatusLocked:
		return result, domain.RunLocked(runID)
	default:
		return result, domain.InvalidTransitionf("cannot record results while run is %s", run.Status)
	}
	if status != domain.ResultFail {
		failReasonCode = ""
	}
	now := e.nowFn()
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM run_items WHERE id = ? AND run_id = ?`, itemID, runID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("run_item")
		}
		if err != nil {
			return fmt.Errorf("lookup run item: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO run_results (id, run_item_id, status, fail_reason_code, comment, updated_by, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_item_id) DO UPDATE SET
	status = excluded.status,
	fail_reason_code = excluded.fail_reason_code,
	comment = excluded.comment,
	updated_by = excluded.updated_by,
	updated_at = excluded.updated_at
`, uuid.NewString(), itemID, string(status), nullable(failReasonCode), comment, actorID, now.UnixMilli())
		if coredb.IsForeignKeyViolation(err) {
			return domain.InvalidReference("fail_reason",
				fmt.Sprintf("fail reason %q does not exist", failReasonCode))
		}
		if err != nil {
			return fmt.Errorf("upsert result: %w", err)
		}

		result, err = loadResultTx(ctx, tx, itemID)
		if err != nil {
			return err
		}
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionRecordResult,
			EntityType:  "run_result",
			EntityID:    result.ID,
			ProjectID:   run.ProjectID,
			RunID:       runID,
			AfterState:  audit.Snapshot(result),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.RunResult{}, err
	}
	metrics.RecordMutation("run_result", "record")
	return result, nil
}

// AddItem appends a checklist line to a draft or in_progress run and seeds
// its `na` result in the same transaction.
func (e *Engine) AddItem(ctx context.Context, actorID, runID, testcaseVersionID string, position int, isRequired bool) (domain.RunItem, error) {
	var item domain.RunItem
	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return item, err
	}
	if _, err := e.access.Require(ctx, actorID, run.ProjectID, access.ActionExecuteRuns); err != nil {
		return item, err
	}
	if err := requireEditable(run); err != nil {
		return item, err
	}
	now := e.nowFn()
	item = domain.RunItem{
		ID:                uuid.NewString(),
		RunID:             runID,
		TestCaseVersionID: testcaseVersionID,
		Position:          position,
		IsRequired:        isRequired,
		CreatedAt:         now,
	}
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		required := 0
		if isRequired {
			required = 1
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO run_items (id, run_id, testcase_version_id, position, is_required, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, item.ID, runID, testcaseVersionID, position, required, now.UnixMilli())
		if coredb.IsUniqueViolation(err) {
			return domain.Conflictf("run_item", "version %s already in run", testcaseVersionID)
		}
		if coredb.IsForeignKeyViolation(err) {
			return domain.InvalidReference("testcase_version",
				fmt.Sprintf("version %s does not exist", testcaseVersionID))
		}
		if err != nil {
			return fmt.Errorf("insert run item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO run_results (id, run_item_id, status, comment, updated_by, updated_at)
VALUES (?, ?, 'na', '', ?, ?)
`, uuid.NewString(), item.ID, actorID, now.UnixMilli()); err != nil {
			return fmt.Errorf("seed item result: %w", err)
		}
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionAddItem,
			EntityType:  "run_item",
			EntityID:    item.ID,
			ProjectID:   run.ProjectID,
			RunID:       runID,
			AfterState:  audit.Snapshot(item),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.RunItem{}, err
	}
	metrics.RecordMutation("run_item", "add")
	return item, nil
}

// RemoveItem deletes a checklist line (and its result, via cascade) from a
// draft or in_progress run.
func (e *Engine) RemoveItem(ctx context.Context, actorID, runID, itemID string) error {
	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if _, err := e.access.Require(ctx, actorID, run.ProjectID, access.ActionExecuteRuns); err != nil {
		return err
	}
	if err := requireEditable(run); err != nil {
		return err
	}
	now := e.nowFn()
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM run_items WHERE id = ? AND run_id = ?`, itemID, runID)
		if err != nil {
			return fmt.Errorf("delete run item: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete rows affected: %w", err)
		}
		if affected == 0 {
			return domain.NotFound("run_item")
		}
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionRemoveItem,
			EntityType:  "run_item",
			EntityID:    itemID,
			ProjectID:   run.ProjectID,
			RunID:       runID,
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return err
	}
	metrics.RecordMutation("run_item", "remove")
	return nil
}

// SetFailSummary stores free-form failure notes on a run. Allowed until the
// run is locked.
func (e *Engine) SetFailSummary(ctx context.Context, actorID, runID, summary string) (domain.Run, error) {
	before, err := e.loadRun(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if _, err := e.access.Require(ctx, actorID, before.ProjectID, access.ActionExecuteRuns); err != nil {
		return domain.Run{}, err
	}
	if before.Status == domain.RunStatusLocked {
		return domain.Run{}, domain.RunLocked(runID)
	}
	now := e.nowFn()
	run := before
	run.FailSummary = summary
	run.UpdatedAt = now
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE runs SET fail_summary = ?, updated_at = ? WHERE id = ?
`, summary, now.UnixMilli(), runID); err != nil {
			return fmt.Errorf("update fail summary: %w", err)
		}
		_, err := e.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionUpdate,
			EntityType:  "run",
			EntityID:    runID,
			ProjectID:   run.ProjectID,
			RunID:       runID,
			BeforeState: audit.Snapshot(before),
			AfterState:  audit.Snapshot(run),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Run{}, err
	}
	metrics.RecordMutation("run", "update")
	return run, nil
}

// Detail is a run joined with its items, their results, and the bound
// version content.
type Detail struct {
	Run   domain.Run             `json:"run"`
	Items []domain.RunItemDetail `json:"items"`
}

// Get loads the full run detail. Items are ordered by position, then by
// creation time.
func (e *Engine) Get(ctx context.Context, runID string) (Detail, error) {
	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return Detail{}, err
	}
	rows, err := e.db.SQL().QueryContext(ctx, `
SELECT i.id, i.run_id, i.testcase_version_id, i.position, i.is_required, i.created_at,
       r.id, r.status, COALESCE(r.fail_reason_code, ''), r.comment, r.updated_by, r.updated_at,
       v.id, v.testcase_id, v.version_number, v.steps, v.expected_results, v.preconditions, v.artifacts, v.created_by, v.created_at
FROM run_items i
JOIN run_results r ON r.run_item_id = i.id
JOIN testcase_versions v ON v.id = i.testcase_version_id
WHERE i.run_id = ?
ORDER BY i.position, i.created_at
`, runID)
	if err != nil {
		return Detail{}, fmt.Errorf("run detail query: %w", err)
	}
	defer rows.Close()

	detail := Detail{Run: run}
	for rows.Next() {
		var d domain.RunItemDetail
		var v domain.TestCaseVersion
		var itemRequired int
		var itemCreated, resultUpdated, versionCreated int64
		var resultStatus string
		if err := rows.Scan(
			&d.Item.ID, &d.Item.RunID, &d.Item.TestCaseVersionID, &d.Item.Position, &itemRequired, &itemCreated,
			&d.Result.ID, &resultStatus, &d.Result.FailReasonCode, &d.Result.Comment, &d.Result.UpdatedBy, &resultUpdated,
			&v.ID, &v.TestCaseID, &v.VersionNumber, &v.Content.Steps, &v.Content.ExpectedResults,
			&v.Content.Preconditions, &v.Content.Artifacts, &v.CreatedBy, &versionCreated,
		); err != nil {
			return Detail{}, fmt.Errorf("scan run detail: %w", err)
		}
		d.Item.IsRequired = itemRequired != 0
		d.Item.CreatedAt = time.UnixMilli(itemCreated).UTC()
		d.Result.RunItemID = d.Item.ID
		d.Result.Status = domain.ResultStatus(resultStatus)
		d.Result.UpdatedAt = time.UnixMilli(resultUpdated).UTC()
		v.CreatedAt = time.UnixMilli(versionCreated).UTC()
		d.Version = &v
		detail.Items = append(detail.Items, d)
	}
	return detail, rows.Err()
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	ProjectID string
	Status    domain.RunStatus
	Limit     int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// List returns runs newest-first, with the limit clamped to 1..200.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]domain.Run, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.Validationf("unknown run status %q", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	where := "1=1"
	args := []any{}
	if filter.ProjectID != "" {
		where += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	args = append(args, limit)

	rows, err := e.db.SQL().QueryContext(ctx, runSelect+`
WHERE `+where+`
ORDER BY created_at DESC
LIMIT ?
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

const runSelect = `
SELECT id, project_id, COALESCE(asset_id, ''), COALESCE(template_id, ''), title, status,
       executed_by, COALESCE(lead_user_id, ''), COALESCE(correction_of_run_id, ''), fail_summary,
       started_at, finished_at, locked_at, COALESCE(locked_by, ''), created_at, updated_at
FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var status string
	var started, finished, locked sql.NullInt64
	var created, updated int64
	if err := row.Scan(&run.ID, &run.ProjectID, &run.AssetID, &run.TemplateID, &run.Title, &status,
		&run.ExecutedBy, &run.LeadUserID, &run.CorrectionOfRunID, &run.FailSummary,
		&started, &finished, &locked, &run.LockedBy, &created, &updated); err != nil {
		return run, err
	}
	run.Status = domain.RunStatus(status)
	if started.Valid {
		t := time.UnixMilli(started.Int64).UTC()
		run.StartedAt = &t
	}
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	if locked.Valid {
		t := time.UnixMilli(locked.Int64).UTC()
		run.LockedAt = &t
	}
	run.CreatedAt = time.UnixMilli(created).UTC()
	run.UpdatedAt = time.UnixMilli(updated).UTC()
	return run, nil
}

func (e *Engine) loadRun(ctx context.Context, runID string) (domain.Run, error) {
	row := e.db.SQL().QueryRowContext(ctx, runSelect+` WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return run, domain.NotFound("run")
	}
	if err != nil {
		return run, fmt.Errorf("load run: %w", err)
	}
	return run, nil
}

func requireEditable(run domain.Run) error {
	switch run.Status {
	case domain.RunStatusDraft, domain.RunStatusInProgress:
		return nil
	case domain.RunStatusLocked:
		return domain.RunLocked(run.ID)
	default:
		return domain.InvalidTransitionf("cannot edit items while run is %s", run.Status)
	}
}

func loadResultTx(ctx context.Context, tx *sql.Tx, itemID string) (domain.RunResult, error) {
	var r domain.RunResult
	var status string
	var updated int64
	err := tx.QueryRowContext(ctx, `
SELECT id, run_item_id, status, COALESCE(fail_reason_code, ''), comment, updated_by, updated_at
FROM run_results WHERE run_item_id = ?
`, itemID).Scan(&r.ID, &r.RunItemID, &status, &r.FailReasonCode, &r.Comment, &r.UpdatedBy, &updated)
	if err != nil {
		return r, fmt.Errorf("load result: %w", err)
	}
	r.Status = domain.ResultStatus(status)
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
