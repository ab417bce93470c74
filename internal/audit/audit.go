// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit persists the append-only trail of tracker mutations. Entries
// are written inside the same transaction as the mutation they describe and
// are never updated or deleted.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/metrics"
	"github.com/uran-qa/uran/internal/observability/tracing"
)

// Actions recorded in the trail.
const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionArchive      = "archive"
	ActionPublish      = "publish"
	ActionStart        = "start"
	ActionFinish       = "finish"
	ActionLock         = "lock"
	ActionRecordResult = "record_result"
	ActionAddItem      = "add_item"
	ActionRemoveItem   = "remove_item"
	ActionAttach       = "attach"
	ActionAddMember    = "add_member"
	ActionRemoveMember = "remove_member"
)

// Entry is one audit record. BeforeState and AfterState hold JSON snapshots
// of the entity around the mutation; either may be nil.
type Entry struct {
	Seq         int64           `json:"seq"`
	ActorUserID string          `json:"actor_user_id"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	ProjectID   string          `json:"project_id,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
	BeforeState json.RawMessage `json:"before_state,omitempty"`
	AfterState  json.RawMessage `json:"after_state,omitempty"`
	Timestamp   time.Time       `json:"ts"`
}

// Recorder appends and reads audit entries.
type Recorder struct {
	db    *coredb.DB
	nowFn func() time.Time
}

// NewRecorder returns a Recorder backed by the provided DB.
func NewRecorder(db *coredb.DB) *Recorder {
	if db == nil {
		return nil
	}
	return &Recorder{
		db: db,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Record appends an entry within the caller's transaction. The caller owns
// commit and rollback; a failed append must abort the surrounding mutation.
func (r *Recorder) Record(ctx context.Context, tx *sql.Tx, entry Entry) (seq int64, err error) {
	if r == nil || tx == nil {
		return 0, fmt.Errorf("audit: recorder or tx not initialised")
	}
	ctx, span := tracing.Start(ctx, "audit.append",
		tracing.PersistDriver(coredb.DriverName()),
		tracing.PersistOp("append"),
		tracing.PersistKeyspace("audit_log"),
		tracing.String("audit.action", entry.Action),
		tracing.RunID(entry.RunID),
	)
	span.SetAttributes(tracing.Entity(entry.EntityType, entry.EntityID)...)
	defer tracing.End(span, &err)

	timer := metrics.StartPersistenceTimer(metrics.PersistenceOperationAuditAppend)
	outcome := metrics.PersistenceOutcomeError
	defer func() {
		if timer != nil {
			timer.Observe(outcome)
		}
	}()

	if entry.ActorUserID == "" {
		return 0, fmt.Errorf("audit: actor required")
	}
	if entry.Action == "" || entry.EntityType == "" || entry.EntityID == "" {
		return 0, fmt.Errorf("audit: action, entity type, and entity id required")
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = r.nowFn()
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
INSERT INTO audit_log (actor_user_id, action, entity_type, entity_id, project_id, run_id, before_state, after_state, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, entry.ActorUserID, entry.Action, entry.EntityType, entry.EntityID,
		nullable(entry.ProjectID), nullable(entry.RunID),
		nullableBlob(entry.BeforeState), nullableBlob(entry.AfterState), ts.UnixMilli())
	if coredb.IsQuotaExceeded(err) {
		err = fmt.Errorf("audit insert: storage quota exhausted: %w", err)
		return 0, err
	}
	if err != nil {
		err = fmt.Errorf("audit insert: %w", err)
		return 0, err
	}
	seq, err = res.LastInsertId()
	if err != nil {
		err = fmt.Errorf("audit last insert id: %w", err)
		return 0, err
	}

	metrics.RecordAuditEntry()
	outcome = metrics.PersistenceOutcomeOK
	span.SetAttributes(tracing.Int64("audit.seq", seq))
	return seq, nil
}

// Query filters audit reads. Zero fields are ignored. Limit is clamped to
// 1..200 with a default of 50.
type Query struct {
	EntityType string
	EntityID   string
	ProjectID  string
	RunID      string
	AfterSeq   int64
	Limit      int
}

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 200
)

// List returns entries matching the query in ascending sequence order.
func (r *Recorder) List(ctx context.Context, q Query) (entries []Entry, err error) {
	if r == nil {
		return nil, fmt.Errorf("audit: recorder not initialised")
	}
	ctx, span := tracing.Start(ctx, "audit.read",
		tracing.PersistDriver(coredb.DriverName()),
		tracing.PersistOp("read"),
		tracing.PersistKeyspace("audit_log"),
	)
	defer tracing.End(span, &err)

	timer := metrics.StartPersistenceTimer(metrics.PersistenceOperationAuditRead)
	outcome := metrics.PersistenceOutcomeError
	defer func() {
		if timer != nil {
			timer.Observe(outcome)
		}
		span.SetAttributes(tracing.Int("audit.entries", len(entries)))
	}()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	where := "seq > ?"
	args := []any{q.AfterSeq}
	if q.EntityType != "" {
		where += " AND entity_type = ?"
		args = append(args, q.EntityType)
	}
	if q.EntityID != "" {
		where += " AND entity_id = ?"
		args = append(args, q.EntityID)
	}
	if q.ProjectID != "" {
		where += " AND project_id = ?"
		args = append(args, q.ProjectID)
	}
	if q.RunID != "" {
		where += " AND run_id = ?"
		args = append(args, q.RunID)
	}
	args = append(args, limit)

	var rows *sql.Rows
	rows, err = r.db.SQL().QueryContext(ctx, `
SELECT seq, actor_user_id, action, entity_type, entity_id,
       COALESCE(project_id, ''), COALESCE(run_id, ''),
       before_state, after_state, ts
FROM audit_log
WHERE `+where+`
ORDER BY seq ASC
LIMIT ?
`, args...)
	if err != nil {
		err = fmt.Errorf("audit query: %w", err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var before, after []byte
		var tsMillis int64
		if scanErr := rows.Scan(&e.Seq, &e.ActorUserID, &e.Action, &e.EntityType, &e.EntityID,
			&e.ProjectID, &e.RunID, &before, &after, &tsMillis); scanErr != nil {
			err = fmt.Errorf("audit scan: %w", scanErr)
			return nil, err
		}
		if len(before) > 0 {
			e.BeforeState = json.RawMessage(append([]byte(nil), before...))
		}
		if len(after) > 0 {
			e.AfterState = json.RawMessage(append([]byte(nil), after...))
		}
		e.Timestamp = time.UnixMilli(tsMillis).UTC()
		entries = append(entries, e)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = fmt.Errorf("audit rows: %w", rowsErr)
		return nil, err
	}
	outcome = metrics.PersistenceOutcomeOK
	return entries, nil
}

// ByEntity lists entries for one entity.
func (r *Recorder) ByEntity(ctx context.Context, entityType, entityID string, afterSeq int64, limit int) ([]Entry, error) {
	return r.List(ctx, Query{EntityType: entityType, EntityID: entityID, AfterSeq: afterSeq, Limit: limit})
}

// ByProject lists entries scoped to one project.
func (r *Recorder) ByProject(ctx context.Context, projectID string, afterSeq int64, limit int) ([]Entry, error) {
	return r.List(ctx, Query{ProjectID: projectID, AfterSeq: afterSeq, Limit: limit})
}

// ByRun lists entries scoped to one run.
func (r *Recorder) ByRun(ctx context.Context, runID string, afterSeq int64, limit int) ([]Entry, error) {
	return r.List(ctx, Query{RunID: runID, AfterSeq: afterSeq, Limit: limit})
}

// Snapshot marshals v for use as a before/after state. A nil v yields nil.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
