// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attachments binds evidence metadata to runs and results. Only
// metadata and a storage key are recorded; the bytes live outside the DB.
package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/uran-qa/uran/internal/access"
	"github.com/uran-qa/uran/internal/audit"
	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/domain"
	"github.com/uran-qa/uran/internal/paths"
)

const defaultMimeType = "application/octet-stream"

// Binder attaches evidence metadata to runs and results.
type Binder struct {
	db       *coredb.DB
	recorder *audit.Recorder
	access   *access.Service
	nowFn    func() time.Time
}

// NewBinder returns an attachment Binder.
func NewBinder(db *coredb.DB, recorder *audit.Recorder, accessSvc *access.Service) *Binder {
	return &Binder{
		db:       db,
		recorder: recorder,
		access:   accessSvc,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Meta carries caller-provided attachment metadata. An empty StorageKey is
// filled with a generated key under the evidence directory.
type Meta struct {
	StorageKey string `json:"storage_key,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

// Attach binds evidence to a run, a result, or both. At least one owner is
// required; attaching to anything under a locked run fails.
func (b *Binder) Attach(ctx context.Context, actorID, runID, resultID string, meta Meta) (domain.Attachment, error) {
	var att domain.Attachment
	if runID == "" && resultID == "" {
		return att, domain.InvalidScope("attachment needs a run or a result")
	}

	owningRunID := runID
	if resultID != "" {
		resolved, err := b.resultRun(ctx, resultID)
		if err != nil {
			return att, err
		}
		if runID != "" && runID != resolved {
			return att, domain.InvalidScope("result belongs to a different run")
		}
		owningRunID = resolved
	}

	var projectID string
	var status string
	err := b.db.SQL().QueryRowContext(ctx,
		`SELECT project_id, status FROM runs WHERE id = ?`, owningRunID,
	).Scan(&projectID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return att, domain.NotFound("run")
	}
	if err != nil {
		return att, fmt.Errorf("lookup owning run: %w", err)
	}
	if _, err := b.access.Require(ctx, actorID, projectID, access.ActionExecuteRuns); err != nil {
		return att, err
	}
	if domain.RunStatus(status) == domain.RunStatusLocked {
		return att, domain.RunLocked(owningRunID)
	}

	now := b.nowFn()
	att = domain.Attachment{
		ID:          uuid.NewString(),
		RunID:       runID,
		RunResultID: resultID,
		StorageKey:  meta.StorageKey,
		MimeType:    meta.MimeType,
		SizeBytes:   meta.SizeBytes,
		CreatedBy:   actorID,
		CreatedAt:   now,
	}
	if att.StorageKey == "" {
		att.StorageKey = filepath.ToSlash(filepath.Join(paths.EvidenceDir(), att.ID))
	}
	if att.MimeType == "" {
		att.MimeType = defaultMimeType
	}

	err = b.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO attachments (id, run_id, run_result_id, storage_key, mime_type, size_bytes, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, att.ID, nullable(att.RunID), nullable(att.RunResultID), att.StorageKey, att.MimeType,
			att.SizeBytes, actorID, now.UnixMilli())
		if coredb.IsForeignKeyViolation(err) {
			return domain.InvalidReference("attachment", "referenced run or result does not exist")
		}
		if coredb.IsCheckViolation(err) {
			return domain.InvalidScope("attachment needs a run or a result")
		}
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
		_, err = b.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionAttach,
			EntityType:  "attachment",
			EntityID:    att.ID,
			ProjectID:   projectID,
			RunID:       owningRunID,
			AfterState:  audit.Snapshot(att),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Attachment{}, err
	}
	return att, nil
}

// ListByRun returns attachments bound directly to a run.
func (b *Binder) ListByRun(ctx context.Context, runID string) ([]domain.Attachment, error) {
	return b.list(ctx, `run_id = ?`, runID)
}

// ListByResult returns attachments bound to a result.
func (b *Binder) ListByResult(ctx context.Context, resultID string) ([]domain.Attachment, error) {
	return b.list(ctx, `run_result_id = ?`, resultID)
}

func (b *Binder) list(ctx context.Context, where string, arg any) ([]domain.Attachment, error) {
	rows, err := b.db.SQL().QueryContext(ctx, `
SELECT id, COALESCE(run_id, ''), COALESCE(run_result_id, ''), storage_key, mime_type, size_bytes, created_by, created_at
FROM attachments
WHERE `+where+`
ORDER BY created_at, id
`, arg)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var created int64
		if err := rows.Scan(&a.ID, &a.RunID, &a.RunResultID, &a.StorageKey, &a.MimeType,
			&a.SizeBytes, &a.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (b *Binder) resultRun(ctx context.Context, resultID string) (string, error) {
	var runID string
	err := b.db.SQL().QueryRowContext(ctx, `
SELECT i.run_id
FROM run_results r
JOIN run_items i ON i.id = r.run_item_id
WHERE r.id = ?
`, resultID).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFound("run_result")
	}
	if err != nil {
		return "", fmt.Errorf("resolve result run: %w", err)
	}
	return runID, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
