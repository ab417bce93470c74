// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func mustExec(t *testing.T, db *DB, query string, args ...any) {
	t.Helper()
	if _, err := db.SQL().ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// seedRunItem builds the minimal chain user -> project -> suite -> case ->
// version -> run -> item so constraint tests can target the leaf tables.
func seedRunItem(t *testing.T, db *DB) (runID, itemID, versionID string) {
	t.Helper()
	now := time.Now().UnixMilli()
	mustExec(t, db, `INSERT INTO users (id, email, display_name, global_role, created_at) VALUES ('u1', 'u1@test', 'U1', 'engineer', ?)`, now)
	mustExec(t, db, `INSERT INTO projects (id, name, owner_user_id, created_at, updated_at) VALUES ('p1', 'P1', 'u1', ?, ?)`, now, now)
	mustExec(t, db, `INSERT INTO suites (id, project_id, name, created_at) VALUES ('s1', 'p1', 'S1', ?)`, now)
	mustExec(t, db, `INSERT INTO test_cases (id, suite_id, case_key, title, created_at, updated_at) VALUES ('tc1', 's1', 'K1', 'T1', ?, ?)`, now, now)
	mustExec(t, db, `INSERT INTO testcase_versions (id, testcase_id, version_number, steps, expected_results, created_by, created_at) VALUES ('v1', 'tc1', 1, 'do', 'see', 'u1', ?)`, now)
	mustExec(t, db, `INSERT INTO runs (id, project_id, title, status, executed_by, created_at, updated_at) VALUES ('r1', 'p1', 'R1', 'draft', 'u1', ?, ?)`, now, now)
	mustExec(t, db, `INSERT INTO run_items (id, run_id, testcase_version_id, position, created_at) VALUES ('i1', 'r1', 'v1', 0, ?)`, now)
	return "r1", "i1", "v1"
}

func TestVersionNumberUniquePerCase(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	seedRunItem(t, db)

	now := time.Now().UnixMilli()
	_, err := db.SQL().ExecContext(context.Background(), `
INSERT INTO testcase_versions (id, testcase_id, version_number, steps, expected_results, created_by, created_at)
VALUES ('v-dup', 'tc1', 1, 'again', 'again', 'u1', ?)
`, now)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for duplicate version number, got %v", err)
	}
}

func TestRunItemResultBindingIsOneToOne(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	_, itemID, _ := seedRunItem(t, db)

	now := time.Now().UnixMilli()
	mustExec(t, db, `INSERT INTO run_results (id, run_item_id, status, updated_by, updated_at) VALUES ('res1', ?, 'na', 'u1', ?)`, itemID, now)
	_, err := db.SQL().ExecContext(context.Background(), `
INSERT INTO run_results (id, run_item_id, status, updated_by, updated_at) VALUES ('res2', ?, 'ok', 'u1', ?)
`, itemID, now)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for second result on one item, got %v", err)
	}
}

func TestDuplicateVersionInRunRejected(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	runID, _, versionID := seedRunItem(t, db)

	now := time.Now().UnixMilli()
	_, err := db.SQL().ExecContext(context.Background(), `
INSERT INTO run_items (id, run_id, testcase_version_id, position, created_at) VALUES ('i-dup', ?, ?, 1, ?)
`, runID, versionID, now)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for duplicate version in run, got %v", err)
	}
}

func TestAttachmentMustHaveOwner(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	now := time.Now().UnixMilli()
	_, err := db.SQL().ExecContext(context.Background(), `
INSERT INTO attachments (id, storage_key, created_by, created_at) VALUES ('a1', 'k', 'u1', ?)
`, now)
	if !IsCheckViolation(err) {
		t.Fatalf("expected check violation for ownerless attachment, got %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	now := time.Now().UnixMilli()
	_, err := db.SQL().ExecContext(context.Background(), `
INSERT INTO projects (id, name, owner_user_id, created_at, updated_at) VALUES ('p-orphan', 'P', 'no-such-user', ?, ?)
`, now, now)
	if !IsForeignKeyViolation(err) {
		t.Fatalf("expected foreign key violation for unknown owner, got %v", err)
	}
}

func TestArchivedCaseKeyReusable(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	seedRunItem(t, db)

	ctx := context.Background()
	now := time.Now().UnixMilli()
	// Active duplicate is rejected by the partial index.
	_, err := db.SQL().ExecContext(ctx, `
INSERT INTO test_cases (id, suite_id, case_key, title, created_at, updated_at) VALUES ('tc-dup', 's1', 'K1', 'T', ?, ?)
`, now, now)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for active duplicate key, got %v", err)
	}

	mustExec(t, db, `UPDATE test_cases SET is_archived = 1 WHERE id = 'tc1'`)
	mustExec(t, db, `INSERT INTO test_cases (id, suite_id, case_key, title, created_at, updated_at) VALUES ('tc-new', 's1', 'K1', 'T', ?, ?)`, now, now)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	wantErr := errors.New("abort")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users (id, email, display_name, global_role, created_at) VALUES ('u-tx', 'tx@test', 'TX', 'viewer', ?)
`, time.Now().UnixMilli()); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	var count int
	if err := db.SQL().QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = 'u-tx'`).Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard insert, found %d rows", count)
	}
}

func TestConstraintClassifiersRejectNil(t *testing.T) {
	t.Parallel()

	if IsUniqueViolation(nil) || IsForeignKeyViolation(nil) || IsCheckViolation(nil) || IsQuotaExceeded(nil) {
		t.Fatal("nil error must not classify as a constraint violation")
	}
	if !IsQuotaExceeded(errors.New("database or disk is full")) {
		t.Fatal("expected disk-full message to classify as quota exhaustion")
	}
}
