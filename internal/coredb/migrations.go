// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"fmt"
)

// The relational schema. Constraints here carry the tracker's invariants:
//   - UNIQUE(testcase_id, version_number) pins version numbering.
//   - UNIQUE(run_id, testcase_version_id) forbids duplicate checklist lines.
//   - UNIQUE(run_item_id) on run_results binds item and result 1:1.
//   - CHECK(run_id IS NOT NULL OR run_result_id IS NOT NULL) keeps every
//     attachment owned.
//   - testcase_versions cascade only with their parent test case; run_items
//     reference them with a plain FK, so a referenced version cannot vanish.
var baseMigrations = [...]string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		global_role TEXT NOT NULL DEFAULT 'viewer'
			CHECK (global_role IN ('admin','lead','engineer','viewer')),
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_user_id TEXT NOT NULL REFERENCES users(id),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS project_members (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		role TEXT NOT NULL CHECK (role IN ('owner','editor','viewer')),
		PRIMARY KEY (project_id, user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS suites (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (project_id, name)
	);`,
	`CREATE TABLE IF NOT EXISTS test_cases (
		id TEXT PRIMARY KEY,
		suite_id TEXT NOT NULL REFERENCES suites(id),
		case_key TEXT NOT NULL,
		title TEXT NOT NULL,
		is_required INTEGER NOT NULL DEFAULT 1,
		is_archived INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	// Duplicate keys are rejected only within the active scope of a suite;
	// archived cases keep their key without blocking reuse.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_test_cases_active_key
		ON test_cases(suite_id, case_key) WHERE is_archived = 0;`,
	`CREATE TABLE IF NOT EXISTS testcase_versions (
		id TEXT PRIMARY KEY,
		testcase_id TEXT NOT NULL REFERENCES test_cases(id) ON DELETE CASCADE,
		version_number INTEGER NOT NULL,
		steps TEXT NOT NULL,
		expected_results TEXT NOT NULL,
		preconditions TEXT NOT NULL DEFAULT '',
		artifacts TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (testcase_id, version_number)
	);`,
	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		firmware TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS run_templates (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS run_template_items (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL REFERENCES run_templates(id) ON DELETE CASCADE,
		testcase_version_id TEXT NOT NULL REFERENCES testcase_versions(id),
		position INTEGER NOT NULL DEFAULT 0,
		is_required INTEGER NOT NULL DEFAULT 1,
		UNIQUE (template_id, testcase_version_id)
	);`,
	`CREATE TABLE IF NOT EXISTS fail_reasons (
		code TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1
	);`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		asset_id TEXT REFERENCES assets(id),
		template_id TEXT REFERENCES run_templates(id),
		title TEXT NOT NULL DEFAULT 'New run',
		status TEXT NOT NULL DEFAULT 'draft'
			CHECK (status IN ('draft','in_progress','done','locked')),
		executed_by TEXT NOT NULL REFERENCES users(id),
		lead_user_id TEXT REFERENCES users(id),
		correction_of_run_id TEXT REFERENCES runs(id),
		fail_summary TEXT NOT NULL DEFAULT '',
		started_at INTEGER,
		finished_at INTEGER,
		locked_at INTEGER,
		locked_by TEXT REFERENCES users(id),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_project_created
		ON runs(project_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS run_items (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		testcase_version_id TEXT NOT NULL REFERENCES testcase_versions(id),
		position INTEGER NOT NULL DEFAULT 0,
		is_required INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		UNIQUE (run_id, testcase_version_id)
	);`,
	`CREATE TABLE IF NOT EXISTS run_results (
		id TEXT PRIMARY KEY,
		run_item_id TEXT NOT NULL UNIQUE REFERENCES run_items(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'na'
			CHECK (status IN ('ok','fail','na')),
		fail_reason_code TEXT REFERENCES fail_reasons(code),
		comment TEXT NOT NULL DEFAULT '',
		updated_by TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		run_id TEXT REFERENCES runs(id),
		run_result_id TEXT REFERENCES run_results(id),
		storage_key TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT 'application/octet-stream',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		CHECK (run_id IS NOT NULL OR run_result_id IS NOT NULL)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_run ON attachments(run_id);`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_result ON attachments(run_result_id);`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		project_id TEXT,
		run_id TEXT,
		before_state BLOB,
		after_state BLOB,
		ts INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id, seq);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_project ON audit_log(project_id, seq);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_log(run_id, seq);`,
}

func applyMigrations(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range baseMigrations {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
