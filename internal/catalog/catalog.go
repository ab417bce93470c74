// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog manages suites, test cases, their immutable versions, and
// the fail-reason vocabulary. Version content is write-once: there is no
// UPDATE path for version rows, corrections publish a new version.
package catalog

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
)

// Store is the catalog persistence layer.
type Store struct {
	db       *coredb.DB
	recorder *audit.Recorder
	access   *access.Service
	nowFn    func() time.Time
}

// NewStore returns a catalog Store.
func NewStore(db *coredb.DB, recorder *audit.Recorder, accessSvc *access.Service) *Store {
	return &Store{
		db:       db,
		recorder: recorder,
		access:   accessSvc,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// CreateSuite adds a suite to a project. Suite names are unique per project.
func (s *Store) CreateSuite(ctx context.Context, actorID, projectID, name string) (domain.Suite, error) {
	var suite domain.Suite
	if name == "" {
		return suite, domain.Validationf("suite name required")
	}
	if _, err := s.access.Require(ctx, actorID, projectID, access.ActionEditCatalog); err != nil {
		return suite, err
	}
	now := s.nowFn()
	suite = domain.Suite{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		CreatedAt: now,
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO suites (id, project_id, name, created_at) VALUES (?, ?, ?, ?)
`, suite.ID, projectID, name, now.UnixMilli())
		if coredb.IsUniqueViolation(err) {
			return domain.Conflictf("suite", "suite %q already exists in project", name)
		}
		if coredb.IsForeignKeyViolation(err) {
			return domain.NotFound("project")
		}
		if err != nil {
			return fmt.Errorf("insert suite: %w", err)
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionCreate,
			EntityType:  "suite",
			EntityID:    suite.ID,
			ProjectID:   projectID,
			AfterState:  audit.Snapshot(suite),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Suite{}, err
	}
	return suite, nil
}

// CreateTestCase adds a test case to a suite. The case key must be unique
// within the suite's active scope; archived cases do not block reuse.
func (s *Store) CreateTestCase(ctx context.Context, actorID, suiteID, key, title string) (domain.TestCase, error) {
	var tc domain.TestCase
	if key == "" || title == "" {
		return tc, domain.Validationf("case key and title required")
	}
	projectID, err := s.suiteProject(ctx, suiteID)
	if err != nil {
		return tc, err
	}
	if _, err := s.access.Require(ctx, actorID, projectID, access.ActionEditCatalog); err != nil {
		return tc, err
	}
	now := s.nowFn()
	tc = domain.TestCase{
		ID:         uuid.NewString(),
		SuiteID:    suiteID,
		Key:        key,
		Title:      title,
		IsRequired: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO test_cases (id, suite_id, case_key, title, is_required, is_archived, created_at, updated_at)
VALUES (?, ?, ?, ?, 1, 0, ?, ?)
`, tc.ID, suiteID, key, title, now.UnixMilli(), now.UnixMilli())
		if coredb.IsUniqueViolation(err) {
			return domain.Conflictf("testcase", "case key %q already active in suite", key)
		}
		if err != nil {
			return fmt.Errorf("insert test case: %w", err)
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionCreate,
			EntityType:  "testcase",
			EntityID:    tc.ID,
			ProjectID:   projectID,
			AfterState:  audit.Snapshot(tc),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.TestCase{}, err
	}
	return tc, nil
}

// PublishVersion snapshots content as the next version of a test case. The
// version number is max(existing)+1 computed inside the transaction, so
// concurrent publishes either serialise or fail on the uniqueness constraint.
func (s *Store) PublishVersion(ctx context.Context, actorID, testcaseID string, content domain.VersionContent) (domain.TestCaseVersion, error) {
	var version domain.TestCaseVersion
	if content.Steps == "" || content.ExpectedResults == "" {
		return version, domain.Validationf("steps and expected results required")
	}
	tc, err := s.GetTestCase(ctx, testcaseID)
	if err != nil {
		return version, err
	}
	projectID, err := s.suiteProject(ctx, tc.SuiteID)
	if err != nil {
		return version, err
	}
	if _, err := s.access.Require(ctx, actorID, projectID, access.ActionEditCatalog); err != nil {
		return version, err
	}
	if tc.IsArchived {
		return version, domain.Conflictf("testcase", "test case %s is archived", testcaseID)
	}
	now := s.nowFn()
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version_number), 0) + 1 FROM testcase_versions WHERE testcase_id = ?
`, testcaseID).Scan(&next); err != nil {
			return fmt.Errorf("next version number: %w", err)
		}
		version = domain.TestCaseVersion{
			ID:            uuid.NewString(),
			TestCaseID:    testcaseID,
			VersionNumber: next,
			Content:       content,
			CreatedBy:     actorID,
			CreatedAt:     now,
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO testcase_versions (id, testcase_id, version_number, steps, expected_results, preconditions, artifacts, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, version.ID, testcaseID, next, content.Steps, content.ExpectedResults,
			content.Preconditions, content.Artifacts, actorID, now.UnixMilli())
		if coredb.IsUniqueViolation(err) {
			return domain.Conflictf("testcase_version", "version %d already published", next)
		}
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionPublish,
			EntityType:  "testcase_version",
			EntityID:    version.ID,
			ProjectID:   projectID,
			AfterState:  audit.Snapshot(version),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.TestCaseVersion{}, err
	}
	return version, nil
}

// ArchiveTestCase flags a case as archived. Existing versions and run items
// referencing them are untouched.
func (s *Store) ArchiveTestCase(ctx context.Context, actorID, testcaseID string) error {
	tc, err := s.GetTestCase(ctx, testcaseID)
	if err != nil {
		return err
	}
	projectID, err := s.suiteProject(ctx, tc.SuiteID)
	if err != nil {
		return err
	}
	if _, err := s.access.Require(ctx, actorID, projectID, access.ActionEditCatalog); err != nil {
		return err
	}
	if tc.IsArchived {
		return domain.Conflictf("testcase", "test case %s already archived", testcaseID)
	}
	now := s.nowFn()
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE test_cases SET is_archived = 1, updated_at = ? WHERE id = ?
`, now.UnixMilli(), testcaseID); err != nil {
			return fmt.Errorf("archive test case: %w", err)
		}
		after := tc
		after.IsArchived = true
		after.UpdatedAt = now
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionArchive,
			EntityType:  "testcase",
			EntityID:    testcaseID,
			ProjectID:   projectID,
			BeforeState: audit.Snapshot(tc),
			AfterState:  audit.Snapshot(after),
			Timestamp:   now,
		})
		return err
	})
}

// SetFailReason upserts an entry of the fail-reason vocabulary. The
// vocabulary is global, so the actor needs catalog rights outside any
// project scope.
func (s *Store) SetFailReason(ctx context.Context, actorID string, reason domain.FailReason) (domain.FailReason, error) {
	if reason.Code == "" || reason.Title == "" {
		return domain.FailReason{}, domain.Validationf("fail reason code and title required")
	}
	if _, err := s.access.Require(ctx, actorID, "", access.ActionEditCatalog); err != nil {
		return domain.FailReason{}, err
	}
	now := s.nowFn()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		active := 0
		if reason.IsActive {
			active = 1
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO fail_reasons (code, title, description, is_active)
VALUES (?, ?, ?, ?)
ON CONFLICT(code) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	is_active = excluded.is_active
`, reason.Code, reason.Title, reason.Description, active); err != nil {
			return fmt.Errorf("upsert fail reason: %w", err)
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionUpdate,
			EntityType:  "fail_reason",
			EntityID:    reason.Code,
			AfterState:  audit.Snapshot(reason),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.FailReason{}, err
	}
	return reason, nil
}

// ListFailReasons returns the vocabulary, hiding inactive entries when
// activeOnly is set. Inactive codes remain valid historical references.
func (s *Store) ListFailReasons(ctx context.Context, activeOnly bool) ([]domain.FailReason, error) {
	query := `SELECT code, title, description, is_active FROM fail_reasons`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY code`
	rows, err := s.db.SQL().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list fail reasons: %w", err)
	}
	defer rows.Close()

	var reasons []domain.FailReason
	for rows.Next() {
		var r domain.FailReason
		var active int
		if err := rows.Scan(&r.Code, &r.Title, &r.Description, &active); err != nil {
			return nil, fmt.Errorf("scan fail reason: %w", err)
		}
		r.IsActive = active != 0
		reasons = append(reasons, r)
	}
	return reasons, rows.Err()
}

// GetTestCase loads a test case by id.
func (s *Store) GetTestCase(ctx context.Context, id string) (domain.TestCase, error) {
	var tc domain.TestCase
	var required, archived int
	var created, updated int64
	err := s.db.SQL().QueryRowContext(ctx, `
SELECT id, suite_id, case_key, title, is_required, is_archived, created_at, updated_at
FROM test_cases WHERE id = ?
`, id).Scan(&tc.ID, &tc.SuiteID, &tc.Key, &tc.Title, &required, &archived, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return tc, domain.NotFound("testcase")
	}
	if err != nil {
		return tc, fmt.Errorf("get test case: %w", err)
	}
	tc.IsRequired = required != 0
	tc.IsArchived = archived != 0
	tc.CreatedAt = time.UnixMilli(created).UTC()
	tc.UpdatedAt = time.UnixMilli(updated).UTC()
	return tc, nil
}

// GetVersion loads a published version by id.
func (s *Store) GetVersion(ctx context.Context, id string) (domain.TestCaseVersion, error) {
	var v domain.TestCaseVersion
	var created int64
	err := s.db.SQL().QueryRowContext(ctx, `
SELECT id, testcase_id, version_number, steps, expected_results, preconditions, artifacts, created_by, created_at
FROM testcase_versions WHERE id = ?
`, id).Scan(&v.ID, &v.TestCaseID, &v.VersionNumber,
		&v.Content.Steps, &v.Content.ExpectedResults, &v.Content.Preconditions, &v.Content.Artifacts,
		&v.CreatedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return v, domain.NotFound("testcase_version")
	}
	if err != nil {
		return v, fmt.Errorf("get version: %w", err)
	}
	v.CreatedAt = time.UnixMilli(created).UTC()
	return v, nil
}

// ListSuites returns the suites of a project ordered by name.
func (s *Store) ListSuites(ctx context.Context, projectID string) ([]domain.Suite, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `
SELECT id, project_id, name, created_at FROM suites
WHERE project_id = ? ORDER BY name
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list suites: %w", err)
	}
	defer rows.Close()

	var suites []domain.Suite
	for rows.Next() {
		var su domain.Suite
		var created int64
		if err := rows.Scan(&su.ID, &su.ProjectID, &su.Name, &created); err != nil {
			return nil, fmt.Errorf("scan suite: %w", err)
		}
		su.CreatedAt = time.UnixMilli(created).UTC()
		suites = append(suites, su)
	}
	return suites, rows.Err()
}

// ListTestCases returns the cases of a suite, active first, then by key.
func (s *Store) ListTestCases(ctx context.Context, suiteID string, includeArchived bool) ([]domain.TestCase, error) {
	query := `
SELECT id, suite_id, case_key, title, is_required, is_archived, created_at, updated_at
FROM test_cases WHERE suite_id = ?`
	if !includeArchived {
		query += ` AND is_archived = 0`
	}
	query += ` ORDER BY is_archived, case_key`
	rows, err := s.db.SQL().QueryContext(ctx, query, suiteID)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	defer rows.Close()

	var cases []domain.TestCase
	for rows.Next() {
		var tc domain.TestCase
		var required, archived int
		var created, updated int64
		if err := rows.Scan(&tc.ID, &tc.SuiteID, &tc.Key, &tc.Title, &required, &archived, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan test case: %w", err)
		}
		tc.IsRequired = required != 0
		tc.IsArchived = archived != 0
		tc.CreatedAt = time.UnixMilli(created).UTC()
		tc.UpdatedAt = time.UnixMilli(updated).UTC()
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

// ListVersions returns all versions of a test case in ascending order.
func (s *Store) ListVersions(ctx context.Context, testcaseID string) ([]domain.TestCaseVersion, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `
SELECT id, testcase_id, version_number, steps, expected_results, preconditions, artifacts, created_by, created_at
FROM testcase_versions
WHERE testcase_id = ?
ORDER BY version_number ASC
`, testcaseID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.TestCaseVersion
	for rows.Next() {
		var v domain.TestCaseVersion
		var created int64
		if err := rows.Scan(&v.ID, &v.TestCaseID, &v.VersionNumber,
			&v.Content.Steps, &v.Content.ExpectedResults, &v.Content.Preconditions, &v.Content.Artifacts,
			&v.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.CreatedAt = time.UnixMilli(created).UTC()
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) suiteProject(ctx context.Context, suiteID string) (string, error) {
	var projectID string
	err := s.db.SQL().QueryRowContext(ctx,
		`SELECT project_id FROM suites WHERE id = ?`, suiteID,
	).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFound("suite")
	}
	if err != nil {
		return "", fmt.Errorf("lookup suite %s: %w", suiteID, err)
	}
	return projectID, nil
}
