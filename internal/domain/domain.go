// SPDX-License-Identifier: AGPL-3.0-or-later

// Package domain holds the tracker's entities, enumerations, and error
// taxonomy shared by the stores and the run engine.
package domain

import "time"

// RunStatus enumerates the run lifecycle states. Transitions only move
// forward: draft -> in_progress -> done -> locked.
type RunStatus string

const (
	RunStatusDraft      RunStatus = "draft"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusDone       RunStatus = "done"
	RunStatusLocked     RunStatus = "locked"
)

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusDraft, RunStatusInProgress, RunStatusDone, RunStatusLocked:
		return true
	}
	return false
}

// ResultStatus enumerates recorded outcomes for a run item.
type ResultStatus string

const (
	ResultOK   ResultStatus = "ok"
	ResultFail ResultStatus = "fail"
	ResultNA   ResultStatus = "na"
)

// Valid reports whether s is a known result status.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultOK, ResultFail, ResultNA:
		return true
	}
	return false
}

// GlobalRole is a user's site-wide role.
type GlobalRole string

const (
	GlobalAdmin    GlobalRole = "admin"
	GlobalLead     GlobalRole = "lead"
	GlobalEngineer GlobalRole = "engineer"
	GlobalViewer   GlobalRole = "viewer"
)

// Valid reports whether r is a known global role.
func (r GlobalRole) Valid() bool {
	switch r {
	case GlobalAdmin, GlobalLead, GlobalEngineer, GlobalViewer:
		return true
	}
	return false
}

// ProjectRole is a user's role inside one project.
type ProjectRole string

const (
	ProjectOwner  ProjectRole = "owner"
	ProjectEditor ProjectRole = "editor"
	ProjectViewer ProjectRole = "viewer"
)

// Valid reports whether r is a known project role.
func (r ProjectRole) Valid() bool {
	switch r {
	case ProjectOwner, ProjectEditor, ProjectViewer:
		return true
	}
	return false
}

// User is a principal known to the tracker.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	GlobalRole  GlobalRole `json:"global_role"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Project groups assets, suites, and runs.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is a project membership row.
type Member struct {
	ProjectID string      `json:"project_id"`
	UserID    string      `json:"user_id"`
	Role      ProjectRole `json:"role"`
}

// Suite groups test cases within a project.
type Suite struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TestCase is the stable identity of a test; it is never executed directly.
// Executable content lives in immutable TestCaseVersion snapshots.
type TestCase struct {
	ID         string    `json:"id"`
	SuiteID    string    `json:"suite_id"`
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	IsRequired bool      `json:"is_required"`
	IsArchived bool      `json:"is_archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// VersionContent is the executable payload captured by a published version.
type VersionContent struct {
	Steps           string `json:"steps"`
	ExpectedResults string `json:"expected_results"`
	Preconditions   string `json:"preconditions,omitempty"`
	Artifacts       string `json:"artifacts,omitempty"`
}

// TestCaseVersion is an immutable snapshot of a test case's content. Content
// columns are never updated; corrections publish a new version.
type TestCaseVersion struct {
	ID            string         `json:"id"`
	TestCaseID    string         `json:"testcase_id"`
	VersionNumber int            `json:"version_number"`
	Content       VersionContent `json:"content"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Asset is a physical device or environment under test.
type Asset struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"`
	Firmware  string    `json:"firmware,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunTemplate is a reusable, ordered set of version references.
type RunTemplate struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id"`
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"created_at"`
	Items     []RunTemplateItem `json:"items,omitempty"`
}

// RunTemplateItem is one entry of a template. Purely declarative.
type RunTemplateItem struct {
	ID                string `json:"id"`
	TemplateID        string `json:"template_id"`
	TestCaseVersionID string `json:"testcase_version_id"`
	Position          int    `json:"position"`
	IsRequired        bool   `json:"is_required"`
}

// FailReason is a controlled-vocabulary entry referenced by failed results.
// Inactive reasons remain valid historical references but are hidden from
// new selection.
type FailReason struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// Run is one execution of a checklist against an asset.
type Run struct {
	ID                string     `json:"id"`
	ProjectID         string     `json:"project_id"`
	AssetID           string     `json:"asset_id,omitempty"`
	TemplateID        string     `json:"template_id,omitempty"`
	Title             string     `json:"title"`
	Status            RunStatus  `json:"status"`
	ExecutedBy        string     `json:"executed_by"`
	LeadUserID        string     `json:"lead_user_id,omitempty"`
	CorrectionOfRunID string     `json:"correction_of_run_id,omitempty"`
	FailSummary       string     `json:"fail_summary,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	LockedAt          *time.Time `json:"locked_at,omitempty"`
	LockedBy          string     `json:"locked_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RunItem is one checklist line inside a run, bound to an immutable
// test-case version, never to a test case directly.
type RunItem struct {
	ID                string    `json:"id"`
	RunID             string    `json:"run_id"`
	TestCaseVersionID string    `json:"testcase_version_id"`
	Position          int       `json:"position"`
	IsRequired        bool      `json:"is_required"`
	CreatedAt         time.Time `json:"created_at"`
}

// RunResult is the single recorded outcome for a run item (1:1).
type RunResult struct {
	ID             string       `json:"id"`
	RunItemID      string       `json:"run_item_id"`
	Status         ResultStatus `json:"status"`
	FailReasonCode string       `json:"fail_reason_code,omitempty"`
	Comment        string       `json:"comment"`
	UpdatedBy      string       `json:"updated_by"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// RunItemDetail joins an item with its result and the bound version content.
type RunItemDetail struct {
	Item    RunItem          `json:"item"`
	Result  RunResult        `json:"result"`
	Version *TestCaseVersion `json:"version,omitempty"`
}

// Attachment is evidence metadata bound to a run and/or a result. The file
// bytes live elsewhere; only the storage key is recorded.
type Attachment struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id,omitempty"`
	RunResultID string    `json:"run_result_id,omitempty"`
	StorageKey  string    `json:"storage_key"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}
