// SPDX-License-Identifier: AGPL-3.0-or-later

// Package access resolves effective roles and manages users, projects, and
// memberships. Authorization is a capability-set union over the global and
// project role; there is no inheritance chain to walk.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uran-qa/uran/internal/audit"
	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/domain"
)

// Action names a capability checked before a mutating or sensitive operation.
type Action string

const (
	ActionView          Action = "view"
	ActionExecuteRuns   Action = "execute_runs"
	ActionLockRuns      Action = "lock_runs"
	ActionEditCatalog   Action = "edit_catalog"
	ActionManageAssets  Action = "manage_assets"
	ActionManageMembers Action = "manage_members"
	ActionReadAudit     Action = "read_audit"
)

// RoleSet is the resolved authorization context for one user, optionally
// scoped to a project.
type RoleSet struct {
	UserID    string
	Global    domain.GlobalRole
	Project   domain.ProjectRole
	IsMember  bool
	ProjectID string
}

// Allows reports whether the role set grants the action. Each action is an
// explicit union of qualifying roles.
func (rs RoleSet) Allows(action Action) bool {
	if rs.Global == domain.GlobalAdmin {
		return true
	}
	switch action {
	case ActionView:
		return rs.IsMember || rs.Global != ""
	case ActionExecuteRuns:
		return rs.Project == domain.ProjectEditor || rs.Project == domain.ProjectOwner ||
			rs.Global == domain.GlobalEngineer || rs.Global == domain.GlobalLead
	case ActionLockRuns:
		return rs.Project == domain.ProjectOwner || rs.Global == domain.GlobalLead
	case ActionEditCatalog, ActionManageAssets:
		return rs.Project == domain.ProjectEditor || rs.Project == domain.ProjectOwner ||
			rs.Global == domain.GlobalLead
	case ActionManageMembers:
		return rs.Project == domain.ProjectOwner
	case ActionReadAudit:
		return rs.IsMember || rs.Global == domain.GlobalLead
	}
	return false
}

// Service resolves roles and manages principals and memberships.
type Service struct {
	db       *coredb.DB
	recorder *audit.Recorder
	nowFn    func() time.Time
}

// NewService returns an access Service backed by the provided DB.
func NewService(db *coredb.DB, recorder *audit.Recorder) *Service {
	return &Service{
		db:       db,
		recorder: recorder,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Resolve loads the user's global role and, when projectID is non-empty, the
// membership role for that project. Inactive or unknown users resolve to
// NotFound.
func (s *Service) Resolve(ctx context.Context, userID, projectID string) (RoleSet, error) {
	rs := RoleSet{UserID: userID, ProjectID: projectID}
	if userID == "" {
		return rs, domain.NotFound("user")
	}
	var global string
	var active bool
	err := s.db.SQL().QueryRowContext(ctx,
		`SELECT global_role, is_active FROM users WHERE id = ?`, userID,
	).Scan(&global, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return rs, domain.NotFound("user")
	}
	if err != nil {
		return rs, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	if !active {
		return rs, domain.NotFound("user")
	}
	rs.Global = domain.GlobalRole(global)

	if projectID != "" {
		var role string
		err = s.db.SQL().QueryRowContext(ctx,
			`SELECT role FROM project_members WHERE project_id = ? AND user_id = ?`,
			projectID, userID,
		).Scan(&role)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// not a member; global role may still qualify
		case err != nil:
			return rs, fmt.Errorf("resolve membership: %w", err)
		default:
			rs.Project = domain.ProjectRole(role)
			rs.IsMember = true
		}
	}
	return rs, nil
}

// Require resolves the actor and fails with Forbidden when the action is not
// granted.
func (s *Service) Require(ctx context.Context, userID, projectID string, action Action) (RoleSet, error) {
	rs, err := s.Resolve(ctx, userID, projectID)
	if err != nil {
		return rs, err
	}
	if !rs.Allows(action) {
		return rs, domain.Forbidden(string(action))
	}
	return rs, nil
}

// CreateUser inserts a new principal. Intended for init/CLI seeding.
func (s *Service) CreateUser(ctx context.Context, actorID, email, displayName string, role domain.GlobalRole) (domain.User, error) {
	var user domain.User
	if email == "" || displayName == "" {
		return user, domain.Validationf("email and display name required")
	}
	if !role.Valid() {
		return user, domain.Validationf("unknown global role %q", role)
	}
	now := s.nowFn()
	user = domain.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		GlobalRole:  role,
		IsActive:    true,
		CreatedAt:   now,
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO users (id, email, display_name, global_role, is_active, created_at)
VALUES (?, ?, ?, ?, 1, ?)
`, user.ID, user.Email, user.DisplayName, string(user.GlobalRole), now.UnixMilli())
		if coredb.IsUniqueViolation(err) {
			return domain.Conflictf("user", "email %s already registered", email)
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		actor := actorID
		if actor == "" {
			actor = user.ID
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actor,
			Action:      audit.ActionCreate,
			EntityType:  "user",
			EntityID:    user.ID,
			AfterState:  audit.Snapshot(user),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUser loads one user by id.
func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var role string
	var active int
	var createdMillis int64
	err := s.db.SQL().QueryRowContext(ctx, `
SELECT id, email, display_name, global_role, is_active, created_at
FROM users WHERE id = ?
`, id).Scan(&u.ID, &u.Email, &u.DisplayName, &role, &active, &createdMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return u, domain.NotFound("user")
	}
	if err != nil {
		return u, fmt.Errorf("get user: %w", err)
	}
	u.GlobalRole = domain.GlobalRole(role)
	u.IsActive = active != 0
	u.CreatedAt = time.UnixMilli(createdMillis).UTC()
	return u, nil
}

// CreateProject creates a project and enrols the actor as its owner member
// in the same transaction.
func (s *Service) CreateProject(ctx context.Context, actorID, name string) (domain.Project, error) {
	var project domain.Project
	if name == "" {
		return project, domain.Validationf("project name required")
	}
	if _, err := s.Resolve(ctx, actorID, ""); err != nil {
		return project, err
	}
	now := s.nowFn()
	project = domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		OwnerUserID: actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO projects (id, name, owner_user_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, project.ID, project.Name, project.OwnerUserID, now.UnixMilli(), now.UnixMilli()); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)
`, project.ID, actorID, string(domain.ProjectOwner)); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionCreate,
			EntityType:  "project",
			EntityID:    project.ID,
			ProjectID:   project.ID,
			AfterState:  audit.Snapshot(project),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// ProjectMembership pairs a project with the caller's role in it.
type ProjectMembership struct {
	Project domain.Project     `json:"project"`
	Role    domain.ProjectRole `json:"role"`
}

// ListProjects returns the projects where the user holds a membership,
// together with the membership role.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]ProjectMembership, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `
SELECT p.id, p.name, p.owner_user_id, p.created_at, p.updated_at, m.role
FROM projects p
JOIN project_members m ON m.project_id = p.id
WHERE m.user_id = ?
ORDER BY p.created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectMembership
	for rows.Next() {
		var p domain.Project
		var role string
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerUserID, &created, &updated, &role); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = time.UnixMilli(created).UTC()
		p.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, ProjectMembership{Project: p, Role: domain.ProjectRole(role)})
	}
	return out, rows.Err()
}

// AddMember enrols a user in a project. Only editor and viewer can be
// granted; ownership is fixed at project creation.
func (s *Service) AddMember(ctx context.Context, actorID, projectID, userID string, role domain.ProjectRole) (domain.Member, error) {
	var member domain.Member
	if role != domain.ProjectEditor && role != domain.ProjectViewer {
		return member, domain.Validationf("member role must be editor or viewer, got %q", role)
	}
	if _, err := s.Require(ctx, actorID, projectID, ActionManageMembers); err != nil {
		return member, err
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return member, err
	}
	member = domain.Member{ProjectID: projectID, UserID: userID, Role: role}
	now := s.nowFn()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)
`, projectID, userID, string(role))
		if coredb.IsUniqueViolation(err) {
			return domain.Conflictf("member", "user %s is already a member", userID)
		}
		if coredb.IsForeignKeyViolation(err) {
			return domain.NotFound("project")
		}
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionAddMember,
			EntityType:  "member",
			EntityID:    userID,
			ProjectID:   projectID,
			AfterState:  audit.Snapshot(member),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// UpdateMemberRole changes an existing membership. The owner's role is
// immutable.
func (s *Service) UpdateMemberRole(ctx context.Context, actorID, projectID, userID string, role domain.ProjectRole) (domain.Member, error) {
	var member domain.Member
	if role != domain.ProjectEditor && role != domain.ProjectViewer {
		return member, domain.Validationf("member role must be editor or viewer, got %q", role)
	}
	if _, err := s.Require(ctx, actorID, projectID, ActionManageMembers); err != nil {
		return member, err
	}
	now := s.nowFn()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := memberRoleTx(ctx, tx, projectID, userID)
		if err != nil {
			return err
		}
		if current == domain.ProjectOwner {
			return domain.Conflictf("member", "owner role cannot be changed")
		}
		before := domain.Member{ProjectID: projectID, UserID: userID, Role: current}
		if _, err := tx.ExecContext(ctx, `
UPDATE project_members SET role = ? WHERE project_id = ? AND user_id = ?
`, string(role), projectID, userID); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		member = domain.Member{ProjectID: projectID, UserID: userID, Role: role}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionUpdate,
			EntityType:  "member",
			EntityID:    userID,
			ProjectID:   projectID,
			BeforeState: audit.Snapshot(before),
			AfterState:  audit.Snapshot(member),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// RemoveMember deletes a membership. The owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actorID, projectID, userID string) error {
	if _, err := s.Require(ctx, actorID, projectID, ActionManageMembers); err != nil {
		return err
	}
	now := s.nowFn()
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := memberRoleTx(ctx, tx, projectID, userID)
		if err != nil {
			return err
		}
		if current == domain.ProjectOwner {
			return domain.Conflictf("member", "owner cannot be removed")
		}
		before := domain.Member{ProjectID: projectID, UserID: userID, Role: current}
		if _, err := tx.ExecContext(ctx, `
DELETE FROM project_members WHERE project_id = ? AND user_id = ?
`, projectID, userID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionRemoveMember,
			EntityType:  "member",
			EntityID:    userID,
			ProjectID:   projectID,
			BeforeState: audit.Snapshot(before),
			Timestamp:   now,
		})
		return err
	})
}

// ListMembers returns all memberships of a project.
func (s *Service) ListMembers(ctx context.Context, actorID, projectID string) ([]domain.Member, error) {
	if _, err := s.Require(ctx, actorID, projectID, ActionView); err != nil {
		return nil, err
	}
	rows, err := s.db.SQL().QueryContext(ctx, `
SELECT project_id, user_id, role FROM project_members
WHERE project_id = ?
ORDER BY user_id
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		var role string
		if err := rows.Scan(&m.ProjectID, &m.UserID, &role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = domain.ProjectRole(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

func memberRoleTx(ctx context.Context, tx *sql.Tx, projectID, userID string) (domain.ProjectRole, error) {
	var role string
	err := tx.QueryRowContext(ctx,
		`SELECT role FROM project_members WHERE project_id = ? AND user_id = ?`,
		projectID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFound("member")
	}
	if err != nil {
		return "", fmt.Errorf("lookup member: %w", err)
	}
	return domain.ProjectRole(role), nil
}
