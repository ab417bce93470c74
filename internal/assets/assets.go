// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assets manages the devices under test and the reusable run
// templates that reference published test-case versions.
package assets

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

// Store is the asset and template persistence layer.
type Store struct {
	db       *coredb.DB
	recorder *audit.Recorder
	access   *access.Service
	nowFn    func() time.Time
}

// NewStore returns an asset Store.
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

// AssetParams carries the mutable fields of an asset.
type AssetParams struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Firmware string `json:"firmware"`
	Location string `json:"location"`
}

// CreateAsset registers a device or environment in a project.
func (s *Store) CreateAsset(ctx context.Context, actorID, projectID string, params AssetParams) (domain.Asset, error) {
	var asset domain.Asset
	if params.Name == "" {
		return asset, domain.Validationf("asset name required")
	}
	if _, err := s.access.Require(ctx, actorID, projectID, access.ActionManageAssets); err != nil {
		return asset, err
	}
	now := s.nowFn()
	asset = domain.Asset{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      params.Name,
		Kind:      params.Kind,
		Firmware:  params.Firmware,
		Location:  params.Location,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO assets (id, project_id, name, kind, firmware, location, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, asset.ID, projectID, asset.Name, asset.Kind, asset.Firmware, asset.Location,
			now.UnixMilli(), now.UnixMilli())
		if coredb.IsForeignKeyViolation(err) {
			return domain.NotFound("project")
		}
		if err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionCreate,
			EntityType:  "asset",
			EntityID:    asset.ID,
			ProjectID:   projectID,
			AfterState:  audit.Snapshot(asset),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Asset{}, err
	}
	return asset, nil
}

// UpdateAsset replaces the mutable fields of an asset.
func (s *Store) UpdateAsset(ctx context.Context, actorID, assetID string, params AssetParams) (domain.Asset, error) {
	var asset domain.Asset
	if params.Name == "" {
		return asset, domain.Validationf("asset name required")
	}
	before, err := s.GetAsset(ctx, assetID)
	if err != nil {
		return asset, err
	}
	if _, err := s.access.Require(ctx, actorID, before.ProjectID, access.ActionManageAssets); err != nil {
		return asset, err
	}
	now := s.nowFn()
	asset = before
	asset.Name = params.Name
	asset.Kind = params.Kind
	asset.Firmware = params.Firmware
	asset.Location = params.Location
	asset.UpdatedAt = now
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE assets SET name = ?, kind = ?, firmware = ?, location = ?, updated_at = ?
WHERE id = ?
`, asset.Name, asset.Kind, asset.Firmware, asset.Location, now.UnixMilli(), assetID); err != nil {
			return fmt.Errorf("update asset: %w", err)
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionUpdate,
			EntityType:  "asset",
			EntityID:    assetID,
			ProjectID:   asset.ProjectID,
			BeforeState: audit.Snapshot(before),
			AfterState:  audit.Snapshot(asset),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.Asset{}, err
	}
	return asset, nil
}

// GetAsset loads one asset by id.
func (s *Store) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	var a domain.Asset
	var created, updated int64
	err := s.db.SQL().QueryRowContext(ctx, `
SELECT id, project_id, name, kind, firmware, location, created_at, updated_at
FROM assets WHERE id = ?
`, id).Scan(&a.ID, &a.ProjectID, &a.Name, &a.Kind, &a.Firmware, &a.Location, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.NotFound("asset")
	}
	if err != nil {
		return a, fmt.Errorf("get asset: %w", err)
	}
	a.CreatedAt = time.UnixMilli(created).UTC()
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return a, nil
}

// ListAssets returns a project's assets ordered by name.
func (s *Store) ListAssets(ctx context.Context, projectID string) ([]domain.Asset, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `
SELECT id, project_id, name, kind, firmware, location, created_at, updated_at
FROM assets WHERE project_id = ? ORDER BY name
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var created, updated int64
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Kind, &a.Firmware, &a.Location, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.CreatedAt = time.UnixMilli(created).UTC()
		a.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// TemplateItemParams references one version inside a template definition.
type TemplateItemParams struct {
	TestCaseVersionID string `json:"testcase_version_id"`
	Position          int    `json:"position"`
	IsRequired        bool   `json:"is_required"`
}

// CreateTemplate stores a named, ordered set of version references. Every
// referenced version must exist; dangling references fail the whole
// transaction with InvalidReference.
func (s *Store) CreateTemplate(ctx context.Context, actorID, projectID, name string, items []TemplateItemParams) (domain.RunTemplate, error) {
	var tpl domain.RunTemplate
	if name == "" {
		return tpl, domain.Validationf("template name required")
	}
	if _, err := s.access.Require(ctx, actorID, projectID, access.ActionEditCatalog); err != nil {
		return tpl, err
	}
	now := s.nowFn()
	tpl = domain.RunTemplate{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		CreatedAt: now,
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO run_templates (id, project_id, name, created_at) VALUES (?, ?, ?, ?)
`, tpl.ID, projectID, name, now.UnixMilli())
		if coredb.IsForeignKeyViolation(err) {
			return domain.NotFound("project")
		}
		if err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
		for _, item := range items {
			row := domain.RunTemplateItem{
				ID:                uuid.NewString(),
				TemplateID:        tpl.ID,
				TestCaseVersionID: item.TestCaseVersionID,
				Position:          item.Position,
				IsRequired:        item.IsRequired,
			}
			required := 0
			if item.IsRequired {
				required = 1
			}
			_, err := tx.ExecContext(ctx, `
INSERT INTO run_template_items (id, template_id, testcase_version_id, position, is_required)
VALUES (?, ?, ?, ?, ?)
`, row.ID, tpl.ID, item.TestCaseVersionID, item.Position, required)
			if coredb.IsForeignKeyViolation(err) {
				return domain.InvalidReference("testcase_version",
					fmt.Sprintf("version %s does not exist", item.TestCaseVersionID))
			}
			if coredb.IsUniqueViolation(err) {
				return domain.Conflictf("template", "version %s listed twice", item.TestCaseVersionID)
			}
			if err != nil {
				return fmt.Errorf("insert template item: %w", err)
			}
			tpl.Items = append(tpl.Items, row)
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorUserID: actorID,
			Action:      audit.ActionCreate,
			EntityType:  "run_template",
			EntityID:    tpl.ID,
			ProjectID:   projectID,
			AfterState:  audit.Snapshot(tpl),
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return domain.RunTemplate{}, err
	}
	return tpl, nil
}

// GetTemplate loads a template with its items ordered by position.
func (s *Store) GetTemplate(ctx context.Context, id string) (domain.RunTemplate, error) {
	var tpl domain.RunTemplate
	var created int64
	err := s.db.SQL().QueryRowContext(ctx, `
SELECT id, project_id, name, created_at FROM run_templates WHERE id = ?
`, id).Scan(&tpl.ID, &tpl.ProjectID, &tpl.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return tpl, domain.NotFound("run_template")
	}
	if err != nil {
		return tpl, fmt.Errorf("get template: %w", err)
	}
	tpl.CreatedAt = time.UnixMilli(created).UTC()

	rows, err := s.db.SQL().QueryContext(ctx, `
SELECT id, template_id, testcase_version_id, position, is_required
FROM run_template_items
WHERE template_id = ?
ORDER BY position, id
`, id)
	if err != nil {
		return tpl, fmt.Errorf("list template items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.RunTemplateItem
		var required int
		if err := rows.Scan(&item.ID, &item.TemplateID, &item.TestCaseVersionID, &item.Position, &required); err != nil {
			return tpl, fmt.Errorf("scan template item: %w", err)
		}
		item.IsRequired = required != 0
		tpl.Items = append(tpl.Items, item)
	}
	return tpl, rows.Err()
}

// ListTemplates returns a project's templates without item expansion.
func (s *Store) ListTemplates(ctx context.Context, projectID string) ([]domain.RunTemplate, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `
SELECT id, project_id, name, created_at FROM run_templates
WHERE project_id = ? ORDER BY name
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.RunTemplate
	for rows.Next() {
		var tpl domain.RunTemplate
		var created int64
		if err := rows.Scan(&tpl.ID, &tpl.ProjectID, &tpl.Name, &created); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		tpl.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, tpl)
	}
	return out, rows.Err()
}
