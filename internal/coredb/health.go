// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StorageStats captures high-level information about the tracker DB.
type StorageStats struct {
	Driver        string `json:"driver"`
	OK            bool   `json:"ok"`
	BytesUsed     int64  `json:"bytes_used"`
	MaxBytes      int64  `json:"max_bytes"`
	AuditEntries  int64  `json:"audit_entries"`
	SchemaVersion int64  `json:"schema_version"`
}

// CollectStorageStats inspects the backing SQLite database and returns
// aggregate storage statistics suitable for health monitoring.
func CollectStorageStats(ctx context.Context, db *DB) (StorageStats, error) {
	if db == nil || db.sql == nil {
		return StorageStats{}, errors.New("coredb: database not initialised")
	}
	conn := db.SQL()
	stats := StorageStats{Driver: sqliteDriverName}

	pageSize, err := querySingleInt(ctx, conn, "PRAGMA page_size;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup page_size: %w", err)
	}
	pageCount, err := querySingleInt(ctx, conn, "PRAGMA page_count;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup page_count: %w", err)
	}
	maxPageCount, err := querySingleInt(ctx, conn, "PRAGMA max_page_count;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup max_page_count: %w", err)
	}
	userVersion, err := querySingleInt(ctx, conn, "PRAGMA user_version;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup user_version: %w", err)
	}
	stats.SchemaVersion = userVersion

	var auditEntries sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&auditEntries); err != nil {
		return stats, fmt.Errorf("coredb: audit log inspection: %w", err)
	}
	stats.AuditEntries = auditEntries.Int64

	stats.BytesUsed = pageSize * pageCount
	stats.MaxBytes = pageSize * maxPageCount
	stats.OK = stats.MaxBytes <= 0 || stats.BytesUsed < stats.MaxBytes
	return stats, nil
}

func querySingleInt(ctx context.Context, conn *sql.DB, stmt string) (int64, error) {
	var v int64
	if err := conn.QueryRowContext(ctx, stmt).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}
