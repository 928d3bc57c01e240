package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/model"
)

// CreateHistoryEntry archives a CSV snapshot for a tenant.
func CreateHistoryEntry(ctx context.Context, db *sqlx.DB, tenantID int64, fileName, csvContent string) (*model.HistoryEntry, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, model.Invalid("file name is required")
	}
	if csvContent == "" {
		return nil, model.Invalid("csv content is required")
	}

	entry := &model.HistoryEntry{
		TenantID:   tenantID,
		FileName:   fileName,
		CSVContent: csvContent,
		CreatedAt:  time.Now().UTC(),
	}
	err := db.GetContext(ctx, &entry.ID,
		`INSERT INTO history_entries (tenant_id, file_name, csv_content, created_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		tenantID, fileName, csvContent, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating history entry: %w", err)
	}
	return entry, nil
}

// ListHistory returns a tenant's history entries, newest first, without
// their CSV content.
func ListHistory(ctx context.Context, db *sqlx.DB, tenantID int64) ([]model.HistoryEntry, error) {
	entries := []model.HistoryEntry{}
	err := db.SelectContext(ctx, &entries,
		`SELECT id, tenant_id, file_name, created_at
		 FROM history_entries WHERE tenant_id = ?
		 ORDER BY created_at DESC, id DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return entries, nil
}

// GetHistoryEntry returns one of a tenant's history entries with its content.
func GetHistoryEntry(ctx context.Context, db *sqlx.DB, tenantID, id int64) (*model.HistoryEntry, error) {
	entry := &model.HistoryEntry{}
	err := db.GetContext(ctx, entry,
		`SELECT id, tenant_id, file_name, csv_content, created_at
		 FROM history_entries WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history entry %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting history entry: %w", err)
	}
	return entry, nil
}

// DeleteHistoryEntry deletes one of a tenant's history entries.
func DeleteHistoryEntry(ctx context.Context, db *sqlx.DB, tenantID, id int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM history_entries WHERE id = ? AND tenant_id = ?`, id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("deleting history entry: %w", err)
	}
	return expectOneRow(result, "history entry", id)
}
