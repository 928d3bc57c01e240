package model

import "time"

// HistoryEntry is an archived count snapshot.
type HistoryEntry struct {
	ID         int64     `db:"id" json:"id"`
	TenantID   int64     `db:"tenant_id" json:"-"`
	FileName   string    `db:"file_name" json:"file_name"`
	CSVContent string    `db:"csv_content" json:"csv_content,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
