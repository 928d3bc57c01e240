package model

import "time"

// Product is a catalog entry owned by the catalog tenant.
type Product struct {
	ID          int64     `db:"id" json:"id"`
	TenantID    int64     `db:"tenant_id" json:"-"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	ImageMime   string    `db:"image_mime" json:"image_mime,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Barcodes []string `db:"-" json:"barcodes"`
}

// CatalogEntry is one row of a catalog import: a product code, one of its
// barcodes and its description.
type CatalogEntry struct {
	Code        string
	Barcode     string
	Description string
}
