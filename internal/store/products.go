package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/model"
)

const productColumns = `id, tenant_id, code, description, COALESCE(image_mime, '') AS image_mime, created_at, updated_at`

// UpsertCatalogEntries writes catalog entries for a catalog owner in one
// transaction. Each entry creates or renames the product with its code and
// points its barcode at that product.
func UpsertCatalogEntries(ctx context.Context, db *sqlx.DB, ownerID int64, entries []model.CatalogEntry) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, e := range entries {
		var productID int64
		err := tx.GetContext(ctx, &productID,
			`INSERT INTO products (tenant_id, code, description, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (tenant_id, code) DO UPDATE SET
			     description = excluded.description,
			     updated_at = excluded.updated_at
			 RETURNING id`,
			ownerID, e.Code, e.Description, now, now,
		)
		if err != nil {
			return fmt.Errorf("upserting product %q: %w", e.Code, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO barcodes (tenant_id, code, product_id) VALUES (?, ?, ?)
			 ON CONFLICT (tenant_id, code) DO UPDATE SET product_id = excluded.product_id`,
			ownerID, e.Barcode, productID,
		)
		if err != nil {
			return fmt.Errorf("upserting barcode %q: %w", e.Barcode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing catalog import: %w", err)
	}
	return nil
}

// GetProduct returns a product by ID, with its barcodes.
func GetProduct(ctx context.Context, db *sqlx.DB, id int64) (*model.Product, error) {
	p := &model.Product{}
	err := db.GetContext(ctx, p, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return withBarcodes(ctx, db, p)
}

// FindProductByBarcode returns the product a barcode resolves to within a
// catalog owner's catalog.
func FindProductByBarcode(ctx context.Context, db *sqlx.DB, ownerID int64, barcode string) (*model.Product, error) {
	p := &model.Product{}
	err := db.GetContext(ctx, p,
		`SELECT p.id, p.tenant_id, p.code, p.description, COALESCE(p.image_mime, '') AS image_mime,
		        p.created_at, p.updated_at
		 FROM barcodes b
		 JOIN products p ON p.id = b.product_id
		 WHERE b.tenant_id = ? AND b.code = ?`,
		ownerID, barcode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding product by barcode: %w", err)
	}
	return withBarcodes(ctx, db, p)
}

// FindProductByCode returns the product with an internal code within a
// catalog owner's catalog.
func FindProductByCode(ctx context.Context, db *sqlx.DB, ownerID int64, code string) (*model.Product, error) {
	p := &model.Product{}
	err := db.GetContext(ctx, p,
		`SELECT `+productColumns+` FROM products WHERE tenant_id = ? AND code = ?`,
		ownerID, code,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding product by code: %w", err)
	}
	return withBarcodes(ctx, db, p)
}

// ListBarcodes returns the barcodes of a product in insertion order.
func ListBarcodes(ctx context.Context, db *sqlx.DB, productID int64) ([]string, error) {
	codes := []string{}
	err := db.SelectContext(ctx, &codes,
		`SELECT code FROM barcodes WHERE product_id = ? ORDER BY id`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing barcodes: %w", err)
	}
	return codes, nil
}

func withBarcodes(ctx context.Context, db *sqlx.DB, p *model.Product) (*model.Product, error) {
	codes, err := ListBarcodes(ctx, db, p.ID)
	if err != nil {
		return nil, err
	}
	p.Barcodes = codes
	return p, nil
}

// SetProductImage stores a processed product photo.
func SetProductImage(ctx context.Context, db *sqlx.DB, id int64, data []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET image = ?, image_mime = ?, updated_at = ? WHERE id = ?`,
		data, mime, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting product image: %w", err)
	}
	return expectOneRow(result, "product", id)
}

// GetProductImage returns a product photo and its MIME type. A product
// without a photo returns nil data.
func GetProductImage(ctx context.Context, db *sqlx.DB, id int64) ([]byte, string, error) {
	var row struct {
		Image []byte `db:"image"`
		Mime  string `db:"image_mime"`
	}
	err := db.GetContext(ctx, &row,
		`SELECT image, COALESCE(image_mime, '') AS image_mime FROM products WHERE id = ?`, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("product %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting product image: %w", err)
	}
	return row.Image, row.Mime, nil
}
