// Package catalog resolves scanned codes against the shared product catalog
// and imports catalog files into it.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/model"
	"github.com/contagem-app/contagem/internal/store"
)

// Cache is a read-through cache of code lookups. GetProduct returns nil on a
// miss together with the generation the miss was observed under; SetProduct
// writes under that generation, never a newer one.
type Cache interface {
	GetProduct(ctx context.Context, ownerID int64, code string) (*model.Product, int64, error)
	SetProduct(ctx context.Context, ownerID, gen int64, code string, p *model.Product) error
	Invalidate(ctx context.Context, ownerID int64) error
}

// Catalog is the product catalog owned by one designated user. Every tenant
// resolves scans against it.
type Catalog struct {
	DB      *sqlx.DB
	OwnerID int64
	Cache   Cache // optional
}

// New creates a Catalog. cache may be nil.
func New(db *sqlx.DB, ownerID int64, cache Cache) *Catalog {
	return &Catalog{DB: db, OwnerID: ownerID, Cache: cache}
}

// FindByCode resolves a scanned code, trying barcodes first and then internal
// product codes. It returns model.ErrNotFound when neither matches.
func (c *Catalog) FindByCode(ctx context.Context, code string) (*model.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.Invalid("code is required")
	}

	// The generation is read before the database so an import committing
	// in between cannot get a stale product cached under its new generation.
	var (
		gen       int64
		cacheable bool
	)
	if c.Cache != nil {
		p, g, err := c.Cache.GetProduct(ctx, c.OwnerID, code)
		if err != nil {
			slog.Warn("catalog cache read failed", "code", code, "error", err)
		} else if p != nil {
			return p, nil
		} else {
			gen, cacheable = g, true
		}
	}

	p, err := store.FindProductByBarcode(ctx, c.DB, c.OwnerID, code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p, err = store.FindProductByCode(ctx, c.DB, c.OwnerID, code)
		if err != nil {
			return nil, err
		}
	}
	if p == nil {
		return nil, fmt.Errorf("product %q: %w", code, model.ErrNotFound)
	}

	if cacheable {
		if err := c.Cache.SetProduct(ctx, c.OwnerID, gen, code, p); err != nil {
			slog.Warn("catalog cache write failed", "code", code, "error", err)
		}
	}
	return p, nil
}

// Invalidate drops cached lookups after the catalog changed.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Invalidate(ctx, c.OwnerID); err != nil {
		slog.Warn("catalog cache invalidation failed", "error", err)
	}
}
