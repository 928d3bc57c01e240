package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/db"
	"github.com/contagem-app/contagem/internal/model"
)

// seedCatalog creates the catalog owner and imports the given entries.
func seedCatalog(t *testing.T, database *sqlx.DB, entries ...model.CatalogEntry) int64 {
	t.Helper()
	ctx := context.Background()

	owner, err := CreateUser(ctx, database, "catalog", "hash", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := UpsertCatalogEntries(ctx, database, owner.ID, entries); err != nil {
		t.Fatalf("UpsertCatalogEntries: %v", err)
	}
	return owner.ID
}

func TestUpsertCatalogEntries(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	ownerID := seedCatalog(t, database,
		model.CatalogEntry{Code: "A1", Barcode: "789001", Description: "Widget"},
		model.CatalogEntry{Code: "A1", Barcode: "789002", Description: "Widget 2"},
		model.CatalogEntry{Code: "B1", Barcode: "789003", Description: "Gadget"},
	)

	p, err := FindProductByCode(ctx, database, ownerID, "A1")
	if err != nil {
		t.Fatalf("FindProductByCode: %v", err)
	}
	if p == nil {
		t.Fatal("expected product A1")
	}
	if p.Description != "Widget 2" {
		t.Errorf("expected description to be updated to 'Widget 2', got %q", p.Description)
	}
	if len(p.Barcodes) != 2 || p.Barcodes[0] != "789001" || p.Barcodes[1] != "789002" {
		t.Errorf("unexpected barcodes: %v", p.Barcodes)
	}

	// Re-importing a barcode under another product moves it.
	err = UpsertCatalogEntries(ctx, database, ownerID, []model.CatalogEntry{
		{Code: "B1", Barcode: "789001", Description: "Gadget"},
	})
	if err != nil {
		t.Fatalf("UpsertCatalogEntries: %v", err)
	}
	moved, err := FindProductByBarcode(ctx, database, ownerID, "789001")
	if err != nil {
		t.Fatalf("FindProductByBarcode: %v", err)
	}
	if moved == nil || moved.Code != "B1" {
		t.Fatalf("expected barcode to resolve to B1, got %+v", moved)
	}
}

func TestFindProductScopedToOwner(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	ownerID := seedCatalog(t, database,
		model.CatalogEntry{Code: "A1", Barcode: "B1", Description: "Widget"},
	)

	for _, code := range []string{"A1", "B1"} {
		var (
			p   *model.Product
			err error
		)
		if code == "B1" {
			p, err = FindProductByBarcode(ctx, database, ownerID+1, code)
		} else {
			p, err = FindProductByCode(ctx, database, ownerID+1, code)
		}
		if err != nil {
			t.Fatalf("lookup %q: %v", code, err)
		}
		if p != nil {
			t.Errorf("expected %q not to be visible to another tenant", code)
		}
	}
}

func TestProductImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	ownerID := seedCatalog(t, database,
		model.CatalogEntry{Code: "A1", Barcode: "B1", Description: "Widget"},
	)
	p, _ := FindProductByCode(ctx, database, ownerID, "A1")

	data, mime, err := GetProductImage(ctx, database, p.ID)
	if err != nil {
		t.Fatalf("GetProductImage: %v", err)
	}
	if data != nil || mime != "" {
		t.Errorf("expected no image, got %d bytes of %q", len(data), mime)
	}

	if err := SetProductImage(ctx, database, p.ID, []byte{1, 2, 3}, "image/jpeg"); err != nil {
		t.Fatalf("SetProductImage: %v", err)
	}
	data, mime, err = GetProductImage(ctx, database, p.ID)
	if err != nil {
		t.Fatalf("GetProductImage: %v", err)
	}
	if len(data) != 3 || mime != "image/jpeg" {
		t.Errorf("unexpected image: %d bytes of %q", len(data), mime)
	}

	got, _ := GetProduct(ctx, database, p.ID)
	if got.ImageMime != "image/jpeg" {
		t.Errorf("expected image_mime to be set, got %q", got.ImageMime)
	}

	if err := SetProductImage(ctx, database, 9999, []byte{1}, "image/jpeg"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown product, got %v", err)
	}
	if _, _, err := GetProductImage(ctx, database, 9999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown product, got %v", err)
	}
}
