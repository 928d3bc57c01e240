package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/contagem-app/contagem/internal/model"
)

// countedItemRow is a counted_items row joined with its product. Quantities
// are stored in hundredths and the absent expiry as ''.
type countedItemRow struct {
	ID                  int64     `db:"id"`
	SessionID           int64     `db:"session_id"`
	ProductID           int64     `db:"product_id"`
	ExpiryDate          string    `db:"expiry_date"`
	QuantStoreCents     int64     `db:"quant_loja_cents"`
	QuantStockroomCents int64     `db:"quant_estoque_cents"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
	ProductCode         string    `db:"product_code"`
	Description         string    `db:"description"`
	Barcode             string    `db:"barcode"`
}

func (r countedItemRow) toModel() model.CountedItem {
	item := model.CountedItem{
		ID:             r.ID,
		SessionID:      r.SessionID,
		ProductID:      r.ProductID,
		QuantStore:     fromCents(r.QuantStoreCents),
		QuantStockroom: fromCents(r.QuantStockroomCents),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		ProductCode:    r.ProductCode,
		Description:    r.Description,
		Barcode:        r.Barcode,
	}
	if r.ExpiryDate != "" {
		d := r.ExpiryDate
		item.ExpiryDate = &d
	}
	return item
}

const countedItemSelect = `
	SELECT ci.id, ci.session_id, ci.product_id, ci.expiry_date,
	       ci.quant_loja_cents, ci.quant_estoque_cents, ci.created_at, ci.updated_at,
	       p.code AS product_code, p.description,
	       COALESCE((SELECT b.code FROM barcodes b WHERE b.product_id = p.id ORDER BY b.id LIMIT 1), '') AS barcode
	FROM counted_items ci
	JOIN products p ON p.id = ci.product_id`

// maxQuantityCents is model.MaxQuantity in hundredths. Sums of two values
// below it stay far inside int64.
var maxQuantityCents = toCents(model.MaxQuantity)

// errTotalTooLarge reports an add that would push a stored total past
// model.MaxQuantity.
var errTotalTooLarge = model.Invalid("counted total would exceed the maximum of " + model.MaxQuantity.String())

// nowUTC stamps counted items. Tests replace it to force equal timestamps.
var nowUTC = func() time.Time { return time.Now().UTC() }

func toCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// RecordCount adds delta to the store or stockroom quantity of the
// (product, expiry) record in the tenant's open session, creating the session
// and the record as needed. An empty expiry means no expiry date. The whole
// operation runs in one immediate transaction, so concurrent calls for the
// same key serialize and merge into a single record.
func RecordCount(ctx context.Context, db *sqlx.DB, tenantID, productID int64, delta decimal.Decimal, mode, expiry string) (*model.CountedItem, error) {
	if delta.IsNegative() {
		return nil, model.Invalid("quantity must not be negative")
	}
	if delta.GreaterThan(model.MaxQuantity) {
		return nil, model.ErrQuantityTooLarge
	}
	mode, err := model.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	expiry, err = model.ParseExpiryDate(expiry)
	if err != nil {
		return nil, err
	}

	var storeCents, stockroomCents int64
	if mode == model.ModeStore {
		storeCents = toCents(delta)
	} else {
		stockroomCents = toCents(delta)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	sessionID, err := ensureOpenSession(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM products WHERE id = ?`, productID); err != nil {
		return nil, fmt.Errorf("checking product: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("product %d: %w", productID, model.ErrNotFound)
	}

	// The conflict update is skipped, and no id returned, when either total
	// would pass the maximum.
	now := nowUTC()
	var itemID int64
	err = tx.GetContext(ctx, &itemID,
		`INSERT INTO counted_items
		     (session_id, product_id, expiry_date, quant_loja_cents, quant_estoque_cents, created_at, updated_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM counted_items))
		 ON CONFLICT (session_id, product_id, expiry_date) DO UPDATE SET
		     quant_loja_cents = quant_loja_cents + excluded.quant_loja_cents,
		     quant_estoque_cents = quant_estoque_cents + excluded.quant_estoque_cents,
		     updated_at = excluded.updated_at,
		     seq = excluded.seq
		 WHERE quant_loja_cents + excluded.quant_loja_cents <= ?
		   AND quant_estoque_cents + excluded.quant_estoque_cents <= ?
		 RETURNING id`,
		sessionID, productID, expiry, storeCents, stockroomCents, now, now,
		maxQuantityCents, maxQuantityCents,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errTotalTooLarge
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("recording count: %w", model.ErrConflict)
		}
		return nil, fmt.Errorf("recording count: %w", err)
	}

	var row countedItemRow
	if err := tx.GetContext(ctx, &row, countedItemSelect+` WHERE ci.id = ?`, itemID); err != nil {
		return nil, fmt.Errorf("reading counted item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing count: %w", err)
	}

	item := row.toModel()
	return &item, nil
}

// ensureOpenSession returns the tenant's open session id, creating the
// session if there is none. The partial unique index on open sessions makes
// the insert a no-op when one already exists.
func ensureOpenSession(ctx context.Context, tx *sqlx.Tx, tenantID int64) (int64, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO counting_sessions (tenant_id, status) VALUES (?, ?)`,
		tenantID, model.SessionStatusOpen,
	)
	if err != nil {
		return 0, fmt.Errorf("opening counting session: %w", err)
	}

	var id int64
	err = tx.GetContext(ctx, &id,
		`SELECT id FROM counting_sessions WHERE tenant_id = ? AND status = ?`,
		tenantID, model.SessionStatusOpen,
	)
	if err != nil {
		return 0, fmt.Errorf("querying open session: %w", err)
	}
	return id, nil
}

// GetOpenSession returns the tenant's open session, or nil if there is none.
func GetOpenSession(ctx context.Context, db *sqlx.DB, tenantID int64) (*model.CountingSession, error) {
	s := &model.CountingSession{}
	err := db.GetContext(ctx, s,
		`SELECT id, tenant_id, status, created_at, closed_at
		 FROM counting_sessions WHERE tenant_id = ? AND status = ?`,
		tenantID, model.SessionStatusOpen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting open session: %w", err)
	}
	return s, nil
}

// ListActive returns the items of the tenant's open session, most recently
// updated first. It returns an empty slice when there is no open session.
func ListActive(ctx context.Context, db *sqlx.DB, tenantID int64) ([]model.CountedItem, error) {
	var rows []countedItemRow
	err := db.SelectContext(ctx, &rows,
		countedItemSelect+`
		 JOIN counting_sessions s ON s.id = ci.session_id
		 WHERE s.tenant_id = ? AND s.status = ?
		 ORDER BY ci.updated_at DESC, ci.seq DESC`,
		tenantID, model.SessionStatusOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("listing counted items: %w", err)
	}

	items := make([]model.CountedItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toModel())
	}
	return items, nil
}

// RemoveItem deletes a counted item from the tenant's open session. Items of
// other tenants, of closed sessions, and unknown ids all return
// model.ErrNotFound.
func RemoveItem(ctx context.Context, db *sqlx.DB, tenantID, itemID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM counted_items
		 WHERE id = ? AND session_id IN (
		     SELECT id FROM counting_sessions WHERE tenant_id = ? AND status = ?
		 )`,
		itemID, tenantID, model.SessionStatusOpen,
	)
	if err != nil {
		return fmt.Errorf("removing counted item: %w", err)
	}
	return expectOneRow(result, "counted item", itemID)
}

// ClearSession deletes every item of the tenant's open session and closes it.
// It returns the number of items removed, and is a no-op without an open
// session.
func ClearSession(ctx context.Context, db *sqlx.DB, tenantID int64) (int64, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var sessionID int64
	err = tx.GetContext(ctx, &sessionID,
		`SELECT id FROM counting_sessions WHERE tenant_id = ? AND status = ?`,
		tenantID, model.SessionStatusOpen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying open session: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM counted_items WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("clearing counted items: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking affected rows: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE counting_sessions SET status = ?, closed_at = ? WHERE id = ?`,
		model.SessionStatusClosed, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("closing counting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing session clear: %w", err)
	}
	return removed, nil
}

// SessionStats summarizes the tenant's open session.
func SessionStats(ctx context.Context, db *sqlx.DB, tenantID int64) (*model.CountStats, error) {
	var row struct {
		Items          int   `db:"items"`
		StoreCents     int64 `db:"store_cents"`
		StockroomCents int64 `db:"stockroom_cents"`
	}
	err := db.GetContext(ctx, &row,
		`SELECT COUNT(ci.id) AS items,
		        COALESCE(SUM(ci.quant_loja_cents), 0) AS store_cents,
		        COALESCE(SUM(ci.quant_estoque_cents), 0) AS stockroom_cents
		 FROM counted_items ci
		 JOIN counting_sessions s ON s.id = ci.session_id
		 WHERE s.tenant_id = ? AND s.status = ?`,
		tenantID, model.SessionStatusOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("computing session stats: %w", err)
	}

	return &model.CountStats{
		Items:          row.Items,
		QuantStore:     fromCents(row.StoreCents),
		QuantStockroom: fromCents(row.StockroomCents),
		Total:          fromCents(row.StoreCents + row.StockroomCents),
	}, nil
}
