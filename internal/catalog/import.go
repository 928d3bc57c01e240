package catalog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/contagem-app/contagem/internal/model"
	"github.com/contagem-app/contagem/internal/store"
)

// Import file columns.
const (
	ColumnCode        = "cod_item"
	ColumnBarcode     = "cod_barra"
	ColumnDescription = "des_item"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ImportResult reports how many rows were written and how many were skipped
// for missing fields.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import reads a ';'-delimited catalog file with a header row naming the
// cod_item, cod_barra and des_item columns, in any order. Rows missing any of
// the three fields are skipped. All remaining rows are written in one
// transaction.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, model.Invalid(fmt.Sprintf("parsing catalog: %v", err))
	}
	return c.importRecords(ctx, records)
}

// ImportXLSX reads the first sheet of a spreadsheet with the same layout as
// the delimited format.
func (c *Catalog) ImportXLSX(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, model.Invalid(fmt.Sprintf("reading spreadsheet: %v", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, model.Invalid("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, model.Invalid(fmt.Sprintf("reading sheet %s: %v", sheets[0], err))
	}
	return c.importRecords(ctx, rows)
}

func (c *Catalog) importRecords(ctx context.Context, records [][]string) (*ImportResult, error) {
	if len(records) == 0 {
		return nil, model.Invalid("catalog file is empty")
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColumnCode, ColumnBarcode, ColumnDescription} {
		if _, ok := cols[required]; !ok {
			return nil, model.Invalid(fmt.Sprintf("catalog header is missing column %s", required))
		}
	}

	field := func(rec []string, name string) string {
		i := cols[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	result := &ImportResult{}
	var entries []model.CatalogEntry
	for n, rec := range records[1:] {
		e := model.CatalogEntry{
			Code:        field(rec, ColumnCode),
			Barcode:     field(rec, ColumnBarcode),
			Description: field(rec, ColumnDescription),
		}
		if e.Code == "" && e.Barcode == "" && e.Description == "" {
			continue
		}
		if e.Code == "" || e.Barcode == "" || e.Description == "" {
			slog.Warn("skipping catalog row with missing fields",
				"row", n+2, "code", e.Code, "barcode", e.Barcode)
			result.Skipped++
			continue
		}
		entries = append(entries, e)
	}

	if len(entries) > 0 {
		if err := store.UpsertCatalogEntries(ctx, c.DB, c.OwnerID, entries); err != nil {
			return nil, err
		}
		c.Invalidate(ctx)
	}
	result.Imported = len(entries)

	slog.Info("catalog imported", "owner_id", c.OwnerID,
		"imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}
