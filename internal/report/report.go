// Package report turns a counting session into the flat table operators
// export and archive.
package report

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contagem-app/contagem/internal/model"
)

// Header is the column row of exported reports.
var Header = []string{
	"codigo_de_barras",
	"codigo_produto",
	"descricao",
	"quant_loja",
	"quant_estoque",
	"data_validade",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one exported line. ExpiryDate is YYYY-MM-DD or empty.
type Row struct {
	Barcode        string
	ProductCode    string
	Description    string
	QuantStore     decimal.Decimal
	QuantStockroom decimal.Decimal
	ExpiryDate     string
}

// Project maps counted items to report rows, keeping their order.
func Project(items []model.CountedItem) []Row {
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		r := Row{
			Barcode:        it.Barcode,
			ProductCode:    it.ProductCode,
			Description:    it.Description,
			QuantStore:     it.QuantStore,
			QuantStockroom: it.QuantStockroom,
		}
		if it.ExpiryDate != nil {
			r.ExpiryDate = *it.ExpiryDate
		}
		rows = append(rows, r)
	}
	return rows
}

func (r Row) fields() []string {
	return []string{
		r.Barcode,
		r.ProductCode,
		r.Description,
		formatQuantity(r.QuantStore),
		formatQuantity(r.QuantStockroom),
		r.ExpiryDate,
	}
}

func formatQuantity(d decimal.Decimal) string {
	return d.Round(2).String()
}

// FileName returns the export file name for the UTC day of now, e.g.
// contagem_2025-03-01.csv.
func FileName(now time.Time, ext string) string {
	return fmt.Sprintf("contagem_%s.%s", now.UTC().Format(model.DateLayout), strings.TrimPrefix(ext, "."))
}

// WriteCSV writes rows as UTF-8 with a byte order mark. Fields are ';'
// separated and always quoted; lines end in CRLF.
func WriteCSV(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(utf8BOM); err != nil {
		return err
	}
	writeRecord(bw, Header)
	for _, r := range rows {
		writeRecord(bw, r.fields())
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(';')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(f, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteString("\r\n")
}

// CSV returns WriteCSV output as a string.
func CSV(rows []Row) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ParseCSV reads a report written by WriteCSV. The header row must match.
func ParseCSV(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = ';'
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, model.Invalid("report is empty")
	}
	if err != nil {
		return nil, model.Invalid(fmt.Sprintf("parsing report header: %v", err))
	}
	for i, name := range Header {
		if header[i] != name {
			return nil, model.Invalid(fmt.Sprintf("unexpected report column %q, want %q", header[i], name))
		}
	}

	rows := []Row{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, model.Invalid(fmt.Sprintf("parsing report: %v", err))
		}

		store, err := decimal.NewFromString(rec[3])
		if err != nil {
			return nil, model.Invalid(fmt.Sprintf("invalid quant_loja %q", rec[3]))
		}
		stockroom, err := decimal.NewFromString(rec[4])
		if err != nil {
			return nil, model.Invalid(fmt.Sprintf("invalid quant_estoque %q", rec[4]))
		}
		rows = append(rows, Row{
			Barcode:        rec[0],
			ProductCode:    rec[1],
			Description:    rec[2],
			QuantStore:     store,
			QuantStockroom: stockroom,
			ExpiryDate:     rec[5],
		})
	}
	return rows, nil
}
