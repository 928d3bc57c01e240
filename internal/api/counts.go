package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/contagem-app/contagem/internal/catalog"
	"github.com/contagem-app/contagem/internal/model"
	"github.com/contagem-app/contagem/internal/quantity"
	"github.com/contagem-app/contagem/internal/report"
	"github.com/contagem-app/contagem/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CountsHandler handles the counting session of the authenticated user.
type CountsHandler struct {
	DB      *sqlx.DB
	Catalog *catalog.Catalog
}

type evaluateRequest struct {
	Expression string `json:"expression"`
}

type evaluateResponse struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// recordRequest identifies the product by id or, when product_id is absent,
// by a scanned code. Quantity is a JSON number or an expression string.
type recordRequest struct {
	ProductID  int64           `json:"product_id"`
	Code       string          `json:"code"`
	Quantity   json.RawMessage `json:"quantity"`
	Mode       string          `json:"mode"`
	ExpiryDate *string         `json:"expiry_date"`
}

// parseQuantity accepts a JSON number or a string holding a number or an
// arithmetic expression.
func parseQuantity(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, model.Invalid("quantity required")
	}

	if raw[0] == '"' {
		var expr string
		if err := json.Unmarshal(raw, &expr); err != nil {
			return decimal.Zero, model.Invalid("quantity must be a number or an expression")
		}
		return quantity.Evaluate(expr)
	}

	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, model.Invalid("quantity must be a number or an expression")
	}
	if d.IsNegative() {
		return decimal.Zero, quantity.ErrInvalidQuantity
	}
	d = d.Round(2)
	if d.GreaterThan(model.MaxQuantity) {
		return decimal.Zero, quantity.ErrQuantityTooLarge
	}
	return d, nil
}

// Evaluate handles POST /api/quantity/evaluate.
func (h *CountsHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := quantity.Evaluate(req.Expression)
	if err != nil {
		writeError(w, r, "evaluating quantity", err)
		return
	}
	jsonResponse(w, http.StatusOK, evaluateResponse{Quantity: q})
}

// List handles GET /api/count.
func (h *CountsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListActive(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, "listing count", err)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Record handles POST /api/count.
func (h *CountsHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	delta, err := parseQuantity(req.Quantity)
	if err != nil {
		writeError(w, r, "recording count", err)
		return
	}

	productID := req.ProductID
	if productID == 0 {
		if req.Code == "" {
			jsonError(w, http.StatusBadRequest, "product_id or code required")
			return
		}
		p, err := h.Catalog.FindByCode(r.Context(), req.Code)
		if err != nil {
			writeError(w, r, "recording count", err)
			return
		}
		productID = p.ID
	}

	expiry := ""
	if req.ExpiryDate != nil {
		expiry = *req.ExpiryDate
	}

	claims := GetClaims(r.Context())
	item, err := store.RecordCount(r.Context(), h.DB, claims.UserID, productID, delta, req.Mode, expiry)
	if err != nil {
		writeError(w, r, "recording count", err)
		return
	}

	slog.Info("count recorded", "user", claims.Name, "product_id", productID,
		"mode", req.Mode, "quantity", delta.String(), "item_id", item.ID)
	jsonResponse(w, http.StatusOK, item)
}

// Remove handles DELETE /api/count/items/{id}.
func (h *CountsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := store.RemoveItem(r.Context(), h.DB, GetClaims(r.Context()).UserID, id); err != nil {
		writeError(w, r, "removing counted item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/count.
func (h *CountsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	removed, err := store.ClearSession(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, "clearing count", err)
		return
	}

	slog.Info("count cleared", "user", claims.Name, "removed", removed)
	jsonResponse(w, http.StatusOK, map[string]int64{"removed": removed})
}

// Stats handles GET /api/count/stats.
func (h *CountsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.SessionStats(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, "computing count stats", err)
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// Export handles GET /api/count/export?format=csv|xlsx.
func (h *CountsHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		jsonError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	items, err := store.ListActive(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, "exporting count", err)
		return
	}
	if len(items) == 0 {
		jsonError(w, http.StatusBadRequest, "no counted items to export")
		return
	}
	rows := report.Project(items)

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case "xlsx":
		err = report.WriteXLSX(&buf, rows)
		contentType = xlsxContentType
	default:
		err = report.WriteCSV(&buf, rows)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		writeError(w, r, "exporting count", err)
		return
	}

	writeAttachment(w, contentType, report.FileName(time.Now().UTC(), format), buf.Bytes())
}

func writeAttachment(w http.ResponseWriter, contentType, fileName string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
