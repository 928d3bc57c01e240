package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/catalog"
	"github.com/contagem-app/contagem/internal/imaging"
	"github.com/contagem-app/contagem/internal/store"
)

// maxCatalogBytes limits catalog uploads.
const maxCatalogBytes = 32 << 20

// ProductsHandler handles catalog lookups, product photos and catalog import.
type ProductsHandler struct {
	DB      *sqlx.DB
	Catalog *catalog.Catalog
}

// Lookup handles GET /api/products/{code}. The code may be a barcode or an
// internal product code.
func (h *ProductsHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.FindByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, r, "looking up product", err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// UploadImage handles PUT /api/products/{id}/image.
func (h *ProductsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.NormalizePhoto(file)
	if err != nil {
		writeError(w, r, "processing product photo", err)
		return
	}

	if err := store.SetProductImage(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		writeError(w, r, "saving product photo", err)
		return
	}

	slog.Info("product photo updated", "product_id", id, "width", photo.Width, "height", photo.Height)
	jsonResponse(w, http.StatusOK, map[string]int{"width": photo.Width, "height": photo.Height})
}

// GetImage handles GET /api/products/{id}/image.
func (h *ProductsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	data, mime, err := store.GetProductImage(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, "getting product photo", err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Import handles POST /api/catalog/import. The multipart field "file" holds
// a ';'-delimited file or, when its name ends in .xlsx, a spreadsheet.
func (h *ProductsHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCatalogBytes)
	if err := r.ParseMultipartForm(maxCatalogBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	var res *catalog.ImportResult
	if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		res, err = h.Catalog.ImportXLSX(r.Context(), file)
	} else {
		res, err = h.Catalog.Import(r.Context(), file)
	}
	if err != nil {
		writeError(w, r, "importing catalog", err)
		return
	}

	slog.Info("catalog import finished", "file", header.Filename,
		"imported", res.Imported, "skipped", res.Skipped, "by", GetClaims(r.Context()).Name)
	jsonResponse(w, http.StatusOK, res)
}
