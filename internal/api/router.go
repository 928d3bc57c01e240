package api

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/catalog"
	"github.com/contagem-app/contagem/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sqlx.DB, jwtSecret string, cat *catalog.Catalog) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	productsHandler := &ProductsHandler{DB: db, Catalog: cat}
	countsHandler := &CountsHandler{DB: db, Catalog: cat}
	historyHandler := &HistoryHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	user := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	// Public.
	mux.HandleFunc("GET /api/health", healthHandler(db))
	mux.HandleFunc("POST /api/auth/unlock", authHandler.Unlock)

	mux.Handle("POST /api/auth/logout", user(authHandler.Logout))

	// Users (admin only).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("POST /api/users", admin(usersHandler.Create))
	mux.Handle("PUT /api/users/{id}/code", admin(usersHandler.ResetCode))
	mux.Handle("DELETE /api/users/{id}", admin(usersHandler.Delete))

	// Catalog.
	mux.Handle("GET /api/products/{code}", user(productsHandler.Lookup))
	mux.Handle("GET /api/products/{id}/image", user(productsHandler.GetImage))
	mux.Handle("PUT /api/products/{id}/image", admin(productsHandler.UploadImage))
	mux.Handle("POST /api/catalog/import", admin(productsHandler.Import))

	// Counting.
	mux.Handle("POST /api/quantity/evaluate", user(countsHandler.Evaluate))
	mux.Handle("GET /api/count", user(countsHandler.List))
	mux.Handle("POST /api/count", user(countsHandler.Record))
	mux.Handle("DELETE /api/count", user(countsHandler.Clear))
	mux.Handle("DELETE /api/count/items/{id}", user(countsHandler.Remove))
	mux.Handle("GET /api/count/stats", user(countsHandler.Stats))
	mux.Handle("GET /api/count/export", user(countsHandler.Export))

	// History.
	mux.Handle("GET /api/history", user(historyHandler.List))
	mux.Handle("POST /api/history", user(historyHandler.Create))
	mux.Handle("POST /api/history/snapshot", user(historyHandler.Snapshot))
	mux.Handle("GET /api/history/{id}", user(historyHandler.Get))
	mux.Handle("DELETE /api/history/{id}", user(historyHandler.Delete))

	return mux
}
