package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/auth"
	"github.com/contagem-app/contagem/internal/catalog"
	"github.com/contagem-app/contagem/internal/db"
	"github.com/contagem-app/contagem/internal/model"
	"github.com/contagem-app/contagem/internal/report"
	"github.com/contagem-app/contagem/internal/store"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server     *httptest.Server
	db         *sqlx.DB
	adminToken string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)

	// The admin owns the catalog.
	hash, _ := auth.HashCode("1234")
	admin, err := store.CreateUser(context.Background(), database, "admin", hash, model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	cat := catalog.New(database, admin.ID, nil)
	server := httptest.NewServer(LoggingMiddleware(NewRouter(database, testJWTSecret, cat)))
	t.Cleanup(server.Close)

	env := &testEnv{server: server, db: database}
	env.adminToken = unlock(t, env, "admin", "1234")
	return env
}

func unlock(t *testing.T, env *testEnv, name, code string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name, "code": code})
	resp, err := http.Post(env.server.URL+"/api/auth/unlock", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unlock request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlock %q failed: %d", name, resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Token == "" {
		t.Fatal("empty token from unlock")
	}
	return out.Token
}

// createOperator creates a regular user through the API and unlocks it.
func createOperator(t *testing.T, env *testEnv, name string) string {
	t.Helper()
	resp := env.do(t, "POST", "/api/users", env.adminToken, map[string]string{"name": name, "code": "9876"})
	expectStatus(t, resp, http.StatusCreated)
	return unlock(t, env, name, "9876")
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	req, err := authRequest(method, env.server.URL+path, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (env *testEnv) upload(t *testing.T, method, path, token, field, fileName string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile(field, fileName)
	fw.Write(content)
	mw.Close()

	req, _ := http.NewRequest(method, env.server.URL+path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

const testCatalog = "cod_item;cod_barra;des_item\nP1;7890001;Leite integral\nP2;7890002;Arroz 5kg\nP3;;Sem barras\n"

func importTestCatalog(t *testing.T, env *testEnv) {
	t.Helper()
	resp := env.upload(t, "POST", "/api/catalog/import", env.adminToken, "file", "catalogo.csv", []byte(testCatalog))
	expectStatus(t, resp, http.StatusOK)
	res := decode[catalog.ImportResult](t, resp)
	if res.Imported != 2 || res.Skipped != 1 {
		t.Fatalf("unexpected import result: %+v", res)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "GET", "/api/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}

	req, _ := authRequest("GET", env.server.URL+"/api/health", "", nil)
	req.Header.Set(RequestIDHeader, "6f1c1c9e-3a7e-4d3b-9a55-0d6f2f5b8c11")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if got := resp2.Header.Get(RequestIDHeader); got != "6f1c1c9e-3a7e-4d3b-9a55-0d6f2f5b8c11" {
		t.Errorf("expected incoming request id to be kept, got %q", got)
	}
}

func TestUnlockAndLogout(t *testing.T) {
	env := setupTestServer(t)

	for _, body := range []map[string]string{
		{"name": "admin", "code": "wrong"},
		{"name": "nobody", "code": "1234"},
	} {
		data, _ := json.Marshal(body)
		resp, _ := http.Post(env.server.URL+"/api/auth/unlock", "application/json", bytes.NewReader(data))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("unlock %v: expected 401, got %d", body, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := env.do(t, "POST", "/api/auth/unlock", "", map[string]string{"name": ""})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, "GET", "/api/count", env.adminToken, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, "POST", "/api/auth/logout", env.adminToken, nil)
	expectStatus(t, resp, http.StatusNoContent)

	resp = env.do(t, "GET", "/api/count", env.adminToken, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	for _, path := range []string{"/api/count", "/api/history", "/api/products/7890001"} {
		resp := env.do(t, "GET", path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s: expected 401, got %d", path, resp.StatusCode)
		}
	}

	resp := env.do(t, "GET", "/api/count", "not-a-token", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestUserManagement(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/users", env.adminToken, map[string]string{"name": "caixa", "code": "12"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, "POST", "/api/users", env.adminToken, map[string]string{"name": "caixa", "code": "1111", "role": "owner"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, "POST", "/api/users", env.adminToken, map[string]string{"name": "caixa", "code": "1111"})
	expectStatus(t, resp, http.StatusCreated)
	created := decode[model.User](t, resp)
	if created.Role != model.RoleUser {
		t.Errorf("expected default role user, got %q", created.Role)
	}

	resp = env.do(t, "POST", "/api/users", env.adminToken, map[string]string{"name": "caixa", "code": "2222"})
	expectStatus(t, resp, http.StatusConflict)

	userToken := unlock(t, env, "caixa", "1111")

	// Regular users cannot manage users or import the catalog.
	resp = env.do(t, "GET", "/api/users", userToken, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp = env.upload(t, "POST", "/api/catalog/import", userToken, "file", "c.csv", []byte(testCatalog))
	expectStatus(t, resp, http.StatusForbidden)

	resp = env.do(t, "PUT", "/api/users/"+itoa(created.ID)+"/code", env.adminToken, map[string]string{"code": "3333"})
	expectStatus(t, resp, http.StatusNoContent)
	unlock(t, env, "caixa", "3333")

	resp = env.do(t, "DELETE", "/api/users/"+itoa(created.ID), env.adminToken, nil)
	expectStatus(t, resp, http.StatusNoContent)

	// The deleted user's token stops working.
	resp = env.do(t, "GET", "/api/count", userToken, nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = env.do(t, "DELETE", "/api/users/9999", env.adminToken, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, "GET", "/api/users", env.adminToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if users := decode[[]model.User](t, resp); len(users) != 1 {
		t.Errorf("expected only the admin to remain, got %d users", len(users))
	}
}

func TestCatalogLookup(t *testing.T) {
	env := setupTestServer(t)
	importTestCatalog(t, env)
	token := createOperator(t, env, "operador")

	for _, code := range []string{"7890001", "P1"} {
		resp := env.do(t, "GET", "/api/products/"+code, token, nil)
		expectStatus(t, resp, http.StatusOK)
		p := decode[model.Product](t, resp)
		if p.Code != "P1" || p.Description != "Leite integral" {
			t.Errorf("lookup %s: unexpected product %+v", code, p)
		}
	}

	resp := env.do(t, "GET", "/api/products/0000", token, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.upload(t, "POST", "/api/catalog/import", env.adminToken, "file", "bad.csv", []byte("a;b\n1;2\n"))
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestEvaluateEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/quantity/evaluate", env.adminToken, map[string]string{"expression": "24+24"})
	expectStatus(t, resp, http.StatusOK)
	if out := decode[map[string]float64](t, resp); out["quantity"] != 48 {
		t.Errorf("expected 48, got %v", out["quantity"])
	}

	resp = env.do(t, "POST", "/api/quantity/evaluate", env.adminToken, map[string]string{"expression": "10/3"})
	expectStatus(t, resp, http.StatusOK)
	if out := decode[map[string]float64](t, resp); out["quantity"] != 3.33 {
		t.Errorf("expected 3.33, got %v", out["quantity"])
	}

	for _, expr := range []string{"abc", "1/0", "2+"} {
		resp := env.do(t, "POST", "/api/quantity/evaluate", env.adminToken, map[string]string{"expression": expr})
		expectStatus(t, resp, http.StatusBadRequest)
	}
}

type countedItemJSON struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"product_id"`
	ProductCode  string  `json:"product_code"`
	Barcode      string  `json:"barcode"`
	ExpiryDate   *string `json:"expiry_date"`
	QuantLoja    float64 `json:"quant_loja"`
	QuantEstoque float64 `json:"quant_estoque"`
}

func TestCountFlow(t *testing.T) {
	env := setupTestServer(t)
	importTestCatalog(t, env)
	token := createOperator(t, env, "operador")

	resp := env.do(t, "GET", "/api/products/7890001", token, nil)
	product := decode[model.Product](t, resp)

	// Number, expression and scanned-code forms all land on the same record.
	bodies := []map[string]any{
		{"product_id": product.ID, "quantity": 5, "mode": "loja"},
		{"product_id": product.ID, "quantity": "2*3,5", "mode": "loja"},
		{"code": "7890001", "quantity": "12", "mode": "estoque"},
	}
	var last countedItemJSON
	for _, body := range bodies {
		resp := env.do(t, "POST", "/api/count", token, body)
		expectStatus(t, resp, http.StatusOK)
		item := decode[countedItemJSON](t, resp)
		if last.ID != 0 && item.ID != last.ID {
			t.Fatalf("expected the same record, got %d and %d", last.ID, item.ID)
		}
		last = item
	}
	if last.QuantLoja != 12 || last.QuantEstoque != 12 {
		t.Errorf("expected 12/12, got %v/%v", last.QuantLoja, last.QuantEstoque)
	}
	if last.Barcode != "7890001" || last.ExpiryDate != nil {
		t.Errorf("unexpected item fields: %+v", last)
	}

	resp = env.do(t, "POST", "/api/count", token, map[string]any{
		"product_id": product.ID, "quantity": 1, "mode": "loja", "expiry_date": "2025-03-01",
	})
	expectStatus(t, resp, http.StatusOK)
	dated := decode[countedItemJSON](t, resp)
	if dated.ID == last.ID || dated.ExpiryDate == nil || *dated.ExpiryDate != "2025-03-01" {
		t.Errorf("expected a separate dated record, got %+v", dated)
	}

	invalid := []map[string]any{
		{"product_id": product.ID, "quantity": "abc", "mode": "loja"},
		{"product_id": product.ID, "quantity": -1, "mode": "loja"},
		{"product_id": product.ID, "quantity": 1, "mode": "deposito"},
		{"product_id": product.ID, "quantity": 1, "mode": "loja", "expiry_date": "01/03/2025"},
		{"product_id": product.ID, "mode": "loja"},
		{"quantity": 1, "mode": "loja"},
	}
	for _, body := range invalid {
		resp := env.do(t, "POST", "/api/count", token, body)
		expectStatus(t, resp, http.StatusBadRequest)
	}
	resp = env.do(t, "POST", "/api/count", token, map[string]any{"product_id": 9999, "quantity": 1, "mode": "loja"})
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, "GET", "/api/count", token, nil)
	expectStatus(t, resp, http.StatusOK)
	items := decode[[]countedItemJSON](t, resp)
	if len(items) != 2 || items[0].ID != dated.ID {
		t.Fatalf("expected 2 items with the dated one first, got %+v", items)
	}

	resp = env.do(t, "GET", "/api/count/stats", token, nil)
	expectStatus(t, resp, http.StatusOK)
	stats := decode[map[string]float64](t, resp)
	if stats["items"] != 2 || stats["quant_loja"] != 13 || stats["quant_estoque"] != 12 || stats["total"] != 25 {
		t.Errorf("unexpected stats: %v", stats)
	}

	// Another operator cannot see or remove these items.
	other := createOperator(t, env, "outro")
	resp = env.do(t, "DELETE", "/api/count/items/"+itoa(dated.ID), other, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp = env.do(t, "GET", "/api/count", other, nil)
	if others := decode[[]countedItemJSON](t, resp); len(others) != 0 {
		t.Errorf("expected empty count for another operator, got %d items", len(others))
	}

	resp = env.do(t, "DELETE", "/api/count/items/"+itoa(dated.ID), token, nil)
	expectStatus(t, resp, http.StatusNoContent)

	resp = env.do(t, "DELETE", "/api/count", token, nil)
	expectStatus(t, resp, http.StatusOK)
	if out := decode[map[string]int64](t, resp); out["removed"] != 1 {
		t.Errorf("expected 1 removed item, got %v", out)
	}

	resp = env.do(t, "GET", "/api/count", token, nil)
	if items := decode[[]countedItemJSON](t, resp); len(items) != 0 {
		t.Errorf("expected empty count after clear, got %d items", len(items))
	}
}

func TestCountQuantityLimit(t *testing.T) {
	env := setupTestServer(t)
	importTestCatalog(t, env)
	token := createOperator(t, env, "operador")

	for _, q := range []any{"184467440737095516.21", "100000000000000000", 1e17, "1000000000000.01"} {
		resp := env.do(t, "POST", "/api/count", token, map[string]any{"code": "P1", "quantity": q, "mode": "loja"})
		expectStatus(t, resp, http.StatusBadRequest)
	}
	resp := env.do(t, "POST", "/api/quantity/evaluate", token, map[string]string{"expression": "999999999999*10"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, "POST", "/api/count", token, map[string]any{"code": "P1", "quantity": "600000000000", "mode": "loja"})
	expectStatus(t, resp, http.StatusOK)
	resp = env.do(t, "POST", "/api/count", token, map[string]any{"code": "P1", "quantity": "600000000000", "mode": "loja"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, "GET", "/api/count", token, nil)
	items := decode[[]countedItemJSON](t, resp)
	if len(items) != 1 || items[0].QuantLoja != 600000000000 {
		t.Errorf("expected the total to stay at 600000000000, got %+v", items)
	}
}

func TestExport(t *testing.T) {
	env := setupTestServer(t)
	importTestCatalog(t, env)
	token := createOperator(t, env, "operador")

	// Nothing counted yet.
	resp := env.do(t, "GET", "/api/count/export", token, nil)
	expectStatus(t, resp, http.StatusBadRequest)

	env.do(t, "POST", "/api/count", token, map[string]any{"code": "7890002", "quantity": "3", "mode": "estoque"})

	resp = env.do(t, "GET", "/api/count/export", token, nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "contagem_") || !strings.Contains(cd, ".csv") {
		t.Errorf("unexpected content disposition %q", cd)
	}
	rows, err := report.ParseCSV(resp.Body)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != 1 || rows[0].ProductCode != "P2" || rows[0].Barcode != "7890002" || rows[0].QuantStockroom.String() != "3" {
		t.Errorf("unexpected export rows: %+v", rows)
	}

	resp = env.do(t, "GET", "/api/count/export?format=xlsx", token, nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("unexpected content type %q", ct)
	}

	resp = env.do(t, "GET", "/api/count/export?format=pdf", token, nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestHistory(t *testing.T) {
	env := setupTestServer(t)
	importTestCatalog(t, env)
	token := createOperator(t, env, "operador")

	resp := env.do(t, "POST", "/api/history/snapshot", token, nil)
	expectStatus(t, resp, http.StatusBadRequest)

	env.do(t, "POST", "/api/count", token, map[string]any{"code": "P1", "quantity": 2, "mode": "loja"})

	resp = env.do(t, "POST", "/api/history/snapshot", token, nil)
	expectStatus(t, resp, http.StatusCreated)
	snap := decode[model.HistoryEntry](t, resp)

	resp = env.do(t, "POST", "/api/history", token, map[string]string{"fileName": "manual.csv", "csvContent": "x;y\r\n"})
	expectStatus(t, resp, http.StatusCreated)
	manual := decode[model.HistoryEntry](t, resp)

	resp = env.do(t, "POST", "/api/history", token, map[string]string{"fileName": "vazio.csv"})
	expectStatus(t, resp, http.StatusBadRequest)

	// Saving does not touch the open count.
	resp = env.do(t, "GET", "/api/count", token, nil)
	if items := decode[[]countedItemJSON](t, resp); len(items) != 1 {
		t.Errorf("expected the count to survive saving, got %d items", len(items))
	}

	resp = env.do(t, "GET", "/api/history", token, nil)
	expectStatus(t, resp, http.StatusOK)
	entries := decode[[]model.HistoryEntry](t, resp)
	if len(entries) != 2 || entries[0].ID != manual.ID {
		t.Fatalf("expected 2 entries with the newest first, got %+v", entries)
	}

	resp = env.do(t, "GET", "/api/history/"+itoa(snap.ID), token, nil)
	expectStatus(t, resp, http.StatusOK)
	rows, err := report.ParseCSV(resp.Body)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != 1 || rows[0].ProductCode != "P1" || rows[0].QuantStore.String() != "2" {
		t.Errorf("unexpected archived rows: %+v", rows)
	}

	other := createOperator(t, env, "outro")
	resp = env.do(t, "GET", "/api/history/"+itoa(snap.ID), other, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp = env.do(t, "DELETE", "/api/history/"+itoa(snap.ID), other, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, "DELETE", "/api/history/"+itoa(snap.ID), token, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = env.do(t, "GET", "/api/history/"+itoa(snap.ID), token, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestProductImage(t *testing.T) {
	env := setupTestServer(t)
	importTestCatalog(t, env)

	resp := env.do(t, "GET", "/api/products/P1", env.adminToken, nil)
	product := decode[model.Product](t, resp)
	path := "/api/products/" + itoa(product.ID) + "/image"

	resp = env.do(t, "GET", path, env.adminToken, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.upload(t, "PUT", path, env.adminToken, "image", "foto.txt", []byte("not an image"))
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.upload(t, "PUT", path, env.adminToken, "image", "foto.png", testPNG())
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, "GET", path, env.adminToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}
}
