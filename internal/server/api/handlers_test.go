package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/shopgraph/internal/server/graph"
	"github.com/systemshift/shopgraph/internal/server/recommend"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := graph.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(context.Background()) })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	srv := New(repo, recommend.New(repo, log), log)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, creds string) (int, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds != "" {
		parts := bytes.SplitN([]byte(creds), []byte(":"), 2)
		req.SetBasicAuth(string(parts[0]), string(parts[1]))
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

// registerUser creates a user and returns its id and basic-auth credentials.
func registerUser(t *testing.T, ts *httptest.Server, email string) (string, string) {
	t.Helper()
	status, payload := doJSON(t, ts, http.MethodPost, "/users/register", map[string]any{
		"name":     "Test User",
		"email":    email,
		"age":      28,
		"password": "s3cret",
	}, "")
	require.Equal(t, http.StatusCreated, status)
	user := payload["user"].(map[string]any)
	return user["id"].(string), email + ":s3cret"
}

func createProduct(t *testing.T, ts *httptest.Server, creds, name string, stock int) string {
	t.Helper()
	status, payload := doJSON(t, ts, http.MethodPost, "/products", map[string]any{
		"name":  name,
		"price": 49.99,
		"stock": stock,
	}, creds)
	require.Equal(t, http.StatusCreated, status)
	return payload["product"].(map[string]any)["id"].(string)
}

func TestPing(t *testing.T) {
	ts := newTestServer(t)
	status, payload := doJSON(t, ts, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pong", payload["message"])
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	status, payload := doJSON(t, ts, http.MethodPost, "/users/register", map[string]any{
		"name": "Alice", "email": "alice@shop.test", "age": 30, "password": "hunter2",
	}, "")
	require.Equal(t, http.StatusCreated, status)
	user := payload["user"].(map[string]any)
	assert.NotEmpty(t, user["id"])
	assert.NotContains(t, user, "passwordHash")

	// duplicate email
	status, payload = doJSON(t, ts, http.MethodPost, "/users/register", map[string]any{
		"name": "Imposter", "email": "alice@shop.test", "password": "x",
	}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "User already exists", payload["message"])

	// missing fields
	status, _ = doJSON(t, ts, http.MethodPost, "/users/register", map[string]any{
		"email": "no-name@shop.test", "password": "x",
	}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, payload = doJSON(t, ts, http.MethodPost, "/users/login", map[string]any{
		"email": "alice@shop.test", "password": "hunter2",
	}, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Login successful", payload["message"])

	status, _ = doJSON(t, ts, http.MethodPost, "/users/login", map[string]any{
		"email": "alice@shop.test", "password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	// unknown email produces the same status as a bad password
	status, _ = doJSON(t, ts, http.MethodPost, "/users/login", map[string]any{
		"email": "ghost@shop.test", "password": "hunter2",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthGate(t *testing.T) {
	ts := newTestServer(t)
	_, creds := registerUser(t, ts, "gate@shop.test")

	// protected route without credentials
	status, payload := doJSON(t, ts, http.MethodGet, "/brands", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Missing Authorization header", payload["message"])

	// garbage credentials
	status, _ = doJSON(t, ts, http.MethodGet, "/brands", nil, "gate@shop.test:wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, ts, http.MethodGet, "/brands", nil, creds)
	assert.Equal(t, http.StatusOK, status)
}

func TestUpdateUserSelfOnly(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceCreds := registerUser(t, ts, "alice@shop.test")
	bobID, _ := registerUser(t, ts, "bob@shop.test")

	status, payload := doJSON(t, ts, http.MethodPut, "/users/"+aliceID, map[string]any{
		"name": "Alice Prime",
	}, aliceCreds)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Alice Prime", payload["user"].(map[string]any)["name"])

	status, _ = doJSON(t, ts, http.MethodPut, "/users/"+bobID, map[string]any{
		"name": "Hijacked",
	}, aliceCreds)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestProductBrowseAndInteract(t *testing.T) {
	ts := newTestServer(t)
	userID, creds := registerUser(t, ts, "shopper@shop.test")
	productID := createProduct(t, ts, creds, "Air Max", 2)

	// anonymous browsing works and records nothing
	status, payload := doJSON(t, ts, http.MethodGet, "/products/"+productID, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Air Max", payload["product"].(map[string]any)["name"])

	// authenticated read records a view
	status, _ = doJSON(t, ts, http.MethodGet, "/products/"+productID, nil, creds)
	require.Equal(t, http.StatusOK, status)

	status, payload = doJSON(t, ts, http.MethodGet, "/users/"+userID+"/history", nil, creds)
	require.Equal(t, http.StatusOK, status)
	history := payload["history"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "VIEWED", entry["type"])
	assert.Equal(t, productID, entry["product"].(map[string]any)["id"])

	// like toggles on and off
	status, payload = doJSON(t, ts, http.MethodPost, "/products/"+productID+"/like", nil, creds)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, payload["liked"])

	status, payload = doJSON(t, ts, http.MethodPost, "/products/"+productID+"/like", nil, creds)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, payload["liked"])

	// buy twice drains the stock, third hits the conflict
	status, payload = doJSON(t, ts, http.MethodPost, "/products/"+productID+"/buy", nil, creds)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), payload["newStock"])
	assert.Equal(t, float64(1), payload["quantity"])

	status, payload = doJSON(t, ts, http.MethodPost, "/products/"+productID+"/buy", nil, creds)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), payload["newStock"])
	assert.Equal(t, float64(2), payload["quantity"])

	status, payload = doJSON(t, ts, http.MethodPost, "/products/"+productID+"/buy", nil, creds)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Out of stock", payload["message"])
}

func TestHistoryIsPrivate(t *testing.T) {
	ts := newTestServer(t)
	_, aliceCreds := registerUser(t, ts, "alice@shop.test")
	bobID, _ := registerUser(t, ts, "bob@shop.test")

	status, _ := doJSON(t, ts, http.MethodGet, "/users/"+bobID+"/history", nil, aliceCreds)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestRecommendationsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, creds := registerUser(t, ts, "curator@shop.test")
	for i := 0; i < 25; i++ {
		id := createProduct(t, ts, creds, fmt.Sprintf("Shoe %02d", i), 10)
		// give each product at least one view so the popularity branch ranks it
		status, _ := doJSON(t, ts, http.MethodGet, "/products/"+id, nil, creds)
		require.Equal(t, http.StatusOK, status)
	}

	// anonymous callers get the popularity fallback with the default limit
	status, payload := doJSON(t, ts, http.MethodGet, "/products/recommendations", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, payload["products"].([]any), recommend.DefaultLimit)

	// explicit limit is honored, oversized limits are clamped
	status, payload = doJSON(t, ts, http.MethodGet, "/products/recommendations?limit=5", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, payload["products"].([]any), 5)

	status, payload = doJSON(t, ts, http.MethodGet, "/products/recommendations?limit=1000", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, payload["products"].([]any), 25)

	// filtering applies to the ranked listing
	status, payload = doJSON(t, ts, http.MethodGet, "/products/recommendations?query=shoe+01", nil, "")
	require.Equal(t, http.StatusOK, status)
	products := payload["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, "Shoe 01", products[0].(map[string]any)["name"])
}

func TestBrandsAndCategories(t *testing.T) {
	ts := newTestServer(t)
	_, creds := registerUser(t, ts, "admin@shop.test")

	status, payload := doJSON(t, ts, http.MethodPost, "/brands", map[string]any{"name": "Nike"}, creds)
	require.Equal(t, http.StatusCreated, status)
	brandID := payload["brand"].(map[string]any)["id"].(string)

	status, _ = doJSON(t, ts, http.MethodPost, "/brands", map[string]any{}, creds)
	assert.Equal(t, http.StatusBadRequest, status)

	status, payload = doJSON(t, ts, http.MethodPost, "/categories", map[string]any{"name": "Sneakers"}, creds)
	require.Equal(t, http.StatusCreated, status)
	categoryID := payload["category"].(map[string]any)["id"].(string)

	// product linked at creation reports its brand and category on read
	status, payload = doJSON(t, ts, http.MethodPost, "/products", map[string]any{
		"name": "Air Max", "price": 120.0, "stock": 3,
		"brandId": brandID, "categoryId": categoryID,
	}, creds)
	require.Equal(t, http.StatusCreated, status)
	productID := payload["product"].(map[string]any)["id"].(string)

	status, payload = doJSON(t, ts, http.MethodGet, "/products/"+productID, nil, "")
	require.Equal(t, http.StatusOK, status)
	product := payload["product"].(map[string]any)
	assert.Equal(t, "Nike", product["brand"].(map[string]any)["name"])
	assert.Equal(t, "Sneakers", product["category"].(map[string]any)["name"])

	// filtered listing by brand
	status, payload = doJSON(t, ts, http.MethodGet, "/products?brand=nike", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, payload["products"].([]any), 1)
}

func TestGetProductNotFound(t *testing.T) {
	ts := newTestServer(t)
	status, payload := doJSON(t, ts, http.MethodGet, "/products/no-such-id", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not found", payload["message"])
}
