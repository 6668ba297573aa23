package rest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsms/storefront/internal/auth"
	"github.com/bsms/storefront/internal/backend"
	"github.com/bsms/storefront/internal/cart"
	"github.com/bsms/storefront/internal/catalog"
	"github.com/bsms/storefront/internal/checkout"
	"github.com/bsms/storefront/internal/storage"
	"github.com/bsms/storefront/internal/wishlist"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeToken builds a compact JWS with the given claims; the provider reads
// claims without verifying the signature.
func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(data)
	}
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	return enc(header) + "." + enc(claims) + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

// fakeBackend is an in-process stand-in for the store API, recording the
// authorized requests the facade triggers.
type fakeBackend struct {
	mu            sync.Mutex
	server        *httptest.Server
	products      string
	failOrders    bool
	orders        []backend.OrderRequest
	orderAuth     []string
	wishlistCalls []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		products: `[
			{"id": 1, "name": "Brake Pads", "price": 45.50, "stock": 12, "category": "Brakes", "brand": "Brembo", "sku": "BP-100"},
			{"id": "2", "name": "Chain Kit", "description": "520 pitch chain and sprockets", "price": 89.99, "stock": 3, "category": "Drivetrain"},
			{"id": 3, "name": "Clutch Lever", "price": 19.99, "stock": 0, "category": "Controls"}
		]`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/public/products", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, fb.products)
	})
	mux.HandleFunc("/api/v2/user/profile/sync", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v2/user/orders", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.failOrders {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var order backend.OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fb.orders = append(fb.orders, order)
		fb.orderAuth = append(fb.orderAuth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": "ORD-1001", "status": "PENDING"}`)
	})
	mux.HandleFunc("/api/v2/user/wishlist/", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.wishlistCalls = append(fb.wishlistCalls, r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api/v2/user/wishlist/"))
		fb.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) setFailOrders(v bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failOrders = v
}

func (fb *fakeBackend) orderCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.orders)
}

func (fb *fakeBackend) lastOrder() (backend.OrderRequest, string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.orders[len(fb.orders)-1], fb.orderAuth[len(fb.orderAuth)-1]
}

func (fb *fakeBackend) wishlistLog() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string{}, fb.wishlistCalls...)
}

type testEnv struct {
	mux     *chi.Mux
	backend *fakeBackend
	catalog *catalog.Store
	cart    *cart.Store
	session *auth.Session
}

// newTestEnv wires the real core components over the fake backend, the
// same graph the application assembles at startup.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()
	fb := newFakeBackend(t)

	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	token := makeToken(t, map[string]any{
		"sub":   "uid-42",
		"email": "rider@example.com",
		"name":  "Road Rider",
	})
	provider := auth.NewStaticTokenProvider(token)
	session := auth.NewSession(provider, logger)
	t.Cleanup(session.Close)

	client := backend.NewClient(fb.server.URL+"/api/v2", fb.server.URL+"/api", 5*time.Second, session, logger)
	session.SetProfileSyncer(client)

	cartStore, err := cart.NewStore(local, logger)
	require.NoError(t, err)
	wishlistStore, err := wishlist.NewStore(local, session, client, logger)
	require.NoError(t, err)
	catalogStore := catalog.NewStore(client, logger)
	orchestrator := checkout.NewOrchestrator(cartStore, session, client, logger)
	debouncer := catalog.NewDebouncer(5 * time.Millisecond)
	t.Cleanup(debouncer.Stop)

	handler := NewHandler(catalogStore, cartStore, wishlistStore, session, orchestrator, debouncer, logger)
	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)

	return &testEnv{mux: mux, backend: fb, catalog: catalogStore, cart: cartStore, session: session}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) refresh(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/catalog/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

type productsResponse struct {
	Products []struct {
		ID         catalog.ID `json:"id"`
		Name       string     `json:"name"`
		StockLevel string     `json:"stockLevel"`
		Wishlisted bool       `json:"wishlisted"`
		InCart     bool       `json:"inCart"`
	} `json:"products"`
	Count int `json:"count"`
}

type cartResponse struct {
	Items []cart.Line `json:"items"`
	Count int         `json:"count"`
	Total string      `json:"total"`
}

func TestHandler_Products(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	rec := env.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "Brake Pads", resp.Products[0].Name)
	assert.Equal(t, "IN_STOCK", resp.Products[0].StockLevel)
	assert.Equal(t, "LOW_STOCK", resp.Products[1].StockLevel)
	assert.Equal(t, "OUT_OF_STOCK", resp.Products[2].StockLevel)
	for _, p := range resp.Products {
		assert.False(t, p.Wishlisted)
		assert.False(t, p.InCart)
	}
}

func TestHandler_RefreshCatalog_BackendDown(t *testing.T) {
	logger := discardLogger()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	provider := auth.NewStaticTokenProvider("")
	session := auth.NewSession(provider, logger)
	defer session.Close()
	client := backend.NewClient(down.URL+"/api/v2", down.URL+"/api", time.Second, session, logger)
	cartStore, err := cart.NewStore(local, logger)
	require.NoError(t, err)
	wishlistStore, err := wishlist.NewStore(local, session, client, logger)
	require.NoError(t, err)
	catalogStore := catalog.NewStore(client, logger)
	debouncer := catalog.NewDebouncer(5 * time.Millisecond)
	defer debouncer.Stop()

	handler := NewHandler(catalogStore, cartStore, wishlistStore, session,
		checkout.NewOrchestrator(cartStore, session, client, logger), debouncer, logger)
	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)
	env := &testEnv{mux: mux}

	rec := env.do(t, http.MethodPost, "/api/catalog/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestHandler_Filters(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	// Category applies immediately.
	rec := env.do(t, http.MethodPut, "/api/filters", map[string]string{"category": "Brakes"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products", nil)
	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Brake Pads", resp.Products[0].Name)

	// Search settles after the debounce interval.
	rec = env.do(t, http.MethodPut, "/api/filters", map[string]string{"category": "all", "search": "chain"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/products", nil)
		var resp productsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Count == 1 && resp.Products[0].Name == "Chain Kit"
	}, time.Second, 10*time.Millisecond)

	rec = env.do(t, http.MethodPost, "/api/filters/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var counted map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counted))
	assert.Equal(t, 3, counted["count"])
}

func TestHandler_CartFlow(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	rec := env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"productId": "999", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"productId": "1", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var cr cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	require.Len(t, cr.Items, 1)
	assert.Equal(t, 2, cr.Count)
	assert.Equal(t, "91.00", cr.Total)

	// Out-of-stock product is silently skipped.
	rec = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"productId": "3", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	assert.Len(t, cr.Items, 1)

	rec = env.do(t, http.MethodPut, "/api/cart/items/1", map[string]int{"quantity": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	assert.Equal(t, 1, cr.Count)
	assert.Equal(t, "45.50", cr.Total)

	rec = env.do(t, http.MethodDelete, "/api/cart/items/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	assert.Empty(t, cr.Items)
	assert.Equal(t, "0.00", cr.Total)

	rec = env.do(t, http.MethodDelete, "/api/cart/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ProductsMarkCartMembership(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	rec := env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"productId": "2", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products", nil)
	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, p := range resp.Products {
		assert.Equal(t, p.ID == "2", p.InCart, "product %s", p.ID)
	}
}

func TestHandler_Session(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		SignedIn bool   `json:"signedIn"`
		Name     string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.SignedIn)

	rec = env.do(t, http.MethodPost, "/api/session/signin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.SignedIn)
	assert.Equal(t, "Road", view.Name)

	rec = env.do(t, http.MethodPost, "/api/session/signout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.SignedIn)
}

func TestHandler_SignIn_ProviderFailure(t *testing.T) {
	logger := discardLogger()
	fb := newFakeBackend(t)
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	// A provider holding a malformed token cannot sign anyone in.
	provider := auth.NewStaticTokenProvider("not-a-token")
	session := auth.NewSession(provider, logger)
	defer session.Close()
	client := backend.NewClient(fb.server.URL+"/api/v2", "", time.Second, session, logger)
	cartStore, err := cart.NewStore(local, logger)
	require.NoError(t, err)
	wishlistStore, err := wishlist.NewStore(local, session, client, logger)
	require.NoError(t, err)
	debouncer := catalog.NewDebouncer(5 * time.Millisecond)
	defer debouncer.Stop()

	handler := NewHandler(catalog.NewStore(client, logger), cartStore, wishlistStore, session,
		checkout.NewOrchestrator(cartStore, session, client, logger), debouncer, logger)
	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)
	env := &testEnv{mux: mux}

	rec := env.do(t, http.MethodPost, "/api/session/signin", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_Checkout(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	form := map[string]string{
		"fullName":   "Road Rider",
		"phone":      "+1-555-0100",
		"street":     "1 Main St",
		"city":       "Springfield",
		"postalCode": "49000",
	}

	// Empty cart rejects locally.
	rec := env.do(t, http.MethodPost, "/api/checkout", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, env.backend.orderCount())

	rec = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"productId": "1", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	// Signed out rejects locally.
	rec = env.do(t, http.MethodPost, "/api/checkout", form)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, env.backend.orderCount())

	rec = env.do(t, http.MethodPost, "/api/session/signin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Missing required shipping field.
	rec = env.do(t, http.MethodPost, "/api/checkout", map[string]string{"fullName": "Road Rider"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, env.backend.orderCount())

	rec = env.do(t, http.MethodPost, "/api/checkout", form)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ORD-1001", created["orderId"])

	require.Equal(t, 1, env.backend.orderCount())
	order, authHeader := env.backend.lastOrder()
	assert.Equal(t, "uid-42", order.UserID)
	assert.Equal(t, "rider@example.com", order.UserEmail)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "1", order.Items[0].ProductID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.InDelta(t, 91.00, order.Total, 0.001)
	assert.Equal(t, "COD", order.PaymentMethod)
	assert.Equal(t, "USA", order.ShippingAddress.Country)
	assert.True(t, strings.HasPrefix(authHeader, "Bearer "))

	// Success clears the cart.
	rec = env.do(t, http.MethodGet, "/api/cart/", nil)
	var cr cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	assert.Empty(t, cr.Items)
}

func TestHandler_Checkout_BackendFailureKeepsCart(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)
	env.backend.setFailOrders(true)

	rec := env.do(t, http.MethodPost, "/api/session/signin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"productId": "1", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/checkout", map[string]string{
		"fullName":   "Road Rider",
		"phone":      "+1-555-0100",
		"street":     "1 Main St",
		"city":       "Springfield",
		"postalCode": "49000",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/cart/", nil)
	var cr cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	assert.Len(t, cr.Items, 1)
}

func TestHandler_WishlistToggle(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	rec := env.do(t, http.MethodPost, "/api/session/signin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/wishlist/2/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.True(t, toggled["wishlisted"])

	rec = env.do(t, http.MethodGet, "/api/wishlist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []catalog.ID `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []catalog.ID{"2"}, list.Items)

	rec = env.do(t, http.MethodGet, "/api/products", nil)
	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, p := range resp.Products {
		assert.Equal(t, p.ID == "2", p.Wishlisted, "product %s", p.ID)
	}

	rec = env.do(t, http.MethodPost, "/api/wishlist/2/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.False(t, toggled["wishlisted"])

	// The backend mirror sees the add and the remove, in order.
	require.Eventually(t, func() bool {
		return len(env.backend.wishlistLog()) == 2
	}, time.Second, 10*time.Millisecond)
	calls := env.backend.wishlistLog()
	assert.Equal(t, "POST uid-42/2", calls[0])
	assert.Equal(t, "DELETE uid-42/2", calls[1])
}

func TestHandler_HealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
