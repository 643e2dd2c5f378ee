package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/service"
	"cantina/backend/internal/store/memory"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

type testServer struct {
	t       *testing.T
	api     *API
	handler http.Handler
	csrf    string
}

// newTestServer wires the real service, auth manager and router over a
// seeded in-memory store.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{DebtCeiling: decimal.NewFromInt(10)})
	auth := NewAuthManager(testSecret, time.Hour, repo, nil)
	api := New(svc, auth, Options{AllowedOrigin: "*"})

	ts := &testServer{t: t, api: api, handler: api.Handler()}
	res := ts.do(http.MethodGet, "/api/v1/auth/csrf-token", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	ts.csrf = payload["csrf_token"]
	require.NotEmpty(t, ts.csrf)
	return ts
}

func (ts *testServer) do(method string, path string, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ts.csrf != "" {
		req.Header.Set("X-CSRF-Token", ts.csrf)
	}
	res := httptest.NewRecorder()
	ts.handler.ServeHTTP(res, req)
	return res
}

func (ts *testServer) login(username string, password string) domain.LoginResponse {
	ts.t.Helper()
	res := ts.do(http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(ts.t, http.StatusOK, res.Code, res.Body.String())
	var payload domain.LoginResponse
	require.NoError(ts.t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(ts.t, payload.AccessToken)
	return payload
}

func (ts *testServer) product(token string, name string) domain.Product {
	ts.t.Helper()
	res := ts.do(http.MethodGet, "/api/v1/products", token, nil)
	require.Equal(ts.t, http.StatusOK, res.Code)
	var payload struct {
		Products []domain.Product `json:"products"`
	}
	require.NoError(ts.t, json.NewDecoder(res.Body).Decode(&payload))
	for _, p := range payload.Products {
		if p.Name == name {
			return p
		}
	}
	ts.t.Fatalf("product %q not seeded", name)
	return domain.Product{}
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out), res.Body.String())
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := decodeBody[map[string]any](t, res)
	assert.Equal(t, true, body["ok"])
}

func TestLoginAndMe(t *testing.T) {
	ts := newTestServer(t)

	login := ts.login("seller", "seller123")
	assert.Equal(t, domain.RoleSeller, login.Role)
	assert.Equal(t, "seller", login.Account.Username)

	res := ts.do(http.MethodGet, "/api/v1/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	me := decodeBody[struct {
		Account      domain.Account      `json:"account"`
		Capabilities []domain.Capability `json:"capabilities"`
		DebtCeiling  decimal.Decimal     `json:"debt_ceiling"`
	}](t, res)
	assert.Equal(t, login.Account.ID, me.Account.ID)
	assert.Contains(t, me.Capabilities, domain.CapSell)
	assert.NotContains(t, me.Capabilities, domain.CapReviewTransactions)
	assert.True(t, me.DebtCeiling.Equal(decimal.NewFromInt(10)))
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "invalid_credentials", decodeBody[errorBody](t, res).Code)

	res = ts.do(http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "ghost", Password: "whatever"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRegisterCreatesCustomer(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{Username: "Maria", Password: "secret1"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeBody[domain.LoginResponse](t, res)
	assert.Equal(t, domain.RoleCustomer, created.Role)
	assert.Equal(t, "maria", created.Account.Username)
	assert.True(t, created.Account.Credit.IsZero())

	res = ts.do(http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{Username: "maria", Password: "secret2"})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = ts.do(http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{Username: "jo", Password: "secret3"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "validation_error", decodeBody[errorBody](t, res).Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = ts.do(http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestCustomerCannotSell(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login("customer", "customer123")
	soda := ts.product(customer.AccessToken, "Refrigerante Lata")

	res := ts.do(http.MethodPost, "/api/v1/sales", customer.AccessToken, map[string]any{
		"customer_id":    customer.Account.ID,
		"items":          []map[string]any{{"product_id": soda.ID, "quantity": 1}},
		"payment_method": "credit",
	})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "forbidden", decodeBody[errorBody](t, res).Code)
}

func TestCreditSaleAndCancellation(t *testing.T) {
	ts := newTestServer(t)
	seller := ts.login("seller", "seller123")
	customer := ts.login("customer", "customer123")
	soda := ts.product(seller.AccessToken, "Refrigerante Lata")

	res := ts.do(http.MethodPost, "/api/v1/sales", seller.AccessToken, map[string]any{
		"customer_id":    customer.Account.ID,
		"items":          []map[string]any{{"product_id": soda.ID, "quantity": 2}},
		"payment_method": "credit",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	sale := decodeBody[domain.CreateSaleResponse](t, res)
	assert.True(t, sale.Sale.Total.Equal(decimal.RequireFromString("9.00")))
	assert.True(t, sale.Customer.Credit.Equal(decimal.RequireFromString("41.00")))
	assert.Equal(t, 48, ts.product(seller.AccessToken, "Refrigerante Lata").Stock)

	res = ts.do(http.MethodGet, "/api/v1/sales/"+sale.Sale.ID, customer.AccessToken, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = ts.do(http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", seller.AccessToken, map[string]any{"reason": " "})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "reason_required", decodeBody[errorBody](t, res).Code)

	res = ts.do(http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", seller.AccessToken, map[string]any{"reason": "wrong item"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	cancelled := decodeBody[domain.CancelSaleResponse](t, res)
	assert.Equal(t, domain.SaleStatusCancelled, cancelled.Sale.Status)
	assert.True(t, cancelled.Customer.Credit.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 50, ts.product(seller.AccessToken, "Refrigerante Lata").Stock)

	res = ts.do(http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", seller.AccessToken, map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "invalid_state", decodeBody[errorBody](t, res).Code)
}

func TestSaleRejectionsMapToUnprocessable(t *testing.T) {
	ts := newTestServer(t)
	seller := ts.login("seller", "seller123")
	customer := ts.login("customer", "customer123")
	salad := ts.product(seller.AccessToken, "Salada")

	fiado := func(quantity int) *httptest.ResponseRecorder {
		return ts.do(http.MethodPost, "/api/v1/sales", seller.AccessToken, map[string]any{
			"customer_id":    customer.Account.ID,
			"items":          []map[string]any{{"product_id": salad.ID, "quantity": quantity}},
			"payment_method": "fiado",
		})
	}

	res := fiado(100)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "insufficient_stock", decodeBody[errorBody](t, res).Code)

	require.Equal(t, http.StatusCreated, fiado(1).Code)
	res = fiado(1)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "debt_ceiling", decodeBody[errorBody](t, res).Code)

	res = ts.do(http.MethodPost, "/api/v1/sales", seller.AccessToken, map[string]any{
		"customer_id":    customer.Account.ID,
		"items":          []map[string]any{{"product_id": salad.ID, "quantity": 6}},
		"payment_method": "credit",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "insufficient_funds", decodeBody[errorBody](t, res).Code)

	res = ts.do(http.MethodPost, "/api/v1/sales", seller.AccessToken, map[string]any{
		"customer_id":    customer.Account.ID,
		"items":          []map[string]any{{"product_id": salad.ID, "quantity": 1}},
		"payment_method": "barter",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "validation_error", decodeBody[errorBody](t, res).Code)

	assert.Equal(t, 11, ts.product(seller.AccessToken, "Salada").Stock)
}

func TestIdempotencyKeyHeaderReplaysSale(t *testing.T) {
	ts := newTestServer(t)
	seller := ts.login("seller", "seller123")
	customer := ts.login("customer", "customer123")
	coffee := ts.product(seller.AccessToken, "Café")

	send := func() *httptest.ResponseRecorder {
		raw, _ := json.Marshal(map[string]any{
			"customer_id":    customer.Account.ID,
			"items":          []map[string]any{{"product_id": coffee.ID, "quantity": 1}},
			"payment_method": "credit",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+seller.AccessToken)
		req.Header.Set("X-CSRF-Token", ts.csrf)
		req.Header.Set("Idempotency-Key", "till-7-42")
		res := httptest.NewRecorder()
		ts.handler.ServeHTTP(res, req)
		return res
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusOK, second.Code)
	replay := decodeBody[domain.CreateSaleResponse](t, second)
	assert.True(t, replay.Duplicate)
	assert.True(t, replay.Customer.Credit.Equal(decimal.NewFromInt(47)))

	res := ts.do(http.MethodPost, "/api/v1/sales", seller.AccessToken, map[string]any{
		"customer_id":     customer.Account.ID,
		"items":           []map[string]any{{"product_id": coffee.ID, "quantity": 2}},
		"payment_method":  "credit",
		"idempotency_key": "till-7-42",
	})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "conflict", decodeBody[errorBody](t, res).Code)
}

func TestCashDrawerEndpoints(t *testing.T) {
	ts := newTestServer(t)
	seller := ts.login("seller", "seller123")
	customer := ts.login("customer", "customer123")
	admin := ts.login("admin", "admin123")
	sandwich := ts.product(seller.AccessToken, "Sanduíche")

	res := ts.do(http.MethodPost, "/api/v1/cash-drawers", seller.AccessToken, map[string]any{"opening_balance": "50.00"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	drawer := decodeBody[struct {
		Drawer domain.CashDrawer `json:"drawer"`
	}](t, res).Drawer

	res = ts.do(http.MethodPost, "/api/v1/cash-drawers", seller.AccessToken, map[string]any{"opening_balance": "10.00"})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "drawer_already_open", decodeBody[errorBody](t, res).Code)

	res = ts.do(http.MethodPost, "/api/v1/sales", seller.AccessToken, map[string]any{
		"customer_id":    customer.Account.ID,
		"items":          []map[string]any{{"product_id": sandwich.ID, "quantity": 2}},
		"payment_method": "cash",
		"cash_tendered":  "20.00",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	sale := decodeBody[domain.CreateSaleResponse](t, res)
	assert.Equal(t, drawer.ID, sale.Sale.CashDrawerID)
	require.NotNil(t, sale.ChangeDue)
	assert.True(t, sale.ChangeDue.Equal(decimal.NewFromInt(4)))

	res = ts.do(http.MethodPost, "/api/v1/cash-drawers/"+drawer.ID+"/sales", seller.AccessToken, map[string]any{"sale_id": sale.Sale.ID})
	assert.Equal(t, http.StatusOK, res.Code)

	res = ts.do(http.MethodGet, "/api/v1/cash-drawers/current", seller.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	current := decodeBody[domain.CashDrawerSummary](t, res)
	assert.True(t, current.ExpectedBalance.Equal(decimal.NewFromInt(66)))

	res = ts.do(http.MethodGet, "/api/v1/cash-drawers", seller.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ts.do(http.MethodPost, "/api/v1/cash-drawers/"+drawer.ID+"/close", seller.AccessToken, map[string]any{"closing_balance": "65.00"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	closed := decodeBody[domain.CashDrawerSummary](t, res)
	require.NotNil(t, closed.Discrepancy)
	assert.True(t, closed.Discrepancy.Equal(decimal.NewFromInt(-1)))

	res = ts.do(http.MethodGet, "/api/v1/cash-drawers", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	history := decodeBody[struct {
		Drawers []domain.CashDrawer `json:"drawers"`
	}](t, res)
	require.Len(t, history.Drawers, 1)
	assert.Equal(t, domain.DrawerClosed, history.Drawers[0].Status)
}

func TestTransactionReviewFlow(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login("customer", "customer123")
	seller := ts.login("seller", "seller123")
	admin := ts.login("admin", "admin123")

	res := ts.do(http.MethodPost, "/api/v1/transactions", customer.AccessToken, map[string]any{
		"type": "credit_add", "amount": "15.50", "receipt_url": "receipt://pix/abc",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	tx := decodeBody[struct {
		Transaction domain.Transaction `json:"transaction"`
	}](t, res).Transaction
	assert.Equal(t, domain.TransactionPending, tx.Status)

	res = ts.do(http.MethodPost, "/api/v1/transactions", customer.AccessToken, map[string]any{
		"type": "credit_add", "amount": "0", "receipt_url": "receipt://pix/zero",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = ts.do(http.MethodPost, "/api/v1/transactions", customer.AccessToken, map[string]any{
		"type": "credit_add", "amount": "0.001", "receipt_url": "receipt://pix/tenth-cent",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "validation_error", decodeBody[errorBody](t, res).Code)

	res = ts.do(http.MethodGet, "/api/v1/stats/pending-transactions", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, decodeBody[domain.PendingTransactionsStat](t, res).Count)

	review := "/api/v1/transactions/" + tx.ID + "/review"
	res = ts.do(http.MethodPatch, review, seller.AccessToken, map[string]any{"decision": "approved"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ts.do(http.MethodPatch, review, admin.AccessToken, map[string]any{"decision": "approved", "admin_note": "ok"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	reviewed := decodeBody[domain.TransactionReviewResponse](t, res)
	assert.Equal(t, domain.TransactionApproved, reviewed.Transaction.Status)
	assert.True(t, reviewed.Account.Credit.Equal(decimal.RequireFromString("65.50")))

	res = ts.do(http.MethodPatch, review, admin.AccessToken, map[string]any{"decision": "rejected"})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = ts.do(http.MethodGet, "/api/v1/transactions", customer.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	own := decodeBody[struct {
		Transactions []domain.Transaction `json:"transactions"`
	}](t, res)
	assert.Len(t, own.Transactions, 1)
}

func TestRoleChangeAppliesToExistingToken(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login("customer", "customer123")
	admin := ts.login("admin", "admin123")

	res := ts.do(http.MethodGet, "/api/v1/accounts", customer.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ts.do(http.MethodPatch, "/api/v1/accounts/"+customer.Account.ID+"/role", admin.AccessToken, map[string]any{"role": "seller"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = ts.do(http.MethodGet, "/api/v1/accounts?role=customer", customer.AccessToken, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = ts.do(http.MethodPatch, "/api/v1/accounts/"+customer.Account.ID+"/role", admin.AccessToken, map[string]any{"role": "admin"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAccountPreferences(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login("customer", "customer123")
	seller := ts.login("seller", "seller123")

	res := ts.do(http.MethodPatch, "/api/v1/accounts/"+customer.Account.ID+"/theme", customer.AccessToken, map[string]any{"theme_preference": "dark"})
	require.Equal(t, http.StatusOK, res.Code)
	updated := decodeBody[struct {
		Account domain.Account `json:"account"`
	}](t, res)
	assert.Equal(t, "dark", updated.Account.ThemePreference)

	res = ts.do(http.MethodPatch, "/api/v1/accounts/"+customer.Account.ID+"/theme", seller.AccessToken, map[string]any{"theme_preference": "dark"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ts.do(http.MethodPatch, "/api/v1/accounts/"+customer.Account.ID+"/notifications", customer.AccessToken, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = ts.do(http.MethodPatch, "/api/v1/accounts/"+customer.Account.ID+"/notifications", customer.AccessToken, map[string]any{"notifications_enabled": false})
	require.Equal(t, http.StatusOK, res.Code)
}

func TestProductAdministration(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login("admin", "admin123")
	seller := ts.login("seller", "seller123")

	body := map[string]any{
		"name":  "Pão de Queijo",
		"price": "3.50",
		"stock": 5,
		"volume_pricing": []map[string]any{
			{"min_quantity": 5, "unit_price": "3.00"},
		},
	}
	res := ts.do(http.MethodPost, "/api/v1/products", seller.AccessToken, body)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ts.do(http.MethodPost, "/api/v1/products", admin.AccessToken, body)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	product := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, res).Product
	assert.Equal(t, domain.DefaultCategory, product.Category)

	res = ts.do(http.MethodPost, "/api/v1/products", admin.AccessToken, map[string]any{
		"name": "Broken", "price": "1.00",
		"volume_pricing": []map[string]any{{"min_quantity": 1, "unit_price": "0.50"}},
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = ts.do(http.MethodPut, "/api/v1/products/"+product.ID, admin.AccessToken, map[string]any{"stock": 40})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = ts.do(http.MethodGet, "/api/v1/stats/low-stock", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	report := decodeBody[domain.LowStockReport](t, res)
	for _, p := range report.Products {
		assert.NotEqual(t, product.ID, p.ID)
	}

	res = ts.do(http.MethodDelete, "/api/v1/products/"+product.ID, admin.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)
	res = ts.do(http.MethodGet, "/api/v1/products/"+product.ID, admin.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestPushBroadcast(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login("customer", "customer123")
	admin := ts.login("admin", "admin123")

	res := ts.do(http.MethodPost, "/api/v1/push/subscribe", customer.AccessToken, map[string]any{
		"subscription": map[string]any{"endpoint": "https://push.example/c1"},
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = ts.do(http.MethodPost, "/api/v1/push/send", customer.AccessToken, map[string]any{"message": "hi", "target_type": "all_users"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ts.do(http.MethodPost, "/api/v1/push/send", admin.AccessToken, map[string]any{
		"message": "Cantina fecha às 15h", "target_type": "role", "target_role": "customers",
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	sent := decodeBody[domain.NotificationSendResponse](t, res)
	assert.Equal(t, 1, sent.Targeted)
	assert.Equal(t, 1, sent.Recipients)

	res = ts.do(http.MethodGet, "/api/v1/audit-logs", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	logs := decodeBody[struct {
		Logs []domain.AuditLog `json:"logs"`
	}](t, res)
	require.NotEmpty(t, logs.Logs)
	assert.Equal(t, "notification_send", logs.Logs[0].Action)
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login("customer", "customer123")

	res := ts.do(http.MethodPost, "/api/v1/transactions", customer.AccessToken, map[string]any{
		"type": "credit_add", "amount": "5", "receipt_url": "r", "status": "approved",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "validation_error", decodeBody[errorBody](t, res).Code)
}
