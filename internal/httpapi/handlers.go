package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cantina/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": a.csrf.Token()})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many login attempts"))
		return
	}
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !a.registerLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many registration attempts"))
		return
	}
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.auth.Register(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, err := a.service.Me(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":      acct,
		"capabilities": domain.CapabilitiesFor(acct.Role),
		"debt_ceiling": a.service.DebtCeiling(),
	})
}

func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	debtorsOnly, _ := strconv.ParseBool(query.Get("debtors"))
	accounts, err := a.service.ListAccounts(r.Context(), domain.AccountFilter{
		Role:        query.Get("role"),
		DebtorsOnly: debtorsOnly,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (a *API) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := a.service.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct})
}

func (a *API) handleAccountRole(w http.ResponseWriter, r *http.Request) {
	var req domain.AccountRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	acct, err := a.service.UpdateAccountRole(r.Context(), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct})
}

func (a *API) handleAccountTheme(w http.ResponseWriter, r *http.Request) {
	var req domain.AccountThemeRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	acct, err := a.service.UpdateAccountTheme(r.Context(), chi.URLParam(r, "id"), req.ThemePreference)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct})
}

func (a *API) handleAccountNotifications(w http.ResponseWriter, r *http.Request) {
	var req domain.AccountNotificationsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	acct, err := a.service.UpdateAccountNotifications(r.Context(), chi.URLParam(r, "id"), *req.Enabled)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleProductImage(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductImageRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	product, err := a.service.SetProductImage(r.Context(), chi.URLParam(r, "id"), req.ImageURL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}

	resp, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	sales, err := a.service.ListSales(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CancelSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.service.CancelSale(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	tx, err := a.service.SubmitTransaction(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := a.service.ListTransactions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleReviewTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.service.ReviewTransaction(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleOpenCashDrawer(w http.ResponseWriter, r *http.Request) {
	var req domain.CashDrawerOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	drawer, err := a.service.OpenCashDrawer(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"drawer": drawer})
}

func (a *API) handleCurrentCashDrawer(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.CurrentCashDrawer(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleLinkSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CashDrawerLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	drawer, err := a.service.LinkSaleToCashDrawer(r.Context(), chi.URLParam(r, "id"), req.SaleID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drawer": drawer})
}

func (a *API) handleCloseCashDrawer(w http.ResponseWriter, r *http.Request) {
	var req domain.CashDrawerCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	summary, err := a.service.CloseCashDrawer(r.Context(), chi.URLParam(r, "id"), req.ClosingBalance)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleListCashDrawers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	drawers, err := a.service.ListCashDrawers(r.Context(), query.Get("seller_id"), parsePositiveLimit(query.Get("limit"), 50, 200))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drawers": drawers})
}

func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req domain.PushSubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sub, err := a.service.Subscribe(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": sub})
}

func (a *API) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationSendRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.service.SendNotification(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := a.service.ListNotifications(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.LowStock(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handlePendingTransactions(w http.ResponseWriter, r *http.Request) {
	stat, err := a.service.PendingTransactions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stat)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("date"), parsePositiveLimit(query.Get("limit"), 100, 500))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
