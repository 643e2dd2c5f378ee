package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/notify"
	"cantina/backend/internal/store"
	"cantina/backend/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingCache struct {
	mu          sync.Mutex
	entries     map[string]domain.Account
	invalidated []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string]domain.Account)}
}

func (c *recordingCache) Get(_ context.Context, id string) (*domain.Account, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	acct, ok := c.entries[id]
	if !ok {
		return nil, false, nil
	}
	return &acct, true, nil
}

func (c *recordingCache) Set(_ context.Context, acct domain.Account, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[acct.ID] = acct
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

type harness struct {
	svc       *Service
	repo      *memory.Store
	cache     *recordingCache
	publisher *notify.Recorder
	admin     domain.Account
	seller    domain.Account
	customer  domain.Account
	soda      domain.Product
	cake      domain.Product
}

func newHarness(t *testing.T, credit string, debt string) harness {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	create := func(username string, role string, credit string, debt string) domain.Account {
		acct, err := repo.CreateAccount(ctx, domain.UserAccount{Account: domain.Account{
			Username:             username,
			Role:                 role,
			Credit:               dec(credit),
			Debt:                 dec(debt),
			NotificationsEnabled: true,
		}})
		require.NoError(t, err)
		return *acct
	}
	h := harness{
		repo:      repo,
		cache:     newRecordingCache(),
		publisher: &notify.Recorder{},
		admin:     create("admin", domain.RoleAdmin, "0", "0"),
		seller:    create("seller", domain.RoleSeller, "0", "0"),
		customer:  create("ana", domain.RoleCustomer, credit, debt),
	}
	h.svc = New(repo, Options{
		Accounts:        h.cache,
		Publisher:       h.publisher,
		DebtCeiling:     dec("10"),
		AccountCacheTTL: time.Minute,
	})

	soda, err := repo.CreateProduct(ctx, domain.Product{Name: "Soda", Price: dec("5.00"), Stock: 50, LowStockThreshold: 10, Category: "bebidas"})
	require.NoError(t, err)
	cake, err := repo.CreateProduct(ctx, domain.Product{Name: "Cake", Price: dec("6.00"), Stock: 3, LowStockThreshold: 5, Category: "doces"})
	require.NoError(t, err)
	h.soda, h.cake = *soda, *cake
	return h
}

func as(acct domain.Account) context.Context {
	return WithActor(context.Background(), domain.Actor{AccountID: acct.ID, Username: acct.Username, Role: acct.Role})
}

func (h harness) sale(method domain.PaymentMethod, items ...domain.SaleItemRequest) domain.CreateSaleRequest {
	return domain.CreateSaleRequest{CustomerID: h.customer.ID, Items: items, PaymentMethod: method}
}

func (h harness) account(t *testing.T) domain.Account {
	t.Helper()
	acct, err := h.repo.GetAccount(context.Background(), h.customer.ID)
	require.NoError(t, err)
	return *acct
}

func (h harness) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := h.repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCreditSaleLeavesRemainingCredit(t *testing.T) {
	h := newHarness(t, "50", "0")

	resp, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 4}))
	require.NoError(t, err)
	assert.True(t, resp.Sale.Total.Equal(dec("20")))
	assert.True(t, resp.Customer.Credit.Equal(dec("30")))
	assert.True(t, h.account(t).Credit.Equal(dec("30")))
	assert.Equal(t, 46, h.stock(t, h.soda.ID))
	assert.Contains(t, h.cache.invalidated, h.customer.ID)
}

func TestFiadoSaleMayExceedCeilingFromZeroDebt(t *testing.T) {
	h := newHarness(t, "50", "0")

	resp, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentFiado, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 4}))
	require.NoError(t, err)
	assert.True(t, resp.Customer.Debt.Equal(dec("20")))
	assert.True(t, resp.Customer.Credit.Equal(dec("50")))
}

func TestFiadoSaleRejectedAtCeiling(t *testing.T) {
	h := newHarness(t, "0", "10")

	_, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentFiado, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrDebtCeiling)
	assert.True(t, h.account(t).Debt.Equal(dec("10")))
	assert.Equal(t, 50, h.stock(t, h.soda.ID))
}

func TestCreditSaleRejectedWhenShort(t *testing.T) {
	h := newHarness(t, "4.99", "0")

	_, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, h.account(t).Credit.Equal(dec("4.99")))
}

func TestStockShortfallRejectsWholeSale(t *testing.T) {
	h := newHarness(t, "100", "0")

	_, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentCredit,
		domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 2},
		domain.SaleItemRequest{ProductID: h.cake.ID, Quantity: 5},
	))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 3, h.stock(t, h.cake.ID))
	assert.Equal(t, 50, h.stock(t, h.soda.ID))
	assert.True(t, h.account(t).Credit.Equal(dec("100")))
}

func TestCreateSaleValidation(t *testing.T) {
	h := newHarness(t, "100", "0")
	ctx := as(h.seller)

	_, err := h.svc.CreateSale(ctx, domain.CreateSaleRequest{Items: []domain.SaleItemRequest{{ProductID: h.soda.ID, Quantity: 1}}, PaymentMethod: domain.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrValidation, "customer is required")

	_, err = h.svc.CreateSale(ctx, h.sale(domain.PaymentCash))
	assert.ErrorIs(t, err, domain.ErrValidation, "cart must not be empty")

	_, err = h.svc.CreateSale(ctx, h.sale(domain.PaymentCash, domain.SaleItemRequest{ProductID: "missing", Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrValidation, "unknown product")

	_, err = h.svc.CreateSale(ctx, h.sale("barter", domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrValidation, "unknown payment method")
}

func TestCreateSaleRequiresSellCapability(t *testing.T) {
	h := newHarness(t, "100", "0")

	_, err := h.svc.CreateSale(as(h.customer), h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.svc.CreateSale(context.Background(), h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCashSaleReportsChangeAndShortfallWarning(t *testing.T) {
	h := newHarness(t, "0", "0")
	ctx := as(h.seller)

	req := h.sale(domain.PaymentCash, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1})
	tendered := dec("20")
	req.CashTendered = &tendered
	resp, err := h.svc.CreateSale(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, resp.ChangeDue)
	assert.True(t, resp.ChangeDue.Equal(dec("15")))
	assert.Empty(t, resp.Warnings)

	short := dec("2")
	req.CashTendered = &short
	resp, err = h.svc.CreateSale(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, resp.ChangeDue)
	assert.True(t, resp.ChangeDue.Equal(dec("-3")))
	assert.Len(t, resp.Warnings, 1)
}

func TestIdempotentSaleReplaysOriginal(t *testing.T) {
	h := newHarness(t, "50", "0")
	ctx := as(h.seller)

	req := h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1})
	req.IdempotencyKey = "till-1-0001"
	first, err := h.svc.CreateSale(ctx, req)
	require.NoError(t, err)
	second, err := h.svc.CreateSale(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Sale.ID, second.Sale.ID)
	assert.True(t, h.account(t).Credit.Equal(dec("45")))
	assert.Equal(t, 49, h.stock(t, h.soda.ID))

	reused := h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 2})
	reused.IdempotencyKey = req.IdempotencyKey
	_, err = h.svc.CreateSale(ctx, reused)
	assert.ErrorIs(t, err, domain.ErrConflict)

	third, err := h.svc.CreateSale(as(h.admin), req)
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
	assert.NotEqual(t, first.Sale.ID, third.Sale.ID)
	assert.True(t, h.account(t).Credit.Equal(dec("40")))
}

func TestCancelSaleRestoresStockAndLedger(t *testing.T) {
	h := newHarness(t, "50", "0")
	ctx := as(h.seller)

	credit, err := h.svc.CreateSale(ctx, h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.cake.ID, Quantity: 2}))
	require.NoError(t, err)
	fiado, err := h.svc.CreateSale(ctx, h.sale(domain.PaymentFiado, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 3}))
	require.NoError(t, err)

	_, err = h.svc.CancelSale(ctx, credit.Sale.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrReasonRequired)

	resp, err := h.svc.CancelSale(ctx, credit.Sale.ID, "customer changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, resp.Sale.Status)
	assert.Equal(t, "customer changed mind", resp.Sale.CancellationReason)
	assert.True(t, resp.Customer.Credit.Equal(dec("50")))
	assert.Equal(t, 3, h.stock(t, h.cake.ID))

	resp, err = h.svc.CancelSale(ctx, fiado.Sale.ID, "wrong customer")
	require.NoError(t, err)
	assert.True(t, resp.Customer.Debt.IsZero())
	assert.Equal(t, 50, h.stock(t, h.soda.ID))

	_, err = h.svc.CancelSale(ctx, credit.Sale.ID, "twice")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = h.svc.CancelSale(ctx, "missing", "reason")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCancelFiadoAfterPartialRepaymentReturnsExcessToCredit(t *testing.T) {
	h := newHarness(t, "0", "0")
	seller := as(h.seller)

	sale, err := h.svc.CreateSale(seller, h.sale(domain.PaymentFiado, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 2}))
	require.NoError(t, err)

	tx, err := h.svc.SubmitTransaction(as(h.customer), domain.TransactionCreateRequest{
		Type: domain.TransactionDebtPayment, Amount: dec("4"), ReceiptURL: "receipt://pix/1",
	})
	require.NoError(t, err)
	_, err = h.svc.ReviewTransaction(as(h.admin), tx.ID, domain.TransactionReviewRequest{Decision: domain.TransactionApproved})
	require.NoError(t, err)
	assert.True(t, h.account(t).Debt.Equal(dec("6")))

	resp, err := h.svc.CancelSale(seller, sale.Sale.ID, "returned goods")
	require.NoError(t, err)
	assert.True(t, resp.Customer.Debt.IsZero())
	assert.True(t, resp.Customer.Credit.Equal(dec("4")))
}

func TestCancelSaleRequiresCapability(t *testing.T) {
	h := newHarness(t, "50", "0")

	sale, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	require.NoError(t, err)
	_, err = h.svc.CancelSale(as(h.customer), sale.Sale.ID, "mine")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestReviewTransactionApprovesAndRejects(t *testing.T) {
	h := newHarness(t, "0", "8")
	customer := as(h.customer)
	admin := as(h.admin)

	topUp, err := h.svc.SubmitTransaction(customer, domain.TransactionCreateRequest{
		Type: domain.TransactionCreditAdd, Amount: dec("25"), ReceiptURL: "receipt://pix/2",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionPending, topUp.Status)

	payment, err := h.svc.SubmitTransaction(customer, domain.TransactionCreateRequest{
		Type: domain.TransactionDebtPayment, Amount: dec("10"), ReceiptURL: "receipt://pix/3",
	})
	require.NoError(t, err)

	pending, err := h.svc.PendingTransactions(admin)
	require.NoError(t, err)
	assert.Equal(t, 2, pending.Count)

	_, err = h.svc.ReviewTransaction(customer, topUp.ID, domain.TransactionReviewRequest{Decision: domain.TransactionApproved})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	rejected, err := h.svc.ReviewTransaction(admin, topUp.ID, domain.TransactionReviewRequest{Decision: domain.TransactionRejected, AdminNote: " blurry receipt "})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionRejected, rejected.Transaction.Status)
	assert.Equal(t, "blurry receipt", rejected.Transaction.AdminNote)
	assert.True(t, rejected.Account.Credit.IsZero())

	approved, err := h.svc.ReviewTransaction(admin, payment.ID, domain.TransactionReviewRequest{Decision: domain.TransactionApproved})
	require.NoError(t, err)
	assert.True(t, approved.Account.Debt.IsZero())
	assert.True(t, approved.Account.Credit.Equal(dec("2")))
	require.NotNil(t, approved.Transaction.AppliedAmount)
	assert.True(t, approved.Transaction.AppliedAmount.Equal(dec("8")))
	assert.Equal(t, h.admin.ID, approved.Transaction.ReviewedBy)

	_, err = h.svc.ReviewTransaction(admin, payment.ID, domain.TransactionReviewRequest{Decision: domain.TransactionRejected})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSubmitTransactionValidation(t *testing.T) {
	h := newHarness(t, "0", "0")
	ctx := as(h.customer)

	_, err := h.svc.SubmitTransaction(ctx, domain.TransactionCreateRequest{Type: domain.TransactionCreditAdd, Amount: dec("0"), ReceiptURL: "r"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.SubmitTransaction(ctx, domain.TransactionCreateRequest{Type: domain.TransactionCreditAdd, Amount: dec("5")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.SubmitTransaction(ctx, domain.TransactionCreateRequest{Type: "refund", Amount: dec("5"), ReceiptURL: "r"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMoneyAmountsLimitedToCents(t *testing.T) {
	h := newHarness(t, "50", "0")

	_, err := h.svc.SubmitTransaction(as(h.customer), domain.TransactionCreateRequest{Type: domain.TransactionCreditAdd, Amount: dec("0.001"), ReceiptURL: "r"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	tx, err := h.svc.SubmitTransaction(as(h.customer), domain.TransactionCreateRequest{Type: domain.TransactionCreditAdd, Amount: dec("2.500"), ReceiptURL: "r"})
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(dec("2.50")))

	_, err = h.svc.CreateProduct(as(h.admin), domain.ProductCreateRequest{Name: "Bala", Price: dec("0.333"), Stock: 5})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.CreateProduct(as(h.admin), domain.ProductCreateRequest{
		Name: "Bala", Price: dec("0.35"), Stock: 5,
		VolumePricing: []domain.VolumeTier{{MinQuantity: 10, UnitPrice: dec("0.305")}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	price := dec("4.999")
	_, err = h.svc.UpdateProduct(as(h.admin), h.soda.ID, domain.ProductUpdateRequest{Price: &price})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.OpenCashDrawer(as(h.seller), domain.CashDrawerOpenRequest{OpeningBalance: dec("10.005")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	tendered := dec("20.001")
	req := h.sale(domain.PaymentCash, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1})
	req.CashTendered = &tendered
	_, err = h.svc.CreateSale(as(h.seller), req)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 50, h.stock(t, h.soda.ID))
}

func TestListTransactionsScopesToOwnerUnlessReviewer(t *testing.T) {
	h := newHarness(t, "0", "0")

	_, err := h.svc.SubmitTransaction(as(h.customer), domain.TransactionCreateRequest{Type: domain.TransactionCreditAdd, Amount: dec("5"), ReceiptURL: "r"})
	require.NoError(t, err)
	_, err = h.svc.SubmitTransaction(as(h.seller), domain.TransactionCreateRequest{Type: domain.TransactionCreditAdd, Amount: dec("7"), ReceiptURL: "r"})
	require.NoError(t, err)

	own, err := h.svc.ListTransactions(as(h.customer))
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, h.customer.ID, own[0].AccountID)

	all, err := h.svc.ListTransactions(as(h.admin))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCashDrawerSessionReconciles(t *testing.T) {
	h := newHarness(t, "50", "0")
	seller := as(h.seller)

	drawer, err := h.svc.OpenCashDrawer(seller, domain.CashDrawerOpenRequest{OpeningBalance: dec("100")})
	require.NoError(t, err)
	_, err = h.svc.OpenCashDrawer(seller, domain.CashDrawerOpenRequest{OpeningBalance: dec("1")})
	assert.ErrorIs(t, err, domain.ErrDrawerAlreadyOpen)

	cash, err := h.svc.CreateSale(seller, h.sale(domain.PaymentCash, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 2}))
	require.NoError(t, err)
	assert.Equal(t, drawer.ID, cash.Sale.CashDrawerID)
	voided, err := h.svc.CreateSale(seller, h.sale(domain.PaymentCash, domain.SaleItemRequest{ProductID: h.cake.ID, Quantity: 1}))
	require.NoError(t, err)
	_, err = h.svc.CreateSale(seller, h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	require.NoError(t, err)
	cancelled, err := h.svc.CancelSale(seller, voided.Sale.ID, "dropped on floor")
	require.NoError(t, err)
	assert.Empty(t, cancelled.Sale.CashDrawerID)

	linked, err := h.svc.LinkSaleToCashDrawer(seller, drawer.ID, cash.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{cash.Sale.ID}, linked.SaleIDs)
	_, err = h.svc.LinkSaleToCashDrawer(seller, drawer.ID, voided.Sale.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	current, err := h.svc.CurrentCashDrawer(seller)
	require.NoError(t, err)
	assert.True(t, current.ExpectedBalance.Equal(dec("110")))
	assert.Nil(t, current.Discrepancy)

	summary, err := h.svc.CloseCashDrawer(seller, drawer.ID, dec("108.50"))
	require.NoError(t, err)
	assert.True(t, summary.CashSalesTotal.Equal(dec("10")))
	require.NotNil(t, summary.Discrepancy)
	assert.True(t, summary.Discrepancy.Equal(dec("-1.50")))

	_, err = h.svc.CurrentCashDrawer(seller)
	assert.ErrorIs(t, err, store.ErrNotFound)

	history, err := h.svc.ListCashDrawers(as(h.admin), "", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.DrawerClosed, history[0].Status)
}

func TestCashDrawerBelongsToItsSeller(t *testing.T) {
	h := newHarness(t, "0", "0")
	ctx := context.Background()

	other, err := h.repo.CreateAccount(ctx, domain.UserAccount{Account: domain.Account{Username: "bruno", Role: domain.RoleSeller}})
	require.NoError(t, err)
	drawer, err := h.svc.OpenCashDrawer(as(h.seller), domain.CashDrawerOpenRequest{OpeningBalance: dec("10")})
	require.NoError(t, err)

	_, err = h.svc.CloseCashDrawer(as(*other), drawer.ID, dec("10"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.svc.OpenCashDrawer(as(h.customer), domain.CashDrawerOpenRequest{OpeningBalance: dec("10")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	summary, err := h.svc.CloseCashDrawer(as(h.admin), drawer.ID, dec("10"))
	require.NoError(t, err)
	assert.True(t, summary.Discrepancy.IsZero())
}

func TestLinkRejectsNonCashSale(t *testing.T) {
	h := newHarness(t, "50", "0")
	seller := as(h.seller)

	card, err := h.svc.CreateSale(seller, h.sale(domain.PaymentCard, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	require.NoError(t, err)
	drawer, err := h.svc.OpenCashDrawer(seller, domain.CashDrawerOpenRequest{OpeningBalance: dec("0")})
	require.NoError(t, err)

	_, err = h.svc.LinkSaleToCashDrawer(seller, drawer.ID, card.Sale.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProductManagement(t *testing.T) {
	h := newHarness(t, "0", "0")
	admin := as(h.admin)

	_, err := h.svc.CreateProduct(as(h.seller), domain.ProductCreateRequest{Name: "Juice", Price: dec("3")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	threshold := 4
	created, err := h.svc.CreateProduct(admin, domain.ProductCreateRequest{
		Name:              " Juice ",
		Price:             dec("3"),
		Stock:             4,
		LowStockThreshold: &threshold,
		VolumePricing:     []domain.VolumeTier{{MinQuantity: 6, UnitPrice: dec("2.50")}, {MinQuantity: 3, UnitPrice: dec("2.80")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Juice", created.Name)
	assert.Equal(t, domain.DefaultCategory, created.Category)
	assert.Equal(t, 3, created.VolumePricing[0].MinQuantity)

	_, err = h.svc.CreateProduct(admin, domain.ProductCreateRequest{
		Name:          "Bad",
		Price:         dec("1"),
		VolumePricing: []domain.VolumeTier{{MinQuantity: 1, UnitPrice: dec("1")}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	price := dec("3.20")
	updated, err := h.svc.UpdateProduct(admin, created.ID, domain.ProductUpdateRequest{Price: &price})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(price))
	assert.Len(t, updated.VolumePricing, 2)

	withImage, err := h.svc.SetProductImage(admin, created.ID, "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.NotEmpty(t, withImage.ImageURL)

	report, err := h.svc.LowStock(admin)
	require.NoError(t, err)
	names := make([]string, 0, report.Count)
	for _, p := range report.Products {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"Juice", "Cake"}, names)

	require.NoError(t, h.svc.DeleteProduct(admin, created.ID))
	_, err = h.svc.GetProduct(admin, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestVolumeTierPricingAppliesAtCheckout(t *testing.T) {
	h := newHarness(t, "100", "0")
	admin := as(h.admin)

	tiers := []domain.VolumeTier{{MinQuantity: 3, UnitPrice: dec("4.00")}, {MinQuantity: 10, UnitPrice: dec("3.50")}}
	_, err := h.svc.UpdateProduct(admin, h.soda.ID, domain.ProductUpdateRequest{VolumePricing: &tiers})
	require.NoError(t, err)

	resp, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentCredit,
		domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 2},
		domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, resp.Sale.Items, 1)
	assert.True(t, resp.Sale.Items[0].UnitPrice.Equal(dec("4.00")))
	assert.True(t, resp.Sale.Total.Equal(dec("16")))
}

func TestAccountAccessRules(t *testing.T) {
	h := newHarness(t, "0", "0")

	_, err := h.svc.ListAccounts(as(h.customer), domain.AccountFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	accounts, err := h.svc.ListAccounts(as(h.seller), domain.AccountFilter{Role: "customer"})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, h.customer.ID, accounts[0].ID)

	_, err = h.svc.GetAccount(as(h.customer), h.seller.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	me, err := h.svc.GetAccount(as(h.customer), h.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", me.Username)

	_, err = h.svc.UpdateAccountTheme(as(h.admin), h.customer.ID, "dark")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	themed, err := h.svc.UpdateAccountTheme(as(h.customer), h.customer.ID, "dark")
	require.NoError(t, err)
	assert.Equal(t, "dark", themed.ThemePreference)

	muted, err := h.svc.UpdateAccountNotifications(as(h.admin), h.customer.ID, false)
	require.NoError(t, err)
	assert.False(t, muted.NotificationsEnabled)
	_, err = h.svc.UpdateAccountNotifications(as(h.seller), h.customer.ID, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRoleChangeTakesEffectOnNextRequest(t *testing.T) {
	h := newHarness(t, "0", "0")
	token := domain.Actor{AccountID: h.customer.ID, Username: h.customer.Username, Role: domain.RoleCustomer}

	actor, err := h.svc.ResolveActor(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, actor.Role)

	_, err = h.svc.UpdateAccountRole(as(h.seller), h.customer.ID, domain.RoleSeller)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.UpdateAccountRole(as(h.admin), h.customer.ID, domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.UpdateAccountRole(as(h.admin), h.admin.ID, domain.RoleSeller)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.UpdateAccountRole(as(h.admin), h.customer.ID, domain.RoleSeller)
	require.NoError(t, err)

	actor, err = h.svc.ResolveActor(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, actor.Role)
}

func TestSendNotificationTargetsAndPublishes(t *testing.T) {
	h := newHarness(t, "0", "3")
	admin := as(h.admin)

	sub := json.RawMessage(`{"endpoint":"https://push.example/ana"}`)
	_, err := h.svc.Subscribe(as(h.customer), domain.PushSubscribeRequest{Subscription: sub})
	require.NoError(t, err)
	_, err = h.svc.Subscribe(as(h.seller), domain.PushSubscribeRequest{Subscription: json.RawMessage(`{"endpoint":"https://push.example/seller"}`)})
	require.NoError(t, err)

	resp, err := h.svc.SendNotification(admin, domain.NotificationSendRequest{Message: "Pay your tab", TargetType: domain.TargetDebtors})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Targeted)
	assert.Equal(t, 1, resp.Recipients)
	require.Len(t, h.publisher.Messages, 1)
	assert.Equal(t, h.customer.ID, h.publisher.Messages[0].AccountID)
	assert.JSONEq(t, string(sub), string(h.publisher.Messages[0].Subscription))

	resp, err = h.svc.SendNotification(admin, domain.NotificationSendRequest{Message: "Staff meeting", TargetType: domain.TargetRole, TargetRole: "sellers"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Targeted)

	resp, err = h.svc.SendNotification(admin, domain.NotificationSendRequest{Message: "Hello", TargetType: domain.TargetAllUsers})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Targeted)
	assert.Equal(t, 2, resp.Recipients)

	_, err = h.svc.SendNotification(admin, domain.NotificationSendRequest{Message: "x", TargetType: domain.TargetManual})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.SendNotification(admin, domain.NotificationSendRequest{Message: "x", TargetType: domain.TargetRole, TargetRole: "ghosts"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.SendNotification(as(h.seller), domain.NotificationSendRequest{Message: "x", TargetType: domain.TargetAllUsers})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	history, err := h.svc.ListNotifications(admin, 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestSendNotificationSkipsFailedPublishes(t *testing.T) {
	h := newHarness(t, "0", "0")
	h.publisher.Err = errors.New("redis down")

	_, err := h.svc.Subscribe(as(h.customer), domain.PushSubscribeRequest{Subscription: json.RawMessage(`{"endpoint":"x"}`)})
	require.NoError(t, err)

	resp, err := h.svc.SendNotification(as(h.admin), domain.NotificationSendRequest{
		Message:          "hi",
		TargetType:       domain.TargetManual,
		TargetAccountIDs: []string{h.customer.ID, h.customer.ID, " "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Targeted)
	assert.Equal(t, 0, resp.Recipients)
}

func TestMutationsAreAudited(t *testing.T) {
	h := newHarness(t, "50", "0")

	sale, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	require.NoError(t, err)
	_, err = h.svc.CancelSale(as(h.seller), sale.Sale.ID, "test")
	require.NoError(t, err)

	_, err = h.svc.ListAuditLogs(as(h.seller), "", 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.ListAuditLogs(as(h.admin), "16/10/2026", 10)
	assert.ErrorIs(t, err, domain.ErrValidation)

	logs, err := h.svc.ListAuditLogs(as(h.admin), "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "sale_cancel", logs[0].Action)
	assert.Equal(t, "sale_create", logs[1].Action)
	assert.Equal(t, h.seller.ID, logs[0].ActorID)
}

func TestListSalesScopesCustomers(t *testing.T) {
	h := newHarness(t, "50", "0")

	sale, err := h.svc.CreateSale(as(h.seller), h.sale(domain.PaymentCredit, domain.SaleItemRequest{ProductID: h.soda.ID, Quantity: 1}))
	require.NoError(t, err)

	own, err := h.svc.ListSales(as(h.customer), 0)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	other, err := h.repo.CreateAccount(context.Background(), domain.UserAccount{Account: domain.Account{Username: "caio", Role: domain.RoleCustomer}})
	require.NoError(t, err)
	none, err := h.svc.ListSales(as(*other), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
	_, err = h.svc.GetSale(as(*other), sale.Sale.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := h.svc.GetSale(as(h.admin), sale.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.Sale.ID, got.ID)
}
