package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/ledger"
	"cantina/backend/internal/settlement"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = domain.ErrConflict
)

// SaleResult is the committed state after a sale is created or cancelled.
type SaleResult struct {
	Sale      domain.Sale
	Customer  domain.Account
	Duplicate bool
}

type TransactionReview struct {
	Decision   domain.TransactionStatus
	AdminNote  string
	ReviewerID string
	At         time.Time
}

type ReviewResult struct {
	Transaction domain.Transaction
	Account     domain.Account
}

type SaleFilter struct {
	CustomerID string
	SellerID   string
	Limit      int
}

// Repository persists the canteen state. Every method that changes a balance,
// a stock level or a status runs its reads and writes as one atomic unit.
type Repository interface {
	CreateAccount(ctx context.Context, user domain.UserAccount) (*domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListAccounts(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error)
	UpdateAccountRole(ctx context.Context, id string, role string) (*domain.Account, error)
	UpdateAccountTheme(ctx context.Context, id string, theme string) (*domain.Account, error)
	UpdateAccountNotifications(ctx context.Context, id string, enabled bool) (*domain.Account, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	CommitSale(ctx context.Context, draft settlement.Draft, evaluator settlement.Evaluator) (*SaleResult, error)
	CancelSale(ctx context.Context, id string, reason string, at time.Time, evaluator settlement.Evaluator) (*SaleResult, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)

	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error)
	CountTransactions(ctx context.Context, status domain.TransactionStatus) (int, error)
	ReviewTransaction(ctx context.Context, id string, review TransactionReview, l ledger.Ledger) (*ReviewResult, error)

	OpenCashDrawer(ctx context.Context, drawer domain.CashDrawer) (*domain.CashDrawer, error)
	GetCashDrawer(ctx context.Context, id string) (*domain.CashDrawer, error)
	GetOpenCashDrawer(ctx context.Context, sellerID string) (*domain.CashDrawer, error)
	LinkSaleToCashDrawer(ctx context.Context, drawerID string, saleID string) (*domain.CashDrawer, error)
	SummarizeCashDrawer(ctx context.Context, id string) (*domain.CashDrawerSummary, error)
	CloseCashDrawer(ctx context.Context, id string, closingBalance decimal.Decimal, at time.Time) (*domain.CashDrawerSummary, error)
	ListCashDrawers(ctx context.Context, sellerID string, limit int) ([]domain.CashDrawer, error)

	UpsertPushSubscription(ctx context.Context, sub domain.PushSubscription) (*domain.PushSubscription, error)
	ListPushSubscriptions(ctx context.Context, accountIDs []string) ([]domain.PushSubscription, error)
	CreateNotification(ctx context.Context, notification domain.Notification) error
	ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
