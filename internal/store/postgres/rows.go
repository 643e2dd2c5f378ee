package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"cantina/backend/internal/domain"
)

const accountColumns = `id, username, password_hash, role, credit, debt, notifications_enabled, theme_preference, created_at`

type accountRow struct {
	ID                   string          `db:"id"`
	Username             string          `db:"username"`
	PasswordHash         string          `db:"password_hash"`
	Role                 string          `db:"role"`
	Credit               decimal.Decimal `db:"credit"`
	Debt                 decimal.Decimal `db:"debt"`
	NotificationsEnabled bool            `db:"notifications_enabled"`
	ThemePreference      string          `db:"theme_preference"`
	CreatedAt            time.Time       `db:"created_at"`
}

func (r accountRow) user() domain.UserAccount {
	return domain.UserAccount{
		Account: domain.Account{
			ID:                   r.ID,
			Username:             r.Username,
			Role:                 r.Role,
			Credit:               r.Credit,
			Debt:                 r.Debt,
			NotificationsEnabled: r.NotificationsEnabled,
			ThemePreference:      r.ThemePreference,
			CreatedAt:            r.CreatedAt,
		},
		PasswordHash: r.PasswordHash,
	}
}

const productColumns = `id, name, price, stock, low_stock_threshold, category, image_url, volume_pricing, created_at, updated_at`

type productRow struct {
	ID                string          `db:"id"`
	Name              string          `db:"name"`
	Price             decimal.Decimal `db:"price"`
	Stock             int             `db:"stock"`
	LowStockThreshold int             `db:"low_stock_threshold"`
	Category          string          `db:"category"`
	ImageURL          sql.NullString  `db:"image_url"`
	VolumePricing     []byte          `db:"volume_pricing"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r productRow) product() (domain.Product, error) {
	p := domain.Product{
		ID:                r.ID,
		Name:              r.Name,
		Price:             r.Price,
		Stock:             r.Stock,
		LowStockThreshold: r.LowStockThreshold,
		Category:          r.Category,
		ImageURL:          r.ImageURL.String,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if len(r.VolumePricing) > 0 {
		if err := json.Unmarshal(r.VolumePricing, &p.VolumePricing); err != nil {
			return domain.Product{}, err
		}
	}
	if len(p.VolumePricing) == 0 {
		p.VolumePricing = nil
	}
	return p, nil
}

func encodeTiers(tiers []domain.VolumeTier) (string, error) {
	if tiers == nil {
		tiers = []domain.VolumeTier{}
	}
	payload, err := json.Marshal(tiers)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

const saleColumns = `id, seller_id, customer_id, total, payment_method, status, cancellation_reason, cash_drawer_id, cash_tendered, idempotency_key, created_at, cancelled_at`

type saleRow struct {
	ID                 string              `db:"id"`
	SellerID           string              `db:"seller_id"`
	CustomerID         string              `db:"customer_id"`
	Total              decimal.Decimal     `db:"total"`
	PaymentMethod      string              `db:"payment_method"`
	Status             string              `db:"status"`
	CancellationReason sql.NullString      `db:"cancellation_reason"`
	CashDrawerID       sql.NullString      `db:"cash_drawer_id"`
	CashTendered       decimal.NullDecimal `db:"cash_tendered"`
	IdempotencyKey     sql.NullString      `db:"idempotency_key"`
	CreatedAt          time.Time           `db:"created_at"`
	CancelledAt        sql.NullTime        `db:"cancelled_at"`
}

func (r saleRow) sale() domain.Sale {
	sale := domain.Sale{
		ID:                 r.ID,
		SellerID:           r.SellerID,
		CustomerID:         r.CustomerID,
		Items:              []domain.SaleLine{},
		Total:              r.Total,
		PaymentMethod:      domain.PaymentMethod(r.PaymentMethod),
		Status:             domain.SaleStatus(r.Status),
		CancellationReason: r.CancellationReason.String,
		CashDrawerID:       r.CashDrawerID.String,
		IdempotencyKey:     r.IdempotencyKey.String,
		CreatedAt:          r.CreatedAt,
	}
	if r.CashTendered.Valid {
		tendered := r.CashTendered.Decimal
		sale.CashTendered = &tendered
	}
	if r.CancelledAt.Valid {
		at := r.CancelledAt.Time
		sale.CancelledAt = &at
	}
	return sale
}

type saleItemRow struct {
	SaleID    string          `db:"sale_id"`
	LineNo    int             `db:"line_no"`
	ProductID string          `db:"product_id"`
	Name      string          `db:"name"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
}

const transactionColumns = `id, account_id, type, amount, receipt_url, status, admin_note, applied_amount, reviewed_by, reviewed_at, created_at`

type transactionRow struct {
	ID            string              `db:"id"`
	AccountID     string              `db:"account_id"`
	Type          string              `db:"type"`
	Amount        decimal.Decimal     `db:"amount"`
	ReceiptURL    string              `db:"receipt_url"`
	Status        string              `db:"status"`
	AdminNote     string              `db:"admin_note"`
	AppliedAmount decimal.NullDecimal `db:"applied_amount"`
	ReviewedBy    sql.NullString      `db:"reviewed_by"`
	ReviewedAt    sql.NullTime        `db:"reviewed_at"`
	CreatedAt     time.Time           `db:"created_at"`
}

func (r transactionRow) transaction() domain.Transaction {
	tx := domain.Transaction{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Type:       domain.TransactionType(r.Type),
		Amount:     r.Amount,
		ReceiptURL: r.ReceiptURL,
		Status:     domain.TransactionStatus(r.Status),
		AdminNote:  r.AdminNote,
		ReviewedBy: r.ReviewedBy.String,
		CreatedAt:  r.CreatedAt,
	}
	if r.AppliedAmount.Valid {
		applied := r.AppliedAmount.Decimal
		tx.AppliedAmount = &applied
	}
	if r.ReviewedAt.Valid {
		at := r.ReviewedAt.Time
		tx.ReviewedAt = &at
	}
	return tx
}

const drawerColumns = `id, seller_id, opening_balance, closing_balance, status, opened_at, closed_at`

type drawerRow struct {
	ID             string              `db:"id"`
	SellerID       string              `db:"seller_id"`
	OpeningBalance decimal.Decimal     `db:"opening_balance"`
	ClosingBalance decimal.NullDecimal `db:"closing_balance"`
	Status         string              `db:"status"`
	OpenedAt       time.Time           `db:"opened_at"`
	ClosedAt       sql.NullTime        `db:"closed_at"`
}

func (r drawerRow) drawer(saleIDs []string) domain.CashDrawer {
	if saleIDs == nil {
		saleIDs = []string{}
	}
	drawer := domain.CashDrawer{
		ID:             r.ID,
		SellerID:       r.SellerID,
		OpeningBalance: r.OpeningBalance,
		Status:         domain.DrawerStatus(r.Status),
		SaleIDs:        saleIDs,
		OpenedAt:       r.OpenedAt,
	}
	if r.ClosingBalance.Valid {
		closing := r.ClosingBalance.Decimal
		drawer.ClosingBalance = &closing
	}
	if r.ClosedAt.Valid {
		at := r.ClosedAt.Time
		drawer.ClosedAt = &at
	}
	return drawer
}

type subscriptionRow struct {
	ID           string    `db:"id"`
	AccountID    string    `db:"account_id"`
	Subscription []byte    `db:"subscription"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r subscriptionRow) subscription() domain.PushSubscription {
	return domain.PushSubscription{
		ID:           r.ID,
		AccountID:    r.AccountID,
		Subscription: json.RawMessage(r.Subscription),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
