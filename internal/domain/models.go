package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleAdmin    = "admin"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentCredit PaymentMethod = "credit"
	PaymentFiado  PaymentMethod = "fiado"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCredit, PaymentFiado:
		return true
	}
	return false
}

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

type TransactionType string

const (
	TransactionCreditAdd   TransactionType = "credit_add"
	TransactionDebtPayment TransactionType = "debt_payment"
)

type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionApproved TransactionStatus = "approved"
	TransactionRejected TransactionStatus = "rejected"
)

type DrawerStatus string

const (
	DrawerOpen   DrawerStatus = "open"
	DrawerClosed DrawerStatus = "closed"
)

const (
	TargetAllUsers = "all_users"
	TargetRole     = "role"
	TargetDebtors  = "debtors"
	TargetManual   = "manual"
)

const (
	DefaultLowStockThreshold = 10
	DefaultCategory          = "general"
	DefaultTheme             = "light"
)

// Account is a canteen user together with its balance ledger.
type Account struct {
	ID                   string          `json:"id"`
	Username             string          `json:"username"`
	Role                 string          `json:"role"`
	Credit               decimal.Decimal `json:"credit"`
	Debt                 decimal.Decimal `json:"debt"`
	NotificationsEnabled bool            `json:"notifications_enabled"`
	ThemePreference      string          `json:"theme_preference"`
	CreatedAt            time.Time       `json:"created_at"`
}

// UserAccount is an internal persistence model carrying auth credentials.
type UserAccount struct {
	Account
	PasswordHash string `json:"-"`
}

type AccountFilter struct {
	Role        string
	DebtorsOnly bool
}

type AccountRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer seller"`
}

type AccountThemeRequest struct {
	ThemePreference string `json:"theme_preference" validate:"required,max=40"`
}

type AccountNotificationsRequest struct {
	Enabled *bool `json:"notifications_enabled" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=40"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string  `json:"access_token"`
	Role        string  `json:"role"`
	ExpiresAt   string  `json:"expires_at"`
	Account     Account `json:"account"`
}

// Actor is the authenticated principal performing an operation.
type Actor struct {
	AccountID string
	Username  string
	Role      string
}

type VolumeTier struct {
	MinQuantity int             `json:"min_quantity" validate:"gte=2"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Stock             int             `json:"stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	Category          string          `json:"category"`
	ImageURL          string          `json:"image_url,omitempty"`
	VolumePricing     []VolumeTier    `json:"volume_pricing,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (p Product) LowStock() bool {
	return p.Stock <= p.LowStockThreshold
}

type ProductCreateRequest struct {
	Name              string          `json:"name" validate:"required,max=120"`
	Price             decimal.Decimal `json:"price" validate:"gte=0"`
	Stock             int             `json:"stock" validate:"gte=0"`
	LowStockThreshold *int            `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Category          string          `json:"category,omitempty" validate:"max=60"`
	ImageURL          string          `json:"image_url,omitempty"`
	VolumePricing     []VolumeTier    `json:"volume_pricing,omitempty" validate:"dive"`
}

type ProductUpdateRequest struct {
	Name              *string          `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Price             *decimal.Decimal `json:"price,omitempty" validate:"omitempty,gte=0"`
	Stock             *int             `json:"stock,omitempty" validate:"omitempty,gte=0"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Category          *string          `json:"category,omitempty" validate:"omitempty,max=60"`
	VolumePricing     *[]VolumeTier    `json:"volume_pricing,omitempty" validate:"omitempty,dive"`
}

type ProductImageRequest struct {
	ImageURL string `json:"image_url" validate:"required"`
}

type LowStockReport struct {
	Products []Product `json:"products"`
	Count    int       `json:"count"`
}

// SaleLine snapshots the product name and unit price at commit time.
type SaleLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l SaleLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Sale struct {
	ID                 string           `json:"id"`
	SellerID           string           `json:"seller_id"`
	CustomerID         string           `json:"customer_id"`
	Items              []SaleLine       `json:"items"`
	Total              decimal.Decimal  `json:"total"`
	PaymentMethod      PaymentMethod    `json:"payment_method"`
	Status             SaleStatus       `json:"status"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	CashDrawerID       string           `json:"cash_drawer_id,omitempty"`
	CashTendered       *decimal.Decimal `json:"cash_tendered,omitempty"`
	IdempotencyKey     string           `json:"idempotency_key,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type CreateSaleRequest struct {
	CustomerID     string            `json:"customer_id"`
	Items          []SaleItemRequest `json:"items" validate:"dive"`
	PaymentMethod  PaymentMethod     `json:"payment_method" validate:"required,oneof=cash card credit fiado"`
	CashTendered   *decimal.Decimal  `json:"cash_tendered,omitempty" validate:"omitempty,gte=0"`
	IdempotencyKey string            `json:"idempotency_key,omitempty" validate:"max=120"`
}

type CreateSaleResponse struct {
	Sale      Sale             `json:"sale"`
	Customer  Account          `json:"customer"`
	ChangeDue *decimal.Decimal `json:"change_due,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Duplicate bool             `json:"duplicate"`
}

type CancelSaleRequest struct {
	Reason string `json:"reason"`
}

type CancelSaleResponse struct {
	Sale     Sale    `json:"sale"`
	Customer Account `json:"customer"`
}

type Transaction struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"account_id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	ReceiptURL    string            `json:"receipt_url"`
	Status        TransactionStatus `json:"status"`
	AdminNote     string            `json:"admin_note,omitempty"`
	AppliedAmount *decimal.Decimal  `json:"applied_amount,omitempty"`
	ReviewedBy    string            `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type TransactionCreateRequest struct {
	Type       TransactionType `json:"type" validate:"required,oneof=credit_add debt_payment"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	ReceiptURL string          `json:"receipt_url" validate:"required"`
}

type TransactionReviewRequest struct {
	Decision  TransactionStatus `json:"decision" validate:"required,oneof=approved rejected"`
	AdminNote string            `json:"admin_note,omitempty" validate:"max=500"`
}

type TransactionReviewResponse struct {
	Transaction Transaction `json:"transaction"`
	Account     Account     `json:"account"`
}

type CashDrawer struct {
	ID             string           `json:"id"`
	SellerID       string           `json:"seller_id"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	ClosingBalance *decimal.Decimal `json:"closing_balance,omitempty"`
	Status         DrawerStatus     `json:"status"`
	SaleIDs        []string         `json:"sale_ids"`
	OpenedAt       time.Time        `json:"opened_at"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
}

type CashDrawerOpenRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"gte=0"`
}

type CashDrawerCloseRequest struct {
	ClosingBalance decimal.Decimal `json:"closing_balance" validate:"gte=0"`
}

type CashDrawerLinkRequest struct {
	SaleID string `json:"sale_id" validate:"required"`
}

// CashDrawerSummary reconciles a session against its linked cash sales.
type CashDrawerSummary struct {
	Drawer          CashDrawer       `json:"drawer"`
	CashSalesTotal  decimal.Decimal  `json:"cash_sales_total"`
	ExpectedBalance decimal.Decimal  `json:"expected_balance"`
	Discrepancy     *decimal.Decimal `json:"discrepancy,omitempty"`
}

type PushSubscription struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Subscription json.RawMessage `json:"subscription"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type PushSubscribeRequest struct {
	Subscription json.RawMessage `json:"subscription" validate:"required"`
}

type Notification struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	TargetType  string    `json:"target_type"`
	TargetCount int       `json:"target_count"`
	Recipients  int       `json:"recipients"`
	SentBy      string    `json:"sent_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type NotificationSendRequest struct {
	Message          string   `json:"message" validate:"required,max=500"`
	TargetType       string   `json:"target_type" validate:"required,oneof=all_users role debtors manual"`
	TargetRole       string   `json:"target_role,omitempty"`
	TargetAccountIDs []string `json:"target_account_ids,omitempty"`
}

type NotificationSendResponse struct {
	Notification Notification `json:"notification"`
	Targeted     int          `json:"targeted"`
	Recipients   int          `json:"recipients"`
}

// PushMessage is the payload fanned out to one subscribed recipient.
type PushMessage struct {
	NotificationID string          `json:"notification_id"`
	AccountID      string          `json:"account_id"`
	Message        string          `json:"message"`
	Subscription   json.RawMessage `json:"subscription"`
	SentAt         time.Time       `json:"sent_at"`
}

type PendingTransactionsStat struct {
	Count int `json:"count"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorID       string    `json:"actor_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
