package settlement

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/ledger"
)

// Draft is a sale request after the actor has been resolved and before any
// state has been read.
type Draft struct {
	ID             string
	SellerID       string
	CustomerID     string
	Items          []domain.SaleItemRequest
	PaymentMethod  domain.PaymentMethod
	CashTendered   *decimal.Decimal
	IdempotencyKey string
	CreatedAt      time.Time
}

// ProductIDs lists the distinct products in the draft in ascending order, the
// order in which stores lock product rows.
func (d Draft) ProductIDs() []string {
	ids := make([]string, 0, len(d.Items))
	for _, item := range d.Items {
		id := strings.TrimSpace(item.ProductID)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// CheckReplay reports whether sale, found under the draft's idempotency key,
// was committed from the same request. A key reused for a different cart,
// customer or payment method is a conflict.
func (d Draft) CheckReplay(sale domain.Sale) error {
	mismatch := fmt.Errorf("%w: idempotency key %q was used for a different sale", domain.ErrConflict, d.IdempotencyKey)
	if sale.SellerID != d.SellerID || sale.CustomerID != strings.TrimSpace(d.CustomerID) || sale.PaymentMethod != d.PaymentMethod {
		return mismatch
	}
	merged, err := MergeItems(d.Items)
	if err != nil || len(merged) != len(sale.Items) {
		return mismatch
	}
	for i, item := range merged {
		if sale.Items[i].ProductID != item.ProductID || sale.Items[i].Quantity != item.Quantity {
			return mismatch
		}
	}
	return nil
}

type StockChange struct {
	ProductID string
	Quantity  int
}

// Plan is everything a store must write to commit a sale.
type Plan struct {
	Sale       domain.Sale
	Customer   domain.Account
	Ledger     bool
	Stock      []StockChange
	LinkDrawer bool
}

// Reversal is everything a store must write to cancel a sale.
type Reversal struct {
	Sale     domain.Sale
	Customer domain.Account
	Ledger   bool
	Stock    []StockChange
	// UnlinkDrawer is the session the sale must be removed from, if any.
	UnlinkDrawer string
}

type Evaluator struct {
	Ledger ledger.Ledger
}

func NewEvaluator(l ledger.Ledger) Evaluator {
	return Evaluator{Ledger: l}
}

// Evaluate runs the hard preconditions of a sale in order against a consistent
// snapshot of the customer and the catalog and returns the commit plan. The
// first failing check is returned; nothing in the inputs is modified.
func (e Evaluator) Evaluate(draft Draft, customer *domain.Account, products map[string]domain.Product) (Plan, error) {
	if strings.TrimSpace(draft.CustomerID) == "" || customer == nil {
		return Plan{}, fmt.Errorf("%w: customer account is required", domain.ErrValidation)
	}
	if len(draft.Items) == 0 {
		return Plan{}, fmt.Errorf("%w: cart is empty", domain.ErrValidation)
	}
	if !draft.PaymentMethod.Valid() {
		return Plan{}, fmt.Errorf("%w: unsupported payment method %q", domain.ErrValidation, draft.PaymentMethod)
	}

	items, err := MergeItems(draft.Items)
	if err != nil {
		return Plan{}, err
	}
	lines, err := BuildLines(items, products)
	if err != nil {
		return Plan{}, err
	}
	total := Total(lines)

	state := StateBuilding
	if state, err = Transition(state, StatePendingPayment); err != nil {
		return Plan{}, err
	}

	plan := Plan{Customer: *customer}
	if adj, ok := ledger.ForSale(draft.PaymentMethod, total); ok {
		res, err := e.Ledger.Apply(*customer, adj)
		if err != nil {
			return Plan{}, err
		}
		plan.Customer = res.Account
		plan.Ledger = true
	}

	for _, item := range items {
		product := products[item.ProductID]
		if item.Quantity > product.Stock {
			return Plan{}, fmt.Errorf("%w: %s has %d in stock, %d requested", domain.ErrInsufficientStock, product.Name, product.Stock, item.Quantity)
		}
		plan.Stock = append(plan.Stock, StockChange{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	slices.SortFunc(plan.Stock, func(a, b StockChange) int { return strings.Compare(a.ProductID, b.ProductID) })

	if _, err = Transition(state, StateCompleted); err != nil {
		return Plan{}, err
	}

	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	plan.Sale = domain.Sale{
		ID:             draft.ID,
		SellerID:       draft.SellerID,
		CustomerID:     customer.ID,
		Items:          lines,
		Total:          total,
		PaymentMethod:  draft.PaymentMethod,
		Status:         domain.SaleStatusCompleted,
		CashTendered:   draft.CashTendered,
		IdempotencyKey: strings.TrimSpace(draft.IdempotencyKey),
		CreatedAt:      createdAt,
	}
	plan.LinkDrawer = draft.PaymentMethod == domain.PaymentCash
	return plan, nil
}

// Reverse plans the cancellation of a completed sale. Stock for products that
// no longer exist is skipped by the store.
func (e Evaluator) Reverse(sale domain.Sale, customer domain.Account, reason string, at time.Time) (Reversal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Reversal{}, domain.ErrReasonRequired
	}
	if _, err := Transition(StateOf(sale.Status), StateCancelled); err != nil {
		return Reversal{}, fmt.Errorf("%w: sale %s is %s", domain.ErrInvalidState, sale.ID, sale.Status)
	}

	rev := Reversal{Customer: customer}
	if adj, ok := ledger.ReversalForSale(sale.PaymentMethod, sale.Total); ok {
		res, err := e.Ledger.Apply(customer, adj)
		if err != nil {
			return Reversal{}, err
		}
		rev.Customer = res.Account
		rev.Ledger = true
	}

	restock := make(map[string]int, len(sale.Items))
	for _, line := range sale.Items {
		restock[line.ProductID] += line.Quantity
	}
	for id, qty := range restock {
		rev.Stock = append(rev.Stock, StockChange{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(rev.Stock, func(a, b StockChange) int { return strings.Compare(a.ProductID, b.ProductID) })

	cancelledAt := at.UTC()
	rev.Sale = sale
	rev.Sale.Items = slices.Clone(sale.Items)
	rev.Sale.Status = domain.SaleStatusCancelled
	rev.Sale.CancellationReason = reason
	rev.Sale.CancelledAt = &cancelledAt
	rev.UnlinkDrawer = sale.CashDrawerID
	rev.Sale.CashDrawerID = ""
	return rev, nil
}

// MergeItems folds repeated products into one line, keeping first-seen order.
func MergeItems(items []domain.SaleItemRequest) ([]domain.SaleItemRequest, error) {
	merged := make([]domain.SaleItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: product id is required", domain.ErrValidation)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", domain.ErrValidation, id)
		}
		if pos, ok := index[id]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, domain.SaleItemRequest{ProductID: id, Quantity: item.Quantity})
	}
	return merged, nil
}

// BuildLines snapshots name and effective unit price for every item.
func BuildLines(items []domain.SaleItemRequest, products map[string]domain.Product) ([]domain.SaleLine, error) {
	lines := make([]domain.SaleLine, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %s", domain.ErrValidation, item.ProductID)
		}
		lines = append(lines, domain.SaleLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: UnitPrice(product, item.Quantity),
		})
	}
	return lines, nil
}

// UnitPrice picks the volume tier with the largest minimum quantity the line
// reaches, falling back to the list price.
func UnitPrice(product domain.Product, quantity int) decimal.Decimal {
	price := product.Price
	best := 0
	for _, tier := range product.VolumePricing {
		if tier.MinQuantity <= quantity && tier.MinQuantity > best {
			best = tier.MinQuantity
			price = tier.UnitPrice
		}
	}
	return price
}

func Total(lines []domain.SaleLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// ChangeDue is advisory and only computed for cash sales with a tendered
// amount. A short payment yields a warning, never an error.
func ChangeDue(method domain.PaymentMethod, total decimal.Decimal, tendered *decimal.Decimal) (*decimal.Decimal, []string) {
	if method != domain.PaymentCash || tendered == nil {
		return nil, nil
	}
	change := tendered.Sub(total)
	if change.IsNegative() {
		return &change, []string{fmt.Sprintf("cash tendered is short by %s", change.Neg().StringFixed(2))}
	}
	return &change, nil
}
