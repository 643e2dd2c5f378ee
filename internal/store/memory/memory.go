package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/ledger"
	"cantina/backend/internal/settlement"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

// Store keeps all state behind one mutex. Every settlement operation reads and
// writes inside a single critical section.
type Store struct {
	mu                 sync.RWMutex
	accounts           map[string]domain.UserAccount
	accountByUsername  map[string]string
	products           map[string]domain.Product
	sales              map[string]domain.Sale
	saleByIdempotency  map[idempotencyKey]string
	transactions       map[string]domain.Transaction
	drawers            map[string]domain.CashDrawer
	openDrawerBySeller map[string]string
	subscriptions      map[string]domain.PushSubscription
	notifications      []domain.Notification
	auditLogs          []domain.AuditLog
}

// idempotencyKey scopes a client retry key to the seller that sent it.
type idempotencyKey struct {
	sellerID string
	key      string
}

func New() *Store {
	return &Store{
		accounts:           make(map[string]domain.UserAccount),
		accountByUsername:  make(map[string]string),
		products:           make(map[string]domain.Product),
		sales:              make(map[string]domain.Sale),
		saleByIdempotency:  make(map[idempotencyKey]string),
		transactions:       make(map[string]domain.Transaction),
		drawers:            make(map[string]domain.CashDrawer),
		openDrawerBySeller: make(map[string]string),
		subscriptions:      make(map[string]domain.PushSubscription),
		notifications:      make([]domain.Notification, 0, 16),
		auditLogs:          make([]domain.AuditLog, 0, 128),
	}
}

func (s *Store) CreateAccount(_ context.Context, user domain.UserAccount) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if _, exists := s.accountByUsername[username]; exists {
		return nil, fmt.Errorf("%w: username %s already exists", store.ErrConflict, username)
	}
	if user.ID == "" {
		user.ID = xid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Username = username
	s.accounts[user.ID] = user
	s.accountByUsername[username] = user.ID

	created := user.Account
	return &created, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	acct := user.Account
	return &acct, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.accounts[id]
	return &user, nil
}

func (s *Store) ListAccounts(_ context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Account, 0, len(s.accounts))
	for _, user := range s.accounts {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if filter.DebtorsOnly && !user.Debt.IsPositive() {
			continue
		}
		result = append(result, user.Account)
	}
	slices.SortFunc(result, func(a, b domain.Account) int { return strings.Compare(a.Username, b.Username) })
	return result, nil
}

func (s *Store) UpdateAccountRole(_ context.Context, id string, role string) (*domain.Account, error) {
	return s.updateAccount(id, func(acct *domain.UserAccount) { acct.Role = role })
}

func (s *Store) UpdateAccountTheme(_ context.Context, id string, theme string) (*domain.Account, error) {
	return s.updateAccount(id, func(acct *domain.UserAccount) { acct.ThemePreference = theme })
}

func (s *Store) UpdateAccountNotifications(_ context.Context, id string, enabled bool) (*domain.Account, error) {
	return s.updateAccount(id, func(acct *domain.UserAccount) { acct.NotificationsEnabled = enabled })
}

func (s *Store) updateAccount(id string, mutate func(*domain.UserAccount)) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	mutate(&user)
	s.accounts[id] = user
	acct := user.Account
	return &acct, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.accountByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return store.ErrNotFound
	}
	user := s.accounts[id]
	user.PasswordHash = passwordHash
	s.accounts[id] = user
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, compareProducts)
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := cloneProduct(p)
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrConflict, product.ID)
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = cloneProduct(product)

	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = cloneProduct(product)

	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.LowStock() {
			products = append(products, cloneProduct(p))
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmp.Compare(a.Stock, b.Stock); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CommitSale(_ context.Context, draft settlement.Draft, evaluator settlement.Evaluator) (*store.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key := strings.TrimSpace(draft.IdempotencyKey); key != "" {
		if id, ok := s.saleByIdempotency[idempotencyKey{sellerID: draft.SellerID, key: key}]; ok {
			existing := s.sales[id]
			if err := draft.CheckReplay(existing); err != nil {
				return nil, err
			}
			return &store.SaleResult{
				Sale:      cloneSale(existing),
				Customer:  s.accounts[existing.CustomerID].Account,
				Duplicate: true,
			}, nil
		}
	}

	var customer *domain.Account
	if user, ok := s.accounts[draft.CustomerID]; ok {
		acct := user.Account
		customer = &acct
	}
	products := make(map[string]domain.Product, len(draft.Items))
	for _, id := range draft.ProductIDs() {
		if p, ok := s.products[id]; ok {
			products[id] = p
		}
	}

	plan, err := evaluator.Evaluate(draft, customer, products)
	if err != nil {
		return nil, err
	}

	for _, change := range plan.Stock {
		p := s.products[change.ProductID]
		p.Stock -= change.Quantity
		p.UpdatedAt = plan.Sale.CreatedAt
		s.products[change.ProductID] = p
	}
	if plan.Ledger {
		s.setBalances(plan.Customer)
	}

	sale := plan.Sale
	if sale.ID == "" {
		sale.ID = xid.New()
	}
	if plan.LinkDrawer {
		if drawerID, ok := s.openDrawerBySeller[sale.SellerID]; ok {
			drawer := s.drawers[drawerID]
			drawer.SaleIDs = append(slices.Clone(drawer.SaleIDs), sale.ID)
			s.drawers[drawerID] = drawer
			sale.CashDrawerID = drawerID
		}
	}
	s.sales[sale.ID] = cloneSale(sale)
	if sale.IdempotencyKey != "" {
		s.saleByIdempotency[idempotencyKey{sellerID: sale.SellerID, key: sale.IdempotencyKey}] = sale.ID
	}

	return &store.SaleResult{Sale: cloneSale(sale), Customer: plan.Customer}, nil
}

func (s *Store) CancelSale(_ context.Context, id string, reason string, at time.Time, evaluator settlement.Evaluator) (*store.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer := s.accounts[sale.CustomerID].Account

	rev, err := evaluator.Reverse(sale, customer, reason, at)
	if err != nil {
		return nil, err
	}

	for _, change := range rev.Stock {
		p, ok := s.products[change.ProductID]
		if !ok {
			continue
		}
		p.Stock += change.Quantity
		p.UpdatedAt = at.UTC()
		s.products[change.ProductID] = p
	}
	if rev.Ledger {
		s.setBalances(rev.Customer)
	}
	if drawer, ok := s.drawers[rev.UnlinkDrawer]; ok {
		drawer.SaleIDs = slices.DeleteFunc(slices.Clone(drawer.SaleIDs), func(saleID string) bool { return saleID == id })
		s.drawers[drawer.ID] = drawer
	}
	s.sales[id] = cloneSale(rev.Sale)

	return &store.SaleResult{Sale: cloneSale(rev.Sale), Customer: rev.Customer}, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneSale(sale)
	return &cloned, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		if filter.SellerID != "" && sale.SellerID != filter.SellerID {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[tx.AccountID]; !ok {
		return nil, store.ErrNotFound
	}
	if tx.ID == "" {
		tx.ID = xid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Status = domain.TransactionPending
	s.transactions[tx.ID] = tx

	created := tx
	return &created, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &tx, nil
}

func (s *Store) ListTransactions(_ context.Context, accountID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		result = append(result, tx)
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return result, nil
}

func (s *Store) CountTransactions(_ context.Context, status domain.TransactionStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, tx := range s.transactions {
		if status == "" || tx.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *Store) ReviewTransaction(_ context.Context, id string, review store.TransactionReview, l ledger.Ledger) (*store.ReviewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	user, ok := s.accounts[tx.AccountID]
	if !ok {
		return nil, store.ErrNotFound
	}

	reviewed, acct, err := l.Review(tx, user.Account, review.Decision, review.AdminNote, review.ReviewerID, review.At)
	if err != nil {
		return nil, err
	}
	s.setBalances(acct)
	s.transactions[id] = reviewed

	return &store.ReviewResult{Transaction: reviewed, Account: acct}, nil
}

func (s *Store) OpenCashDrawer(_ context.Context, drawer domain.CashDrawer) (*domain.CashDrawer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.openDrawerBySeller[drawer.SellerID]; ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrDrawerAlreadyOpen, existing)
	}
	if drawer.ID == "" {
		drawer.ID = xid.New()
	}
	if drawer.OpenedAt.IsZero() {
		drawer.OpenedAt = time.Now().UTC()
	}
	drawer.Status = domain.DrawerOpen
	drawer.SaleIDs = []string{}
	drawer.ClosingBalance = nil
	drawer.ClosedAt = nil
	s.drawers[drawer.ID] = drawer
	s.openDrawerBySeller[drawer.SellerID] = drawer.ID

	opened := cloneDrawer(drawer)
	return &opened, nil
}

func (s *Store) GetCashDrawer(_ context.Context, id string) (*domain.CashDrawer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drawer, ok := s.drawers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneDrawer(drawer)
	return &cloned, nil
}

func (s *Store) GetOpenCashDrawer(_ context.Context, sellerID string) (*domain.CashDrawer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openDrawerBySeller[sellerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneDrawer(s.drawers[id])
	return &cloned, nil
}

func (s *Store) LinkSaleToCashDrawer(_ context.Context, drawerID string, saleID string) (*domain.CashDrawer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drawer, ok := s.drawers[drawerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}

	linked, err := settlement.CheckLink(drawer, sale)
	if err != nil {
		return nil, err
	}
	if !linked {
		drawer.SaleIDs = append(slices.Clone(drawer.SaleIDs), sale.ID)
		s.drawers[drawerID] = drawer
		sale.CashDrawerID = drawer.ID
		s.sales[saleID] = sale
	}

	cloned := cloneDrawer(drawer)
	return &cloned, nil
}

func (s *Store) SummarizeCashDrawer(_ context.Context, id string) (*domain.CashDrawerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drawer, ok := s.drawers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	summary := settlement.Summarize(cloneDrawer(drawer), s.drawerSales(drawer))
	return &summary, nil
}

func (s *Store) CloseCashDrawer(_ context.Context, id string, closingBalance decimal.Decimal, at time.Time) (*domain.CashDrawerSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drawer, ok := s.drawers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if drawer.Status != domain.DrawerOpen {
		return nil, fmt.Errorf("%w: cash drawer %s is already closed", domain.ErrInvalidState, id)
	}

	closedAt := at.UTC()
	drawer.Status = domain.DrawerClosed
	drawer.ClosingBalance = &closingBalance
	drawer.ClosedAt = &closedAt
	s.drawers[id] = drawer
	delete(s.openDrawerBySeller, drawer.SellerID)

	summary := settlement.Summarize(cloneDrawer(drawer), s.drawerSales(drawer))
	return &summary, nil
}

func (s *Store) ListCashDrawers(_ context.Context, sellerID string, limit int) ([]domain.CashDrawer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashDrawer, 0, len(s.drawers))
	for _, drawer := range s.drawers {
		if sellerID != "" && drawer.SellerID != sellerID {
			continue
		}
		result = append(result, cloneDrawer(drawer))
	}
	slices.SortFunc(result, func(a, b domain.CashDrawer) int { return b.OpenedAt.Compare(a.OpenedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpsertPushSubscription(_ context.Context, sub domain.PushSubscription) (*domain.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.subscriptions[sub.AccountID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		if sub.ID == "" {
			sub.ID = xid.New()
		}
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.Subscription = slices.Clone(sub.Subscription)
	s.subscriptions[sub.AccountID] = sub

	saved := sub
	return &saved, nil
}

func (s *Store) ListPushSubscriptions(_ context.Context, accountIDs []string) ([]domain.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PushSubscription, 0, len(accountIDs))
	for _, id := range accountIDs {
		if sub, ok := s.subscriptions[id]; ok {
			result = append(result, sub)
		}
	}
	slices.SortFunc(result, func(a, b domain.PushSubscription) int { return strings.Compare(a.AccountID, b.AccountID) })
	return slices.CompactFunc(result, func(a, b domain.PushSubscription) bool { return a.AccountID == b.AccountID }), nil
}

func (s *Store) CreateNotification(_ context.Context, notification domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notification.ID == "" {
		notification.ID = xid.New()
	}
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.notifications)
	slices.Reverse(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// setBalances writes the ledger fields of acct back to its stored account.
func (s *Store) setBalances(acct domain.Account) {
	user, ok := s.accounts[acct.ID]
	if !ok {
		return
	}
	user.Credit = acct.Credit
	user.Debt = acct.Debt
	s.accounts[acct.ID] = user
}

func (s *Store) drawerSales(drawer domain.CashDrawer) []domain.Sale {
	sales := make([]domain.Sale, 0, len(drawer.SaleIDs))
	for _, id := range drawer.SaleIDs {
		if sale, ok := s.sales[id]; ok {
			sales = append(sales, sale)
		}
	}
	return sales
}

func compareProducts(a domain.Product, b domain.Product) int {
	if c := strings.Compare(a.Category, b.Category); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.VolumePricing = slices.Clone(src.VolumePricing)
	return dst
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}

func cloneDrawer(src domain.CashDrawer) domain.CashDrawer {
	dst := src
	dst.SaleIDs = slices.Clone(src.SaleIDs)
	if dst.SaleIDs == nil {
		dst.SaleIDs = []string{}
	}
	return dst
}
