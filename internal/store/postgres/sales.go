package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/settlement"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

func (s *Store) CommitSale(ctx context.Context, draft settlement.Draft, evaluator settlement.Evaluator) (*store.SaleResult, error) {
	var result *store.SaleResult
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		result = nil
		if key := strings.TrimSpace(draft.IdempotencyKey); key != "" {
			existing, err := saleByIdempotencyKey(ctx, tx, draft.SellerID, key)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if existing != nil {
				if err := draft.CheckReplay(*existing); err != nil {
					return err
				}
				customer, err := getAccount(ctx, tx, existing.CustomerID, false)
				if err != nil {
					return err
				}
				result = &store.SaleResult{Sale: *existing, Customer: customer.Account, Duplicate: true}
				return nil
			}
		}

		var customer *domain.Account
		user, err := getAccount(ctx, tx, draft.CustomerID, true)
		switch {
		case err == nil:
			customer = &user.Account
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		products, err := lockProducts(ctx, tx, draft.ProductIDs())
		if err != nil {
			return err
		}

		plan, err := evaluator.Evaluate(draft, customer, products)
		if err != nil {
			return err
		}

		sale := plan.Sale
		if sale.ID == "" {
			sale.ID = xid.New()
		}
		for _, change := range plan.Stock {
			if err := adjustStock(ctx, tx, change.ProductID, -change.Quantity, sale.CreatedAt); err != nil {
				return err
			}
		}
		if plan.Ledger {
			if err := setBalances(ctx, tx, plan.Customer); err != nil {
				return err
			}
		}
		if plan.LinkDrawer {
			drawer, err := openDrawerForSeller(ctx, tx, sale.SellerID, true)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if drawer != nil {
				sale.CashDrawerID = drawer.ID
			}
		}

		if err := insertSale(ctx, tx, sale); err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		result = &store.SaleResult{Sale: sale, Customer: plan.Customer}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CancelSale(ctx context.Context, id string, reason string, at time.Time, evaluator settlement.Evaluator) (*store.SaleResult, error) {
	var result *store.SaleResult
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		// Drawer before sale, the order LinkSaleToCashDrawer locks in.
		current, err := getSale(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if current.CashDrawerID != "" {
			if _, err := getDrawer(ctx, tx, current.CashDrawerID, true); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		sale, err := getSale(ctx, tx, id, true)
		if err != nil {
			return err
		}
		customer, err := getAccount(ctx, tx, sale.CustomerID, true)
		if err != nil {
			return err
		}

		rev, err := evaluator.Reverse(*sale, customer.Account, reason, at)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(rev.Stock))
		for _, change := range rev.Stock {
			ids = append(ids, change.ProductID)
		}
		existing, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, change := range rev.Stock {
			if _, ok := existing[change.ProductID]; !ok {
				continue
			}
			if err := adjustStock(ctx, tx, change.ProductID, change.Quantity, at.UTC()); err != nil {
				return err
			}
		}
		if rev.Ledger {
			if err := setBalances(ctx, tx, rev.Customer); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sales
			SET status = $2, cancellation_reason = $3, cancelled_at = $4, cash_drawer_id = NULL
			WHERE id = $1
		`, rev.Sale.ID, rev.Sale.Status, rev.Sale.CancellationReason, rev.Sale.CancelledAt)
		if err != nil {
			return err
		}
		result = &store.SaleResult{Sale: rev.Sale, Customer: rev.Customer}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, s.db, id, false)
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if (filter.CustomerID != "" && !xid.Valid(filter.CustomerID)) || (filter.SellerID != "" && !xid.Valid(filter.SellerID)) {
		return []domain.Sale{}, nil
	}

	var rows []saleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR customer_id::text = $1)
			AND ($2 = '' OR seller_id::text = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, filter.CustomerID, filter.SellerID, limit)
	if err != nil {
		return nil, err
	}
	return attachItems(ctx, s.db, rows)
}

func getSale(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.Sale, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row saleRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sales, err := attachItems(ctx, q, []saleRow{row})
	if err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func saleByIdempotencyKey(ctx context.Context, q sqlx.QueryerContext, sellerID string, key string) (*domain.Sale, error) {
	if !xid.Valid(sellerID) {
		return nil, store.ErrNotFound
	}
	var row saleRow
	query := `SELECT ` + saleColumns + ` FROM sales WHERE seller_id = $1 AND idempotency_key = $2`
	if err := sqlx.GetContext(ctx, q, &row, query, sellerID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sales, err := attachItems(ctx, q, []saleRow{row})
	if err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func insertSale(ctx context.Context, tx *sqlx.Tx, sale domain.Sale) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.SellerID, sale.CustomerID, sale.Total, sale.PaymentMethod, sale.Status,
		nullIfEmpty(sale.CancellationReason), nullIfEmpty(sale.CashDrawerID), sale.CashTendered,
		nullIfEmpty(sale.IdempotencyKey), sale.CreatedAt, sale.CancelledAt)
	if err != nil {
		return err
	}

	for i, line := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, i+1, line.ProductID, line.Name, line.Quantity, line.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

// attachItems loads the lines of every sale in rows with a single query.
func attachItems(ctx context.Context, q sqlx.QueryerContext, rows []saleRow) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, len(rows))
	if len(rows) == 0 {
		return sales, nil
	}
	ids := make([]string, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		index[row.ID] = len(sales)
		ids = append(ids, row.ID)
		sales = append(sales, row.sale())
	}

	var items []saleItemRow
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT sale_id, line_no, product_id, name, quantity, unit_price
		FROM sale_items
		WHERE sale_id = ANY($1::uuid[])
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		i, ok := index[item.SaleID]
		if !ok {
			continue
		}
		sales[i].Items = append(sales[i].Items, domain.SaleLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return sales, nil
}
