package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/settlement"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

func (s *Store) OpenCashDrawer(ctx context.Context, drawer domain.CashDrawer) (*domain.CashDrawer, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_drawers (id, seller_id, opening_balance, status, opened_at)
		VALUES ($1,$2,$3,$4,$5)
	`, drawer.ID, drawer.SellerID, drawer.OpeningBalance, drawer.Status, drawer.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: seller %s", domain.ErrDrawerAlreadyOpen, drawer.SellerID)
		}
		return nil, err
	}
	return &drawer, nil
}

func (s *Store) GetCashDrawer(ctx context.Context, id string) (*domain.CashDrawer, error) {
	return getDrawer(ctx, s.db, id, false)
}

func (s *Store) GetOpenCashDrawer(ctx context.Context, sellerID string) (*domain.CashDrawer, error) {
	return openDrawerForSeller(ctx, s.db, sellerID, false)
}

func (s *Store) LinkSaleToCashDrawer(ctx context.Context, drawerID string, saleID string) (*domain.CashDrawer, error) {
	var result *domain.CashDrawer
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		drawer, err := getDrawer(ctx, tx, drawerID, true)
		if err != nil {
			return err
		}
		sale, err := getSale(ctx, tx, saleID, true)
		if err != nil {
			return err
		}

		linked, err := settlement.CheckLink(*drawer, *sale)
		if err != nil {
			return err
		}
		if !linked {
			if _, err := tx.ExecContext(ctx, `UPDATE sales SET cash_drawer_id = $2 WHERE id = $1`, sale.ID, drawer.ID); err != nil {
				return err
			}
			drawer.SaleIDs = append(drawer.SaleIDs, sale.ID)
		}
		result = drawer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SummarizeCashDrawer(ctx context.Context, id string) (*domain.CashDrawerSummary, error) {
	drawer, err := getDrawer(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	sales, err := drawerSales(ctx, s.db, drawer.ID)
	if err != nil {
		return nil, err
	}
	summary := settlement.Summarize(*drawer, sales)
	return &summary, nil
}

func (s *Store) CloseCashDrawer(ctx context.Context, id string, closingBalance decimal.Decimal, at time.Time) (*domain.CashDrawerSummary, error) {
	var result *domain.CashDrawerSummary
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		drawer, err := getDrawer(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if drawer.Status != domain.DrawerOpen {
			return fmt.Errorf("%w: cash drawer %s is already closed", domain.ErrInvalidState, id)
		}

		closedAt := at.UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE cash_drawers SET status = $2, closing_balance = $3, closed_at = $4 WHERE id = $1
		`, drawer.ID, domain.DrawerClosed, closingBalance, closedAt)
		if err != nil {
			return err
		}
		drawer.Status = domain.DrawerClosed
		drawer.ClosingBalance = &closingBalance
		drawer.ClosedAt = &closedAt

		sales, err := drawerSales(ctx, tx, drawer.ID)
		if err != nil {
			return err
		}
		summary := settlement.Summarize(*drawer, sales)
		result = &summary
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListCashDrawers(ctx context.Context, sellerID string, limit int) ([]domain.CashDrawer, error) {
	if sellerID != "" && !xid.Valid(sellerID) {
		return []domain.CashDrawer{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []drawerRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+drawerColumns+`
		FROM cash_drawers
		WHERE ($1 = '' OR seller_id::text = $1)
		ORDER BY opened_at DESC
		LIMIT $2
	`, sellerID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]domain.CashDrawer, 0, len(rows))
	for _, row := range rows {
		ids, err := drawerSaleIDs(ctx, s.db, row.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, row.drawer(ids))
	}
	return result, nil
}

func getDrawer(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.CashDrawer, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + drawerColumns + ` FROM cash_drawers WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanDrawer(ctx, q, query, id)
}

func openDrawerForSeller(ctx context.Context, q sqlx.QueryerContext, sellerID string, forUpdate bool) (*domain.CashDrawer, error) {
	if !xid.Valid(sellerID) {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + drawerColumns + ` FROM cash_drawers WHERE seller_id = $1 AND status = 'open'`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanDrawer(ctx, q, query, sellerID)
}

func scanDrawer(ctx context.Context, q sqlx.QueryerContext, query string, arg string) (*domain.CashDrawer, error) {
	var row drawerRow
	if err := sqlx.GetContext(ctx, q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	ids, err := drawerSaleIDs(ctx, q, row.ID)
	if err != nil {
		return nil, err
	}
	drawer := row.drawer(ids)
	return &drawer, nil
}

func drawerSaleIDs(ctx context.Context, q sqlx.QueryerContext, drawerID string) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, q, &ids, `SELECT id FROM sales WHERE cash_drawer_id = $1 ORDER BY created_at`, drawerID)
	return ids, err
}

func drawerSales(ctx context.Context, q sqlx.QueryerContext, drawerID string) ([]domain.Sale, error) {
	var rows []saleRow
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT `+saleColumns+` FROM sales WHERE cash_drawer_id = $1 ORDER BY created_at
	`, drawerID)
	if err != nil {
		return nil, err
	}
	return attachItems(ctx, q, rows)
}
