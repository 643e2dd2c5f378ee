package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return selectProducts(ctx, s.db, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return selectProducts(ctx, s.db, `SELECT `+productColumns+` FROM products WHERE stock <= low_stock_threshold ORDER BY stock, name`)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	var row productRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product, err := row.product()
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	tiers, err := encodeTiers(product.VolumePricing)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Name, product.Price, product.Stock, product.LowStockThreshold, product.Category,
		nullIfEmpty(product.ImageURL), tiers, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if !xid.Valid(product.ID) {
		return nil, store.ErrNotFound
	}
	tiers, err := encodeTiers(product.VolumePricing)
	if err != nil {
		return nil, err
	}

	var row productRow
	err = s.db.GetContext(ctx, &row, `
		UPDATE products
		SET name = $2, price = $3, stock = $4, low_stock_threshold = $5, category = $6,
			image_url = $7, volume_pricing = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Price, product.Stock, product.LowStockThreshold, product.Category,
		nullIfEmpty(product.ImageURL), tiers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	updated, err := row.product()
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if !xid.Valid(id) {
		return store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// lockProducts loads and row-locks the given products in id order. Missing
// ids are simply absent from the result.
func lockProducts(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]domain.Product, error) {
	ids = validIDs(ids)
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	products, err := selectProducts(ctx, tx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func adjustStock(ctx context.Context, tx *sqlx.Tx, productID string, delta int, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1`, productID, delta, at)
	return err
}

func selectProducts(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]domain.Product, error) {
	var rows []productRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.product()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}
