package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/ledger"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if !xid.Valid(tx.AccountID) {
		return nil, store.ErrNotFound
	}
	if tx.ID == "" {
		tx.ID = xid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Status = domain.TransactionPending

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, receipt_url, status, admin_note, created_at)
		SELECT $1, id, $3, $4, $5, $6, '', $7 FROM accounts WHERE id = $2
	`, tx.ID, tx.AccountID, tx.Type, tx.Amount, tx.ReceiptURL, tx.Status, tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	created := tx
	return &created, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, id, false)
}

func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	if accountID != "" && !xid.Valid(accountID) {
		return []domain.Transaction{}, nil
	}
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR account_id::text = $1)
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.transaction())
	}
	return result, nil
}

func (s *Store) CountTransactions(ctx context.Context, status domain.TransactionStatus) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT count(*) FROM transactions WHERE ($1 = '' OR status = $1)`, string(status))
	return count, err
}

func (s *Store) ReviewTransaction(ctx context.Context, id string, review store.TransactionReview, l ledger.Ledger) (*store.ReviewResult, error) {
	var result *store.ReviewResult
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getTransaction(ctx, tx, id, true)
		if err != nil {
			return err
		}
		user, err := getAccount(ctx, tx, current.AccountID, true)
		if err != nil {
			return err
		}

		reviewed, acct, err := l.Review(*current, user.Account, review.Decision, review.AdminNote, review.ReviewerID, review.At)
		if err != nil {
			return err
		}
		if err := setBalances(ctx, tx, acct); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = $2, admin_note = $3, applied_amount = $4, reviewed_by = $5, reviewed_at = $6
			WHERE id = $1
		`, reviewed.ID, reviewed.Status, reviewed.AdminNote, reviewed.AppliedAmount,
			nullIfEmpty(reviewed.ReviewedBy), reviewed.ReviewedAt)
		if err != nil {
			return err
		}

		result = &store.ReviewResult{Transaction: reviewed, Account: acct}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func getTransaction(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.Transaction, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row transactionRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx := row.transaction()
	return &tx, nil
}
