package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

func (s *Store) CreateAccount(ctx context.Context, user domain.UserAccount) (*domain.Account, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if user.ID == "" {
		user.ID = xid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.ThemePreference == "" {
		user.ThemePreference = domain.DefaultTheme
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, user.ID, user.Username, user.PasswordHash, user.Role, user.Credit, user.Debt,
		user.NotificationsEnabled, user.ThemePreference, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %s already exists", store.ErrConflict, user.Username)
		}
		return nil, err
	}

	created := user.Account
	return &created, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	user, err := getAccount(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	return &user.Account, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`,
		strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user := row.user()
	return &user, nil
}

func (s *Store) ListAccounts(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ($1 = '' OR role = $1)`
	if filter.DebtorsOnly {
		query += ` AND debt > 0`
	}
	query += ` ORDER BY username`

	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, query, filter.Role); err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, row.user().Account)
	}
	return accounts, nil
}

func (s *Store) UpdateAccountRole(ctx context.Context, id string, role string) (*domain.Account, error) {
	return s.updateAccount(ctx, id, `role = $2`, role)
}

func (s *Store) UpdateAccountTheme(ctx context.Context, id string, theme string) (*domain.Account, error) {
	return s.updateAccount(ctx, id, `theme_preference = $2`, theme)
}

func (s *Store) UpdateAccountNotifications(ctx context.Context, id string, enabled bool) (*domain.Account, error) {
	return s.updateAccount(ctx, id, `notifications_enabled = $2`, enabled)
}

func (s *Store) updateAccount(ctx context.Context, id string, set string, value any) (*domain.Account, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	var row accountRow
	err := s.db.GetContext(ctx, &row, `UPDATE accounts SET `+set+` WHERE id = $1 RETURNING `+accountColumns, id, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	acct := row.user().Account
	return &acct, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET password_hash = $2 WHERE username = $1`,
		strings.ToLower(strings.TrimSpace(username)), passwordHash)
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

// getAccount loads one account, optionally taking a row lock inside tx.
func getAccount(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.UserAccount, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row accountRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user := row.user()
	return &user, nil
}

func setBalances(ctx context.Context, tx *sqlx.Tx, acct domain.Account) error {
	_, err := tx.ExecContext(ctx, `UPDATE accounts SET credit = $2, debt = $3 WHERE id = $1`, acct.ID, acct.Credit, acct.Debt)
	return err
}
