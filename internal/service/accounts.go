package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cantina/backend/internal/domain"
)

// ResolveActor refreshes a token-derived actor against the stored account so
// role changes apply to tokens issued before them.
func (s *Service) ResolveActor(ctx context.Context, actor domain.Actor) (domain.Actor, error) {
	acct, err := s.loadAccount(ctx, actor.AccountID)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{AccountID: acct.ID, Username: acct.Username, Role: acct.Role}, nil
}

func (s *Service) Me(ctx context.Context) (domain.Account, error) {
	actor, err := s.authenticated(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	acct, err := s.repo.GetAccount(ctx, actor.AccountID)
	if err != nil {
		return domain.Account{}, err
	}
	return *acct, nil
}

func (s *Service) ListAccounts(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	if _, err := s.authorize(ctx, domain.CapViewAccounts); err != nil {
		return nil, err
	}
	filter.Role = strings.ToLower(strings.TrimSpace(filter.Role))
	return s.repo.ListAccounts(ctx, filter)
}

func (s *Service) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	actor, err := s.authenticated(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	if actor.AccountID != id && !actor.Can(domain.CapViewAccounts) {
		return domain.Account{}, fmt.Errorf("%w: cannot view another account", domain.ErrForbidden)
	}
	acct, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	return *acct, nil
}

func (s *Service) UpdateAccountRole(ctx context.Context, id string, role string) (domain.Account, error) {
	actor, err := s.authorize(ctx, domain.CapManageAccounts)
	if err != nil {
		return domain.Account{}, err
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role != domain.RoleCustomer && role != domain.RoleSeller {
		return domain.Account{}, fmt.Errorf("%w: role must be customer or seller", domain.ErrValidation)
	}
	if id == actor.AccountID {
		return domain.Account{}, fmt.Errorf("%w: cannot change your own role", domain.ErrValidation)
	}

	updated, err := s.repo.UpdateAccountRole(ctx, id, role)
	if err != nil {
		return domain.Account{}, err
	}
	s.invalidate(ctx, updated.ID)
	s.logAudit(ctx, "account_role_update", "account", updated.ID, "role="+role)
	return *updated, nil
}

func (s *Service) UpdateAccountTheme(ctx context.Context, id string, theme string) (domain.Account, error) {
	actor, err := s.authenticated(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	if actor.AccountID != id {
		return domain.Account{}, fmt.Errorf("%w: can only update own theme", domain.ErrForbidden)
	}
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return domain.Account{}, fmt.Errorf("%w: theme is required", domain.ErrValidation)
	}

	updated, err := s.repo.UpdateAccountTheme(ctx, id, theme)
	if err != nil {
		return domain.Account{}, err
	}
	s.invalidate(ctx, updated.ID)
	return *updated, nil
}

func (s *Service) UpdateAccountNotifications(ctx context.Context, id string, enabled bool) (domain.Account, error) {
	actor, err := s.authenticated(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	if actor.AccountID != id && !actor.Can(domain.CapManageAccounts) {
		return domain.Account{}, fmt.Errorf("%w: cannot change another account's notifications", domain.ErrForbidden)
	}

	updated, err := s.repo.UpdateAccountNotifications(ctx, id, enabled)
	if err != nil {
		return domain.Account{}, err
	}
	s.invalidate(ctx, updated.ID)
	s.logAudit(ctx, "account_notifications_update", "account", updated.ID, fmt.Sprintf("enabled=%t", enabled))
	return *updated, nil
}

// loadAccount reads through the account cache. Cache failures fall back to
// the store.
func (s *Service) loadAccount(ctx context.Context, id string) (domain.Account, error) {
	if cached, ok, err := s.accounts.Get(ctx, id); err != nil {
		s.logger.Warn("account cache read failed", zap.String("account_id", id), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	acct, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.accounts.Set(ctx, *acct, s.cacheTTL); err != nil {
		s.logger.Warn("account cache write failed", zap.String("account_id", id), zap.Error(err))
	}
	return *acct, nil
}
