package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/xid"
)

func (s *Service) OpenCashDrawer(ctx context.Context, req domain.CashDrawerOpenRequest) (domain.CashDrawer, error) {
	actor, err := s.authorize(ctx, domain.CapOperateDrawer)
	if err != nil {
		return domain.CashDrawer{}, err
	}
	if req.OpeningBalance.IsNegative() {
		return domain.CashDrawer{}, fmt.Errorf("%w: opening balance must not be negative", domain.ErrValidation)
	}
	if err := domain.CheckMoney("opening balance", req.OpeningBalance); err != nil {
		return domain.CashDrawer{}, err
	}

	opened, err := s.repo.OpenCashDrawer(ctx, domain.CashDrawer{
		ID:             xid.New(),
		SellerID:       actor.AccountID,
		OpeningBalance: req.OpeningBalance,
		OpenedAt:       s.now().UTC(),
	})
	if err != nil {
		return domain.CashDrawer{}, err
	}
	s.logAudit(ctx, "cash_drawer_open", "cash_drawer", opened.ID, "opening="+opened.OpeningBalance.StringFixed(2))
	return *opened, nil
}

// CurrentCashDrawer summarizes the acting seller's open session.
func (s *Service) CurrentCashDrawer(ctx context.Context) (domain.CashDrawerSummary, error) {
	actor, err := s.authorize(ctx, domain.CapOperateDrawer)
	if err != nil {
		return domain.CashDrawerSummary{}, err
	}
	drawer, err := s.repo.GetOpenCashDrawer(ctx, actor.AccountID)
	if err != nil {
		return domain.CashDrawerSummary{}, err
	}
	summary, err := s.repo.SummarizeCashDrawer(ctx, drawer.ID)
	if err != nil {
		return domain.CashDrawerSummary{}, err
	}
	return *summary, nil
}

// LinkSaleToCashDrawer attaches a completed cash sale to a session. Sellers
// may only link into their own session; linking twice is a no-op.
func (s *Service) LinkSaleToCashDrawer(ctx context.Context, drawerID string, saleID string) (domain.CashDrawer, error) {
	actor, err := s.authorize(ctx, domain.CapOperateDrawer)
	if err != nil {
		return domain.CashDrawer{}, err
	}
	if err := s.checkDrawerOwner(ctx, actor, drawerID); err != nil {
		return domain.CashDrawer{}, err
	}

	drawer, err := s.repo.LinkSaleToCashDrawer(ctx, drawerID, saleID)
	if err != nil {
		return domain.CashDrawer{}, err
	}
	s.logAudit(ctx, "cash_drawer_link", "cash_drawer", drawer.ID, "sale="+saleID)
	return *drawer, nil
}

func (s *Service) CloseCashDrawer(ctx context.Context, drawerID string, closingBalance decimal.Decimal) (domain.CashDrawerSummary, error) {
	actor, err := s.authorize(ctx, domain.CapOperateDrawer)
	if err != nil {
		return domain.CashDrawerSummary{}, err
	}
	if closingBalance.IsNegative() {
		return domain.CashDrawerSummary{}, fmt.Errorf("%w: closing balance must not be negative", domain.ErrValidation)
	}
	if err := domain.CheckMoney("closing balance", closingBalance); err != nil {
		return domain.CashDrawerSummary{}, err
	}
	if err := s.checkDrawerOwner(ctx, actor, drawerID); err != nil {
		return domain.CashDrawerSummary{}, err
	}

	summary, err := s.repo.CloseCashDrawer(ctx, drawerID, closingBalance, s.now().UTC())
	if err != nil {
		return domain.CashDrawerSummary{}, err
	}
	detail := fmt.Sprintf("closing=%s,expected=%s", closingBalance.StringFixed(2), summary.ExpectedBalance.StringFixed(2))
	if summary.Discrepancy != nil {
		detail += ",discrepancy=" + summary.Discrepancy.StringFixed(2)
	}
	s.logAudit(ctx, "cash_drawer_close", "cash_drawer", drawerID, detail)
	return *summary, nil
}

func (s *Service) ListCashDrawers(ctx context.Context, sellerID string, limit int) ([]domain.CashDrawer, error) {
	if _, err := s.authorize(ctx, domain.CapViewReports); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListCashDrawers(ctx, sellerID, limit)
}

func (s *Service) checkDrawerOwner(ctx context.Context, actor domain.Actor, drawerID string) error {
	if actor.IsAdmin() {
		return nil
	}
	drawer, err := s.repo.GetCashDrawer(ctx, drawerID)
	if err != nil {
		return err
	}
	if drawer.SellerID != actor.AccountID {
		return fmt.Errorf("%w: cash drawer belongs to another seller", domain.ErrForbidden)
	}
	return nil
}
