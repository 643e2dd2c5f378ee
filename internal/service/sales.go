package service

import (
	"context"
	"fmt"
	"strings"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/settlement"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

// CreateSale settles a sale for the acting seller. Preconditions are checked
// in a fixed order by the evaluator inside the store's atomic section; the
// response is built from the committed state.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.CreateSaleResponse, error) {
	actor, err := s.authorize(ctx, domain.CapSell)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}
	if req.CashTendered != nil {
		if err := domain.CheckMoney("cash tendered", *req.CashTendered); err != nil {
			return domain.CreateSaleResponse{}, err
		}
	}

	draft := settlement.Draft{
		ID:             xid.New(),
		SellerID:       actor.AccountID,
		CustomerID:     strings.TrimSpace(req.CustomerID),
		Items:          req.Items,
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod)))),
		CashTendered:   req.CashTendered,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		CreatedAt:      s.now().UTC(),
	}

	res, err := s.repo.CommitSale(ctx, draft, s.evaluator)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}

	change, warnings := settlement.ChangeDue(res.Sale.PaymentMethod, res.Sale.Total, res.Sale.CashTendered)
	resp := domain.CreateSaleResponse{
		Sale:      res.Sale,
		Customer:  res.Customer,
		ChangeDue: change,
		Warnings:  warnings,
		Duplicate: res.Duplicate,
	}
	if res.Duplicate {
		return resp, nil
	}

	s.invalidate(ctx, res.Customer.ID)
	s.logAudit(ctx, "sale_create", "sale", res.Sale.ID,
		fmt.Sprintf("customer=%s,total=%s,payment=%s,lines=%d,drawer=%s",
			res.Sale.CustomerID, res.Sale.Total.StringFixed(2), res.Sale.PaymentMethod, len(res.Sale.Items), res.Sale.CashDrawerID))
	return resp, nil
}

// CancelSale reverses a completed sale. The reason is mandatory.
func (s *Service) CancelSale(ctx context.Context, id string, reason string) (domain.CancelSaleResponse, error) {
	if _, err := s.authorize(ctx, domain.CapCancelSale); err != nil {
		return domain.CancelSaleResponse{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.CancelSaleResponse{}, domain.ErrReasonRequired
	}

	res, err := s.repo.CancelSale(ctx, id, reason, s.now().UTC(), s.evaluator)
	if err != nil {
		return domain.CancelSaleResponse{}, err
	}

	s.invalidate(ctx, res.Customer.ID)
	s.logAudit(ctx, "sale_cancel", "sale", res.Sale.ID,
		fmt.Sprintf("total=%s,payment=%s,reason=%s", res.Sale.Total.StringFixed(2), res.Sale.PaymentMethod, reason))
	return domain.CancelSaleResponse{Sale: res.Sale, Customer: res.Customer}, nil
}

// ListSales returns every sale to staff and only their own purchases to
// customers.
func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	actor, err := s.authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	filter := store.SaleFilter{Limit: limit}
	if !actor.Can(domain.CapSell) {
		filter.CustomerID = actor.AccountID
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	actor, err := s.authenticated(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if !actor.Can(domain.CapSell) && sale.CustomerID != actor.AccountID {
		return domain.Sale{}, store.ErrNotFound
	}
	return *sale, nil
}
