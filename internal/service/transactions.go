package service

import (
	"context"
	"fmt"
	"strings"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

// SubmitTransaction records a pending credit top-up or debt payment for the
// acting account. It has no ledger effect until reviewed.
func (s *Service) SubmitTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	actor, err := s.authorize(ctx, domain.CapSubmitTransactions)
	if err != nil {
		return domain.Transaction{}, err
	}
	if req.Type != domain.TransactionCreditAdd && req.Type != domain.TransactionDebtPayment {
		return domain.Transaction{}, fmt.Errorf("%w: unsupported transaction type %q", domain.ErrValidation, req.Type)
	}
	if !req.Amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if err := domain.CheckMoney("amount", req.Amount); err != nil {
		return domain.Transaction{}, err
	}
	receipt := strings.TrimSpace(req.ReceiptURL)
	if receipt == "" {
		return domain.Transaction{}, fmt.Errorf("%w: receipt is required", domain.ErrValidation)
	}

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		ID:         xid.New(),
		AccountID:  actor.AccountID,
		Type:       req.Type,
		Amount:     req.Amount,
		ReceiptURL: receipt,
		Status:     domain.TransactionPending,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	s.logAudit(ctx, "transaction_submit", "transaction", created.ID,
		fmt.Sprintf("type=%s,amount=%s", created.Type, created.Amount.StringFixed(2)))
	return *created, nil
}

// ReviewTransaction approves or rejects a pending transaction and applies the
// approved amount to the submitter's ledger in the same atomic step.
func (s *Service) ReviewTransaction(ctx context.Context, id string, req domain.TransactionReviewRequest) (domain.TransactionReviewResponse, error) {
	actor, err := s.authorize(ctx, domain.CapReviewTransactions)
	if err != nil {
		return domain.TransactionReviewResponse{}, err
	}

	res, err := s.repo.ReviewTransaction(ctx, id, store.TransactionReview{
		Decision:   req.Decision,
		AdminNote:  req.AdminNote,
		ReviewerID: actor.AccountID,
		At:         s.now().UTC(),
	}, s.ledger)
	if err != nil {
		return domain.TransactionReviewResponse{}, err
	}

	s.invalidate(ctx, res.Account.ID)
	detail := fmt.Sprintf("decision=%s,amount=%s", res.Transaction.Status, res.Transaction.Amount.StringFixed(2))
	if res.Transaction.AppliedAmount != nil {
		detail += ",applied=" + res.Transaction.AppliedAmount.StringFixed(2)
	}
	s.logAudit(ctx, "transaction_review", "transaction", res.Transaction.ID, detail)
	return domain.TransactionReviewResponse{Transaction: res.Transaction, Account: res.Account}, nil
}

// ListTransactions returns every transaction to reviewers and only their own
// to everyone else.
func (s *Service) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	actor, err := s.authorize(ctx, domain.CapSubmitTransactions)
	if err != nil {
		return nil, err
	}
	accountID := actor.AccountID
	if actor.Can(domain.CapReviewTransactions) {
		accountID = ""
	}
	return s.repo.ListTransactions(ctx, accountID)
}

func (s *Service) PendingTransactions(ctx context.Context) (domain.PendingTransactionsStat, error) {
	if _, err := s.authorize(ctx, domain.CapViewReports); err != nil {
		return domain.PendingTransactionsStat{}, err
	}
	count, err := s.repo.CountTransactions(ctx, domain.TransactionPending)
	if err != nil {
		return domain.PendingTransactionsStat{}, err
	}
	return domain.PendingTransactionsStat{Count: count}, nil
}
