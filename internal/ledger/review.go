package ledger

import (
	"fmt"
	"strings"
	"time"

	"cantina/backend/internal/domain"
)

// Review settles a pending credit-add or debt-payment request. Approval applies
// the amount to acct; rejection only records the note.
func (l Ledger) Review(tx domain.Transaction, acct domain.Account, decision domain.TransactionStatus, note string, reviewerID string, at time.Time) (domain.Transaction, domain.Account, error) {
	if tx.Status != domain.TransactionPending {
		return domain.Transaction{}, domain.Account{}, fmt.Errorf("%w: transaction %s is already %s", domain.ErrInvalidState, tx.ID, tx.Status)
	}
	if decision != domain.TransactionApproved && decision != domain.TransactionRejected {
		return domain.Transaction{}, domain.Account{}, fmt.Errorf("%w: decision must be approved or rejected", domain.ErrValidation)
	}

	if decision == domain.TransactionApproved {
		adj, err := ForTransaction(tx.Type, tx.Amount)
		if err != nil {
			return domain.Transaction{}, domain.Account{}, err
		}
		res, err := l.Apply(acct, adj)
		if err != nil {
			return domain.Transaction{}, domain.Account{}, err
		}
		acct = res.Account
		applied := res.Applied.Abs()
		tx.AppliedAmount = &applied
	}

	reviewedAt := at.UTC()
	tx.Status = decision
	tx.AdminNote = strings.TrimSpace(note)
	tx.ReviewedBy = reviewerID
	tx.ReviewedAt = &reviewedAt
	return tx, acct, nil
}
