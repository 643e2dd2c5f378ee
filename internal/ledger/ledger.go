package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cantina/backend/internal/domain"
)

type Field string

const (
	Credit Field = "credit"
	Debt   Field = "debt"
)

// DefaultDebtCeiling is the debt level at which new fiado sales stop being authorized.
var DefaultDebtCeiling = decimal.NewFromInt(10)

type Adjustment struct {
	Field Field
	Delta decimal.Decimal
	// EnforceCeiling gates a debt increase on the debt held before it is applied.
	EnforceCeiling bool
}

type Result struct {
	Account domain.Account
	// Applied is the part of the delta absorbed by the targeted field.
	Applied decimal.Decimal
	// Returned is the excess of a debt decrease moved to credit.
	Returned decimal.Decimal
}

type Ledger struct {
	DebtCeiling decimal.Decimal
}

func New(debtCeiling decimal.Decimal) Ledger {
	if debtCeiling.IsNegative() || debtCeiling.IsZero() {
		debtCeiling = DefaultDebtCeiling
	}
	return Ledger{DebtCeiling: debtCeiling}
}

// Apply returns the account with the adjustment applied. The input is never
// mutated; on error the caller keeps the original balances.
func (l Ledger) Apply(acct domain.Account, adj Adjustment) (Result, error) {
	result := Result{Account: acct, Applied: decimal.Zero, Returned: decimal.Zero}
	if adj.Delta.IsZero() {
		return result, nil
	}

	switch adj.Field {
	case Credit:
		next := acct.Credit.Add(adj.Delta)
		if next.IsNegative() {
			return Result{}, fmt.Errorf("%w: credit %s does not cover %s", domain.ErrInsufficientFunds, acct.Credit.StringFixed(2), adj.Delta.Neg().StringFixed(2))
		}
		result.Account.Credit = next
		result.Applied = adj.Delta
	case Debt:
		if adj.Delta.IsPositive() {
			ceiling := l.ceiling()
			if adj.EnforceCeiling && acct.Debt.GreaterThanOrEqual(ceiling) {
				return Result{}, fmt.Errorf("%w: debt %s reached limit %s", domain.ErrDebtCeiling, acct.Debt.StringFixed(2), ceiling.StringFixed(2))
			}
			result.Account.Debt = acct.Debt.Add(adj.Delta)
			result.Applied = adj.Delta
			return result, nil
		}
		payment := adj.Delta.Neg()
		applied := decimal.Min(payment, acct.Debt)
		result.Account.Debt = acct.Debt.Sub(applied)
		result.Applied = applied.Neg()
		if excess := payment.Sub(applied); excess.IsPositive() {
			result.Account.Credit = acct.Credit.Add(excess)
			result.Returned = excess
		}
	default:
		return Result{}, fmt.Errorf("%w: unknown ledger field %q", domain.ErrValidation, adj.Field)
	}
	return result, nil
}

func (l Ledger) ceiling() decimal.Decimal {
	if l.DebtCeiling.IsZero() {
		return DefaultDebtCeiling
	}
	return l.DebtCeiling
}

// ForSale is the adjustment a committed sale applies to the customer. Cash
// and card sales leave the ledger alone.
func ForSale(method domain.PaymentMethod, total decimal.Decimal) (Adjustment, bool) {
	switch method {
	case domain.PaymentCredit:
		return Adjustment{Field: Credit, Delta: total.Neg()}, true
	case domain.PaymentFiado:
		return Adjustment{Field: Debt, Delta: total, EnforceCeiling: true}, true
	}
	return Adjustment{}, false
}

// ReversalForSale undoes ForSale when a completed sale is cancelled.
func ReversalForSale(method domain.PaymentMethod, total decimal.Decimal) (Adjustment, bool) {
	switch method {
	case domain.PaymentCredit:
		return Adjustment{Field: Credit, Delta: total}, true
	case domain.PaymentFiado:
		return Adjustment{Field: Debt, Delta: total.Neg()}, true
	}
	return Adjustment{}, false
}

func ForTransaction(kind domain.TransactionType, amount decimal.Decimal) (Adjustment, error) {
	if !amount.IsPositive() {
		return Adjustment{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	switch kind {
	case domain.TransactionCreditAdd:
		return Adjustment{Field: Credit, Delta: amount}, nil
	case domain.TransactionDebtPayment:
		return Adjustment{Field: Debt, Delta: amount.Neg()}, nil
	}
	return Adjustment{}, fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, kind)
}
