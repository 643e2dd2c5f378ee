package settlement

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"cantina/backend/internal/domain"
)

// CheckLink validates attaching sale to drawer. It reports linked=true when the
// sale is already in this session, which callers treat as success.
func CheckLink(drawer domain.CashDrawer, sale domain.Sale) (linked bool, err error) {
	if drawer.Status != domain.DrawerOpen {
		return false, fmt.Errorf("%w: cash drawer %s is closed", domain.ErrInvalidState, drawer.ID)
	}
	if sale.CashDrawerID == drawer.ID || slices.Contains(drawer.SaleIDs, sale.ID) {
		return true, nil
	}
	if sale.Status != domain.SaleStatusCompleted {
		return false, fmt.Errorf("%w: sale %s is %s", domain.ErrInvalidState, sale.ID, sale.Status)
	}
	if sale.PaymentMethod != domain.PaymentCash {
		return false, fmt.Errorf("%w: only cash sales belong in a cash drawer", domain.ErrValidation)
	}
	if sale.CashDrawerID != "" {
		return false, fmt.Errorf("%w: sale %s is linked to drawer %s", domain.ErrInvalidState, sale.ID, sale.CashDrawerID)
	}
	return false, nil
}

// Summarize reconciles a drawer session. Only completed cash sales still
// linked to the session count towards the expected balance.
func Summarize(drawer domain.CashDrawer, sales []domain.Sale) domain.CashDrawerSummary {
	cash := decimal.Zero
	for _, sale := range sales {
		if sale.Status == domain.SaleStatusCompleted && sale.PaymentMethod == domain.PaymentCash && slices.Contains(drawer.SaleIDs, sale.ID) {
			cash = cash.Add(sale.Total)
		}
	}
	summary := domain.CashDrawerSummary{
		Drawer:          drawer,
		CashSalesTotal:  cash,
		ExpectedBalance: drawer.OpeningBalance.Add(cash),
	}
	if drawer.ClosingBalance != nil {
		diff := drawer.ClosingBalance.Sub(summary.ExpectedBalance)
		summary.Discrepancy = &diff
	}
	return summary
}
