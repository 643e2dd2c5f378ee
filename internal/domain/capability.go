package domain

import "slices"

// Capability names a single permission checked at the API boundary.
type Capability string

const (
	CapSell               Capability = "sell"
	CapCancelSale         Capability = "cancel_sale"
	CapOperateDrawer      Capability = "operate_drawer"
	CapSubmitTransactions Capability = "submit_transactions"
	CapReviewTransactions Capability = "review_transactions"
	CapManageInventory    Capability = "manage_inventory"
	CapViewAccounts       Capability = "view_accounts"
	CapManageAccounts     Capability = "manage_accounts"
	CapBroadcast          Capability = "broadcast"
	CapViewReports        Capability = "view_reports"
)

var roleCapabilities = map[string][]Capability{
	RoleCustomer: {
		CapSubmitTransactions,
	},
	RoleSeller: {
		CapSell,
		CapCancelSale,
		CapOperateDrawer,
		CapSubmitTransactions,
		CapViewAccounts,
	},
	RoleAdmin: {
		CapSell,
		CapCancelSale,
		CapOperateDrawer,
		CapSubmitTransactions,
		CapReviewTransactions,
		CapManageInventory,
		CapViewAccounts,
		CapManageAccounts,
		CapBroadcast,
		CapViewReports,
	},
}

func CapabilitiesFor(role string) []Capability {
	return slices.Clone(roleCapabilities[role])
}

func (a Actor) Can(capability Capability) bool {
	return slices.Contains(roleCapabilities[a.Role], capability)
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
