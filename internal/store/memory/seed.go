package memory

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/xid"
)

type seedProduct struct {
	name     string
	price    string
	stock    int
	category string
}

var seedCatalog = []seedProduct{
	{"Refrigerante Lata", "4.50", 50, "bebidas"},
	{"Água Mineral", "2.50", 100, "bebidas"},
	{"Café", "3.00", 30, "bebidas"},
	{"Suco Natural", "5.50", 25, "bebidas"},
	{"Salgadinho", "3.50", 60, "lanches"},
	{"Chocolate", "4.00", 40, "doces"},
	{"Biscoitos", "2.00", 70, "doces"},
	{"Bolo Fatia", "6.00", 20, "doces"},
	{"Sanduíche", "8.00", 15, "lanches"},
	{"Salada", "10.00", 12, "refeições"},
	{"Pizza Fatia", "7.50", 18, "refeições"},
	{"Pacote de Chips", "5.00", 35, "lanches"},
}

// NewSeeded builds a dev/demo store with one account per role and the
// canteen's starter catalog. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_SELLER_PASSWORD and SEED_CUSTOMER_PASSWORD with dev defaults.
func NewSeeded() *Store {
	s := New()

	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		zap.L().Warn("memory store is using default dev credentials",
			zap.Strings("override_with", []string{"SEED_ADMIN_PASSWORD", "SEED_SELLER_PASSWORD", "SEED_CUSTOMER_PASSWORD"}))
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
		credit   decimal.Decimal
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin, decimal.Zero},
		{"seller", envOr("SEED_SELLER_PASSWORD", "seller123"), domain.RoleSeller, decimal.Zero},
		{"customer", envOr("SEED_CUSTOMER_PASSWORD", "customer123"), domain.RoleCustomer, decimal.NewFromInt(50)},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		user := domain.UserAccount{
			Account: domain.Account{
				ID:                   xid.New(),
				Username:             u.username,
				Role:                 u.role,
				Credit:               u.credit,
				Debt:                 decimal.Zero,
				NotificationsEnabled: true,
				ThemePreference:      domain.DefaultTheme,
				CreatedAt:            now,
			},
			PasswordHash: string(hash),
		}
		s.accounts[user.ID] = user
		s.accountByUsername[user.Username] = user.ID
	}

	for _, p := range seedCatalog {
		product := domain.Product{
			ID:                xid.New(),
			Name:              p.name,
			Price:             decimal.RequireFromString(p.price),
			Stock:             p.stock,
			LowStockThreshold: domain.DefaultLowStockThreshold,
			Category:          p.category,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		s.products[product.ID] = product
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
