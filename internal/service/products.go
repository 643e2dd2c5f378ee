package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"cantina/backend/internal/domain"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if _, err := s.authenticated(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, err := s.authenticated(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.authorize(ctx, domain.CapManageInventory); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:              strings.TrimSpace(req.Name),
		Price:             req.Price,
		Stock:             req.Stock,
		LowStockThreshold: domain.DefaultLowStockThreshold,
		Category:          strings.TrimSpace(req.Category),
		ImageURL:          strings.TrimSpace(req.ImageURL),
		VolumePricing:     normalizeTiers(req.VolumePricing),
	}
	if req.LowStockThreshold != nil {
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if product.Category == "" {
		product.Category = domain.DefaultCategory
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,price=%s,stock=%d", created.Name, created.Price.StringFixed(2), created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.authorize(ctx, domain.CapManageInventory); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.LowStockThreshold != nil {
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
		if updated.Category == "" {
			updated.Category = domain.DefaultCategory
		}
	}
	if req.VolumePricing != nil {
		updated.VolumePricing = normalizeTiers(*req.VolumePricing)
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", saved.ID,
		fmt.Sprintf("price=%s,stock=%d,tiers=%d", saved.Price.StringFixed(2), saved.Stock, len(saved.VolumePricing)))
	return *saved, nil
}

func (s *Service) SetProductImage(ctx context.Context, id string, imageURL string) (domain.Product, error) {
	if _, err := s.authorize(ctx, domain.CapManageInventory); err != nil {
		return domain.Product{}, err
	}
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return domain.Product{}, fmt.Errorf("%w: image is required", domain.ErrValidation)
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	existing.ImageURL = imageURL
	saved, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_image", "product", saved.ID, "")
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.authorize(ctx, domain.CapManageInventory); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) LowStock(ctx context.Context) (domain.LowStockReport, error) {
	if _, err := s.authorize(ctx, domain.CapViewReports); err != nil {
		return domain.LowStockReport{}, err
	}
	products, err := s.repo.ListLowStockProducts(ctx)
	if err != nil {
		return domain.LowStockReport{}, err
	}
	products = lo.Filter(products, func(p domain.Product, _ int) bool { return p.LowStock() })
	return domain.LowStockReport{Products: products, Count: len(products)}, nil
}

func validateProduct(p domain.Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", domain.ErrValidation)
	case p.LowStockThreshold < 0:
		return fmt.Errorf("%w: low stock threshold must not be negative", domain.ErrValidation)
	}
	if err := domain.CheckMoney("price", p.Price); err != nil {
		return err
	}
	for _, tier := range p.VolumePricing {
		if tier.MinQuantity < 2 {
			return fmt.Errorf("%w: volume tier minimum quantity must be at least 2", domain.ErrValidation)
		}
		if tier.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: volume tier price must not be negative", domain.ErrValidation)
		}
		if err := domain.CheckMoney("volume tier price", tier.UnitPrice); err != nil {
			return err
		}
	}
	dupes := lo.FindDuplicatesBy(p.VolumePricing, func(t domain.VolumeTier) int { return t.MinQuantity })
	if len(dupes) > 0 {
		return fmt.Errorf("%w: duplicate volume tier for quantity %d", domain.ErrValidation, dupes[0].MinQuantity)
	}
	return nil
}

func normalizeTiers(tiers []domain.VolumeTier) []domain.VolumeTier {
	if len(tiers) == 0 {
		return nil
	}
	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b domain.VolumeTier) int { return cmp.Compare(a.MinQuantity, b.MinQuantity) })
	return sorted
}
