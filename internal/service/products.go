package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if _, err := s.repo.GetStore(ctx, req.StoreID); err != nil {
		return domain.Product{}, fmt.Errorf("store %s: %w", req.StoreID, err)
	}

	maxStock := req.MaxStock
	if maxStock == 0 {
		maxStock = 100
	}
	if req.MinStock > maxStock {
		return domain.Product{}, invalid("min_stock %d exceeds max_stock %d", req.MinStock, maxStock)
	}

	now := s.now()
	product := domain.Product{
		ID:            xid.New("prd"),
		StoreID:       req.StoreID,
		Name:          req.Name,
		Description:   strings.TrimSpace(req.Description),
		Barcode:       req.Barcode,
		Category:      req.Category,
		PriceCents:    req.PriceCents,
		CostCents:     req.CostCents,
		Stock:         req.Stock,
		MinStock:      req.MinStock,
		MaxStock:      maxStock,
		TrackStock:    req.TrackStock == nil || *req.TrackStock,
		Taxable:       req.Taxable == nil || *req.Taxable,
		AgeRestricted: req.AgeRestricted,
		SellByWeight:  req.SellByWeight,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.InfoContext(ctx, "product created", "product_id", created.ID, "store_id", created.StoreID, "stock", created.Stock)
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, storeID string, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, invalid("barcode is required")
	}
	if storeID == "" {
		return domain.Product{}, invalid("store_id is required")
	}
	product, err := s.repo.GetProductByBarcode(ctx, storeID, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, storeID)
}

func (s *Service) SearchProducts(ctx context.Context, storeID string, term string) ([]domain.Product, error) {
	if strings.TrimSpace(term) == "" {
		return s.repo.ListProducts(ctx, storeID)
	}
	return s.repo.SearchProducts(ctx, storeID, term)
}

// ListLowStockProducts returns tracked products at or below their minimum.
func (s *Service) ListLowStockProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, storeID)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if isLowStock(p) {
			low = append(low, p)
		}
	}
	return low, nil
}

func isLowStock(p domain.Product) bool {
	return p.TrackStock && p.Stock <= p.MinStock
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, invalid("name must not be empty")
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, invalid("price_cents must not be negative")
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, invalid("cost_cents must not be negative")
		}
		updated.CostCents = *req.CostCents
	}
	if req.MinStock != nil {
		updated.MinStock = *req.MinStock
	}
	if req.MaxStock != nil {
		updated.MaxStock = *req.MaxStock
	}
	if updated.MinStock < 0 || updated.MaxStock < 0 || updated.MinStock > updated.MaxStock {
		return domain.Product{}, invalid("stock bounds %d..%d are invalid", updated.MinStock, updated.MaxStock)
	}
	if req.TrackStock != nil {
		updated.TrackStock = *req.TrackStock
	}
	if req.Taxable != nil {
		updated.Taxable = *req.Taxable
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = s.now()

	result, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *result, nil
}

// DeactivateProduct is a soft delete; history keeps pointing at the row.
func (s *Service) DeactivateProduct(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateProduct(ctx, id, domain.ProductUpdateRequest{Active: &inactive})
	return err
}

// UpdateStock sets the absolute stock level and appends one adjustment row. An
// unchanged level writes nothing.
func (s *Service) UpdateStock(ctx context.Context, productID string, req domain.StockUpdateRequest) (domain.Product, error) {
	if req.NewStock < 0 {
		return domain.Product{}, invalid("new_stock must not be negative")
	}
	reason := defaultString(strings.TrimSpace(req.Reason), "Manual adjustment")
	userID := actorID(ctx)

	var adjustment *domain.InventoryAdjustment
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		adjustment = nil
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.Stock == req.NewStock {
			return nil
		}
		before, err := tx.SetStock(ctx, productID, req.NewStock)
		if err != nil {
			return err
		}
		adj := stockAdjustment(product.StoreID, productID, userID, before, req.NewStock, reason, s.now())
		if err := tx.CreateInventoryAdjustment(ctx, adj); err != nil {
			return err
		}
		adjustment = &adj
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	if adjustment != nil {
		s.metrics.StockAdjustment(adjustment.Type)
		s.log.InfoContext(ctx, "stock updated",
			"product_id", productID,
			"before", adjustment.QuantityBefore,
			"after", adjustment.QuantityAfter,
			"user_id", userID,
		)
	}
	return s.GetProduct(ctx, productID)
}

func (s *Service) ListInventoryAdjustments(ctx context.Context, productID string, limit int) ([]domain.InventoryAdjustment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListInventoryAdjustments(ctx, productID, limit)
}

func stockAdjustment(storeID, productID, userID string, before, after int, reason string, at time.Time) domain.InventoryAdjustment {
	adjType := domain.AdjustmentDecrease
	changed := before - after
	if after > before {
		adjType = domain.AdjustmentIncrease
		changed = after - before
	}
	return domain.InventoryAdjustment{
		ID:              xid.New("adj"),
		ProductID:       productID,
		StoreID:         storeID,
		UserID:          userID,
		Type:            adjType,
		QuantityBefore:  before,
		QuantityAfter:   after,
		QuantityChanged: changed,
		Reason:          reason,
		Status:          domain.AdjustmentStatusCompleted,
		CreatedAt:       at,
	}
}
