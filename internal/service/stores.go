package service

import (
	"context"
	"strings"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/xid"
)

func defaultSettings() *domain.StoreSettings {
	return &domain.StoreSettings{
		Currency:       "GBP",
		CurrencySymbol: "£",
		TaxRatePercent: 20,
		LoyaltyEnabled: true,
	}
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Store{}, err
	}
	settings := req.Settings
	if settings == nil {
		settings = defaultSettings()
	}
	if err := checkSettings(settings); err != nil {
		return domain.Store{}, err
	}

	now := s.now()
	created, err := s.repo.CreateStore(ctx, domain.Store{
		ID:        xid.New("store"),
		Name:      req.Name,
		Address:   strings.TrimSpace(req.Address),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     req.Email,
		Status:    domain.StoreStatusActive,
		ManagerID: strings.TrimSpace(req.ManagerID),
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Store{}, err
	}
	s.log.InfoContext(ctx, "store created", "store_id", created.ID, "name", created.Name)
	return *created, nil
}

func (s *Service) GetStore(ctx context.Context, id string) (domain.Store, error) {
	shop, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}
	return *shop, nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) UpdateStore(ctx context.Context, id string, req domain.StoreUpdateRequest) (domain.Store, error) {
	existing, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Store{}, invalid("name must not be empty")
		}
		updated.Name = name
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Status != nil {
		if *req.Status != domain.StoreStatusActive && *req.Status != domain.StoreStatusInactive {
			return domain.Store{}, invalid("unknown store status %q", *req.Status)
		}
		updated.Status = *req.Status
	}
	if req.ManagerID != nil {
		updated.ManagerID = strings.TrimSpace(*req.ManagerID)
	}
	if req.Settings != nil {
		if err := checkSettings(req.Settings); err != nil {
			return domain.Store{}, err
		}
		updated.Settings = req.Settings
	}
	updated.UpdatedAt = s.now()

	result, err := s.repo.UpdateStore(ctx, updated)
	if err != nil {
		return domain.Store{}, err
	}
	return *result, nil
}

// StoreStats summarises completed sales in the window plus the catalogue state.
func (s *Service) StoreStats(ctx context.Context, storeID string, from *time.Time, to *time.Time) (domain.StoreStats, error) {
	if _, err := s.repo.GetStore(ctx, storeID); err != nil {
		return domain.StoreStats{}, err
	}
	sales, err := s.TransactionStats(ctx, storeID, from, to)
	if err != nil {
		return domain.StoreStats{}, err
	}
	products, err := s.repo.ListProducts(ctx, storeID)
	if err != nil {
		return domain.StoreStats{}, err
	}

	stats := domain.StoreStats{
		StoreID:            storeID,
		TotalSalesCents:    sales.TotalSalesCents,
		TotalTransactions:  sales.TotalTransactions,
		AverageTransaction: sales.AverageTransaction,
		TotalProducts:      int64(len(products)),
	}
	for _, p := range products {
		if isLowStock(p) {
			stats.LowStockCount++
		}
	}
	return stats, nil
}

func checkSettings(settings *domain.StoreSettings) error {
	settings.Currency = strings.ToUpper(strings.TrimSpace(settings.Currency))
	if len(settings.Currency) != 3 {
		return invalid("currency must be a 3 letter code")
	}
	if settings.TaxRatePercent < 0 || settings.TaxRatePercent > 100 {
		return invalid("tax_rate_percent must be within 0..100")
	}
	return nil
}
