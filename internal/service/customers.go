package service

import (
	"context"
	"fmt"
	"strings"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	if req.StoreID != "" {
		if _, err := s.repo.GetStore(ctx, req.StoreID); err != nil {
			return domain.Customer{}, fmt.Errorf("store %s: %w", req.StoreID, err)
		}
	}

	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	now := s.now()
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:               xid.New("cus"),
		StoreID:          req.StoreID,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            strings.TrimSpace(req.Phone),
		Address:          strings.TrimSpace(req.Address),
		Notes:            strings.TrimSpace(req.Notes),
		Tier:             domain.EntryTier(tiers),
		RegistrationDate: now,
		Active:           true,
		UpdatedAt:        now,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) SearchCustomers(ctx context.Context, term string) ([]domain.Customer, error) {
	if strings.TrimSpace(term) == "" {
		return s.repo.ListCustomers(ctx)
	}
	return s.repo.SearchCustomers(ctx, term)
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, invalid("name must not be empty")
		}
		updated.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" {
			if err := s.validate.Var(email, "email"); err != nil {
				return domain.Customer{}, invalid("email %q is not valid", email)
			}
		}
		updated.Email = email
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = s.now()

	result, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *result, nil
}

// UpdateLoyaltyPoints applies a manual signed delta, writes one ledger entry and
// recomputes the tier, all in one unit of work.
func (s *Service) UpdateLoyaltyPoints(ctx context.Context, customerID string, req domain.LoyaltyPointsRequest) (domain.Customer, error) {
	if req.Points == 0 {
		return domain.Customer{}, invalid("points must not be zero")
	}
	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Points redeemed"
		if req.Points > 0 {
			description = "Points earned from purchase"
		}
	}

	var fx effects
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		fx = effects{}
		balance, err := s.movePoints(ctx, tx, &fx, customerID, "", req.Points, description, false)
		if err != nil {
			return err
		}
		_, _, err = s.applyTier(ctx, tx, customerID, balance, tiers)
		return err
	})
	if err != nil {
		return domain.Customer{}, err
	}
	fx.flush(s.metrics)
	return s.GetCustomer(ctx, customerID)
}

// UpdateCustomerTier recomputes the tier from the current balance. Running it
// twice changes nothing the second time.
func (s *Service) UpdateCustomerTier(ctx context.Context, customerID string) (domain.TierResponse, error) {
	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return domain.TierResponse{}, err
	}

	var resp domain.TierResponse
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		customer, err := tx.GetCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		tier, changed, err := s.applyTier(ctx, tx, customerID, customer.LoyaltyPoints, tiers)
		if err != nil {
			return err
		}
		resp = domain.TierResponse{CustomerID: customerID, Tier: tier, Changed: changed}
		return nil
	})
	if err != nil {
		return domain.TierResponse{}, err
	}
	return resp, nil
}

func (s *Service) ListLoyaltyLedger(ctx context.Context, customerID string) ([]domain.LoyaltyTransaction, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListLoyaltyEntries(ctx, customerID)
}

// VerifyLoyaltyLedger compares the stored balance with the sum of ledger deltas.
func (s *Service) VerifyLoyaltyLedger(ctx context.Context, customerID string) (domain.LedgerCheck, error) {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.LedgerCheck{}, err
	}
	entries, err := s.repo.ListLoyaltyEntries(ctx, customerID)
	if err != nil {
		return domain.LedgerCheck{}, err
	}

	var sum int64
	for _, entry := range entries {
		sum += entry.Points
	}
	check := domain.LedgerCheck{
		CustomerID: customerID,
		Balance:    customer.LoyaltyPoints,
		LedgerSum:  sum,
		Consistent: sum == customer.LoyaltyPoints,
	}
	if !check.Consistent {
		s.log.WarnContext(ctx, "loyalty ledger drift", "customer_id", customerID, "balance", check.Balance, "ledger_sum", sum)
	}
	return check, nil
}

// ListTiers reads thresholds through the tier cache. Cache failures are logged
// and fall through to the repository.
func (s *Service) ListTiers(ctx context.Context) ([]domain.CustomerTier, error) {
	tiers, ok, err := s.tiers.Get(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "tier cache read failed", "error", err)
	}
	if ok {
		return tiers, nil
	}

	tiers, err = s.repo.ListTiers(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.tiers.Set(ctx, tiers, s.tierTTL); err != nil {
		s.log.WarnContext(ctx, "tier cache fill failed", "error", err)
	}
	return tiers, nil
}

func (s *Service) UpsertTier(ctx context.Context, tier domain.CustomerTier) ([]domain.CustomerTier, error) {
	tier.Name = strings.ToLower(strings.TrimSpace(tier.Name))
	if tier.Name == "" || tier.MinPoints < 0 {
		return nil, invalid("tier needs a name and a non-negative min_points")
	}
	if err := s.repo.UpsertTier(ctx, tier); err != nil {
		return nil, err
	}
	if err := s.tiers.Invalidate(ctx); err != nil {
		s.log.WarnContext(ctx, "tier cache invalidate failed", "error", err)
	}
	return s.ListTiers(ctx)
}

// movePoints changes the balance by delta and appends the matching ledger row.
func (s *Service) movePoints(ctx context.Context, tx store.Tx, fx *effects, customerID, transactionID string, delta int64, description string, allowNegative bool) (int64, error) {
	balance, err := tx.AddLoyaltyPoints(ctx, customerID, delta, allowNegative)
	if err != nil {
		return 0, err
	}
	err = tx.CreateLoyaltyEntry(ctx, domain.LoyaltyTransaction{
		ID:            xid.New("lty"),
		CustomerID:    customerID,
		TransactionID: transactionID,
		Type:          domain.LedgerType(delta),
		Points:        delta,
		Description:   description,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return 0, err
	}
	fx.points = append(fx.points, pointMove{ledgerType: domain.LedgerType(delta), delta: delta})
	return balance, nil
}

func (s *Service) applyTier(ctx context.Context, tx store.Tx, customerID string, balance int64, tiers []domain.CustomerTier) (string, bool, error) {
	customer, err := tx.GetCustomer(ctx, customerID)
	if err != nil {
		return "", false, err
	}
	tier, ok := domain.SelectTier(balance, tiers)
	if !ok || tier == customer.Tier {
		return customer.Tier, false, nil
	}
	if err := tx.SetCustomerTier(ctx, customerID, tier); err != nil {
		return "", false, err
	}
	s.log.InfoContext(ctx, "customer tier changed", "customer_id", customerID, "from", customer.Tier, "to", tier)
	return tier, true, nil
}
