package memory

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

// Store keeps every collection in process. WithinTx holds the write lock for the
// whole unit of work and restores a snapshot when the work fails.
type Store struct {
	mu           sync.RWMutex
	stores       map[string]domain.Store
	users        map[string]domain.User
	products     map[string]domain.Product
	customers    map[string]domain.Customer
	tiers        map[string]domain.CustomerTier
	transactions map[string]domain.Transaction
	receipts     map[string]string
	items        map[string][]domain.TransactionItem
	adjustments  []domain.InventoryAdjustment
	ledger       []domain.LoyaltyTransaction
}

const (
	SeedStoreID    = "store-main"
	SeedAdminID    = "usr-admin"
	SeedManagerID  = "usr-manager"
	SeedCashierID  = "usr-cashier"
	SeedCustomerID = "cus-alice"
)

func New() *Store {
	tiers := make(map[string]domain.CustomerTier, len(domain.DefaultTiers))
	for _, tier := range domain.DefaultTiers {
		tiers[tier.Name] = tier
	}
	return &Store{
		stores:       make(map[string]domain.Store),
		users:        make(map[string]domain.User),
		products:     make(map[string]domain.Product),
		customers:    make(map[string]domain.Customer),
		tiers:        tiers,
		transactions: make(map[string]domain.Transaction),
		receipts:     make(map[string]string),
		items:        make(map[string][]domain.TransactionItem),
		adjustments:  make([]domain.InventoryAdjustment, 0, 64),
		ledger:       make([]domain.LoyaltyTransaction, 0, 64),
	}
}

// NewSeeded returns a store with one shop, three employees, a small catalogue
// and one loyalty customer for dev/demo mode. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.stores[SeedStoreID] = domain.Store{
		ID:        SeedStoreID,
		Name:      "Main Street",
		Address:   "1 Main Street",
		Status:    domain.StoreStatusActive,
		ManagerID: SeedManagerID,
		Settings: &domain.StoreSettings{
			Currency:       "GBP",
			CurrencySymbol: "£",
			TaxRatePercent: 20,
			LoyaltyEnabled: true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		slog.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}
	for _, u := range []struct {
		id       string
		email    string
		name     string
		password string
		role     string
	}{
		{SeedAdminID, "admin@retailpos.local", "Admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{SeedManagerID, "manager@retailpos.local", "Store Manager", envOr("SEED_MANAGER_PASSWORD", "manager123"), domain.RoleManager},
		{SeedCashierID, "cashier@retailpos.local", "Cashier", envOr("SEED_CASHIER_PASSWORD", "cashier123"), domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			panic("memory store: hash seed password: " + err.Error())
		}
		s.users[u.id] = domain.User{
			ID:           u.id,
			Email:        u.email,
			Name:         u.name,
			Role:         u.role,
			StoreID:      SeedStoreID,
			Active:       true,
			PasswordHash: string(hash),
			CreatedAt:    now,
		}
	}

	for _, p := range []domain.Product{
		{ID: "prd-milk", Name: "Semi Skimmed Milk 2L", Barcode: "5000000000011", Category: "dairy", PriceCents: 165, CostCents: 110, Stock: 10, MinStock: 3, MaxStock: 60, TrackStock: true, Taxable: false},
		{ID: "prd-bread", Name: "Wholemeal Loaf", Barcode: "5000000000028", Category: "bakery", PriceCents: 140, CostCents: 80, Stock: 25, MinStock: 5, MaxStock: 50, TrackStock: true, Taxable: false},
		{ID: "prd-coffee", Name: "Ground Coffee 227g", Barcode: "5000000000035", Category: "beverage", PriceCents: 450, CostCents: 260, Stock: 2, MinStock: 4, MaxStock: 30, TrackStock: true, Taxable: true},
		{ID: "prd-wine", Name: "Red Wine 75cl", Barcode: "5000000000042", Category: "alcohol", PriceCents: 899, CostCents: 500, Stock: 12, MinStock: 2, MaxStock: 24, TrackStock: true, Taxable: true, AgeRestricted: true},
		{ID: "prd-giftwrap", Name: "Gift Wrapping", Category: "service", PriceCents: 200, TrackStock: false, Taxable: true},
	} {
		p.StoreID = SeedStoreID
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	s.customers[SeedCustomerID] = domain.Customer{
		ID:               SeedCustomerID,
		StoreID:          SeedStoreID,
		Name:             "Alice Example",
		Email:            "alice@example.com",
		Phone:            "07700900001",
		LoyaltyPoints:    100,
		Tier:             "bronze",
		RegistrationDate: now,
		Active:           true,
		UpdatedAt:        now,
	}
	s.ledger = append(s.ledger, domain.LoyaltyTransaction{
		ID:          xid.New("lty"),
		CustomerID:  SeedCustomerID,
		Type:        domain.LoyaltyEarned,
		Points:      100,
		Description: "Opening balance",
		CreatedAt:   now,
	})

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type snapshot struct {
	products     map[string]domain.Product
	customers    map[string]domain.Customer
	transactions map[string]domain.Transaction
	receipts     map[string]string
	items        map[string][]domain.TransactionItem
	adjustments  int
	ledger       int
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		products:     maps.Clone(s.products),
		customers:    maps.Clone(s.customers),
		transactions: maps.Clone(s.transactions),
		receipts:     maps.Clone(s.receipts),
		items:        maps.Clone(s.items),
		adjustments:  len(s.adjustments),
		ledger:       len(s.ledger),
	}
}

func (s *Store) restore(snap snapshot) {
	s.products = snap.products
	s.customers = snap.customers
	s.transactions = snap.transactions
	s.receipts = snap.receipts
	s.items = snap.items
	s.adjustments = s.adjustments[:snap.adjustments]
	s.ledger = s.ledger[:snap.ledger]
}

func (s *Store) WithinTx(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	snap := s.snapshot()
	committed := false
	defer func() {
		if !committed {
			s.restore(snap)
		}
		s.mu.Unlock()
	}()

	if err := fn(&memTx{s: s}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) CreateStore(_ context.Context, shop domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shop.ID == "" || shop.Name == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.stores[shop.ID]; exists {
		return nil, store.ErrConflict
	}
	s.stores[shop.ID] = cloneStore(shop)
	created := cloneStore(shop)
	return &created, nil
}

func (s *Store) GetStore(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, exists := s.stores[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneStore(shop)
	return &found, nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Store, 0, len(s.stores))
	for _, shop := range s.stores {
		if shop.Status != domain.StoreStatusActive {
			continue
		}
		result = append(result, cloneStore(shop))
	}
	slices.SortFunc(result, func(a, b domain.Store) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) UpdateStore(_ context.Context, shop domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stores[shop.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.stores[shop.ID] = cloneStore(shop)
	updated := cloneStore(shop)
	return &updated, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" || user.Email == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, store.ErrConflict
		}
	}
	s.users[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context, storeID string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		if storeID != "" && user.StoreID != storeID {
			continue
		}
		result = append(result, user)
	}
	slices.SortFunc(result, func(a, b domain.User) int { return strings.Compare(a.Email, b.Email) })
	return result, nil
}

func (s *Store) SetUserActive(_ context.Context, id string, active bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	user.Active = active
	s.users[id] = user
	return &user, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.StoreID == "" || product.Name == "" || product.Stock < 0 {
		return nil, store.ErrValidation
	}
	if product.Barcode != "" {
		for _, existing := range s.products {
			if existing.StoreID == product.StoreID && existing.Barcode == product.Barcode {
				return nil, store.ErrConflict
			}
		}
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

// GetProductByBarcode looks a barcode up within one store; barcodes are only
// unique per store.
func (s *Store) GetProductByBarcode(_ context.Context, storeID string, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, product := range s.products {
		if product.Active && product.StoreID == storeID && product.Barcode != "" && product.Barcode == barcode {
			found := product
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	return s.filterProducts(func(p domain.Product) bool {
		return storeID == "" || p.StoreID == storeID
	}), nil
}

func (s *Store) SearchProducts(_ context.Context, storeID string, term string) ([]domain.Product, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	return s.filterProducts(func(p domain.Product) bool {
		if storeID != "" && p.StoreID != storeID {
			return false
		}
		return strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Barcode), term) ||
			strings.Contains(strings.ToLower(p.Description), term)
	}), nil
}

func (s *Store) filterProducts(keep func(domain.Product) bool) []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active || !keep(p) {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return products
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Barcode != "" {
		for id, other := range s.products {
			if id != product.ID && other.StoreID == existing.StoreID && other.Barcode == product.Barcode {
				return nil, store.ErrConflict
			}
		}
	}
	// stock only moves through a unit of work
	product.Stock = existing.Stock
	product.StoreID = existing.StoreID
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) ListInventoryAdjustments(_ context.Context, productID string, limit int) ([]domain.InventoryAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryAdjustment, 0, 16)
	for i := len(s.adjustments) - 1; i >= 0; i-- {
		adj := s.adjustments[i]
		if productID != "" && adj.ProductID != productID {
			continue
		}
		result = append(result, adj)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	s.customers[customer.ID] = cloneCustomer(customer)
	created := cloneCustomer(customer)
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneCustomer(customer)
	return &found, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	return s.filterCustomers(func(domain.Customer) bool { return true }), nil
}

func (s *Store) SearchCustomers(_ context.Context, term string) ([]domain.Customer, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	return s.filterCustomers(func(c domain.Customer) bool {
		return strings.Contains(strings.ToLower(c.Name), term) ||
			strings.Contains(strings.ToLower(c.Email), term) ||
			strings.Contains(strings.ToLower(c.Phone), term)
	}), nil
}

func (s *Store) filterCustomers(keep func(domain.Customer) bool) []domain.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if !c.Active || !keep(c) {
			continue
		}
		result = append(result, cloneCustomer(c))
	}
	slices.SortFunc(result, func(a, b domain.Customer) int { return strings.Compare(a.Name, b.Name) })
	return result
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// aggregates are owned by the checkout and loyalty workflows
	existing.Name = customer.Name
	existing.Email = customer.Email
	existing.Phone = customer.Phone
	existing.Address = customer.Address
	existing.Notes = customer.Notes
	existing.Active = customer.Active
	existing.UpdatedAt = customer.UpdatedAt
	s.customers[customer.ID] = existing
	updated := cloneCustomer(existing)
	return &updated, nil
}

func (s *Store) ListLoyaltyEntries(_ context.Context, customerID string) ([]domain.LoyaltyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LoyaltyTransaction, 0, 16)
	for _, entry := range s.ledger {
		if entry.CustomerID == customerID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (s *Store) ListTiers(_ context.Context) ([]domain.CustomerTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CustomerTier, 0, len(s.tiers))
	for _, tier := range s.tiers {
		result = append(result, tier)
	}
	slices.SortFunc(result, func(a, b domain.CustomerTier) int {
		switch {
		case a.MinPoints > b.MinPoints:
			return -1
		case a.MinPoints < b.MinPoints:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) UpsertTier(_ context.Context, tier domain.CustomerTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tier.Name == "" || tier.MinPoints < 0 {
		return store.ErrValidation
	}
	s.tiers[tier.Name] = tier
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.transactionLocked(id)
}

func (s *Store) transactionLocked(id string) (*domain.Transaction, error) {
	tx, exists := s.transactions[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneTransaction(tx)
	found.Items = slices.Clone(s.items[id])
	return &found, nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 32)
	for _, tx := range s.transactions {
		if filter.StoreID != "" && tx.StoreID != filter.StoreID {
			continue
		}
		if filter.CashierID != "" && tx.CashierID != filter.CashierID {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.From != nil && tx.TransactionDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && tx.TransactionDate.After(*filter.To) {
			continue
		}
		found := cloneTransaction(tx)
		found.Items = slices.Clone(s.items[tx.ID])
		result = append(result, found)
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		return b.TransactionDate.Compare(a.TransactionDate)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// memTx runs with Store.mu already held by WithinTx.
type memTx struct {
	s *Store
}

func (t *memTx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	product, exists := t.s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (t *memTx) AdjustStock(_ context.Context, productID string, delta int) (int, int, error) {
	product, exists := t.s.products[productID]
	if !exists {
		return 0, 0, store.ErrNotFound
	}
	before := product.Stock
	after := before + delta
	if after < 0 {
		return before, before, store.ErrInsufficientStock
	}
	product.Stock = after
	product.UpdatedAt = time.Now().UTC()
	t.s.products[productID] = product
	return before, after, nil
}

func (t *memTx) SetStock(_ context.Context, productID string, newStock int) (int, error) {
	product, exists := t.s.products[productID]
	if !exists {
		return 0, store.ErrNotFound
	}
	if newStock < 0 {
		return product.Stock, store.ErrValidation
	}
	before := product.Stock
	product.Stock = newStock
	product.UpdatedAt = time.Now().UTC()
	t.s.products[productID] = product
	return before, nil
}

func (t *memTx) CreateInventoryAdjustment(_ context.Context, adj domain.InventoryAdjustment) error {
	if adj.ID == "" || adj.ProductID == "" {
		return store.ErrValidation
	}
	t.s.adjustments = append(t.s.adjustments, adj)
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tx domain.Transaction) error {
	if tx.ID == "" || tx.ReceiptNumber == "" {
		return store.ErrValidation
	}
	if _, exists := t.s.receipts[tx.ReceiptNumber]; exists {
		return store.ErrDuplicateReceipt
	}
	if _, exists := t.s.transactions[tx.ID]; exists {
		return store.ErrConflict
	}
	tx.Items = nil
	t.s.transactions[tx.ID] = cloneTransaction(tx)
	t.s.receipts[tx.ReceiptNumber] = tx.ID
	return nil
}

func (t *memTx) InsertTransactionItems(_ context.Context, items []domain.TransactionItem) error {
	for _, item := range items {
		if _, exists := t.s.transactions[item.TransactionID]; !exists {
			return store.ErrNotFound
		}
		if _, exists := t.s.products[item.ProductID]; !exists {
			return store.ErrNotFound
		}
	}
	for _, item := range items {
		t.s.items[item.TransactionID] = append(slices.Clone(t.s.items[item.TransactionID]), item)
	}
	return nil
}

func (t *memTx) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	return t.s.transactionLocked(id)
}

func (t *memTx) UpdateTransactionStatus(_ context.Context, update store.StatusUpdate) error {
	tx, exists := t.s.transactions[update.TransactionID]
	if !exists {
		return store.ErrNotFound
	}
	if tx.Status != update.From {
		return store.ErrNotAllowed
	}
	tx.Status = update.To
	tx.UpdatedAt = update.At
	if update.ActorID != "" {
		tx.ApprovedBy = update.ActorID
		at := update.At
		tx.ApprovedAt = &at
	}
	if update.Notes != "" {
		tx.Notes = update.Notes
	}
	if update.Reason != "" {
		tx.Reason = update.Reason
	}
	t.s.transactions[tx.ID] = tx
	return nil
}

func (t *memTx) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	customer, exists := t.s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneCustomer(customer)
	return &found, nil
}

func (t *memTx) AddLoyaltyPoints(_ context.Context, customerID string, delta int64, allowNegative bool) (int64, error) {
	customer, exists := t.s.customers[customerID]
	if !exists {
		return 0, store.ErrNotFound
	}
	balance := customer.LoyaltyPoints + delta
	if balance < 0 && !allowNegative {
		return customer.LoyaltyPoints, store.ErrInsufficientPoints
	}
	customer.LoyaltyPoints = balance
	customer.UpdatedAt = time.Now().UTC()
	t.s.customers[customerID] = customer
	return balance, nil
}

func (t *memTx) AddTotalPurchases(_ context.Context, customerID string, deltaCents int64) error {
	customer, exists := t.s.customers[customerID]
	if !exists {
		return store.ErrNotFound
	}
	customer.TotalPurchases += deltaCents
	customer.UpdatedAt = time.Now().UTC()
	t.s.customers[customerID] = customer
	return nil
}

func (t *memTx) TouchLastVisit(_ context.Context, customerID string, at time.Time) error {
	customer, exists := t.s.customers[customerID]
	if !exists {
		return store.ErrNotFound
	}
	customer.LastVisit = &at
	t.s.customers[customerID] = customer
	return nil
}

func (t *memTx) SetCustomerTier(_ context.Context, customerID string, tier string) error {
	customer, exists := t.s.customers[customerID]
	if !exists {
		return store.ErrNotFound
	}
	customer.Tier = tier
	t.s.customers[customerID] = customer
	return nil
}

func (t *memTx) CreateLoyaltyEntry(_ context.Context, entry domain.LoyaltyTransaction) error {
	if entry.ID == "" || entry.CustomerID == "" {
		return store.ErrValidation
	}
	if _, exists := t.s.customers[entry.CustomerID]; !exists {
		return store.ErrNotFound
	}
	t.s.ledger = append(t.s.ledger, entry)
	return nil
}

func cloneStore(src domain.Store) domain.Store {
	dst := src
	if src.Settings != nil {
		settings := *src.Settings
		dst.Settings = &settings
	}
	return dst
}

func cloneCustomer(src domain.Customer) domain.Customer {
	dst := src
	if src.LastVisit != nil {
		at := *src.LastVisit
		dst.LastVisit = &at
	}
	return dst
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dst := src
	if src.ApprovedAt != nil {
		at := *src.ApprovedAt
		dst.ApprovedAt = &at
	}
	dst.Items = slices.Clone(src.Items)
	return dst
}
