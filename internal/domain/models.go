package domain

import "time"

type StoreSettings struct {
	Currency       string  `json:"currency"`
	CurrencySymbol string  `json:"currency_symbol"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	ReceiptFooter  string  `json:"receipt_footer,omitempty"`
	LoyaltyEnabled bool    `json:"loyalty_enabled"`
	OfflineMode    bool    `json:"offline_mode"`
}

type Store struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Address   string         `json:"address"`
	Phone     string         `json:"phone,omitempty"`
	Email     string         `json:"email,omitempty"`
	Status    string         `json:"status"`
	ManagerID string         `json:"manager_id,omitempty"`
	Settings  *StoreSettings `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type StoreCreateRequest struct {
	Name      string         `json:"name" validate:"required"`
	Address   string         `json:"address"`
	Phone     string         `json:"phone"`
	Email     string         `json:"email" validate:"omitempty,email"`
	ManagerID string         `json:"manager_id"`
	Settings  *StoreSettings `json:"settings,omitempty"`
}

type StoreUpdateRequest struct {
	Name      *string        `json:"name,omitempty"`
	Address   *string        `json:"address,omitempty"`
	Phone     *string        `json:"phone,omitempty"`
	Email     *string        `json:"email,omitempty"`
	Status    *string        `json:"status,omitempty"`
	ManagerID *string        `json:"manager_id,omitempty"`
	Settings  *StoreSettings `json:"settings,omitempty"`
}

type StoreStats struct {
	StoreID            string `json:"store_id"`
	TotalSalesCents    int64  `json:"total_sales_cents"`
	TotalTransactions  int64  `json:"total_transactions"`
	AverageTransaction int64  `json:"average_transaction_cents"`
	LowStockCount      int64  `json:"low_stock_count"`
	TotalProducts      int64  `json:"total_products"`
}

// User is an employee account. PasswordHash never leaves the process.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	StoreID      string    `json:"store_id,omitempty"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type EmployeeCreateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin manager cashier"`
	StoreID  string `json:"store_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StoreID     string `json:"store_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID  string
	Email   string
	Role    string
	StoreID string
}

type Product struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Barcode       string    `json:"barcode,omitempty"`
	Category      string    `json:"category,omitempty"`
	PriceCents    int64     `json:"price_cents"`
	CostCents     int64     `json:"cost_cents"`
	Stock         int       `json:"stock"`
	MinStock      int       `json:"min_stock"`
	MaxStock      int       `json:"max_stock"`
	TrackStock    bool      `json:"track_stock"`
	Taxable       bool      `json:"taxable"`
	AgeRestricted bool      `json:"age_restricted"`
	SellByWeight  bool      `json:"sell_by_weight"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	StoreID       string `json:"store_id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description"`
	Barcode       string `json:"barcode"`
	Category      string `json:"category"`
	PriceCents    int64  `json:"price_cents" validate:"gte=0"`
	CostCents     int64  `json:"cost_cents" validate:"gte=0"`
	Stock         int    `json:"stock" validate:"gte=0"`
	MinStock      int    `json:"min_stock" validate:"gte=0"`
	MaxStock      int    `json:"max_stock" validate:"gte=0"`
	TrackStock    *bool  `json:"track_stock,omitempty"`
	Taxable       *bool  `json:"taxable,omitempty"`
	AgeRestricted bool   `json:"age_restricted"`
	SellByWeight  bool   `json:"sell_by_weight"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Barcode     *string `json:"barcode,omitempty"`
	Category    *string `json:"category,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	CostCents   *int64  `json:"cost_cents,omitempty"`
	MinStock    *int    `json:"min_stock,omitempty"`
	MaxStock    *int    `json:"max_stock,omitempty"`
	TrackStock  *bool   `json:"track_stock,omitempty"`
	Taxable     *bool   `json:"taxable,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type StockUpdateRequest struct {
	NewStock int    `json:"new_stock"`
	Reason   string `json:"reason"`
}

type InventoryAdjustment struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	StoreID         string    `json:"store_id"`
	UserID          string    `json:"user_id"`
	Type            string    `json:"adjustment_type"`
	QuantityBefore  int       `json:"quantity_before"`
	QuantityAfter   int       `json:"quantity_after"`
	QuantityChanged int       `json:"quantity_changed"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type Customer struct {
	ID               string     `json:"id"`
	StoreID          string     `json:"store_id,omitempty"`
	Name             string     `json:"name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Address          string     `json:"address,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	LoyaltyPoints    int64      `json:"loyalty_points"`
	Tier             string     `json:"tier"`
	TotalPurchases   int64      `json:"total_purchases_cents"`
	LastVisit        *time.Time `json:"last_visit,omitempty"`
	RegistrationDate time.Time  `json:"registration_date"`
	Active           bool       `json:"active"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type CustomerCreateRequest struct {
	StoreID string `json:"store_id"`
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
	Notes   *string `json:"notes,omitempty"`
	Active  *bool   `json:"active,omitempty"`
}

type LoyaltyPointsRequest struct {
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

type CustomerTier struct {
	Name      string `json:"name"`
	MinPoints int64  `json:"min_points"`
}

type TierResponse struct {
	CustomerID string `json:"customer_id"`
	Tier       string `json:"tier"`
	Changed    bool   `json:"changed"`
}

// LoyaltyTransaction is one append-only ledger entry. Points is signed.
type LoyaltyTransaction struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Type          string    `json:"type"`
	Points        int64     `json:"points"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

type LedgerCheck struct {
	CustomerID string `json:"customer_id"`
	Balance    int64  `json:"balance"`
	LedgerSum  int64  `json:"ledger_sum"`
	Consistent bool   `json:"consistent"`
}

type TransactionItem struct {
	ID             string `json:"id"`
	TransactionID  string `json:"transaction_id"`
	ProductID      string `json:"product_id" validate:"required"`
	Quantity       int    `json:"quantity" validate:"gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
	DiscountCents  int64  `json:"discount_cents" validate:"gte=0"`
	TaxCents       int64  `json:"tax_cents" validate:"gte=0"`
	TotalCents     int64  `json:"total_cents" validate:"gte=0"`
}

type Transaction struct {
	ID                  string            `json:"id"`
	ReceiptNumber       string            `json:"receipt_number"`
	StoreID             string            `json:"store_id"`
	CashierID           string            `json:"cashier_id"`
	CustomerID          string            `json:"customer_id,omitempty"`
	Status              string            `json:"status"`
	PaymentMethod       string            `json:"payment_method"`
	SubtotalCents       int64             `json:"subtotal_cents"`
	TaxCents            int64             `json:"tax_cents"`
	DiscountCents       int64             `json:"discount_cents"`
	TotalCents          int64             `json:"total_cents"`
	CashAmountCents     int64             `json:"cash_amount_cents"`
	CardAmountCents     int64             `json:"card_amount_cents"`
	ChangeCents         int64             `json:"change_cents"`
	LoyaltyPointsEarned int64             `json:"loyalty_points_earned"`
	LoyaltyPointsUsed   int64             `json:"loyalty_points_used"`
	Reason              string            `json:"reason,omitempty"`
	Notes               string            `json:"notes,omitempty"`
	ApprovedBy          string            `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time        `json:"approved_at,omitempty"`
	TransactionDate     time.Time         `json:"transaction_date"`
	UpdatedAt           time.Time         `json:"updated_at"`
	Items               []TransactionItem `json:"items,omitempty"`
}

type TransactionCreateRequest struct {
	StoreID             string            `json:"store_id" validate:"required"`
	CashierID           string            `json:"cashier_id" validate:"required"`
	CustomerID          string            `json:"customer_id"`
	Status              string            `json:"status" validate:"omitempty,oneof=pending completed"`
	PaymentMethod       string            `json:"payment_method" validate:"required,oneof=cash card dual"`
	SubtotalCents       int64             `json:"subtotal_cents" validate:"gte=0"`
	TaxCents            int64             `json:"tax_cents" validate:"gte=0"`
	DiscountCents       int64             `json:"discount_cents" validate:"gte=0"`
	TotalCents          int64             `json:"total_cents" validate:"gte=0"`
	CashAmountCents     int64             `json:"cash_amount_cents" validate:"gte=0"`
	CardAmountCents     int64             `json:"card_amount_cents" validate:"gte=0"`
	LoyaltyPointsEarned int64             `json:"loyalty_points_earned" validate:"gte=0"`
	LoyaltyPointsUsed   int64             `json:"loyalty_points_used" validate:"gte=0"`
	Reason              string            `json:"reason"`
	Notes               string            `json:"notes"`
	Items               []TransactionItem `json:"items" validate:"required,min=1,dive"`
}

type TransactionActionRequest struct {
	Reason string `json:"reason"`
}

type TransactionFilter struct {
	StoreID   string
	CashierID string
	Status    string
	From      *time.Time
	To        *time.Time
	Limit     int
}

type TransactionStats struct {
	TotalTransactions  int64 `json:"total_transactions"`
	TotalSalesCents    int64 `json:"total_sales_cents"`
	AverageTransaction int64 `json:"average_transaction_cents"`
	CashSales          int64 `json:"cash_sales"`
	CardSales          int64 `json:"card_sales"`
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

const (
	StoreStatusActive   = "active"
	StoreStatusInactive = "inactive"
)

const (
	PaymentCash = "cash"
	PaymentCard = "card"
	PaymentDual = "dual"
)

const (
	AdjustmentIncrease = "increase"
	AdjustmentDecrease = "decrease"

	AdjustmentStatusCompleted = "completed"
)

const (
	LoyaltyEarned   = "earned"
	LoyaltyRedeemed = "redeemed"
)
