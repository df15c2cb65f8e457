package store

import (
	"context"
	"errors"
	"time"

	"retailpos/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrNotAllowed         = domain.ErrInvalidTransition
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrDuplicateReceipt   = errors.New("duplicate receipt number")
	ErrConflict           = errors.New("conflict")
)

// Tx is the set of primitives available inside one unit of work. Every call made
// through a Tx commits or rolls back together.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// AdjustStock applies delta atomically and fails with ErrInsufficientStock
	// instead of letting stock go negative.
	AdjustStock(ctx context.Context, productID string, delta int) (before int, after int, err error)
	SetStock(ctx context.Context, productID string, newStock int) (before int, err error)
	CreateInventoryAdjustment(ctx context.Context, adj domain.InventoryAdjustment) error

	InsertTransaction(ctx context.Context, tx domain.Transaction) error
	InsertTransactionItems(ctx context.Context, items []domain.TransactionItem) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	// UpdateTransactionStatus moves the row from one status to another and fails
	// with ErrNotAllowed when the stored status is not from.
	UpdateTransactionStatus(ctx context.Context, update StatusUpdate) error

	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	AddLoyaltyPoints(ctx context.Context, customerID string, delta int64, allowNegative bool) (balance int64, err error)
	AddTotalPurchases(ctx context.Context, customerID string, deltaCents int64) error
	TouchLastVisit(ctx context.Context, customerID string, at time.Time) error
	SetCustomerTier(ctx context.Context, customerID string, tier string) error
	CreateLoyaltyEntry(ctx context.Context, entry domain.LoyaltyTransaction) error
}

type StatusUpdate struct {
	TransactionID string
	From          string
	To            string
	ActorID       string
	At            time.Time
	Notes         string
	Reason        string
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)
	UpdateStore(ctx context.Context, s domain.Store) (*domain.Store, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context, storeID string) ([]domain.User, error)
	SetUserActive(ctx context.Context, id string, active bool) (*domain.User, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, storeID string, barcode string) (*domain.Product, error)
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	SearchProducts(ctx context.Context, storeID string, term string) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListInventoryAdjustments(ctx context.Context, productID string, limit int) ([]domain.InventoryAdjustment, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	SearchCustomers(ctx context.Context, term string) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListLoyaltyEntries(ctx context.Context, customerID string) ([]domain.LoyaltyTransaction, error)

	ListTiers(ctx context.Context) ([]domain.CustomerTier, error)
	UpsertTier(ctx context.Context, tier domain.CustomerTier) error

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
}
