package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	receiptConstraint    = "transactions_receipt_number_key"
	serializationFailure = "40001"
	uniqueViolation      = "23505"
	maxSerializableRuns  = 3
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already opened handle.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithinTx runs fn in one SERIALIZABLE transaction. Serialization failures are
// retried a bounded number of times, fn must therefore be safe to run again.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxSerializableRuns; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, err)
}

func (s *Store) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

const storeColumns = `
	s.id, s.name, s.address, COALESCE(s.phone,''), COALESCE(s.email,''), s.status,
	COALESCE(s.manager_id,''), s.created_at, s.updated_at,
	ss.currency, ss.currency_symbol, ss.tax_rate, ss.receipt_footer, ss.loyalty_enabled, ss.offline_mode`

func scanStore(row scanner) (*domain.Store, error) {
	var shop domain.Store
	var currency, symbol, footer sql.NullString
	var taxRate sql.NullFloat64
	var loyalty, offline sql.NullBool
	if err := row.Scan(
		&shop.ID, &shop.Name, &shop.Address, &shop.Phone, &shop.Email, &shop.Status,
		&shop.ManagerID, &shop.CreatedAt, &shop.UpdatedAt,
		&currency, &symbol, &taxRate, &footer, &loyalty, &offline,
	); err != nil {
		return nil, err
	}
	if currency.Valid {
		shop.Settings = &domain.StoreSettings{
			Currency:       currency.String,
			CurrencySymbol: symbol.String,
			TaxRatePercent: taxRate.Float64,
			ReceiptFooter:  footer.String,
			LoyaltyEnabled: loyalty.Bool,
			OfflineMode:    offline.Bool,
		}
	}
	return &shop, nil
}

func (s *Store) CreateStore(ctx context.Context, shop domain.Store) (*domain.Store, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stores (id, name, address, phone, email, status, manager_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, shop.ID, shop.Name, shop.Address, nullIfEmpty(shop.Phone), nullIfEmpty(shop.Email), shop.Status,
			nullIfEmpty(shop.ManagerID), shop.CreatedAt, shop.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		return upsertSettings(ctx, tx, shop.ID, shop.Settings)
	})
	if err != nil {
		return nil, err
	}
	return s.GetStore(ctx, shop.ID)
}

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+storeColumns+`
		FROM stores s
		LEFT JOIN store_settings ss ON ss.store_id = s.id
		WHERE s.id = $1
	`, id)
	shop, err := scanStore(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shop, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+storeColumns+`
		FROM stores s
		LEFT JOIN store_settings ss ON ss.store_id = s.id
		WHERE s.status = 'active'
		ORDER BY s.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Store, 0, 8)
	for rows.Next() {
		shop, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *shop)
	}
	return result, rows.Err()
}

func (s *Store) UpdateStore(ctx context.Context, shop domain.Store) (*domain.Store, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE stores
			SET name = $2, address = $3, phone = $4, email = $5, status = $6, manager_id = $7, updated_at = $8
			WHERE id = $1
		`, shop.ID, shop.Name, shop.Address, nullIfEmpty(shop.Phone), nullIfEmpty(shop.Email), shop.Status,
			nullIfEmpty(shop.ManagerID), shop.UpdatedAt)
		if err != nil {
			return err
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		return upsertSettings(ctx, tx, shop.ID, shop.Settings)
	})
	if err != nil {
		return nil, err
	}
	return s.GetStore(ctx, shop.ID)
}

func upsertSettings(ctx context.Context, tx *sql.Tx, storeID string, settings *domain.StoreSettings) error {
	if settings == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO store_settings (store_id, currency, currency_symbol, tax_rate, receipt_footer, loyalty_enabled, offline_mode, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (store_id) DO UPDATE SET
			currency = EXCLUDED.currency,
			currency_symbol = EXCLUDED.currency_symbol,
			tax_rate = EXCLUDED.tax_rate,
			receipt_footer = EXCLUDED.receipt_footer,
			loyalty_enabled = EXCLUDED.loyalty_enabled,
			offline_mode = EXCLUDED.offline_mode,
			updated_at = now()
	`, storeID, settings.Currency, settings.CurrencySymbol, settings.TaxRatePercent,
		nullIfEmpty(settings.ReceiptFooter), settings.LoyaltyEnabled, settings.OfflineMode)
	return err
}

const userColumns = `id, email, name, role, COALESCE(store_id,''), is_active, password_hash, created_at`

func scanUser(row scanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.StoreID, &user.Active, &user.PasswordHash, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, store_id, is_active, password_hash, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.Name, user.Role, nullIfEmpty(user.StoreID), user.Active, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return s.GetUser(ctx, user.ID)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, `lower(email) = lower($1)`, email)
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, `id = $1`, id)
}

func (s *Store) findUser(ctx context.Context, where string, arg string) (*domain.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, storeID string) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY email
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.User, 0, 8)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

const productColumns = `
	id, store_id, name, description, COALESCE(barcode,''), category, price_cents, cost_cents,
	stock, min_stock, max_stock, track_stock, taxable, age_restricted, sell_by_weight, is_active,
	created_at, updated_at`

func scanProduct(row scanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(
		&p.ID, &p.StoreID, &p.Name, &p.Description, &p.Barcode, &p.Category, &p.PriceCents, &p.CostCents,
		&p.Stock, &p.MinStock, &p.MaxStock, &p.TrackStock, &p.Taxable, &p.AgeRestricted, &p.SellByWeight, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, store_id, name, description, barcode, category, price_cents, cost_cents,
			stock, min_stock, max_stock, track_stock, taxable, age_restricted, sell_by_weight, is_active,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, p.ID, p.StoreID, p.Name, p.Description, nullIfEmpty(p.Barcode), p.Category, p.PriceCents, p.CostCents,
		p.Stock, p.MinStock, p.MaxStock, p.TrackStock, p.Taxable, p.AgeRestricted, p.SellByWeight, p.Active,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, "")
}

func (s *Store) GetProductByBarcode(ctx context.Context, storeID string, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE store_id = $1 AND barcode = $2 AND is_active = true
	`, storeID, barcode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = true AND ($1 = '' OR store_id = $1)
		ORDER BY name
	`, storeID)
}

func (s *Store) SearchProducts(ctx context.Context, storeID string, term string) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = true
			AND ($1 = '' OR store_id = $1)
			AND (name ILIKE '%' || $2 || '%' OR barcode ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		ORDER BY name
	`, storeID, strings.TrimSpace(term))
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// UpdateProduct never touches stock; that only moves through WithinTx.
func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, barcode = $4, category = $5, price_cents = $6, cost_cents = $7,
			min_stock = $8, max_stock = $9, track_stock = $10, taxable = $11, age_restricted = $12,
			sell_by_weight = $13, is_active = $14, updated_at = $15
		WHERE id = $1
	`, p.ID, p.Name, p.Description, nullIfEmpty(p.Barcode), p.Category, p.PriceCents, p.CostCents,
		p.MinStock, p.MaxStock, p.TrackStock, p.Taxable, p.AgeRestricted,
		p.SellByWeight, p.Active, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) ListInventoryAdjustments(ctx context.Context, productID string, limit int) ([]domain.InventoryAdjustment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, store_id, user_id, adjustment_type, quantity_before, quantity_after,
			quantity_changed, reason, status, created_at
		FROM inventory_adjustments
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.InventoryAdjustment, 0, limit)
	for rows.Next() {
		var adj domain.InventoryAdjustment
		if err := rows.Scan(
			&adj.ID, &adj.ProductID, &adj.StoreID, &adj.UserID, &adj.Type, &adj.QuantityBefore, &adj.QuantityAfter,
			&adj.QuantityChanged, &adj.Reason, &adj.Status, &adj.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, adj)
	}
	return result, rows.Err()
}

const customerColumns = `
	id, COALESCE(store_id,''), name, COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''),
	COALESCE(notes,''), loyalty_points, tier, total_purchases, last_visit, registration_date,
	is_active, updated_at`

func scanCustomer(row scanner) (*domain.Customer, error) {
	var c domain.Customer
	var lastVisit sql.NullTime
	if err := row.Scan(
		&c.ID, &c.StoreID, &c.Name, &c.Email, &c.Phone, &c.Address,
		&c.Notes, &c.LoyaltyPoints, &c.Tier, &c.TotalPurchases, &lastVisit, &c.RegistrationDate,
		&c.Active, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		visit := lastVisit.Time
		c.LastVisit = &visit
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, store_id, name, email, phone, address, notes, loyalty_points, tier, total_purchases,
			last_visit, registration_date, is_active, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.ID, nullIfEmpty(c.StoreID), c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Address),
		nullIfEmpty(c.Notes), c.LoyaltyPoints, c.Tier, c.TotalPurchases,
		nullTime(c.LastVisit), c.RegistrationDate, c.Active, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return s.GetCustomer(ctx, c.ID)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, id, "")
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE is_active = true
		ORDER BY name
	`)
}

func (s *Store) SearchCustomers(ctx context.Context, term string) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE is_active = true
			AND (name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%')
		ORDER BY name
	`, strings.TrimSpace(term))
}

func (s *Store) queryCustomers(ctx context.Context, query string, args ...any) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// UpdateCustomer writes profile fields only. Points, tier and purchase totals
// are owned by the loyalty and checkout workflows.
func (s *Store) UpdateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, address = $5, notes = $6, is_active = $7, updated_at = $8
		WHERE id = $1
	`, c.ID, c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Address), nullIfEmpty(c.Notes),
		c.Active, c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, c.ID)
}

func (s *Store) ListLoyaltyEntries(ctx context.Context, customerID string) ([]domain.LoyaltyTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, COALESCE(transaction_id,''), type, points, description, created_at
		FROM loyalty_transactions
		WHERE customer_id = $1
		ORDER BY created_at, id
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.LoyaltyTransaction, 0, 16)
	for rows.Next() {
		var entry domain.LoyaltyTransaction
		if err := rows.Scan(&entry.ID, &entry.CustomerID, &entry.TransactionID, &entry.Type, &entry.Points, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) ListTiers(ctx context.Context) ([]domain.CustomerTier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, min_points FROM customer_tiers ORDER BY min_points DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CustomerTier, 0, 4)
	for rows.Next() {
		var tier domain.CustomerTier
		if err := rows.Scan(&tier.Name, &tier.MinPoints); err != nil {
			return nil, err
		}
		result = append(result, tier)
	}
	return result, rows.Err()
}

func (s *Store) UpsertTier(ctx context.Context, tier domain.CustomerTier) error {
	if tier.Name == "" || tier.MinPoints < 0 {
		return store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_tiers (name, min_points)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET min_points = EXCLUDED.min_points
	`, tier.Name, tier.MinPoints)
	return err
}

const transactionColumns = `
	id, receipt_number, store_id, cashier_id, COALESCE(customer_id,''), status, payment_method,
	subtotal_cents, tax_cents, discount_cents, total_cents, cash_amount_cents, card_amount_cents,
	change_cents, loyalty_points_earned, loyalty_points_used, COALESCE(reason,''), COALESCE(notes,''),
	COALESCE(approved_by,''), approved_at, transaction_date, updated_at`

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var approvedAt sql.NullTime
	if err := row.Scan(
		&tx.ID, &tx.ReceiptNumber, &tx.StoreID, &tx.CashierID, &tx.CustomerID, &tx.Status, &tx.PaymentMethod,
		&tx.SubtotalCents, &tx.TaxCents, &tx.DiscountCents, &tx.TotalCents, &tx.CashAmountCents, &tx.CardAmountCents,
		&tx.ChangeCents, &tx.LoyaltyPointsEarned, &tx.LoyaltyPointsUsed, &tx.Reason, &tx.Notes,
		&tx.ApprovedBy, &approvedAt, &tx.TransactionDate, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		at := approvedAt.Time
		tx.ApprovedAt = &at
	}
	return &tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, id, "")
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.StoreID != "" {
		add("store_id = $%d", filter.StoreID)
	}
	if filter.CashierID != "" {
		add("cashier_id = $%d", filter.CashierID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.From != nil {
		add("transaction_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("transaction_date <= $%d", *filter.To)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY transaction_date DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	items, err := loadItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = items[result[i].ID]
	}
	return result, nil
}

// inTx is the plain read-committed helper for multi-statement admin writes.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProduct(ctx context.Context, q queryer, id string, lock string) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func getCustomer(ctx context.Context, q queryer, id string, lock string) (*domain.Customer, error) {
	c, err := scanCustomer(q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func getTransaction(ctx context.Context, q queryer, id string, lock string) (*domain.Transaction, error) {
	tx, err := scanTransaction(q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := loadItems(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	tx.Items = items[id]
	return tx, nil
}

func loadItems(ctx context.Context, q queryer, transactionIDs []string) (map[string][]domain.TransactionItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, quantity, unit_price_cents, discount_cents, tax_cents, total_cents
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, id
	`, transactionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.TransactionItem, len(transactionIDs))
	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(
			&item.ID, &item.TransactionID, &item.ProductID, &item.Quantity,
			&item.UnitPriceCents, &item.DiscountCents, &item.TaxCents, &item.TotalCents,
		); err != nil {
			return nil, err
		}
		result[item.TransactionID] = append(result[item.TransactionID], item)
	}
	return result, rows.Err()
}

// pgTx implements store.Tx on one SERIALIZABLE transaction. Every mutation is a
// conditional UPDATE so a lost race surfaces as an error instead of a bad row.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id, " FOR UPDATE")
}

func (t *pgTx) AdjustStock(ctx context.Context, productID string, delta int) (int, int, error) {
	var after int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $1, updated_at = now()
		WHERE id = $2 AND stock + $1 >= 0
		RETURNING stock
	`, delta, productID).Scan(&after)
	if err == nil {
		return after - delta, after, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, 0, err
	}

	var current int
	err = t.tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, store.ErrNotFound
		}
		return 0, 0, err
	}
	return current, current, store.ErrInsufficientStock
}

func (t *pgTx) SetStock(ctx context.Context, productID string, newStock int) (int, error) {
	if newStock < 0 {
		return 0, store.ErrValidation
	}
	var before int
	err := t.tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, productID, newStock); err != nil {
		return 0, err
	}
	return before, nil
}

func (t *pgTx) CreateInventoryAdjustment(ctx context.Context, adj domain.InventoryAdjustment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_adjustments (
			id, product_id, store_id, user_id, adjustment_type, quantity_before, quantity_after,
			quantity_changed, reason, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, adj.ID, adj.ProductID, adj.StoreID, adj.UserID, adj.Type, adj.QuantityBefore, adj.QuantityAfter,
		adj.QuantityChanged, adj.Reason, adj.Status, adj.CreatedAt)
	return err
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, receipt_number, store_id, cashier_id, customer_id, status, payment_method,
			subtotal_cents, tax_cents, discount_cents, total_cents, cash_amount_cents, card_amount_cents,
			change_cents, loyalty_points_earned, loyalty_points_used, reason, notes,
			approved_by, approved_at, transaction_date, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`, tx.ID, tx.ReceiptNumber, tx.StoreID, tx.CashierID, nullIfEmpty(tx.CustomerID), tx.Status, tx.PaymentMethod,
		tx.SubtotalCents, tx.TaxCents, tx.DiscountCents, tx.TotalCents, tx.CashAmountCents, tx.CardAmountCents,
		tx.ChangeCents, tx.LoyaltyPointsEarned, tx.LoyaltyPointsUsed, nullIfEmpty(tx.Reason), nullIfEmpty(tx.Notes),
		nullIfEmpty(tx.ApprovedBy), nullTime(tx.ApprovedAt), tx.TransactionDate, tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == receiptConstraint {
				return store.ErrDuplicateReceipt
			}
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (t *pgTx) InsertTransactionItems(ctx context.Context, items []domain.TransactionItem) error {
	for _, item := range items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO transaction_items (
				id, transaction_id, product_id, quantity, unit_price_cents, discount_cents, tax_cents, total_cents
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, item.TransactionID, item.ProductID, item.Quantity, item.UnitPriceCents,
			item.DiscountCents, item.TaxCents, item.TotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, t.tx, id, " FOR UPDATE")
}

func (t *pgTx) UpdateTransactionStatus(ctx context.Context, update store.StatusUpdate) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3,
			updated_at = $4,
			approved_by = COALESCE($5, approved_by),
			approved_at = CASE WHEN $5::text IS NULL THEN approved_at ELSE $4 END,
			notes = COALESCE($6, notes),
			reason = COALESCE($7, reason)
		WHERE id = $1 AND status = $2
	`, update.TransactionID, update.From, update.To, update.At,
		nullIfEmpty(update.ActorID), nullIfEmpty(update.Notes), nullIfEmpty(update.Reason))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, update.TransactionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %s -> %s", store.ErrNotAllowed, update.From, update.To)
}

func (t *pgTx) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, t.tx, id, " FOR UPDATE")
}

func (t *pgTx) AddLoyaltyPoints(ctx context.Context, customerID string, delta int64, allowNegative bool) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE customers
		SET loyalty_points = loyalty_points + $1, updated_at = now()
		WHERE id = $2 AND ($3 OR loyalty_points + $1 >= 0)
		RETURNING loyalty_points
	`, delta, customerID, allowNegative).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if err := t.customerExists(ctx, customerID); err != nil {
		return 0, err
	}
	return 0, store.ErrInsufficientPoints
}

func (t *pgTx) AddTotalPurchases(ctx context.Context, customerID string, deltaCents int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE customers SET total_purchases = total_purchases + $1, updated_at = now() WHERE id = $2
	`, deltaCents, customerID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) TouchLastVisit(ctx context.Context, customerID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE customers SET last_visit = $1, updated_at = $1 WHERE id = $2`, at, customerID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) SetCustomerTier(ctx context.Context, customerID string, tier string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE customers SET tier = $1, updated_at = now() WHERE id = $2`, tier, customerID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) CreateLoyaltyEntry(ctx context.Context, entry domain.LoyaltyTransaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO loyalty_transactions (id, customer_id, transaction_id, type, points, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.CustomerID, nullIfEmpty(entry.TransactionID), entry.Type, entry.Points, entry.Description, entry.CreatedAt)
	return err
}

func (t *pgTx) customerExists(ctx context.Context, id string) error {
	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
