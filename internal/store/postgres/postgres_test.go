package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewFromDB(db), mock
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE products`).
		WithArgs(-3, "prd-milk").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(7))
	mock.ExpectCommit()

	var before, after int
	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		var err error
		before, after, err = tx.AdjustStock(context.Background(), "prd-milk", -3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 10, before)
	assert.Equal(t, 7, after)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnInsufficientStock(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE products`).
		WithArgs(-5, "prd-coffee").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}))
	mock.ExpectQuery(`SELECT stock FROM products`).
		WithArgs("prd-coffee").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(2))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		_, _, err := tx.AdjustStock(context.Background(), "prd-coffee", -5)
		return err
	})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStockUnknownProduct(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE products`).WillReturnRows(sqlmock.NewRows([]string{"stock"}))
	mock.ExpectQuery(`SELECT stock FROM products`).WillReturnRows(sqlmock.NewRows([]string{"stock"}))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		_, _, err := tx.AdjustStock(context.Background(), "missing", 1)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRetriesSerializationFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE customers SET tier`).
		WillReturnError(&pgconn.PgError{Code: serializationFailure})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE customers SET tier`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runs := 0
	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		runs++
		return tx.SetCustomerTier(context.Background(), "cus-alice", "silver")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransactionStatusRejectsStaleStatus(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE transactions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("txn-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdateTransactionStatus(context.Background(), store.StatusUpdate{
			TransactionID: "txn-1",
			From:          domain.TxStatusCompleted,
			To:            domain.TxStatusRefunded,
			At:            time.Now().UTC(),
		})
	})
	assert.ErrorIs(t, err, store.ErrNotAllowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransactionStatusUnknownTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE transactions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdateTransactionStatus(context.Background(), store.StatusUpdate{
			TransactionID: "nope",
			From:          domain.TxStatusPending,
			To:            domain.TxStatusVoided,
			At:            time.Now().UTC(),
		})
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransactionMapsUniqueViolations(t *testing.T) {
	cases := []struct {
		name       string
		constraint string
		want       error
	}{
		{name: "receipt", constraint: receiptConstraint, want: store.ErrDuplicateReceipt},
		{name: "primary key", constraint: "transactions_pkey", want: store.ErrConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectBegin()
			mock.ExpectExec(`INSERT INTO transactions`).
				WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: tc.constraint})
			mock.ExpectRollback()

			err := s.WithinTx(context.Background(), func(tx store.Tx) error {
				return tx.InsertTransaction(context.Background(), domain.Transaction{
					ID:              "txn-1",
					ReceiptNumber:   "RCP-1-ABCDEFGHI",
					StoreID:         "store-main",
					CashierID:       "usr-cashier",
					Status:          domain.TxStatusCompleted,
					PaymentMethod:   domain.PaymentCash,
					TransactionDate: time.Now().UTC(),
					UpdatedAt:       time.Now().UTC(),
				})
			})
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddLoyaltyPointsInsufficientBalance(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE customers`).
		WithArgs(int64(-500), "cus-alice", false).
		WillReturnRows(sqlmock.NewRows([]string{"loyalty_points"}))
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.AddLoyaltyPoints(context.Background(), "cus-alice", -500, false)
		return err
	})
	assert.ErrorIs(t, err, store.ErrInsufficientPoints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM products WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByBarcodeFiltersByStore(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "store_id", "name", "description", "barcode", "category", "price_cents", "cost_cents",
		"stock", "min_stock", "max_stock", "track_stock", "taxable", "age_restricted", "sell_by_weight", "is_active",
		"created_at", "updated_at",
	}).AddRow("prd-east-milk", "store-east", "Milk", "", "5000000000011", "dairy", 170, 110,
		8, 2, 40, true, false, false, false, true, now, now)
	mock.ExpectQuery(`SELECT .* FROM products\s+WHERE store_id = \$1 AND barcode = \$2`).
		WithArgs("store-east", "5000000000011").
		WillReturnRows(rows)

	product, err := s.GetProductByBarcode(context.Background(), "store-east", "5000000000011")
	require.NoError(t, err)
	assert.Equal(t, "prd-east-milk", product.ID)
	assert.Equal(t, "store-east", product.StoreID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTiersOrdersByThreshold(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT name, min_points FROM customer_tiers`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "min_points"}).
			AddRow("gold", 1500).
			AddRow("silver", 500).
			AddRow("bronze", 0))

	tiers, err := s.ListTiers(context.Background())
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, "gold", tiers[0].Name)
	assert.Equal(t, int64(0), tiers[2].MinPoints)
}

func TestUpsertTierRejectsNegativeThreshold(t *testing.T) {
	s, mock := newMockStore(t)
	err := s.UpsertTier(context.Background(), domain.CustomerTier{Name: "lead", MinPoints: -1})
	assert.ErrorIs(t, err, store.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: uniqueViolation}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: serializationFailure}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
