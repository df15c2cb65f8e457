package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), Options{})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: memory.SeedCashierID, Role: domain.RoleCashier, StoreID: memory.SeedStoreID})
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: memory.SeedManagerID, Role: domain.RoleManager, StoreID: memory.SeedStoreID})
}

type line struct {
	productID string
	qty       int
	price     int64
}

func checkoutRequest(customerID string, earned, used int64, lines ...line) domain.TransactionCreateRequest {
	req := domain.TransactionCreateRequest{
		StoreID:             memory.SeedStoreID,
		CashierID:           memory.SeedCashierID,
		CustomerID:          customerID,
		PaymentMethod:       domain.PaymentCash,
		LoyaltyPointsEarned: earned,
		LoyaltyPointsUsed:   used,
	}
	for _, l := range lines {
		req.Items = append(req.Items, domain.TransactionItem{ProductID: l.productID, Quantity: l.qty, UnitPriceCents: l.price})
		req.SubtotalCents += int64(l.qty) * l.price
	}
	req.TotalCents = req.SubtotalCents
	req.CashAmountCents = req.TotalCents
	return req
}

func mustStock(t *testing.T, svc *Service, productID string) int {
	t.Helper()
	p, err := svc.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product %s: %v", productID, err)
	}
	return p.Stock
}

func mustCustomer(t *testing.T, svc *Service, id string) domain.Customer {
	t.Helper()
	c, err := svc.GetCustomer(context.Background(), id)
	if err != nil {
		t.Fatalf("get customer %s: %v", id, err)
	}
	return c
}

func assertLedgerConsistent(t *testing.T, svc *Service, customerID string) {
	t.Helper()
	check, err := svc.VerifyLoyaltyLedger(context.Background(), customerID)
	if err != nil {
		t.Fatalf("verify ledger: %v", err)
	}
	if !check.Consistent {
		t.Fatalf("ledger sum %d != balance %d", check.LedgerSum, check.Balance)
	}
}

func TestCheckoutDecrementsTrackedStock(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	tx, err := svc.CreateTransaction(ctx, checkoutRequest("", 0, 0,
		line{"prd-milk", 3, 165},
		line{"prd-giftwrap", 1, 200},
	))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if tx.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed status by default, got %s", tx.Status)
	}
	if !strings.HasPrefix(tx.ReceiptNumber, "RCP-") {
		t.Fatalf("unexpected receipt number %q", tx.ReceiptNumber)
	}
	if got := mustStock(t, svc, "prd-milk"); got != 7 {
		t.Fatalf("expected milk stock 7, got %d", got)
	}

	adjustments, err := svc.ListInventoryAdjustments(ctx, "prd-milk", 10)
	if err != nil {
		t.Fatalf("list adjustments: %v", err)
	}
	if len(adjustments) != 1 {
		t.Fatalf("expected one adjustment, got %d", len(adjustments))
	}
	adj := adjustments[0]
	if adj.QuantityBefore != 10 || adj.QuantityAfter != 7 || adj.QuantityChanged != 3 || adj.Type != domain.AdjustmentDecrease {
		t.Fatalf("unexpected adjustment %+v", adj)
	}
	if adj.Reason != "Sale - Transaction "+tx.ReceiptNumber {
		t.Fatalf("unexpected adjustment reason %q", adj.Reason)
	}

	untracked, _ := svc.ListInventoryAdjustments(ctx, "prd-giftwrap", 10)
	if len(untracked) != 0 {
		t.Fatalf("untracked product must not get adjustments, got %d", len(untracked))
	}
}

func TestCheckoutThenRefundRestoresState(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	tx, err := svc.CreateTransaction(ctx, checkoutRequest(memory.SeedCustomerID, 20, 0, line{"prd-milk", 3, 165}))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	alice := mustCustomer(t, svc, memory.SeedCustomerID)
	if alice.LoyaltyPoints != 120 {
		t.Fatalf("expected 120 points after earning, got %d", alice.LoyaltyPoints)
	}
	if alice.TotalPurchases != tx.TotalCents {
		t.Fatalf("expected total purchases %d, got %d", tx.TotalCents, alice.TotalPurchases)
	}
	if alice.LastVisit == nil {
		t.Fatalf("expected last visit to be set")
	}
	assertLedgerConsistent(t, svc, memory.SeedCustomerID)

	refunded, err := svc.RefundTransaction(managerCtx(), tx.ID, "damaged")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refunded.Status != domain.TxStatusRefunded || refunded.Notes != "Refunded: damaged" {
		t.Fatalf("unexpected refunded transaction %+v", refunded)
	}

	if got := mustStock(t, svc, "prd-milk"); got != 10 {
		t.Fatalf("expected milk stock 10 after refund, got %d", got)
	}
	alice = mustCustomer(t, svc, memory.SeedCustomerID)
	if alice.LoyaltyPoints != 100 || alice.TotalPurchases != 0 {
		t.Fatalf("expected points 100 and purchases 0, got %d and %d", alice.LoyaltyPoints, alice.TotalPurchases)
	}

	ledger, err := svc.ListLoyaltyLedger(ctx, memory.SeedCustomerID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	last := ledger[len(ledger)-1]
	if last.Points != -20 || last.Type != domain.LoyaltyRedeemed || last.Description != "Points reversed due to refund" {
		t.Fatalf("unexpected reversal entry %+v", last)
	}
	assertLedgerConsistent(t, svc, memory.SeedCustomerID)

	adjustments, _ := svc.ListInventoryAdjustments(ctx, "prd-milk", 10)
	if len(adjustments) != 2 || adjustments[0].Type != domain.AdjustmentIncrease {
		t.Fatalf("expected refund increase adjustment first, got %+v", adjustments)
	}
}

func TestRefundTwiceIsNotAllowed(t *testing.T) {
	svc := newTestService()
	tx, err := svc.CreateTransaction(cashierCtx(), checkoutRequest(memory.SeedCustomerID, 20, 0, line{"prd-milk", 3, 165}))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.RefundTransaction(managerCtx(), tx.ID, "first"); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}

	_, err = svc.RefundTransaction(managerCtx(), tx.ID, "second")
	if !errors.Is(err, store.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed on re-refund, got %v", err)
	}
	if got := mustStock(t, svc, "prd-milk"); got != 10 {
		t.Fatalf("re-refund must not move stock, got %d", got)
	}
	if alice := mustCustomer(t, svc, memory.SeedCustomerID); alice.LoyaltyPoints != 100 {
		t.Fatalf("re-refund must not move points, got %d", alice.LoyaltyPoints)
	}
	got, _ := svc.GetTransaction(context.Background(), tx.ID)
	if got.Notes != "Refunded: first" {
		t.Fatalf("re-refund must not rewrite notes, got %q", got.Notes)
	}
}

func TestCheckoutIsAtomicWhenLaterLineFails(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	_, err := svc.CreateTransaction(ctx, checkoutRequest(memory.SeedCustomerID, 20, 0,
		line{"prd-milk", 3, 165},
		line{"prd-coffee", 5, 450},
	))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if got := mustStock(t, svc, "prd-milk"); got != 10 {
		t.Fatalf("milk stock must be untouched, got %d", got)
	}
	if got := mustStock(t, svc, "prd-coffee"); got != 2 {
		t.Fatalf("coffee stock must be untouched, got %d", got)
	}
	txs, _ := svc.ListTransactions(ctx, memory.SeedStoreID, "", 0)
	if len(txs) != 0 {
		t.Fatalf("expected no transaction header, got %d", len(txs))
	}
	adjustments, _ := svc.ListInventoryAdjustments(ctx, "", 10)
	if len(adjustments) != 0 {
		t.Fatalf("expected no adjustments, got %d", len(adjustments))
	}
	alice := mustCustomer(t, svc, memory.SeedCustomerID)
	if alice.LoyaltyPoints != 100 || alice.TotalPurchases != 0 || alice.LastVisit != nil {
		t.Fatalf("customer must be untouched, got %+v", alice)
	}
	assertLedgerConsistent(t, svc, memory.SeedCustomerID)
}

func TestCheckoutRetriesReceiptCollision(t *testing.T) {
	repo := memory.NewSeeded()
	numbers := []string{"RCP-1-AAAAAAAAA", "RCP-1-AAAAAAAAA", "RCP-1-BBBBBBBBB"}
	svc := New(repo, Options{
		ReceiptNumber: func(time.Time) string {
			next := numbers[0]
			if len(numbers) > 1 {
				numbers = numbers[1:]
			}
			return next
		},
	})

	first, err := svc.CreateTransaction(cashierCtx(), checkoutRequest("", 0, 0, line{"prd-bread", 1, 140}))
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	second, err := svc.CreateTransaction(cashierCtx(), checkoutRequest("", 0, 0, line{"prd-bread", 1, 140}))
	if err != nil {
		t.Fatalf("second checkout should retry with a fresh receipt: %v", err)
	}
	if first.ReceiptNumber == second.ReceiptNumber {
		t.Fatalf("expected distinct receipt numbers, both %s", first.ReceiptNumber)
	}
	if got := mustStock(t, svc, "prd-bread"); got != 23 {
		t.Fatalf("expected bread stock 23, got %d", got)
	}

	_, err = svc.CreateTransaction(cashierCtx(), checkoutRequest("", 0, 0, line{"prd-bread", 1, 140}))
	if !errors.Is(err, store.ErrDuplicateReceipt) {
		t.Fatalf("expected ErrDuplicateReceipt once attempts are exhausted, got %v", err)
	}
	if got := mustStock(t, svc, "prd-bread"); got != 23 {
		t.Fatalf("failed checkout must not move stock, got %d", got)
	}
}

func TestRedeemRequiresSufficientBalance(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransaction(cashierCtx(), checkoutRequest(memory.SeedCustomerID, 0, 500, line{"prd-milk", 1, 165}))
	if !errors.Is(err, store.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if got := mustStock(t, svc, "prd-milk"); got != 10 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
	assertLedgerConsistent(t, svc, memory.SeedCustomerID)
}

func TestRefundRestoresRedeemedPoints(t *testing.T) {
	svc := newTestService()

	tx, err := svc.CreateTransaction(cashierCtx(), checkoutRequest(memory.SeedCustomerID, 0, 60, line{"prd-milk", 1, 165}))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if alice := mustCustomer(t, svc, memory.SeedCustomerID); alice.LoyaltyPoints != 40 {
		t.Fatalf("expected 40 points after redeeming, got %d", alice.LoyaltyPoints)
	}
	if _, err := svc.RefundTransaction(managerCtx(), tx.ID, "changed mind"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if alice := mustCustomer(t, svc, memory.SeedCustomerID); alice.LoyaltyPoints != 100 {
		t.Fatalf("expected 100 points after refund, got %d", alice.LoyaltyPoints)
	}
	assertLedgerConsistent(t, svc, memory.SeedCustomerID)
}

func TestTierRecomputationIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	alice, err := svc.UpdateLoyaltyPoints(ctx, memory.SeedCustomerID, domain.LoyaltyPointsRequest{Points: 450, Description: "Goodwill"})
	if err != nil {
		t.Fatalf("update points: %v", err)
	}
	if alice.LoyaltyPoints != 550 || alice.Tier != "silver" {
		t.Fatalf("expected 550 points in silver, got %d in %s", alice.LoyaltyPoints, alice.Tier)
	}

	for i := 0; i < 2; i++ {
		resp, err := svc.UpdateCustomerTier(ctx, memory.SeedCustomerID)
		if err != nil {
			t.Fatalf("update tier: %v", err)
		}
		if resp.Changed || resp.Tier != "silver" {
			t.Fatalf("expected unchanged silver tier, got %+v", resp)
		}
	}
	assertLedgerConsistent(t, svc, memory.SeedCustomerID)
}

func TestManualPointsCannotOverdraw(t *testing.T) {
	svc := newTestService()

	_, err := svc.UpdateLoyaltyPoints(managerCtx(), memory.SeedCustomerID, domain.LoyaltyPointsRequest{Points: -101})
	if !errors.Is(err, store.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if _, err := svc.UpdateLoyaltyPoints(managerCtx(), memory.SeedCustomerID, domain.LoyaltyPointsRequest{}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero points, got %v", err)
	}
}

func TestPendingCheckoutAppliesEffectsOnApproval(t *testing.T) {
	svc := newTestService()

	req := checkoutRequest(memory.SeedCustomerID, 20, 0, line{"prd-milk", 3, 165})
	req.Status = domain.TxStatusPending
	tx, err := svc.CreateTransaction(cashierCtx(), req)
	if err != nil {
		t.Fatalf("pending checkout failed: %v", err)
	}
	if got := mustStock(t, svc, "prd-milk"); got != 10 {
		t.Fatalf("pending sale must not move stock, got %d", got)
	}

	approved, err := svc.ApproveTransaction(managerCtx(), tx.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != domain.TxStatusCompleted || approved.ApprovedBy != memory.SeedManagerID || approved.ApprovedAt == nil {
		t.Fatalf("unexpected approved transaction %+v", approved)
	}
	if got := mustStock(t, svc, "prd-milk"); got != 7 {
		t.Fatalf("expected stock 7 after approval, got %d", got)
	}
	if alice := mustCustomer(t, svc, memory.SeedCustomerID); alice.LoyaltyPoints != 120 {
		t.Fatalf("expected 120 points after approval, got %d", alice.LoyaltyPoints)
	}

	if _, err := svc.ApproveTransaction(managerCtx(), tx.ID); !errors.Is(err, store.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed on second approval, got %v", err)
	}
	if got := mustStock(t, svc, "prd-milk"); got != 7 {
		t.Fatalf("second approval must not move stock, got %d", got)
	}
}

func TestVoidOnlyFromPending(t *testing.T) {
	svc := newTestService()

	req := checkoutRequest("", 0, 0, line{"prd-bread", 2, 140})
	req.Status = domain.TxStatusPending
	pending, err := svc.CreateTransaction(cashierCtx(), req)
	if err != nil {
		t.Fatalf("pending checkout: %v", err)
	}
	voided, err := svc.VoidTransaction(managerCtx(), pending.ID, "customer left")
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if voided.Status != domain.TxStatusVoided || voided.Reason != "customer left" {
		t.Fatalf("unexpected voided transaction %+v", voided)
	}
	if _, err := svc.RefundTransaction(managerCtx(), pending.ID, "late"); !errors.Is(err, store.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed refunding a voided sale, got %v", err)
	}

	completed, err := svc.CreateTransaction(cashierCtx(), checkoutRequest("", 0, 0, line{"prd-bread", 1, 140}))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := svc.VoidTransaction(managerCtx(), completed.ID, "oops"); !errors.Is(err, store.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed voiding a completed sale, got %v", err)
	}
	if _, err := svc.VoidTransaction(managerCtx(), "txn-missing", "oops"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := mustStock(t, svc, "prd-bread"); got != 24 {
		t.Fatalf("expected bread stock 24, got %d", got)
	}
}

func TestCheckoutValidation(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	cases := map[string]func(*domain.TransactionCreateRequest){
		"no lines":           func(r *domain.TransactionCreateRequest) { r.Items = nil },
		"zero quantity":      func(r *domain.TransactionCreateRequest) { r.Items[0].Quantity = 0 },
		"missing store":      func(r *domain.TransactionCreateRequest) { r.StoreID = "" },
		"bad status":         func(r *domain.TransactionCreateRequest) { r.Status = domain.TxStatusRefunded },
		"total mismatch":     func(r *domain.TransactionCreateRequest) { r.TotalCents++ },
		"points no customer": func(r *domain.TransactionCreateRequest) { r.LoyaltyPointsEarned = 5 },
		"cash short":         func(r *domain.TransactionCreateRequest) { r.CashAmountCents = 1 },
		"card mismatch": func(r *domain.TransactionCreateRequest) {
			r.PaymentMethod = domain.PaymentCard
			r.CardAmountCents = 1
		},
		"unknown method": func(r *domain.TransactionCreateRequest) { r.PaymentMethod = "cheque" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := checkoutRequest("", 0, 0, line{"prd-milk", 1, 165})
			mutate(&req)
			if _, err := svc.CreateTransaction(ctx, req); !errors.Is(err, store.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	if _, err := svc.CreateTransaction(ctx, checkoutRequest("", 0, 0, line{"prd-unknown", 1, 100})); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product, got %v", err)
	}
	if got := mustStock(t, svc, "prd-milk"); got != 10 {
		t.Fatalf("rejected checkouts must not move stock, got %d", got)
	}
}

func TestDualPaymentComputesChange(t *testing.T) {
	svc := newTestService()

	req := checkoutRequest("", 0, 0, line{"prd-wine", 1, 899})
	req.PaymentMethod = domain.PaymentDual
	req.CardAmountCents = 500
	req.CashAmountCents = 500
	tx, err := svc.CreateTransaction(cashierCtx(), req)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if tx.ChangeCents != 101 {
		t.Fatalf("expected change 101, got %d", tx.ChangeCents)
	}
}

func TestUpdateStockWritesAuditRow(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	p, err := svc.UpdateStock(ctx, "prd-milk", domain.StockUpdateRequest{NewStock: 15, Reason: "Delivery"})
	if err != nil {
		t.Fatalf("update stock: %v", err)
	}
	if p.Stock != 15 {
		t.Fatalf("expected stock 15, got %d", p.Stock)
	}
	if _, err := svc.UpdateStock(ctx, "prd-milk", domain.StockUpdateRequest{NewStock: 15, Reason: "Recount"}); err != nil {
		t.Fatalf("unchanged update stock: %v", err)
	}

	adjustments, _ := svc.ListInventoryAdjustments(ctx, "prd-milk", 10)
	if len(adjustments) != 1 {
		t.Fatalf("expected one adjustment, got %d", len(adjustments))
	}
	adj := adjustments[0]
	if adj.Type != domain.AdjustmentIncrease || adj.QuantityChanged != 5 || adj.UserID != memory.SeedManagerID || adj.Reason != "Delivery" {
		t.Fatalf("unexpected adjustment %+v", adj)
	}

	if _, err := svc.UpdateStock(ctx, "prd-milk", domain.StockUpdateRequest{NewStock: -1}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative stock, got %v", err)
	}
	if _, err := svc.UpdateStock(ctx, "prd-nope", domain.StockUpdateRequest{NewStock: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProductLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		StoreID:    memory.SeedStoreID,
		Name:       "  Oat Milk 1L ",
		Barcode:    "5000000000059",
		PriceCents: 180,
		Stock:      6,
		MinStock:   2,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.Name != "Oat Milk 1L" || !created.TrackStock || !created.Taxable || created.MaxStock != 100 {
		t.Fatalf("unexpected defaults %+v", created)
	}

	found, err := svc.GetProductByBarcode(ctx, memory.SeedStoreID, "5000000000059")
	if err != nil || found.ID != created.ID {
		t.Fatalf("barcode lookup: %v %+v", err, found)
	}
	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{StoreID: memory.SeedStoreID, Name: "Dupe", Barcode: "5000000000059"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate barcode, got %v", err)
	}

	results, _ := svc.SearchProducts(ctx, memory.SeedStoreID, "oat")
	if len(results) != 1 {
		t.Fatalf("expected one search hit, got %d", len(results))
	}

	if err := svc.DeactivateProduct(ctx, created.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	results, _ = svc.SearchProducts(ctx, memory.SeedStoreID, "oat")
	if len(results) != 0 {
		t.Fatalf("inactive products must not be listed, got %d", len(results))
	}
	if _, err := svc.CreateTransaction(cashierCtx(), checkoutRequest("", 0, 0, line{created.ID, 1, 180})); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation selling an inactive product, got %v", err)
	}
}

func TestLowStockAndStoreStats(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	low, err := svc.ListLowStockProducts(ctx, memory.SeedStoreID)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ID != "prd-coffee" {
		t.Fatalf("expected only coffee to be low, got %+v", low)
	}

	if _, err := svc.CreateTransaction(cashierCtx(), checkoutRequest("", 0, 0, line{"prd-milk", 2, 165})); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	card := checkoutRequest("", 0, 0, line{"prd-bread", 1, 140})
	card.PaymentMethod = domain.PaymentCard
	card.CardAmountCents = card.TotalCents
	card.CashAmountCents = 0
	if _, err := svc.CreateTransaction(cashierCtx(), card); err != nil {
		t.Fatalf("card checkout: %v", err)
	}
	pending := checkoutRequest("", 0, 0, line{"prd-bread", 1, 140})
	pending.Status = domain.TxStatusPending
	if _, err := svc.CreateTransaction(cashierCtx(), pending); err != nil {
		t.Fatalf("pending checkout: %v", err)
	}

	stats, err := svc.TransactionStats(ctx, memory.SeedStoreID, nil, nil)
	if err != nil {
		t.Fatalf("transaction stats: %v", err)
	}
	if stats.TotalTransactions != 2 || stats.TotalSalesCents != 470 || stats.AverageTransaction != 235 || stats.CashSales != 1 || stats.CardSales != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	storeStats, err := svc.StoreStats(ctx, memory.SeedStoreID, nil, nil)
	if err != nil {
		t.Fatalf("store stats: %v", err)
	}
	if storeStats.TotalProducts != 5 || storeStats.LowStockCount != 1 || storeStats.TotalSalesCents != 470 {
		t.Fatalf("unexpected store stats %+v", storeStats)
	}
	if _, err := svc.StoreStats(ctx, "store-nope", nil, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTransactionsByCashierDay(t *testing.T) {
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	svc := New(memory.NewSeeded(), Options{Clock: func() time.Time { return day }})

	if _, err := svc.CreateTransaction(cashierCtx(), checkoutRequest("", 0, 0, line{"prd-bread", 1, 140})); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	same, err := svc.ListTransactionsByCashier(context.Background(), memory.SeedStoreID, memory.SeedCashierID, day)
	if err != nil || len(same) != 1 {
		t.Fatalf("expected one sale on the day, got %d (%v)", len(same), err)
	}
	next, _ := svc.ListTransactionsByCashier(context.Background(), memory.SeedStoreID, memory.SeedCashierID, day.AddDate(0, 0, 1))
	if len(next) != 0 {
		t.Fatalf("expected no sales the next day, got %d", len(next))
	}
	elsewhere, _ := svc.ListTransactionsByCashier(context.Background(), "store-elsewhere", memory.SeedCashierID, day)
	if len(elsewhere) != 0 {
		t.Fatalf("expected no sales in another store, got %d", len(elsewhere))
	}
	ranged, _ := svc.ListTransactionsByDateRange(context.Background(), memory.SeedStoreID, day.Add(-time.Hour), day.Add(time.Hour))
	if len(ranged) != 1 || len(ranged[0].Items) != 1 {
		t.Fatalf("expected one sale with its line in range, got %+v", ranged)
	}
}

type countingTierCache struct {
	stored []domain.CustomerTier
	gets   int
	sets   int
}

func (c *countingTierCache) Get(context.Context) ([]domain.CustomerTier, bool, error) {
	c.gets++
	return c.stored, c.stored != nil, nil
}

func (c *countingTierCache) Set(_ context.Context, tiers []domain.CustomerTier, _ time.Duration) error {
	c.sets++
	c.stored = tiers
	return nil
}

func (c *countingTierCache) Invalidate(context.Context) error {
	c.stored = nil
	return nil
}

func TestTiersReadThroughCache(t *testing.T) {
	tierCache := &countingTierCache{}
	svc := New(memory.NewSeeded(), Options{TierCache: tierCache})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.ListTiers(ctx); err != nil {
			t.Fatalf("list tiers: %v", err)
		}
	}
	if tierCache.sets != 1 {
		t.Fatalf("expected one cache fill, got %d", tierCache.sets)
	}

	tiers, err := svc.UpsertTier(ctx, domain.CustomerTier{Name: "Diamond", MinPoints: 10000})
	if err != nil {
		t.Fatalf("upsert tier: %v", err)
	}
	if len(tiers) != 5 || tiers[0].Name != "diamond" {
		t.Fatalf("expected diamond on top after upsert, got %+v", tiers)
	}
	if tierCache.sets != 2 {
		t.Fatalf("expected the cache to refill after upsert, got %d fills", tierCache.sets)
	}
}

func TestCreateCustomerStartsInEntryTier(t *testing.T) {
	svc := newTestService()

	c, err := svc.CreateCustomer(context.Background(), domain.CustomerCreateRequest{Name: "Bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if c.Tier != "bronze" || c.LoyaltyPoints != 0 || c.TotalPurchases != 0 || !c.Active {
		t.Fatalf("unexpected new customer %+v", c)
	}
	if _, err := svc.CreateCustomer(context.Background(), domain.CustomerCreateRequest{Name: "Eve", Email: "not-an-email"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad email, got %v", err)
	}

	hits, _ := svc.SearchCustomers(context.Background(), "BOB@")
	if len(hits) != 1 {
		t.Fatalf("expected case-insensitive email search hit, got %d", len(hits))
	}
}

func TestStoreLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{UserID: memory.SeedAdminID, Role: domain.RoleAdmin})

	created, err := svc.CreateStore(ctx, domain.StoreCreateRequest{Name: "High Street", Address: "2 High Street"})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if created.Settings == nil || created.Settings.Currency != "GBP" {
		t.Fatalf("expected default settings, got %+v", created.Settings)
	}

	inactive := domain.StoreStatusInactive
	updated, err := svc.UpdateStore(ctx, created.ID, domain.StoreUpdateRequest{
		Status:   &inactive,
		Settings: &domain.StoreSettings{Currency: "eur", CurrencySymbol: "€", TaxRatePercent: 21},
	})
	if err != nil {
		t.Fatalf("update store: %v", err)
	}
	if updated.Status != inactive || updated.Settings.Currency != "EUR" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	stores, _ := svc.ListStores(ctx)
	for _, shop := range stores {
		if shop.ID == created.ID {
			t.Fatalf("inactive store must not be listed")
		}
	}
}

func TestBarcodeLookupStaysInStore(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{UserID: memory.SeedAdminID, Role: domain.RoleAdmin})

	east, err := svc.CreateStore(ctx, domain.StoreCreateRequest{Name: "East End"})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	eastMilk, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		StoreID:    east.ID,
		Name:       "Semi Skimmed Milk 2L",
		Barcode:    "5000000000011",
		PriceCents: 170,
		Stock:      8,
	})
	if err != nil {
		t.Fatalf("create product with a barcode used by another store: %v", err)
	}

	for _, tc := range []struct {
		storeID string
		want    string
	}{
		{memory.SeedStoreID, "prd-milk"},
		{east.ID, eastMilk.ID},
	} {
		for i := 0; i < 5; i++ {
			found, err := svc.GetProductByBarcode(ctx, tc.storeID, "5000000000011")
			if err != nil || found.ID != tc.want {
				t.Fatalf("store %s: expected %s, got %+v (%v)", tc.storeID, tc.want, found, err)
			}
		}
	}
	if _, err := svc.GetProductByBarcode(ctx, "", "5000000000011"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation without a store, got %v", err)
	}
}
