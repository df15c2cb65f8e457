package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

// CreateTransaction records a checkout. Header, lines and (for completed sales)
// stock, customer and loyalty effects commit together or not at all.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	req.Status = defaultString(strings.TrimSpace(req.Status), domain.TxStatusCompleted)
	if err := s.check(req); err != nil {
		return domain.Transaction{}, err
	}
	items, err := normalizeLines(req.Items)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := checkTotals(req); err != nil {
		return domain.Transaction{}, err
	}

	var tiers []domain.CustomerTier
	if req.CustomerID != "" {
		if tiers, err = s.ListTiers(ctx); err != nil {
			return domain.Transaction{}, err
		}
	}

	cash, card, change := settle(req)
	var created domain.Transaction
	var fx effects
	for attempt := 1; attempt <= s.receiptAttempts; attempt++ {
		now := s.now()
		header := domain.Transaction{
			ID:                  xid.New("txn"),
			ReceiptNumber:       s.receiptNumber(now),
			StoreID:             req.StoreID,
			CashierID:           req.CashierID,
			CustomerID:          req.CustomerID,
			Status:              req.Status,
			PaymentMethod:       req.PaymentMethod,
			SubtotalCents:       req.SubtotalCents,
			TaxCents:            req.TaxCents,
			DiscountCents:       req.DiscountCents,
			TotalCents:          req.TotalCents,
			CashAmountCents:     cash,
			CardAmountCents:     card,
			ChangeCents:         change,
			LoyaltyPointsEarned: req.LoyaltyPointsEarned,
			LoyaltyPointsUsed:   req.LoyaltyPointsUsed,
			Reason:              strings.TrimSpace(req.Reason),
			Notes:               strings.TrimSpace(req.Notes),
			TransactionDate:     now,
			UpdatedAt:           now,
		}
		lines := make([]domain.TransactionItem, len(items))
		for i, item := range items {
			item.ID = xid.New("itm")
			item.TransactionID = header.ID
			lines[i] = item
		}

		err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
			fx = effects{}
			if err := s.checkLines(ctx, tx, header.StoreID, lines); err != nil {
				return err
			}
			if header.CustomerID != "" {
				if _, err := tx.GetCustomer(ctx, header.CustomerID); err != nil {
					return fmt.Errorf("customer %s: %w", header.CustomerID, err)
				}
			}
			if err := tx.InsertTransaction(ctx, header); err != nil {
				return err
			}
			if err := tx.InsertTransactionItems(ctx, lines); err != nil {
				return err
			}
			if header.Status != domain.TxStatusCompleted {
				return nil
			}
			return s.applyCompletion(ctx, tx, &fx, header, lines, tiers, header.CashierID, "Sale - Transaction "+header.ReceiptNumber)
		})
		if errors.Is(err, store.ErrDuplicateReceipt) {
			s.metrics.ReceiptCollision()
			s.log.WarnContext(ctx, "receipt number collision", "receipt_number", header.ReceiptNumber, "attempt", attempt)
			continue
		}
		if err == nil {
			header.Items = lines
			created = header
		}
		break
	}
	s.metrics.Checkout(req.Status, err)
	if err != nil {
		return domain.Transaction{}, err
	}
	fx.flush(s.metrics)

	s.log.InfoContext(ctx, "checkout recorded",
		"transaction_id", created.ID,
		"receipt_number", created.ReceiptNumber,
		"status", created.Status,
		"total_cents", created.TotalCents,
		"lines", len(created.Items),
	)
	return created, nil
}

// ApproveTransaction completes a pending sale and applies the same effects a
// completed checkout would have.
func (s *Service) ApproveTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	approver := actorID(ctx)

	err = s.changeStatus(ctx, "approve", id, domain.TxStatusCompleted, func(tx store.Tx, fx *effects, current *domain.Transaction) (store.StatusUpdate, func() error) {
		update := store.StatusUpdate{ActorID: approver}
		return update, func() error {
			return s.applyCompletion(ctx, tx, fx, *current, current.Items, tiers, approver, "Approved transaction "+current.ReceiptNumber)
		}
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.GetTransaction(ctx, id)
}

// VoidTransaction cancels a pending sale. Nothing was applied, so nothing is reversed.
func (s *Service) VoidTransaction(ctx context.Context, id string, reason string) (domain.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Transaction{}, invalid("void reason is required")
	}
	err := s.changeStatus(ctx, "void", id, domain.TxStatusVoided, func(store.Tx, *effects, *domain.Transaction) (store.StatusUpdate, func() error) {
		return store.StatusUpdate{Reason: reason, Notes: "Voided: " + reason}, nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.GetTransaction(ctx, id)
}

// RefundTransaction reverses a completed sale exactly once: the status flips
// first, then stock, purchase totals and loyalty are restored.
func (s *Service) RefundTransaction(ctx context.Context, id string, reason string) (domain.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Transaction{}, invalid("refund reason is required")
	}
	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	refunder := actorID(ctx)

	err = s.changeStatus(ctx, "refund", id, domain.TxStatusRefunded, func(tx store.Tx, fx *effects, current *domain.Transaction) (store.StatusUpdate, func() error) {
		update := store.StatusUpdate{ActorID: refunder, Reason: reason, Notes: "Refunded: " + reason}
		return update, func() error {
			return s.applyRefund(ctx, tx, fx, *current, tiers, refunder)
		}
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.GetTransaction(ctx, id)
}

// changeStatus runs one lifecycle transition in a unit of work. prepare returns
// the status update to write and the effects to apply after it.
func (s *Service) changeStatus(
	ctx context.Context,
	action string,
	id string,
	to string,
	prepare func(tx store.Tx, fx *effects, current *domain.Transaction) (store.StatusUpdate, func() error),
) error {
	var from string
	var fx effects
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		fx = effects{}
		current, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if err := domain.ValidateTransition(current.Status, to); err != nil {
			return err
		}

		update, apply := prepare(tx, &fx, current)
		update.TransactionID = id
		update.From = current.Status
		update.To = to
		update.At = s.now()
		if err := tx.UpdateTransactionStatus(ctx, update); err != nil {
			return err
		}
		if apply == nil {
			return nil
		}
		return apply()
	})
	s.metrics.StatusChange(action, err)
	if err != nil {
		return err
	}
	fx.flush(s.metrics)
	s.log.InfoContext(ctx, "transaction status changed", "transaction_id", id, "action", action, "from", from, "to", to)
	return nil
}

func (s *Service) applyCompletion(ctx context.Context, tx store.Tx, fx *effects, header domain.Transaction, lines []domain.TransactionItem, tiers []domain.CustomerTier, userID string, reason string) error {
	for _, line := range lines {
		if err := s.moveStock(ctx, tx, fx, header.StoreID, line, -line.Quantity, userID, reason); err != nil {
			return err
		}
	}
	if header.CustomerID == "" {
		return nil
	}

	if err := tx.TouchLastVisit(ctx, header.CustomerID, s.now()); err != nil {
		return err
	}
	if err := tx.AddTotalPurchases(ctx, header.CustomerID, header.TotalCents); err != nil {
		return err
	}
	customer, err := tx.GetCustomer(ctx, header.CustomerID)
	if err != nil {
		return err
	}
	balance := customer.LoyaltyPoints
	if header.LoyaltyPointsEarned > 0 {
		if balance, err = s.movePoints(ctx, tx, fx, header.CustomerID, header.ID, header.LoyaltyPointsEarned, "Points earned from purchase", false); err != nil {
			return err
		}
	}
	if header.LoyaltyPointsUsed > 0 {
		if balance, err = s.movePoints(ctx, tx, fx, header.CustomerID, header.ID, -header.LoyaltyPointsUsed, "Points redeemed", false); err != nil {
			return err
		}
	}
	_, _, err = s.applyTier(ctx, tx, header.CustomerID, balance, tiers)
	return err
}

func (s *Service) applyRefund(ctx context.Context, tx store.Tx, fx *effects, header domain.Transaction, tiers []domain.CustomerTier, userID string) error {
	reason := "Refund - Transaction " + header.ReceiptNumber
	for _, line := range header.Items {
		if err := s.moveStock(ctx, tx, fx, header.StoreID, line, line.Quantity, userID, reason); err != nil {
			return err
		}
	}
	if header.CustomerID == "" {
		return nil
	}

	if err := tx.AddTotalPurchases(ctx, header.CustomerID, -header.TotalCents); err != nil {
		return err
	}
	customer, err := tx.GetCustomer(ctx, header.CustomerID)
	if err != nil {
		return err
	}
	balance := customer.LoyaltyPoints
	if header.LoyaltyPointsEarned > 0 {
		// points may already be spent; the reversal is allowed to go below zero
		if balance, err = s.movePoints(ctx, tx, fx, header.CustomerID, header.ID, -header.LoyaltyPointsEarned, "Points reversed due to refund", true); err != nil {
			return err
		}
	}
	if header.LoyaltyPointsUsed > 0 {
		if balance, err = s.movePoints(ctx, tx, fx, header.CustomerID, header.ID, header.LoyaltyPointsUsed, "Points refunded", true); err != nil {
			return err
		}
	}
	_, _, err = s.applyTier(ctx, tx, header.CustomerID, balance, tiers)
	return err
}

// moveStock applies delta to a tracked product and writes its adjustment row.
// Untracked products are skipped.
func (s *Service) moveStock(ctx context.Context, tx store.Tx, fx *effects, storeID string, line domain.TransactionItem, delta int, userID string, reason string) error {
	product, err := tx.GetProduct(ctx, line.ProductID)
	if err != nil {
		return fmt.Errorf("product %s: %w", line.ProductID, err)
	}
	if !product.TrackStock {
		return nil
	}
	before, after, err := tx.AdjustStock(ctx, line.ProductID, delta)
	if err != nil {
		return fmt.Errorf("product %s: %w", line.ProductID, err)
	}
	adj := stockAdjustment(storeID, line.ProductID, userID, before, after, reason, s.now())
	if err := tx.CreateInventoryAdjustment(ctx, adj); err != nil {
		return err
	}
	fx.adjustments = append(fx.adjustments, adj.Type)
	return nil
}

func (s *Service) checkLines(ctx context.Context, tx store.Tx, storeID string, lines []domain.TransactionItem) error {
	for i, line := range lines {
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("line %d product %s: %w", i+1, line.ProductID, err)
		}
		if product.StoreID != storeID {
			return invalid("line %d product %s belongs to another store", i+1, line.ProductID)
		}
		if !product.Active {
			return invalid("line %d product %s is inactive", i+1, line.ProductID)
		}
	}
	return nil
}

func normalizeLines(items []domain.TransactionItem) ([]domain.TransactionItem, error) {
	lines := make([]domain.TransactionItem, 0, len(items))
	for i, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.TotalCents == 0 {
			item.TotalCents = int64(item.Quantity)*item.UnitPriceCents - item.DiscountCents + item.TaxCents
		}
		if item.TotalCents < 0 {
			return nil, invalid("line %d total is negative", i+1)
		}
		lines = append(lines, item)
	}
	return lines, nil
}

func checkTotals(req domain.TransactionCreateRequest) error {
	if req.CustomerID == "" && (req.LoyaltyPointsEarned > 0 || req.LoyaltyPointsUsed > 0) {
		return invalid("loyalty points need a customer")
	}
	if want := req.SubtotalCents - req.DiscountCents + req.TaxCents; req.TotalCents != want {
		return invalid("total_cents %d does not equal subtotal - discount + tax (%d)", req.TotalCents, want)
	}

	switch req.PaymentMethod {
	case domain.PaymentCash:
		if req.CashAmountCents < req.TotalCents {
			return invalid("cash %d does not cover total %d", req.CashAmountCents, req.TotalCents)
		}
	case domain.PaymentCard:
		if req.CardAmountCents != req.TotalCents {
			return invalid("card amount %d must equal total %d", req.CardAmountCents, req.TotalCents)
		}
	case domain.PaymentDual:
		if req.CardAmountCents > req.TotalCents {
			return invalid("card amount %d exceeds total %d", req.CardAmountCents, req.TotalCents)
		}
		if req.CashAmountCents+req.CardAmountCents < req.TotalCents {
			return invalid("cash and card %d do not cover total %d", req.CashAmountCents+req.CardAmountCents, req.TotalCents)
		}
	}
	return nil
}

// settle zeroes the tender that does not apply to the payment method and
// computes change.
func settle(req domain.TransactionCreateRequest) (cash int64, card int64, change int64) {
	switch req.PaymentMethod {
	case domain.PaymentCash:
		return req.CashAmountCents, 0, req.CashAmountCents - req.TotalCents
	case domain.PaymentCard:
		return 0, req.CardAmountCents, 0
	default:
		return req.CashAmountCents, req.CardAmountCents, req.CashAmountCents + req.CardAmountCents - req.TotalCents
	}
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, storeID string, status string, limit int) ([]domain.Transaction, error) {
	if status != "" && !domain.IsKnownStatus(status) {
		return nil, invalid("unknown status %q", status)
	}
	return s.repo.ListTransactions(ctx, domain.TransactionFilter{StoreID: storeID, Status: status, Limit: limit})
}

func (s *Service) ListTransactionsByDateRange(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Transaction, error) {
	if storeID == "" {
		return nil, invalid("store_id is required")
	}
	if to.Before(from) {
		return nil, invalid("range end is before start")
	}
	return s.repo.ListTransactions(ctx, domain.TransactionFilter{StoreID: storeID, From: &from, To: &to})
}

// ListTransactionsByCashier lists a cashier's sales, limited to one UTC day when
// day is non-zero. An empty storeID spans every store.
func (s *Service) ListTransactionsByCashier(ctx context.Context, storeID string, cashierID string, day time.Time) ([]domain.Transaction, error) {
	if cashierID == "" {
		return nil, invalid("cashier_id is required")
	}
	filter := domain.TransactionFilter{StoreID: storeID, CashierID: cashierID}
	if !day.IsZero() {
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		end := start.Add(24*time.Hour - time.Nanosecond)
		filter.From = &start
		filter.To = &end
	}
	return s.repo.ListTransactions(ctx, filter)
}

// TransactionStats aggregates completed sales only.
func (s *Service) TransactionStats(ctx context.Context, storeID string, from *time.Time, to *time.Time) (domain.TransactionStats, error) {
	completed, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		StoreID: storeID,
		Status:  domain.TxStatusCompleted,
		From:    from,
		To:      to,
	})
	if err != nil {
		return domain.TransactionStats{}, err
	}

	var stats domain.TransactionStats
	for _, tx := range completed {
		stats.TotalTransactions++
		stats.TotalSalesCents += tx.TotalCents
		switch tx.PaymentMethod {
		case domain.PaymentCash:
			stats.CashSales++
		case domain.PaymentCard:
			stats.CardSales++
		}
	}
	if stats.TotalTransactions > 0 {
		stats.AverageTransaction = stats.TotalSalesCents / stats.TotalTransactions
	}
	return stats, nil
}
