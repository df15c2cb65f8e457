package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retailpos/internal/metrics"
	"retailpos/internal/store/memory"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics scrape returned %d", rec.Code)
	}
	return rec.Body.String()
}

func assertSeries(t *testing.T, body string, series ...string) {
	t.Helper()
	for _, want := range series {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestCheckoutAndRefundFeedMovementCounters(t *testing.T) {
	m := metrics.New()
	svc := New(memory.NewSeeded(), Options{Metrics: m})

	tx, err := svc.CreateTransaction(cashierCtx(), checkoutRequest(memory.SeedCustomerID, 20, 0, line{"prd-milk", 3, 165}, line{"prd-giftwrap", 1, 200}))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	assertSeries(t, scrape(t, m),
		`retailpos_inventory_adjustments_total{type="decrease"} 1`,
		`retailpos_loyalty_points_total{type="earned"} 20`,
	)

	if _, err := svc.RefundTransaction(managerCtx(), tx.ID, "damaged"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	assertSeries(t, scrape(t, m),
		`retailpos_inventory_adjustments_total{type="decrease"} 1`,
		`retailpos_inventory_adjustments_total{type="increase"} 1`,
		`retailpos_loyalty_points_total{type="redeemed"} 20`,
	)
}

func TestFailedCheckoutRecordsNoMovements(t *testing.T) {
	m := metrics.New()
	svc := New(memory.NewSeeded(), Options{Metrics: m})

	_, err := svc.CreateTransaction(cashierCtx(), checkoutRequest(memory.SeedCustomerID, 20, 0, line{"prd-milk", 3, 165}, line{"prd-coffee", 5, 450}))
	if err == nil {
		t.Fatalf("expected checkout to fail on coffee stock")
	}
	body := scrape(t, m)
	for _, unwanted := range []string{"retailpos_inventory_adjustments_total{", "retailpos_loyalty_points_total{"} {
		if strings.Contains(body, unwanted) {
			t.Fatalf("rolled back checkout must not count movements, found %q", unwanted)
		}
	}
}

func TestReceiptCollisionsAreCounted(t *testing.T) {
	m := metrics.New()
	numbers := []string{"RCP-1-AAAAAAAAA", "RCP-1-AAAAAAAAA", "RCP-1-BBBBBBBBB"}
	svc := New(memory.NewSeeded(), Options{
		Metrics: m,
		ReceiptNumber: func(time.Time) string {
			next := numbers[0]
			if len(numbers) > 1 {
				numbers = numbers[1:]
			}
			return next
		},
	})

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateTransaction(cashierCtx(), checkoutRequest("", 0, 0, line{"prd-bread", 1, 140})); err != nil {
			t.Fatalf("checkout %d: %v", i+1, err)
		}
	}
	assertSeries(t, scrape(t, m), "retailpos_pos_receipt_retries_total 1")
}
