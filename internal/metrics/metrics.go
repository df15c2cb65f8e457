package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several instances can live in one process.
// A nil *Metrics records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	latencyMS        *prometheus.HistogramVec
	checkouts        *prometheus.CounterVec
	statusChanges    *prometheus.CounterVec
	stockAdjustments *prometheus.CounterVec
	loyaltyPoints    *prometheus.CounterVec
	receiptRetries   prometheus.Counter
	lowStock         *prometheus.GaugeVec
	ledgerDrift      prometheus.Gauge
}

func New() *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retailpos",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "retailpos",
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retailpos",
		Subsystem: "pos",
		Name:      "checkouts_total",
		Help:      "Checkouts recorded, by initial status and outcome.",
	}, []string{"status", "outcome"})
	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retailpos",
		Subsystem: "pos",
		Name:      "status_changes_total",
		Help:      "Transaction lifecycle transitions (approve, void, refund).",
	}, []string{"action", "outcome"})
	stockAdjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retailpos",
		Subsystem: "inventory",
		Name:      "adjustments_total",
		Help:      "Stock level changes from sales, refunds and manual updates, by direction.",
	}, []string{"type"})
	loyaltyPoints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retailpos",
		Subsystem: "loyalty",
		Name:      "points_total",
		Help:      "Absolute loyalty points moved, by ledger type.",
	}, []string{"type"})
	receiptRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "retailpos",
		Subsystem: "pos",
		Name:      "receipt_retries_total",
		Help:      "Checkouts retried after a receipt number collision.",
	})

	lowStock := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "retailpos",
		Subsystem: "inventory",
		Name:      "low_stock_products",
		Help:      "Tracked products at or below their minimum at the last audit.",
	}, []string{"store"})
	ledgerDrift := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "retailpos",
		Subsystem: "loyalty",
		Name:      "ledger_drift_customers",
		Help:      "Customers whose balance differed from their ledger sum at the last audit.",
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests, latency, checkouts, statusChanges, stockAdjustments, loyaltyPoints,
		receiptRetries, lowStock, ledgerDrift,
	)

	return &Metrics{
		registry:         registry,
		requests:         requests,
		latencyMS:        latency,
		checkouts:        checkouts,
		statusChanges:    statusChanges,
		stockAdjustments: stockAdjustments,
		loyaltyPoints:    loyaltyPoints,
		receiptRetries:   receiptRetries,
		lowStock:         lowStock,
		ledgerDrift:      ledgerDrift,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(handler string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.latencyMS.WithLabelValues(handler).Observe(float64(elapsed.Microseconds()) / 1000)
}

func (m *Metrics) Checkout(status string, err error) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(status, outcome(err)).Inc()
}

func (m *Metrics) StatusChange(action string, err error) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(action, outcome(err)).Inc()
}

func (m *Metrics) StockAdjustment(adjustmentType string) {
	if m == nil {
		return
	}
	m.stockAdjustments.WithLabelValues(adjustmentType).Inc()
}

func (m *Metrics) LoyaltyPoints(ledgerType string, points int64) {
	if m == nil {
		return
	}
	if points < 0 {
		points = -points
	}
	m.loyaltyPoints.WithLabelValues(ledgerType).Add(float64(points))
}

func (m *Metrics) ReceiptCollision() {
	if m == nil {
		return
	}
	m.receiptRetries.Inc()
}

func (m *Metrics) LowStock(storeID string, products int) {
	if m == nil {
		return
	}
	m.lowStock.WithLabelValues(storeID).Set(float64(products))
}

func (m *Metrics) LedgerDrift(customers int) {
	if m == nil {
		return
	}
	m.ledgerDrift.Set(float64(customers))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
