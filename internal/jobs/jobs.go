package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"retailpos/internal/metrics"
	"retailpos/internal/service"
)

// Auditor runs the periodic consistency checks. Each check only reads state;
// findings go to the log and to gauges.
type Auditor struct {
	svc     *service.Service
	metrics *metrics.Metrics
	log     *slog.Logger
	timeout time.Duration
}

func NewAuditor(svc *service.Service, m *metrics.Metrics, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		svc:     svc,
		metrics: m,
		log:     logger.With("component", "jobs"),
		timeout: time.Minute,
	}
}

// AuditLedgers compares every active customer's balance with their ledger and
// returns how many drifted.
func (a *Auditor) AuditLedgers(ctx context.Context) (int, error) {
	customers, err := a.svc.ListCustomers(ctx)
	if err != nil {
		return 0, err
	}
	drifted := 0
	for _, customer := range customers {
		check, err := a.svc.VerifyLoyaltyLedger(ctx, customer.ID)
		if err != nil {
			return drifted, err
		}
		if !check.Consistent {
			drifted++
		}
	}
	a.metrics.LedgerDrift(drifted)
	a.log.InfoContext(ctx, "ledger audit finished", "customers", len(customers), "drifted", drifted)
	return drifted, nil
}

// ReportLowStock counts low-stock products per active store.
func (a *Auditor) ReportLowStock(ctx context.Context) (map[string]int, error) {
	stores, err := a.svc.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	report := make(map[string]int, len(stores))
	for _, shop := range stores {
		low, err := a.svc.ListLowStockProducts(ctx, shop.ID)
		if err != nil {
			return report, err
		}
		report[shop.ID] = len(low)
		a.metrics.LowStock(shop.ID, len(low))
		if len(low) > 0 {
			a.log.WarnContext(ctx, "low stock", "store_id", shop.ID, "products", len(low))
		}
	}
	return report, nil
}

func (a *Auditor) run(name string, check func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := check(ctx); err != nil {
			a.log.Error("audit job failed", "job", name, "error", err)
		}
	}
}

// Start schedules both audits every interval. Callers own the returned
// scheduler and must Shutdown it.
func Start(a *Auditor, every time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	checks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"ledger-audit", func(ctx context.Context) error {
			_, err := a.AuditLedgers(ctx)
			return err
		}},
		{"low-stock-report", func(ctx context.Context) error {
			_, err := a.ReportLowStock(ctx)
			return err
		}},
	}
	for _, check := range checks {
		_, err := sched.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(a.run(check.name, check.fn)),
			gocron.WithName(check.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}

	sched.Start()
	a.log.Info("audit jobs scheduled", "every", every, "jobs", len(sched.Jobs()))
	return sched, nil
}
