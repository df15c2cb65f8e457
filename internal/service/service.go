package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"retailpos/internal/cache"
	"retailpos/internal/domain"
	"retailpos/internal/metrics"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	TierCache          cache.TierCache
	TierCacheTTL       time.Duration
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
	ReceiptMaxAttempts int
	// Clock and ReceiptNumber are overridable for tests.
	Clock         func() time.Time
	ReceiptNumber func(at time.Time) string
}

type Service struct {
	repo            store.Repository
	tiers           cache.TierCache
	tierTTL         time.Duration
	metrics         *metrics.Metrics
	log             *slog.Logger
	validate        *validator.Validate
	now             func() time.Time
	receiptNumber   func(at time.Time) string
	receiptAttempts int
}

func New(repo store.Repository, opts Options) *Service {
	if opts.TierCache == nil {
		opts.TierCache = cache.NoopTierCache{}
	}
	if opts.TierCacheTTL <= 0 {
		opts.TierCacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReceiptMaxAttempts < 1 {
		opts.ReceiptMaxAttempts = 3
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.ReceiptNumber == nil {
		opts.ReceiptNumber = xid.Receipt
	}

	return &Service{
		repo:            repo,
		tiers:           opts.TierCache,
		tierTTL:         opts.TierCacheTTL,
		metrics:         opts.Metrics,
		log:             opts.Logger.With("component", "service"),
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		now:             opts.Clock,
		receiptNumber:   opts.ReceiptNumber,
		receiptAttempts: opts.ReceiptMaxAttempts,
	}
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrValidation, fmt.Sprintf(format, args...))
}

// actorID is the user recorded on audit rows. Background work runs as "system".
func actorID(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return "system"
	}
	return actor.UserID
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// effects collects the stock and loyalty movements made inside one unit of
// work. Counters are only bumped from it after the work commits.
type effects struct {
	adjustments []string
	points      []pointMove
}

type pointMove struct {
	ledgerType string
	delta      int64
}

func (e *effects) flush(m *metrics.Metrics) {
	for _, adjustmentType := range e.adjustments {
		m.StockAdjustment(adjustmentType)
	}
	for _, move := range e.points {
		m.LoyaltyPoints(move.ledgerType, move.delta)
	}
}
