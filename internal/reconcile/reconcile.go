package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/shafran/commerce/internal/clock"
	"github.com/shafran/commerce/internal/observability/metrics"
	"github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config controls the sweep cadence and batch size.
type Config struct {
	RunInterval time.Duration
	StaleAfter  time.Duration
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		StaleAfter:  5 * time.Minute,
		BatchSize:   50,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Payments domain.Service
	Limiter  *ratelimit.CallbackLimiter `optional:"true"`
	Metrics  *metrics.Metrics           `optional:"true"`
	Config   Config                     `optional:"true"`
}

// Reconciler sweeps stale pending and processing payments and polls
// the provider for each. The definitive answers travel through the
// orchestrator so the same guarded transition applies.
type Reconciler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	repo     domain.Repository
	payments domain.Service
	limiter  *ratelimit.CallbackLimiter
	metrics  *metrics.Metrics
}

func New(p Params) (*Reconciler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.Payments == nil {
		return nil, errors.New("reconcile: missing dependency")
	}
	return &Reconciler{
		db:       p.DB,
		log:      p.Log.Named("reconcile"),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		repo:     p.Repo,
		payments: p.Payments,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
	}, nil
}

// RunOnce sweeps one batch. Per-payment failures are logged and left
// for the next pass; only listing errors abort the sweep.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	// One replica sweeps at a time when a shared lock is available.
	token, owner, err := r.limiter.TryReconcileLock(ctx, r.cfg.RunInterval)
	if err != nil {
		return err
	}
	if !owner {
		return nil
	}
	if token != "" {
		defer func() {
			if err := r.limiter.ReleaseReconcileLock(ctx, token); err != nil {
				r.log.Warn("release sweep lock", zap.Error(err))
			}
		}()
	}

	r.metrics.RecordReconcileSweep()

	cutoff := r.clock.Now().Add(-r.cfg.StaleAfter)
	stale, err := r.repo.ListStale(ctx, r.db, cutoff, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, payment := range stale {
		if payment.ProviderTxnID == nil {
			// Never initiated with the provider; nothing to poll.
			continue
		}

		status, err := r.payments.CheckStatus(ctx, payment.ID)
		if err != nil {
			r.log.Warn("reconcile poll failed",
				zap.String("payment_id", payment.ID.String()),
				zap.String("method", string(payment.Method)),
				zap.Error(err),
			)
			continue
		}
		if status != payment.Status {
			r.metrics.RecordReconcileOutcome(string(status))
			r.log.Info("reconciled stale payment",
				zap.String("payment_id", payment.ID.String()),
				zap.String("from", string(payment.Status)),
				zap.String("to", string(status)),
			)
		}
	}
	return nil
}

func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("reconcile sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
