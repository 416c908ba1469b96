package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/domain/outbox"
	"github.com/NordCoder/Gatekeep/internal/obs"
	"github.com/NordCoder/Gatekeep/internal/obs/retry"
)

type RunnerConfig struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`

	// MaxAttempts counts dispatches, each of which already retries in-process.
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	RetryMax    time.Duration `mapstructure:"retry_max"`
}

var (
	outboxPicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_picked_total", Help: "Messages picked into processing.",
	})
	outboxOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_ok_total", Help: "Messages processed successfully.",
	})
	outboxErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_err_total", Help: "Handler errors.",
	})
	outboxTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "outbox_tick_duration_seconds", Help: "Tick duration.",
		Buckets: prometheus.DefBuckets,
	})
	outboxBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_last_batch_size", Help: "Size of last picked batch.",
	})
	outboxFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_failed_total", Help: "Messages moved to FAILED.",
	}, []string{"cause"})
)

type Runner struct {
	log      *zap.Logger
	repo     outbox.Repository
	dispatch outbox.GlobalHandler
	cfg      RunnerConfig
	backoff  retry.Backoff
}

func NewOutboxRunner(log *zap.Logger, repo outbox.Repository, dispatch outbox.GlobalHandler, cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = time.Second
	}
	if cfg.InProgressTTL <= 0 {
		cfg.InProgressTTL = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 5 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 10 * time.Minute
	}
	return &Runner{
		log:      log.With(zap.String("component", "outbox.runner")),
		repo:     repo,
		dispatch: dispatch,
		cfg:      cfg,
		backoff:  retry.ExpoJitter{Base: cfg.RetryBase, Max: cfg.RetryMax, Jitter: 0.2},
	}
}

// Run polls the outbox until ctx is cancelled and returns once every worker has stopped.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg)
	}
	wg.Wait()
}

func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	r.log.Info("outbox worker started", zap.Duration("wait", r.cfg.WaitTime))

	ticker := time.NewTicker(r.cfg.WaitTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox worker stop")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	t0 := time.Now()
	defer func() { outboxTickDur.Observe(time.Since(t0).Seconds()) }()

	tr := otel.Tracer("outbox.runner")
	ctxSpan, span := tr.Start(ctx, "outbox.tick")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.limit", r.cfg.BatchSize),
		attribute.String("in_progress_ttl", r.cfg.InProgressTTL.String()),
	)

	messages, err := r.repo.PickBatch(ctxSpan, r.cfg.BatchSize, r.cfg.InProgressTTL)
	if err != nil {
		span.RecordError(err)
		outboxErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("outbox pick error", zap.Error(err))
		return
	}
	outboxPicked.Add(float64(len(messages)))
	outboxBatchSize.Set(float64(len(messages)))

	okKeys := make([]string, 0, len(messages))
	for _, m := range messages {
		err := r.handle(ctx, tr, m)
		if err == nil {
			okKeys = append(okKeys, m.IdempotencyKey)
			continue
		}
		if ctx.Err() != nil {
			// shutting down; the in-progress TTL hands the message out again
			break
		}
		if err := r.repo.MarkFailure(ctxSpan, m.IdempotencyKey, r.failure(m, err)); err != nil {
			span.RecordError(err)
			obs.WithTrace(ctxSpan, r.log).Error("mark failure error",
				zap.String("key", m.IdempotencyKey), zap.Error(err))
		}
	}

	if err := r.repo.MarkSuccess(ctxSpan, okKeys); err != nil {
		span.RecordError(err)
		outboxErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("mark success error", zap.Error(err))
	}
}

// handle dispatches one message under the trace context captured at enqueue time.
func (r *Runner) handle(ctx context.Context, tr trace.Tracer, m outbox.Message) error {
	parent := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": m.Traceparent,
		"tracestate":  m.Tracestate,
		"baggage":     m.Baggage,
	})
	msgCtx, span := tr.Start(parent, "outbox.dispatch",
		trace.WithAttributes(
			attribute.String("outbox.key", m.IdempotencyKey),
			attribute.Int("outbox.kind", int(m.Kind)),
		),
	)
	defer span.End()

	handler, err := r.dispatch(m.Kind)
	if err == nil {
		err = handler(msgCtx, m.Data)
	}
	if err != nil {
		span.RecordError(err)
		outboxErr.Inc()
		obs.WithTrace(msgCtx, r.log).Error("outbox dispatch failed",
			zap.String("key", m.IdempotencyKey), zap.Int("kind", int(m.Kind)),
			zap.Int("attempt", m.Attempts+1), zap.Error(err))
		return err
	}
	outboxOK.Inc()
	return nil
}

// failure decides whether a failed message is parked for good or retried later.
// Permanent errors and messages out of attempts are terminal.
func (r *Runner) failure(m outbox.Message, err error) outbox.Failure {
	f := outbox.Failure{Reason: err.Error()}
	switch {
	case errors.Is(err, retry.ErrPermanent):
		f.Terminal = true
		outboxFailed.WithLabelValues("permanent").Inc()
	case m.Attempts+1 >= r.cfg.MaxAttempts:
		f.Terminal = true
		outboxFailed.WithLabelValues("exhausted").Inc()
	default:
		f.RetryAfter = r.backoff.Next(m.Attempts)
	}
	return f
}
