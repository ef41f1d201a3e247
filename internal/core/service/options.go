package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/pkg/logging"
	"github.com/rl1809/marketplace/internal/pkg/metrics"
	"github.com/rl1809/marketplace/internal/port"
)

const (
	defaultStoreTimeout           = 2 * time.Second
	defaultRetryMaxElapsed        = 3 * time.Second
	defaultCompensationMaxElapsed = 30 * time.Second
	publishTimeout                = 300 * time.Millisecond

	retryInitialInterval = 20 * time.Millisecond
	retryMaxInterval     = time.Second
)

var tracer = otel.Tracer("github.com/rl1809/marketplace/internal/core/service")

type Options struct {
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Publisher port.EventPublisher

	// StoreTimeout bounds every single store call.
	StoreTimeout time.Duration
	// RetryMaxElapsed bounds transparent retries of reads.
	RetryMaxElapsed time.Duration
	// CompensationMaxElapsed bounds synchronous retries of a compensating release
	// before it is handed to the reconciler.
	CompensationMaxElapsed time.Duration

	ReconcileWorkers   int
	ReconcileQueueSize int

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaultStoreTimeout
	}
	if o.RetryMaxElapsed <= 0 {
		o.RetryMaxElapsed = defaultRetryMaxElapsed
	}
	if o.CompensationMaxElapsed <= 0 {
		o.CompensationMaxElapsed = defaultCompensationMaxElapsed
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// runtime carries the ambient collaborators shared by every use case.
type runtime struct {
	Options
}

func newRuntime(opts Options) runtime {
	return runtime{Options: opts.withDefaults()}
}

func (rt runtime) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, rt.Logger)
}

// start opens a span for useCase and returns a func that records its outcome.
func (rt runtime) start(ctx context.Context, useCase string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := tracer.Start(ctx, useCase, trace.WithAttributes(attrs...))
	begin := time.Now()

	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, domain.Kind(err))
		}
		span.End()
		rt.Metrics.ObserveUseCase(useCase, domain.Kind(err), time.Since(begin))
	}
}

// call runs op under the store timeout. A timeout surfaces as ErrStoreUnavailable.
func (rt runtime) call(ctx context.Context, op func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, rt.StoreTimeout)
	defer cancel()

	err := op(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

// retry repeats op with exponential backoff while it fails with a retryable error.
// maxElapsed of zero retries until ctx is done.
func (rt runtime) retry(ctx context.Context, maxElapsed time.Duration, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = maxElapsed

	var last error
	err := backoff.Retry(func() error {
		last = rt.call(ctx, op)
		if last != nil && !domain.IsRetryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, backoff.WithContext(b, ctx))
	if err != nil && last != nil {
		return last
	}
	return err
}

// read is a store read with caller-transparent retry.
func (rt runtime) read(ctx context.Context, op func(context.Context) error) error {
	return rt.retry(ctx, rt.RetryMaxElapsed, op)
}

// publish emits event on a short detached deadline. Failures are logged, never returned.
func (rt runtime) publish(ctx context.Context, event domain.Event) {
	if rt.Publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := rt.Publisher.Publish(pubCtx, event); err != nil {
		rt.log(ctx).Warn("event_publish_failed",
			zap.String("event", event.EventName()),
			zap.String("key", event.EventKey()),
			zap.Error(err),
		)
	}
}

// escalate records a release that could not be applied automatically.
func (rt runtime) escalate(ctx context.Context, rel domain.StockRelease, cause error) {
	rt.log(ctx).Error("stock_reconciliation_required",
		zap.String("order_id", rel.OrderID),
		zap.String("item_id", rel.ItemID),
		zap.Int("quantity", rel.Quantity),
		zap.String("reason", rel.Reason),
		zap.Error(cause),
	)
	rt.Metrics.ReconciliationRequired()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	rt.publish(ctx, domain.StockReconciliationEvent{
		OrderID:    rel.OrderID,
		ItemID:     rel.ItemID,
		Quantity:   rel.Quantity,
		Reason:     rel.Reason,
		Error:      msg,
		OccurredAt: rt.Now(),
	})
}
