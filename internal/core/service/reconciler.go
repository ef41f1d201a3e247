package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// Reconciler is a worker pool that retries deferred stock releases until they succeed.
type Reconciler struct {
	ledger  port.InventoryLedger
	workers int
	rt      runtime

	mu     sync.RWMutex
	closed bool
	queue  chan domain.StockRelease
}

func NewReconciler(ledger port.InventoryLedger, workers, queueSize int, opts Options) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{
		ledger:  ledger,
		workers: workers,
		rt:      newRuntime(opts),
		queue:   make(chan domain.StockRelease, queueSize),
	}
}

// Enqueue hands rel to the pool without blocking. It reports false when the
// queue is full or the pool is shutting down.
func (r *Reconciler) Enqueue(rel domain.StockRelease) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}
	select {
	case r.queue <- rel:
		r.rt.Metrics.Backlog(1)
		return true
	default:
		return false
	}
}

// Run starts the workers and blocks until ctx is done. Releases still queued at
// that point get one final attempt each and are escalated if it fails.
func (r *Reconciler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.workerLoop(ctx, id)
		}(i)
	}
	r.rt.Logger.Info("reconciler_started", zap.Int("workers", r.workers))

	<-ctx.Done()

	r.mu.Lock()
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	wg.Wait()
	r.rt.Logger.Info("reconciler_stopped")
	return nil
}

func (r *Reconciler) workerLoop(ctx context.Context, id int) {
	for rel := range r.queue {
		r.rt.Metrics.Backlog(-1)
		r.reconcile(ctx, id, rel)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, id int, rel domain.StockRelease) {
	logger := r.rt.Logger.With(
		zap.Int("worker", id),
		zap.String("order_id", rel.OrderID),
		zap.String("item_id", rel.ItemID),
		zap.Int("quantity", rel.Quantity),
	)

	// Attempts run detached so the last one still reaches the store during shutdown.
	storeCtx := context.WithoutCancel(ctx)
	err := r.rt.retry(ctx, 0, func(context.Context) error {
		return r.rt.call(storeCtx, func(c context.Context) error {
			return r.ledger.Release(c, rel.ItemID, rel.Quantity)
		})
	})

	switch {
	case err == nil:
		r.rt.Metrics.Compensation(rel.Reason, "reconciled")
		logger.Info("stock_reconciled")
	case errors.Is(err, domain.ErrNotFound):
		r.rt.Metrics.Compensation(rel.Reason, "item_gone")
		logger.Warn("stock_release_skipped_item_gone")
	default:
		r.rt.escalate(storeCtx, rel, err)
	}
}
