package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

const (
	ReasonPlacementFailed = "placement_failed"
	ReasonOrderCancelled  = "order_cancelled"
)

// Compensator applies compensating stock releases. A release is retried for a
// bounded time, then handed to the reconciler, then escalated for manual repair.
type Compensator struct {
	ledger     port.InventoryLedger
	reconciler *Reconciler
	rt         runtime
}

func NewCompensator(ledger port.InventoryLedger, reconciler *Reconciler, opts Options) *Compensator {
	return &Compensator{ledger: ledger, reconciler: reconciler, rt: newRuntime(opts)}
}

// Release returns nil once the stock is back, or when the item no longer exists.
// Otherwise it returns the last error after the release was deferred or escalated.
func (c *Compensator) Release(ctx context.Context, rel domain.StockRelease) error {
	logger := c.rt.log(ctx).With(
		zap.String("order_id", rel.OrderID),
		zap.String("item_id", rel.ItemID),
		zap.Int("quantity", rel.Quantity),
		zap.String("reason", rel.Reason),
	)

	err := c.rt.retry(ctx, c.rt.CompensationMaxElapsed, func(ctx context.Context) error {
		return c.ledger.Release(ctx, rel.ItemID, rel.Quantity)
	})
	switch {
	case err == nil:
		c.rt.Metrics.Compensation(rel.Reason, "released")
		logger.Info("stock_released")
		return nil
	case errors.Is(err, domain.ErrNotFound):
		c.rt.Metrics.Compensation(rel.Reason, "item_gone")
		logger.Warn("stock_release_skipped_item_gone")
		return nil
	}

	if c.reconciler.Enqueue(rel) {
		c.rt.Metrics.Compensation(rel.Reason, "deferred")
		logger.Warn("stock_release_deferred", zap.Error(err))
		return err
	}

	c.rt.Metrics.Compensation(rel.Reason, "escalated")
	c.rt.escalate(ctx, rel, err)
	return err
}
