package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// CancellationPipeline removes an order and returns its stock exactly once.
type CancellationPipeline struct {
	gate        *Gate
	orders      port.OrderRepository
	compensator *Compensator
	rt          runtime
}

func NewCancellationPipeline(gate *Gate, orders port.OrderRepository, compensator *Compensator, opts Options) *CancellationPipeline {
	return &CancellationPipeline{
		gate:        gate,
		orders:      orders,
		compensator: compensator,
		rt:          newRuntime(opts),
	}
}

func (p *CancellationPipeline) Cancel(ctx context.Context, id domain.Identity, orderID string) (err error) {
	ctx, end := p.rt.start(ctx, "cancel_order", attribute.String("order_id", orderID))
	defer end(&err)

	account, err := p.gate.Authorize(ctx, id, OpCancelOrder)
	if err != nil {
		return err
	}

	var order *domain.Order
	err = p.rt.read(ctx, func(ctx context.Context) error {
		var err error
		order, err = p.orders.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return err
	}

	if order.CustomerID != account.ID && account.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}

	if _, err := domain.Transition(order.Status, domain.OrderStatusCancelled); err != nil {
		return err
	}

	// The conditional delete is the single decision point: of two racing
	// cancellations, or a cancellation racing a status change, only one wins.
	// From here on the caller leaving must not split the delete from the release.
	opCtx := context.WithoutCancel(ctx)
	rel := domain.StockRelease{
		OrderID:  order.ID,
		ItemID:   order.ItemID,
		Quantity: order.Quantity,
		Reason:   ReasonOrderCancelled,
	}
	if err := p.remove(opCtx, order, rel); err != nil {
		return err
	}

	p.compensator.Release(opCtx, rel)

	p.rt.log(ctx).Info("order_cancelled",
		zap.String("order_id", order.ID),
		zap.String("item_id", order.ItemID),
		zap.Int("quantity", order.Quantity),
		zap.String("cancelled_by", account.ID),
	)
	p.rt.publish(ctx, domain.OrderCancelledEvent{
		OrderID:     order.ID,
		ItemID:      order.ItemID,
		Quantity:    order.Quantity,
		CancelledBy: account.ID,
		OccurredAt:  p.rt.Now(),
	})
	return nil
}

// remove deletes the order. When the delete outcome is unknown it checks whether
// the order is gone, so a committed delete is never left without its release.
func (p *CancellationPipeline) remove(ctx context.Context, order *domain.Order, rel domain.StockRelease) error {
	err := p.rt.call(ctx, func(ctx context.Context) error {
		return p.orders.DeleteOrder(ctx, order.ID, order.Status)
	})
	if err == nil || errors.Is(err, domain.ErrIllegalTransition) {
		return err
	}

	checkErr := p.rt.read(ctx, func(ctx context.Context) error {
		_, err := p.orders.GetOrder(ctx, order.ID)
		return err
	})
	switch {
	case errors.Is(checkErr, domain.ErrNotFound):
		p.rt.log(ctx).Warn("order_deleted_despite_error",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return nil
	case checkErr == nil:
		return err
	default:
		p.rt.Metrics.Compensation(rel.Reason, "escalated")
		p.rt.escalate(ctx, rel, errors.Join(err, checkErr))
		return err
	}
}
