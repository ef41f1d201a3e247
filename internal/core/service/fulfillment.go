package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// FulfillmentService lets the seller of an order move it forward.
type FulfillmentService struct {
	gate   *Gate
	orders port.OrderRepository
	rt     runtime
}

func NewFulfillmentService(gate *Gate, orders port.OrderRepository, opts Options) *FulfillmentService {
	return &FulfillmentService{gate: gate, orders: orders, rt: newRuntime(opts)}
}

// Advance moves the order to status to. Cancellation is not a fulfillment step
// and is rejected here; it goes through CancellationPipeline.
func (s *FulfillmentService) Advance(ctx context.Context, id domain.Identity, orderID string, to domain.OrderStatus) (order *domain.Order, err error) {
	ctx, end := s.rt.start(ctx, "advance_order",
		attribute.String("order_id", orderID),
		attribute.String("to", string(to)),
	)
	defer end(&err)

	account, err := s.gate.Authorize(ctx, id, OpAdvanceOrder)
	if err != nil {
		return nil, err
	}

	err = s.rt.read(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if order.SellerID != account.ID {
		return nil, domain.ErrForbidden
	}
	if to == domain.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: use order cancellation", domain.ErrIllegalTransition)
	}

	from := order.Status
	if _, err := domain.Transition(from, to); err != nil {
		return nil, err
	}

	err = s.rt.call(ctx, func(ctx context.Context) error {
		return s.orders.UpdateOrderStatus(ctx, order.ID, from, to)
	})
	if err != nil {
		return nil, err
	}

	order.Status = to
	order.UpdatedAt = s.rt.Now()

	s.rt.log(ctx).Info("order_status_changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.rt.publish(ctx, domain.OrderStatusChangedEvent{
		OrderID:    order.ID,
		From:       from,
		To:         to,
		OccurredAt: order.UpdatedAt,
	})
	return order, nil
}
