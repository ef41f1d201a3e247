package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

type PlaceOrderRequest struct {
	ItemID   string
	Quantity int
	Address  string
	// IdempotencyKey is optional; a replayed key fails with ErrDuplicateRequest.
	IdempotencyKey string
}

// PlacementPipeline reserves stock and records the order, releasing the
// reservation when the order cannot be persisted.
type PlacementPipeline struct {
	gate        *Gate
	items       port.ItemRepository
	orders      port.OrderRepository
	ledger      port.InventoryLedger
	idempotency port.IdempotencyStore
	compensator *Compensator
	rt          runtime
}

func NewPlacementPipeline(
	gate *Gate,
	items port.ItemRepository,
	orders port.OrderRepository,
	ledger port.InventoryLedger,
	idempotency port.IdempotencyStore,
	compensator *Compensator,
	opts Options,
) *PlacementPipeline {
	return &PlacementPipeline{
		gate:        gate,
		items:       items,
		orders:      orders,
		ledger:      ledger,
		idempotency: idempotency,
		compensator: compensator,
		rt:          newRuntime(opts),
	}
}

func (p *PlacementPipeline) Place(ctx context.Context, id domain.Identity, req PlaceOrderRequest) (order *domain.Order, err error) {
	ctx, end := p.rt.start(ctx, "place_order",
		attribute.String("item_id", req.ItemID),
		attribute.Int("quantity", req.Quantity),
	)
	defer end(&err)

	account, err := p.gate.Authorize(ctx, id, OpPlaceOrder)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" && p.idempotency != nil {
		key := fmt.Sprintf("order:%s:%s", account.ID, req.IdempotencyKey)
		if err := p.claim(ctx, key); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				p.unclaim(ctx, key)
			}
		}()
	}

	var item *domain.Item
	err = p.rt.read(ctx, func(ctx context.Context) error {
		var err error
		item, err = p.items.GetItem(ctx, req.ItemID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if req.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, fmt.Errorf("%w: delivery address is required", domain.ErrInvalidArgument)
	}

	// From here the pipeline owns the reservation; the caller going away must
	// not strand reserved stock.
	opCtx := context.WithoutCancel(ctx)

	err = p.rt.call(opCtx, func(ctx context.Context) error {
		return p.ledger.Reserve(ctx, item.ID, req.Quantity)
	})
	if err != nil {
		return nil, err
	}

	order, err = domain.NewOrder(p.rt.NewID(), item, account.ID, req.Quantity, address, p.rt.Now())
	if err == nil {
		err = p.persist(opCtx, order)
	}
	if err != nil {
		p.compensator.Release(opCtx, domain.StockRelease{
			OrderID:  orderID(order),
			ItemID:   item.ID,
			Quantity: req.Quantity,
			Reason:   ReasonPlacementFailed,
		})
		return nil, err
	}

	p.rt.log(ctx).Info("order_placed",
		zap.String("order_id", order.ID),
		zap.String("item_id", order.ItemID),
		zap.String("customer_id", order.CustomerID),
		zap.Int("quantity", order.Quantity),
		zap.String("price", order.Price.String()),
	)
	p.rt.publish(ctx, domain.NewOrderPlacedEvent(order))
	return order, nil
}

// persist writes the order. When the write outcome is unknown it checks whether
// the order landed before reporting failure, so a committed order is never
// compensated.
func (p *PlacementPipeline) persist(ctx context.Context, order *domain.Order) error {
	err := p.rt.call(ctx, func(ctx context.Context) error {
		return p.orders.CreateOrder(ctx, *order)
	})
	if err == nil {
		return nil
	}

	checkErr := p.rt.read(ctx, func(ctx context.Context) error {
		_, err := p.orders.GetOrder(ctx, order.ID)
		return err
	})
	if checkErr == nil {
		p.rt.log(ctx).Warn("order_persisted_despite_error",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return nil
	}
	if !errors.Is(checkErr, domain.ErrNotFound) {
		p.rt.log(ctx).Warn("order_persist_check_failed",
			zap.String("order_id", order.ID),
			zap.Error(checkErr),
		)
	}
	return fmt.Errorf("persist order: %w", err)
}

func (p *PlacementPipeline) claim(ctx context.Context, key string) error {
	var ok bool
	err := p.rt.call(ctx, func(ctx context.Context) error {
		var err error
		ok, err = p.idempotency.SetIdempotency(ctx, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateRequest
	}
	return nil
}

func (p *PlacementPipeline) unclaim(ctx context.Context, key string) {
	err := p.rt.call(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return p.idempotency.ClearIdempotency(ctx, key)
	})
	if err != nil {
		p.rt.log(ctx).Warn("idempotency_clear_failed", zap.String("key", key), zap.Error(err))
	}
}

func orderID(o *domain.Order) string {
	if o == nil {
		return ""
	}
	return o.ID
}
