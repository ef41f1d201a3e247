package service

import (
	"context"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

type OrderViewService struct {
	gate  *Gate
	views port.OrderViewRepository
	rt    runtime
}

func NewOrderViewService(gate *Gate, views port.OrderViewRepository, opts Options) *OrderViewService {
	return &OrderViewService{gate: gate, views: views, rt: newRuntime(opts)}
}

func (s *OrderViewService) CustomerOrders(ctx context.Context, id domain.Identity) (views []domain.OrderView, err error) {
	ctx, end := s.rt.start(ctx, "customer_orders")
	defer end(&err)

	account, err := s.gate.Authorize(ctx, id, OpCustomerOrders)
	if err != nil {
		return nil, err
	}
	err = s.rt.read(ctx, func(ctx context.Context) error {
		var err error
		views, err = s.views.CustomerOrders(ctx, account.ID)
		return err
	})
	return views, err
}

func (s *OrderViewService) SellerOrders(ctx context.Context, id domain.Identity) (views []domain.OrderView, err error) {
	ctx, end := s.rt.start(ctx, "seller_orders")
	defer end(&err)

	account, err := s.gate.Authorize(ctx, id, OpSellerOrders)
	if err != nil {
		return nil, err
	}
	err = s.rt.read(ctx, func(ctx context.Context) error {
		var err error
		views, err = s.views.SellerOrders(ctx, account.ID)
		return err
	})
	return views, err
}
