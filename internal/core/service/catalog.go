package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

const DefaultListLimit = 20

// CatalogService manages seller listings and the public catalog.
type CatalogService struct {
	gate   *Gate
	items  port.ItemRepository
	ledger port.InventoryLedger
	// overlay is set when stock lives outside the item store, so reads take it from the ledger.
	overlay bool
	rt      runtime
}

func NewCatalogService(gate *Gate, items port.ItemRepository, ledger port.InventoryLedger, opts Options) *CatalogService {
	return &CatalogService{
		gate:    gate,
		items:   items,
		ledger:  ledger,
		overlay: any(ledger) != any(items),
		rt:      newRuntime(opts),
	}
}

func (s *CatalogService) ListItem(ctx context.Context, id domain.Identity, params domain.NewItemParams) (item *domain.Item, err error) {
	ctx, end := s.rt.start(ctx, "list_item")
	defer end(&err)

	account, err := s.gate.Authorize(ctx, id, OpListItem)
	if err != nil {
		return nil, err
	}

	item, err = domain.NewItem(s.rt.NewID(), account.ID, params, s.rt.Now())
	if err != nil {
		return nil, err
	}

	err = s.rt.call(ctx, func(ctx context.Context) error {
		return s.items.CreateItem(ctx, *item)
	})
	if err != nil {
		return nil, err
	}

	err = s.rt.call(ctx, func(ctx context.Context) error {
		return s.ledger.Seed(ctx, item.ID, item.AvailableQuantity)
	})
	if err != nil {
		s.rt.log(ctx).Warn("stock_seed_failed", zap.String("item_id", item.ID), zap.Error(err))
		s.rollbackListing(ctx, item)
		return nil, err
	}

	s.rt.log(ctx).Info("item_listed",
		zap.String("item_id", item.ID),
		zap.String("seller_id", item.SellerID),
		zap.Int("quantity", item.AvailableQuantity),
	)
	return item, nil
}

func (s *CatalogService) rollbackListing(ctx context.Context, item *domain.Item) {
	err := s.rt.call(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.items.DeleteItem(ctx, item.ID, item.SellerID)
	})
	if err != nil {
		s.rt.log(ctx).Error("item_rollback_failed", zap.String("item_id", item.ID), zap.Error(err))
	}
}

func (s *CatalogService) DeleteItem(ctx context.Context, id domain.Identity, itemID string) (err error) {
	ctx, end := s.rt.start(ctx, "delete_item", attribute.String("item_id", itemID))
	defer end(&err)

	account, err := s.gate.Authorize(ctx, id, OpDeleteItem)
	if err != nil {
		return err
	}

	err = s.rt.call(ctx, func(ctx context.Context) error {
		return s.items.DeleteItem(ctx, itemID, account.ID)
	})
	if err != nil {
		return err
	}

	err = s.rt.call(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.ledger.Remove(ctx, itemID)
	})
	if err != nil {
		s.rt.log(ctx).Warn("stock_remove_failed", zap.String("item_id", itemID), zap.Error(err))
	}

	s.rt.log(ctx).Info("item_deleted", zap.String("item_id", itemID), zap.String("seller_id", account.ID))
	return nil
}

func (s *CatalogService) GetItem(ctx context.Context, itemID string) (item *domain.Item, err error) {
	ctx, end := s.rt.start(ctx, "get_item", attribute.String("item_id", itemID))
	defer end(&err)

	err = s.rt.read(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.items.GetItem(ctx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.overlayStock(ctx, item)
	return item, nil
}

func (s *CatalogService) ListItems(ctx context.Context, limit int) (items []domain.Item, err error) {
	ctx, end := s.rt.start(ctx, "list_items")
	defer end(&err)

	if limit <= 0 {
		limit = DefaultListLimit
	}
	err = s.rt.read(ctx, func(ctx context.Context) error {
		var err error
		items, err = s.items.ListItems(ctx, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range items {
		s.overlayStock(ctx, &items[i])
	}
	return items, nil
}

func (s *CatalogService) SellerItems(ctx context.Context, id domain.Identity) (items []domain.Item, err error) {
	ctx, end := s.rt.start(ctx, "seller_items")
	defer end(&err)

	account, err := s.gate.Authorize(ctx, id, OpSellerItems)
	if err != nil {
		return nil, err
	}

	err = s.rt.read(ctx, func(ctx context.Context) error {
		var err error
		items, err = s.items.ListItemsBySeller(ctx, account.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range items {
		s.overlayStock(ctx, &items[i])
	}
	return items, nil
}

func (s *CatalogService) overlayStock(ctx context.Context, item *domain.Item) {
	if !s.overlay {
		return
	}
	var stock int
	err := s.rt.call(ctx, func(ctx context.Context) error {
		var err error
		stock, err = s.ledger.Available(ctx, item.ID)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.rt.log(ctx).Warn("stock_overlay_failed", zap.String("item_id", item.ID), zap.Error(err))
		}
		return
	}
	item.AvailableQuantity = stock
}
