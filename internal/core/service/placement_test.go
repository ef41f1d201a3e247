package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

func TestPlace_Success(t *testing.T) {
	f := newFixture(t)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	customer := f.account(t, "customer-1", domain.RoleCustomer)
	item := f.item(t, seller, 10, 10)

	order, err := f.place(t, customer, item.ID, 1)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if order.Status != domain.OrderStatusPending || order.SellerID != "seller-1" {
		t.Errorf("unexpected order %+v", order)
	}
	if got := f.stock(t, item.ID); got != 9 {
		t.Errorf("expected stock 9, got %d", got)
	}
	if f.pub.count("order.placed") != 1 {
		t.Error("expected order.placed event")
	}
}

func TestPlace_Validation(t *testing.T) {
	f := newFixture(t)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	customer := f.account(t, "customer-1", domain.RoleCustomer)
	item := f.item(t, seller, 5, 10)

	tests := []struct {
		name    string
		id      domain.Identity
		req     PlaceOrderRequest
		wantErr error
	}{
		{"anonymous", domain.Anonymous(), PlaceOrderRequest{ItemID: item.ID, Quantity: 1, Address: "a"}, domain.ErrUnauthorized},
		{"unregistered", domain.Authenticated("stranger"), PlaceOrderRequest{ItemID: item.ID, Quantity: 1, Address: "a"}, domain.ErrForbidden},
		{"missing item", customer, PlaceOrderRequest{ItemID: "ghost", Quantity: 1, Address: "a"}, domain.ErrNotFound},
		{"zero quantity", customer, PlaceOrderRequest{ItemID: item.ID, Quantity: 0, Address: "a"}, domain.ErrInvalidQuantity},
		{"negative quantity", customer, PlaceOrderRequest{ItemID: item.ID, Quantity: -2, Address: "a"}, domain.ErrInvalidQuantity},
		{"no address", customer, PlaceOrderRequest{ItemID: item.ID, Quantity: 1, Address: "  "}, domain.ErrInvalidArgument},
		{"too many", customer, PlaceOrderRequest{ItemID: item.ID, Quantity: 6, Address: "a"}, domain.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.Placement.Place(context.Background(), tt.id, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if got := f.stock(t, item.ID); got != 5 {
		t.Errorf("rejected placements must not touch stock, got %d", got)
	}
}

func TestPlace_LastUnitRace(t *testing.T) {
	f := newFixture(t)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	a := f.account(t, "customer-a", domain.RoleCustomer)
	b := f.account(t, "customer-b", domain.RoleCustomer)
	item := f.item(t, seller, 5, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, who := range []domain.Identity{a, b} {
		wg.Add(1)
		go func(i int, who domain.Identity) {
			defer wg.Done()
			_, errs[i] = f.place(t, who, item.ID, 5)
		}(i, who)
	}
	wg.Wait()

	success, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, domain.ErrInsufficientStock):
			short++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if success != 1 || short != 1 {
		t.Errorf("expected 1 success and 1 insufficient stock, got %d/%d", success, short)
	}
	if got := f.stock(t, item.ID); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestPlace_ConcurrentNeverOversells(t *testing.T) {
	f := newFixture(t)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	customer := f.account(t, "customer-1", domain.RoleCustomer)
	item := f.item(t, seller, 20, 1)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.place(t, customer, item.ID, 1); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 20 {
		t.Errorf("expected 20 successes, got %d", successCount.Load())
	}
	if got := f.stock(t, item.ID); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestPlace_CompensatesWhenPersistFails(t *testing.T) {
	store := storage.NewMemoryStore()
	f := newFixtureWith(t, store, &failingOrders{MemoryStore: store}, store)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	customer := f.account(t, "customer-1", domain.RoleCustomer)
	item := f.item(t, seller, 5, 10)

	if _, err := f.place(t, customer, item.ID, 3); err == nil {
		t.Fatal("expected persist failure")
	}

	if got := f.stock(t, item.ID); got != 5 {
		t.Errorf("expected stock restored to 5, got %d", got)
	}
	views, _ := store.CustomerOrders(context.Background(), "customer-1")
	if len(views) != 0 {
		t.Errorf("expected no orders, got %d", len(views))
	}
	if got := testutil.ToFloat64(f.metrics.Compensations.WithLabelValues(ReasonPlacementFailed, "released")); got != 1 {
		t.Errorf("expected one release, got %v", got)
	}
	if f.pub.count("order.placed") != 0 {
		t.Error("failed placement must not publish order.placed")
	}
}

func TestPlace_PersistErrorAfterCommitIsNotCompensated(t *testing.T) {
	store := storage.NewMemoryStore()
	f := newFixtureWith(t, store, &failingOrders{MemoryStore: store, writeThrough: true}, store)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	customer := f.account(t, "customer-1", domain.RoleCustomer)
	item := f.item(t, seller, 5, 10)

	order, err := f.place(t, customer, item.ID, 2)
	if err != nil {
		t.Fatalf("expected the committed order to be reported, got %v", err)
	}
	if got := f.stock(t, item.ID); got != 3 {
		t.Errorf("expected stock 3, got %d", got)
	}
	if _, err := store.GetOrder(context.Background(), order.ID); err != nil {
		t.Errorf("expected stored order, got %v", err)
	}
}

func TestPlace_CallerCancellationDoesNotStrandStock(t *testing.T) {
	store := storage.NewMemoryStore()
	f := newFixtureWith(t, store, &failingOrders{MemoryStore: store}, store)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	customer := f.account(t, "customer-1", domain.RoleCustomer)
	item := f.item(t, seller, 4, 10)

	ctx, cancel := context.WithCancel(context.Background())
	p := f.m.Placement
	// Cancel as soon as the item has been read, before reservation.
	p.items = cancelAfterGet{ItemRepository: store, cancel: cancel}

	if _, err := p.Place(ctx, customer, PlaceOrderRequest{ItemID: item.ID, Quantity: 4, Address: "a"}); err == nil {
		t.Fatal("expected persist failure")
	}
	if got := f.stock(t, item.ID); got != 4 {
		t.Errorf("expected stock 4 after compensation, got %d", got)
	}
}

type cancelAfterGet struct {
	port.ItemRepository
	cancel context.CancelFunc
}

func (c cancelAfterGet) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := c.ItemRepository.GetItem(ctx, itemID)
	c.cancel()
	return item, err
}

func TestPlace_Idempotency(t *testing.T) {
	f := newFixture(t)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	customer := f.account(t, "customer-1", domain.RoleCustomer)
	item := f.item(t, seller, 1, 10)
	ctx := context.Background()

	req := PlaceOrderRequest{ItemID: item.ID, Quantity: 2, Address: "a", IdempotencyKey: "req-1"}
	if _, err := f.m.Placement.Place(ctx, customer, req); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The failed attempt released its claim, so a corrected retry goes through.
	req.Quantity = 1
	if _, err := f.m.Placement.Place(ctx, customer, req); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if _, err := f.m.Placement.Place(ctx, customer, req); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest on replay, got %v", err)
	}
	if got := f.stock(t, item.ID); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestScenario_PriceSnapshotAndRestock(t *testing.T) {
	f := newFixture(t)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	a := f.account(t, "customer-a", domain.RoleCustomer)
	b := f.account(t, "customer-b", domain.RoleCustomer)
	c := f.account(t, "customer-c", domain.RoleCustomer)
	item := f.item(t, seller, 5, 10)
	ctx := context.Background()

	order, err := f.place(t, a, item.ID, 3)
	if err != nil {
		t.Fatalf("A place: %v", err)
	}
	if order.Status != domain.OrderStatusPending || order.Quantity != 3 || !order.Price.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected order %+v", order)
	}
	if got := f.stock(t, item.ID); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}

	if err := f.m.Cancellation.Cancel(ctx, a, order.ID); err != nil {
		t.Fatalf("A cancel: %v", err)
	}
	if got := f.stock(t, item.ID); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}
	if _, err := f.store.GetOrder(ctx, order.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected order removed, got %v", err)
	}

	if _, err := f.place(t, b, item.ID, 5); err != nil {
		t.Fatalf("B place: %v", err)
	}
	if _, err := f.place(t, c, item.ID, 1); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("C place: expected ErrInsufficientStock, got %v", err)
	}
}
