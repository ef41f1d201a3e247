package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/core/domain"
)

func seedItem(t *testing.T, m *MemoryStore, id, seller string, qty int) {
	t.Helper()
	now := time.Now()
	err := m.CreateItem(context.Background(), domain.Item{
		ID: id, SellerID: seller, Name: id, Price: decimal.NewFromInt(10),
		AvailableQuantity: qty, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
}

func TestMemoryReserve_Concurrent(t *testing.T) {
	m := NewMemoryStore()
	seedItem(t, m, "item-1", "seller-1", 20)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Reserve(context.Background(), "item-1", 1); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 20 {
		t.Errorf("expected 20 successes, got %d", successCount.Load())
	}
	if stock, _ := m.Available(context.Background(), "item-1"); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestMemoryReserve_Errors(t *testing.T) {
	m := NewMemoryStore()
	seedItem(t, m, "item-1", "seller-1", 2)
	ctx := context.Background()

	if err := m.Reserve(ctx, "item-1", 3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	if stock, _ := m.Available(ctx, "item-1"); stock != 2 {
		t.Errorf("failed reserve must not change stock, got %d", stock)
	}
	if err := m.Reserve(ctx, "ghost", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := m.Release(ctx, "ghost", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryOrderStatus_Conditional(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateOrder(ctx, domain.Order{ID: "o-1", Status: domain.OrderStatusPending}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := m.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusPending, domain.OrderStatusInProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.DeleteOrder(ctx, "o-1", domain.OrderStatusPending); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition on stale status, got %v", err)
	}
	if err := m.DeleteOrder(ctx, "o-1", domain.OrderStatusInProgress); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := m.GetOrder(ctx, "o-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected order to be gone, got %v", err)
	}
}

func TestMemoryOrderStatus_DeletedRowIsIllegalTransition(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateOrder(ctx, domain.Order{ID: "o-1", Status: domain.OrderStatusPending}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := m.DeleteOrder(ctx, "o-1", domain.OrderStatusPending); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// A writer that read the order before the delete loses at the conditional write.
	if err := m.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusPending, domain.OrderStatusInProgress); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}
	if err := m.DeleteOrder(ctx, "o-1", domain.OrderStatusPending); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestMemoryDeleteItem_Ownership(t *testing.T) {
	m := NewMemoryStore()
	seedItem(t, m, "item-1", "seller-1", 1)
	ctx := context.Background()

	if err := m.DeleteItem(ctx, "item-1", "seller-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := m.DeleteItem(ctx, "ghost", "seller-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := m.DeleteItem(ctx, "item-1", "seller-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMemoryAccounts_UpgradeFlow(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	acc, _ := domain.NewAccount("acc-1", "Ada", time.Now())

	if _, err := m.CreateAccount(ctx, *acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	again, err := m.CreateAccount(ctx, domain.Account{ID: "acc-1", Role: domain.RoleAdmin})
	if err != nil || again.Role != domain.RoleCustomer {
		t.Fatalf("re-registering must keep the stored account, got %+v (%v)", again, err)
	}

	if err := m.RequestUpgrade(ctx, "acc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.RequestUpgrade(ctx, "acc-1"); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got %v", err)
	}
	if err := m.ResolveUpgrade(ctx, "acc-1", domain.RoleSeller); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := m.GetAccount(ctx, "acc-1")
	if got.Role != domain.RoleSeller || got.UpgradeStatus != domain.UpgradeStatusVerified {
		t.Errorf("unexpected account %+v", got)
	}
	if err := m.ResolveUpgrade(ctx, "ghost", domain.RoleSeller); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryOrderViews(t *testing.T) {
	m := NewMemoryStore()
	seedItem(t, m, "item-1", "seller-1", 5)
	ctx := context.Background()

	m.CreateOrder(ctx, domain.Order{ID: "o-1", ItemID: "item-1", CustomerID: "c-1", SellerID: "seller-1"})
	m.CreateOrder(ctx, domain.Order{ID: "o-2", ItemID: "item-1", CustomerID: "c-2", SellerID: "seller-1"})

	views, _ := m.CustomerOrders(ctx, "c-1")
	if len(views) != 1 || views[0].ItemName != "item-1" {
		t.Errorf("unexpected customer views %+v", views)
	}
	views, _ = m.SellerOrders(ctx, "seller-1")
	if len(views) != 2 {
		t.Errorf("expected 2 seller views, got %d", len(views))
	}
}

func TestMemoryIdempotency(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if ok, _ := m.SetIdempotency(ctx, "k"); !ok {
		t.Fatal("expected first claim to succeed")
	}
	if ok, _ := m.SetIdempotency(ctx, "k"); ok {
		t.Fatal("expected replay to be rejected")
	}
	m.ClearIdempotency(ctx, "k")
	if ok, _ := m.SetIdempotency(ctx, "k"); !ok {
		t.Fatal("expected claim after clear to succeed")
	}
}
