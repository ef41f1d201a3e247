package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rl1809/marketplace/internal/core/domain"
)

func TestOrderViews(t *testing.T) {
	f := newFixture(t)
	seller := f.account(t, "seller-1", domain.RoleSeller)
	customer := f.account(t, "customer-1", domain.RoleCustomer)
	item := f.item(t, seller, 5, 10)
	ctx := context.Background()

	if _, err := f.place(t, customer, item.ID, 2); err != nil {
		t.Fatalf("place: %v", err)
	}

	mine, err := f.m.Views.CustomerOrders(ctx, customer)
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected 1 customer order, got %d (%v)", len(mine), err)
	}
	if mine[0].ItemName != "Monstera" || mine[0].ItemCategory != "Indoor" {
		t.Errorf("expected item metadata, got %+v", mine[0])
	}

	sold, err := f.m.Views.SellerOrders(ctx, seller)
	if err != nil || len(sold) != 1 {
		t.Fatalf("expected 1 seller order, got %d (%v)", len(sold), err)
	}

	if _, err := f.m.Views.SellerOrders(ctx, customer); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}
