package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

type Operation string

const (
	OpListItem       Operation = "list_item"
	OpDeleteItem     Operation = "delete_item"
	OpSellerItems    Operation = "seller_items"
	OpPlaceOrder     Operation = "place_order"
	OpCancelOrder    Operation = "cancel_order"
	OpAdvanceOrder   Operation = "advance_order"
	OpCustomerOrders Operation = "customer_orders"
	OpSellerOrders   Operation = "seller_orders"
	OpRequestUpgrade Operation = "request_upgrade"
	OpResolveUpgrade Operation = "resolve_upgrade"
	OpListAccounts   Operation = "list_accounts"
)

// anyRole marks operations open to every registered account.
const anyRole domain.Role = ""

// permissions is the complete permission matrix. Ownership checks happen in the use cases.
var permissions = map[Operation]domain.Role{
	OpListItem:       domain.RoleSeller,
	OpDeleteItem:     domain.RoleSeller,
	OpSellerItems:    domain.RoleSeller,
	OpAdvanceOrder:   domain.RoleSeller,
	OpSellerOrders:   domain.RoleSeller,
	OpPlaceOrder:     anyRole,
	OpCancelOrder:    anyRole,
	OpCustomerOrders: anyRole,
	OpRequestUpgrade: anyRole,
	OpResolveUpgrade: domain.RoleAdmin,
	OpListAccounts:   domain.RoleAdmin,
}

// Gate authorizes an identity for an operation against the caller's stored role.
type Gate struct {
	accounts port.AccountRepository
	rt       runtime
}

func NewGate(accounts port.AccountRepository, opts Options) *Gate {
	return &Gate{accounts: accounts, rt: newRuntime(opts)}
}

// Authorize returns the caller's account when allowed. It never mutates state.
func (g *Gate) Authorize(ctx context.Context, id domain.Identity, op Operation) (*domain.Account, error) {
	if !id.Authenticated || id.AccountID == "" {
		return nil, domain.ErrUnauthorized
	}

	required, ok := permissions[op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation %q", domain.ErrForbidden, op)
	}

	var account *domain.Account
	err := g.rt.read(ctx, func(ctx context.Context) error {
		var err error
		account, err = g.accounts.GetAccount(ctx, id.AccountID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: no account for %s", domain.ErrForbidden, id.AccountID)
	}
	if err != nil {
		return nil, err
	}

	if required != anyRole && account.Role != required {
		return nil, fmt.Errorf("%w: %s requires %s role", domain.ErrForbidden, op, required)
	}
	return account, nil
}
