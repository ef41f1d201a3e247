package port

import (
	"context"

	"github.com/rl1809/marketplace/internal/core/domain"
)

type ItemRepository interface {
	CreateItem(ctx context.Context, item domain.Item) error

	// GetItem returns domain.ErrNotFound when the item does not exist
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)

	// DeleteItem removes the item only if it belongs to sellerID.
	// Returns domain.ErrNotFound or domain.ErrForbidden when nothing was deleted.
	DeleteItem(ctx context.Context, itemID, sellerID string) error

	ListItems(ctx context.Context, limit int) ([]domain.Item, error)

	ListItemsBySeller(ctx context.Context, sellerID string) ([]domain.Item, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) error

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateOrderStatus sets status to `to` only while the stored status still equals `from`.
	// Returns domain.ErrIllegalTransition when the precondition no longer holds.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error

	// DeleteOrder removes the order only while its stored status still equals `from`.
	// Returns domain.ErrIllegalTransition when the precondition no longer holds.
	DeleteOrder(ctx context.Context, orderID string, from domain.OrderStatus) error
}

type AccountRepository interface {
	// CreateAccount inserts the account unless one already exists; the stored account is returned
	CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error)

	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)

	ListAccounts(ctx context.Context, excludeID string) ([]domain.Account, error)

	// RequestUpgrade flags the account as Requested.
	// Returns domain.ErrDuplicateRequest if it already is.
	RequestUpgrade(ctx context.Context, accountID string) error

	// ResolveUpgrade sets the role and marks the request Verified
	ResolveUpgrade(ctx context.Context, accountID string, role domain.Role) error
}

// OrderViewRepository is the read-side join of orders with item metadata.
type OrderViewRepository interface {
	CustomerOrders(ctx context.Context, customerID string) ([]domain.OrderView, error)
	SellerOrders(ctx context.Context, sellerID string) ([]domain.OrderView, error)
}
