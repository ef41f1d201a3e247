package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/marketplace/internal/core/domain"
)

// MemoryStore keeps items, orders and accounts in process memory. Stock lives on
// the item record, so it also serves as the InventoryLedger in single-node setups.
type MemoryStore struct {
	mu          sync.Mutex
	items       map[string]domain.Item
	orders      map[string]domain.Order
	accounts    map[string]domain.Account
	idempotency map[string]time.Time
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:       make(map[string]domain.Item),
		orders:      make(map[string]domain.Order),
		accounts:    make(map[string]domain.Account),
		idempotency: make(map[string]time.Time),
		now:         time.Now,
	}
}

func (m *MemoryStore) CreateItem(ctx context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; ok {
		return domain.ErrDuplicateRequest
	}
	m.items[item.ID] = item
	return nil
}

func (m *MemoryStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (m *MemoryStore) DeleteItem(ctx context.Context, itemID, sellerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	if item.SellerID != sellerID {
		return domain.ErrForbidden
	}
	delete(m.items, itemID)
	return nil
}

func (m *MemoryStore) ListItems(ctx context.Context, limit int) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.sortedItems(func(domain.Item) bool { return true })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryStore) ListItemsBySeller(ctx context.Context, sellerID string) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedItems(func(it domain.Item) bool { return it.SellerID == sellerID }), nil
}

// sortedItems returns matching items newest first. Caller holds mu.
func (m *MemoryStore) sortedItems(keep func(domain.Item) bool) []domain.Item {
	items := make([]domain.Item, 0, len(m.items))
	for _, it := range m.items {
		if keep(it) {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

// Reserve is the in-memory compare-and-decrement.
func (m *MemoryStore) Reserve(ctx context.Context, itemID string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	if item.AvailableQuantity < amount {
		return domain.ErrInsufficientStock
	}
	item.AvailableQuantity -= amount
	item.UpdatedAt = m.now()
	m.items[itemID] = item
	return nil
}

func (m *MemoryStore) Release(ctx context.Context, itemID string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	item.AvailableQuantity += amount
	item.UpdatedAt = m.now()
	m.items[itemID] = item
	return nil
}

func (m *MemoryStore) Available(ctx context.Context, itemID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return item.AvailableQuantity, nil
}

func (m *MemoryStore) Seed(ctx context.Context, itemID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	item.AvailableQuantity = quantity
	m.items[itemID] = item
	return nil
}

// Remove is a no-op: the stock disappears with the item record.
func (m *MemoryStore) Remove(ctx context.Context, itemID string) error {
	return nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return domain.ErrDuplicateRequest
	}
	m.orders[order.ID] = order
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &order, nil
}

func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok || order.Status != from {
		return domain.ErrIllegalTransition
	}
	order.Status = to
	order.UpdatedAt = m.now()
	m.orders[orderID] = order
	return nil
}

func (m *MemoryStore) DeleteOrder(ctx context.Context, orderID string, from domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok || order.Status != from {
		return domain.ErrIllegalTransition
	}
	delete(m.orders, orderID)
	return nil
}

func (m *MemoryStore) CustomerOrders(ctx context.Context, customerID string) ([]domain.OrderView, error) {
	return m.orderViews(func(o domain.Order) bool { return o.CustomerID == customerID }), nil
}

func (m *MemoryStore) SellerOrders(ctx context.Context, sellerID string) ([]domain.OrderView, error) {
	return m.orderViews(func(o domain.Order) bool { return o.SellerID == sellerID }), nil
}

func (m *MemoryStore) orderViews(keep func(domain.Order) bool) []domain.OrderView {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]domain.OrderView, 0)
	for _, o := range m.orders {
		if !keep(o) {
			continue
		}
		view := domain.OrderView{Order: o}
		if item, ok := m.items[o.ItemID]; ok {
			view.ItemName = item.Name
			view.ItemCategory = item.Category
			view.ItemImageURL = item.ImageURL
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}

func (m *MemoryStore) CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.accounts[account.ID]; ok {
		return &existing, nil
	}
	m.accounts[account.ID] = account
	return &account, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &account, nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, excludeID string) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]domain.Account, 0, len(m.accounts))
	for id, a := range m.accounts {
		if id != excludeID {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (m *MemoryStore) RequestUpgrade(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	if account.UpgradeStatus == domain.UpgradeStatusRequested {
		return domain.ErrDuplicateRequest
	}
	account.UpgradeStatus = domain.UpgradeStatusRequested
	account.UpdatedAt = m.now()
	m.accounts[accountID] = account
	return nil
}

func (m *MemoryStore) ResolveUpgrade(ctx context.Context, accountID string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	account.Role = role
	account.UpgradeStatus = domain.UpgradeStatusVerified
	account.UpdatedAt = m.now()
	m.accounts[accountID] = account
	return nil
}

func (m *MemoryStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.idempotency[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.idempotency[key] = now.Add(idempotencyKeyTTL)
	return true, nil
}

func (m *MemoryStore) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotency, key)
	return nil
}
