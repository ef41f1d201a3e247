package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/pkg/metrics"
	"github.com/rl1809/marketplace/internal/port"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

// failingOrders fails order inserts, optionally after writing the row.
type failingOrders struct {
	*storage.MemoryStore
	writeThrough bool
}

func (f *failingOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	if f.writeThrough {
		f.MemoryStore.CreateOrder(ctx, order)
	}
	return errors.New("insert order: driver: bad connection")
}

// flakyLedger fails the first failures releases with a transient error.
type flakyLedger struct {
	*storage.MemoryStore
	failures int32
	calls    atomic.Int32
	seedErr  error
}

func (f *flakyLedger) Release(ctx context.Context, itemID string, amount int) error {
	if f.calls.Add(1) <= f.failures {
		return domain.ErrStoreUnavailable
	}
	return f.MemoryStore.Release(ctx, itemID, amount)
}

func (f *flakyLedger) Seed(ctx context.Context, itemID string, quantity int) error {
	if f.seedErr != nil {
		return f.seedErr
	}
	return f.MemoryStore.Seed(ctx, itemID, quantity)
}

type fixture struct {
	store   *storage.MemoryStore
	pub     *recordingPublisher
	metrics *metrics.Metrics
	m       *Marketplace
}

func testOptions(t *testing.T, pub *recordingPublisher, m *metrics.Metrics) Options {
	return Options{
		Logger:                 zaptest.NewLogger(t),
		Metrics:                m,
		Publisher:              pub,
		StoreTimeout:           time.Second,
		RetryMaxElapsed:        50 * time.Millisecond,
		CompensationMaxElapsed: time.Millisecond,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	return newFixtureWith(t, store, store, store)
}

func newFixtureWith(t *testing.T, store *storage.MemoryStore, backing Store, ledger port.InventoryLedger) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	return &fixture{
		store:   store,
		pub:     pub,
		metrics: m,
		m:       New(backing, ledger, store, testOptions(t, pub, m)),
	}
}

func (f *fixture) account(t *testing.T, id string, role domain.Role) domain.Identity {
	t.Helper()
	ctx := context.Background()
	acc, _ := domain.NewAccount(id, id, time.Now())
	if _, err := f.store.CreateAccount(ctx, *acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if role != domain.RoleCustomer {
		if err := f.store.ResolveUpgrade(ctx, id, role); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	return domain.Authenticated(id)
}

func (f *fixture) item(t *testing.T, seller domain.Identity, qty int, price int64) *domain.Item {
	t.Helper()
	item, err := f.m.Catalog.ListItem(context.Background(), seller, domain.NewItemParams{
		Name:     "Monstera",
		Category: "Indoor",
		Price:    decimal.NewFromInt(price),
		Quantity: qty,
	})
	if err != nil {
		t.Fatalf("list item: %v", err)
	}
	return item
}

func (f *fixture) stock(t *testing.T, itemID string) int {
	t.Helper()
	n, err := f.store.Available(context.Background(), itemID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	return n
}

func (f *fixture) place(t *testing.T, customer domain.Identity, itemID string, qty int) (*domain.Order, error) {
	t.Helper()
	return f.m.Placement.Place(context.Background(), customer, PlaceOrderRequest{
		ItemID:   itemID,
		Quantity: qty,
		Address:  "1 Garden Way",
	})
}
