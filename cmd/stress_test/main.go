package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
	"github.com/rl1809/marketplace/internal/pkg/logging"
	"github.com/rl1809/marketplace/internal/port"
)

const (
	sellerID      = "stress-seller"
	initialStock  = 20
	totalRequests = 50
	lastUnitStock = 5
)

// Drives concurrent placements against one item and checks that exactly the
// available stock is sold. Uses the Redis ledger when REDIS_ADDR is reachable.
func main() {
	ctx := context.Background()
	logger := logging.MustNewLogger("marketplace-stress", "stress", "warn")
	defer logger.Sync()

	store := storage.NewMemoryStore()
	var ledger port.InventoryLedger = store
	var idempotency port.IdempotencyStore = store
	ledgerName := "memory"

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis_unavailable", zap.Error(err))
		}
		adapter := storage.NewRedisAdapter(rdb)
		ledger, idempotency, ledgerName = adapter, adapter, "redis"
	}

	m := service.New(store, ledger, idempotency, service.Options{Logger: logger})

	seller := domain.Authenticated(sellerID)
	if _, err := m.Accounts.Register(ctx, seller, sellerID); err != nil {
		logger.Fatal("register_seller_failed", zap.Error(err))
	}
	if err := store.ResolveUpgrade(ctx, sellerID, domain.RoleSeller); err != nil {
		logger.Fatal("promote_seller_failed", zap.Error(err))
	}

	ok := true
	ok = runScenario(ctx, m, ledger, "many buyers", initialStock, totalRequests, 1) && ok
	ok = runScenario(ctx, m, ledger, "last unit race", lastUnitStock, 2, lastUnitStock) && ok

	fmt.Printf("Ledger: %s\n", ledgerName)
	if !ok {
		os.Exit(1)
	}
}

func runScenario(ctx context.Context, m *service.Marketplace, ledger port.InventoryLedger, name string, stock, buyers, quantity int) bool {
	seller := domain.Authenticated(sellerID)
	item, err := m.Catalog.ListItem(ctx, seller, domain.NewItemParams{
		Name:     "Stress " + name,
		Category: "Test",
		Price:    decimal.NewFromInt(1),
		Quantity: stock,
	})
	if err != nil {
		fmt.Printf("FAIL: list item: %v\n", err)
		return false
	}
	defer m.Catalog.DeleteItem(ctx, seller, item.ID)

	for i := 0; i < buyers; i++ {
		id := fmt.Sprintf("buyer-%d", i)
		if _, err := m.Accounts.Register(ctx, domain.Authenticated(id), id); err != nil {
			fmt.Printf("FAIL: register %s: %v\n", id, err)
			return false
		}
	}

	var success, soldOut, other atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Placement.Place(ctx, domain.Authenticated(fmt.Sprintf("buyer-%d", i)), service.PlaceOrderRequest{
				ItemID:   item.ID,
				Quantity: quantity,
				Address:  "1 Stress Lane",
			})
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOut.Add(1)
			default:
				other.Add(1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	wantSuccess := int32(stock / quantity)
	if wantSuccess > int32(buyers) {
		wantSuccess = int32(buyers)
	}
	remaining, err := ledger.Available(ctx, item.ID)
	if err != nil {
		fmt.Printf("FAIL: read stock: %v\n", err)
		return false
	}

	fmt.Printf("========== %s ==========\n", name)
	fmt.Printf("Initial Stock:    %d\n", stock)
	fmt.Printf("Requests:         %d x %d\n", buyers, quantity)
	fmt.Printf("Successful:       %d\n", success.Load())
	fmt.Printf("Sold Out:         %d\n", soldOut.Load())
	fmt.Printf("Other Errors:     %d\n", other.Load())
	fmt.Printf("Remaining Stock:  %d\n", remaining)
	fmt.Printf("Duration:         %v\n", elapsed)

	pass := success.Load() == wantSuccess &&
		soldOut.Load() == int32(buyers)-wantSuccess &&
		remaining == stock-int(wantSuccess)*quantity
	if pass {
		fmt.Println("PASS")
	} else {
		fmt.Printf("FAIL: expected %d successful orders and %d remaining\n", wantSuccess, stock-int(wantSuccess)*quantity)
	}
	return pass
}
