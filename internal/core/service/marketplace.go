package service

import "github.com/rl1809/marketplace/internal/port"

// Store is the system of record behind the marketplace.
type Store interface {
	port.ItemRepository
	port.OrderRepository
	port.AccountRepository
	port.OrderViewRepository
}

// Marketplace wires every use case over one store and one inventory ledger.
type Marketplace struct {
	Gate         *Gate
	Accounts     *AccountService
	Catalog      *CatalogService
	Placement    *PlacementPipeline
	Cancellation *CancellationPipeline
	Fulfillment  *FulfillmentService
	Views        *OrderViewService
	// Reconciler is nil when ReconcileWorkers is zero; failed releases are then escalated directly.
	Reconciler *Reconciler
}

func New(store Store, ledger port.InventoryLedger, idempotency port.IdempotencyStore, opts Options) *Marketplace {
	opts = opts.withDefaults()

	var reconciler *Reconciler
	if opts.ReconcileWorkers > 0 {
		reconciler = NewReconciler(ledger, opts.ReconcileWorkers, opts.ReconcileQueueSize, opts)
	}

	gate := NewGate(store, opts)
	compensator := NewCompensator(ledger, reconciler, opts)

	return &Marketplace{
		Gate:         gate,
		Accounts:     NewAccountService(gate, store, opts),
		Catalog:      NewCatalogService(gate, store, ledger, opts),
		Placement:    NewPlacementPipeline(gate, store, store, ledger, idempotency, compensator, opts),
		Cancellation: NewCancellationPipeline(gate, store, compensator, opts),
		Fulfillment:  NewFulfillmentService(gate, store, opts),
		Views:        NewOrderViewService(gate, store, opts),
		Reconciler:   reconciler,
	}
}
