package port

import "context"

type InventoryLedger interface {
	// Reserve atomically decrements available stock only if at least amount is left.
	// Returns domain.ErrInsufficientStock or domain.ErrNotFound otherwise.
	Reserve(ctx context.Context, itemID string, amount int) error

	// Release restores stock (compensating action for a cancelled or failed order)
	Release(ctx context.Context, itemID string, amount int) error

	// Available returns the current available quantity
	Available(ctx context.Context, itemID string) (int, error)

	// Seed initializes the ledger entry for a newly listed item
	Seed(ctx context.Context, itemID string, quantity int) error

	// Remove drops the ledger entry of a deleted item
	Remove(ctx context.Context, itemID string) error
}
