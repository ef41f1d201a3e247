package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// transitions is the complete lifecycle table. Delivered and Cancelled are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusInProgress, OrderStatusCancelled},
	OrderStatusInProgress: {OrderStatusDelivered, OrderStatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusDelivered, OrderStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidArgument, s)
}

func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition checks the lifecycle table and returns the new state.
// Cancelling a delivered order fails with ErrAlreadyFulfilled.
func Transition(from, to OrderStatus) (OrderStatus, error) {
	if from == OrderStatusDelivered && to == OrderStatusCancelled {
		return from, ErrAlreadyFulfilled
	}
	if !from.CanTransitionTo(to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return to, nil
}

type Order struct {
	ID         string
	ItemID     string
	CustomerID string
	SellerID   string
	Quantity   int
	Price      decimal.Decimal // total, snapshot at placement
	Status     OrderStatus
	Address    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewOrder builds a pending order against item, snapshotting seller and total price.
func NewOrder(id string, item *Item, customerID string, quantity int, address string, now time.Time) (*Order, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if item == nil {
		return nil, ErrNotFound
	}

	return &Order{
		ID:         id,
		ItemID:     item.ID,
		CustomerID: customerID,
		SellerID:   item.SellerID,
		Quantity:   quantity,
		Price:      item.Price.Mul(decimal.NewFromInt(int64(quantity))),
		Status:     OrderStatusPending,
		Address:    address,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// OrderView is an order enriched with item metadata for display.
type OrderView struct {
	Order
	ItemName     string
	ItemCategory string
	ItemImageURL string
}
