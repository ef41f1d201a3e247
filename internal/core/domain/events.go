package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a lifecycle notification published after a state change commits.
type Event interface {
	EventName() string
	EventKey() string
}

type OrderPlacedEvent struct {
	OrderID    string          `json:"order_id"`
	ItemID     string          `json:"item_id"`
	CustomerID string          `json:"customer_id"`
	SellerID   string          `json:"seller_id"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (OrderPlacedEvent) EventName() string  { return "order.placed" }
func (e OrderPlacedEvent) EventKey() string { return e.OrderID }

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:    o.ID,
		ItemID:     o.ItemID,
		CustomerID: o.CustomerID,
		SellerID:   o.SellerID,
		Quantity:   o.Quantity,
		Price:      o.Price,
		OccurredAt: time.Now().UTC(),
	}
}

type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	ItemID      string    `json:"item_id"`
	Quantity    int       `json:"quantity"`
	CancelledBy string    `json:"cancelled_by"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (OrderCancelledEvent) EventName() string  { return "order.cancelled" }
func (e OrderCancelledEvent) EventKey() string { return e.OrderID }

type OrderStatusChangedEvent struct {
	OrderID    string      `json:"order_id"`
	From       OrderStatus `json:"from"`
	To         OrderStatus `json:"to"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func (OrderStatusChangedEvent) EventName() string  { return "order.status_changed" }
func (e OrderStatusChangedEvent) EventKey() string { return e.OrderID }

// StockReconciliationEvent reports a release that must be applied by an operator.
type StockReconciliationEvent struct {
	OrderID    string    `json:"order_id"`
	ItemID     string    `json:"item_id"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StockReconciliationEvent) EventName() string  { return "inventory.reconciliation_required" }
func (e StockReconciliationEvent) EventKey() string { return e.ItemID }

// StockRelease is a pending compensating release of reserved stock.
type StockRelease struct {
	OrderID  string
	ItemID   string
	Quantity int
	Reason   string
}
