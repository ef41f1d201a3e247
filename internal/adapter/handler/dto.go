package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/core/domain"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type ItemResponse struct {
	ID                string          `json:"id"`
	SellerID          string          `json:"seller_id"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	Description       string          `json:"description,omitempty"`
	ImageURL          string          `json:"image_url,omitempty"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int             `json:"available_quantity"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toItemResponse(it domain.Item) ItemResponse {
	return ItemResponse{
		ID:                it.ID,
		SellerID:          it.SellerID,
		Name:              it.Name,
		Category:          it.Category,
		Description:       it.Description,
		ImageURL:          it.ImageURL,
		Price:             it.Price,
		AvailableQuantity: it.AvailableQuantity,
		CreatedAt:         it.CreatedAt,
	}
}

type OrderResponse struct {
	ID           string             `json:"id"`
	ItemID       string             `json:"item_id"`
	CustomerID   string             `json:"customer_id"`
	SellerID     string             `json:"seller_id"`
	Quantity     int                `json:"quantity"`
	Price        decimal.Decimal    `json:"price"`
	Status       domain.OrderStatus `json:"status"`
	Address      string             `json:"address"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	ItemName     string             `json:"item_name,omitempty"`
	ItemCategory string             `json:"item_category,omitempty"`
	ItemImageURL string             `json:"item_image_url,omitempty"`
}

func toOrderResponse(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:         o.ID,
		ItemID:     o.ItemID,
		CustomerID: o.CustomerID,
		SellerID:   o.SellerID,
		Quantity:   o.Quantity,
		Price:      o.Price,
		Status:     o.Status,
		Address:    o.Address,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func toOrderViewResponse(v domain.OrderView) OrderResponse {
	r := toOrderResponse(v.Order)
	r.ItemName = v.ItemName
	r.ItemCategory = v.ItemCategory
	r.ItemImageURL = v.ItemImageURL
	return r
}

type AccountResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Role          domain.Role          `json:"role"`
	UpgradeStatus domain.UpgradeStatus `json:"upgrade_status"`
	CreatedAt     time.Time            `json:"created_at"`
}

func toAccountResponse(a domain.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		Name:          a.Name,
		Role:          a.Role,
		UpgradeStatus: a.UpgradeStatus,
		CreatedAt:     a.CreatedAt,
	}
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
