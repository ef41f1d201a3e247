package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places a price may carry.
const PriceScale = 2

type Item struct {
	ID                string
	SellerID          string
	Name              string
	Category          string
	Description       string
	ImageURL          string
	Price             decimal.Decimal
	AvailableQuantity int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type NewItemParams struct {
	Name        string
	Category    string
	Description string
	ImageURL    string
	Price       decimal.Decimal
	Quantity    int
}

func NewItem(id, sellerID string, p NewItemParams, now time.Time) (*Item, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidArgument)
	}
	if p.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must be zero or greater", ErrInvalidArgument)
	}
	if !p.Price.Equal(p.Price.Truncate(PriceScale)) {
		return nil, fmt.Errorf("%w: price has more than %d decimal places", ErrInvalidArgument, PriceScale)
	}
	if p.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be zero or greater", ErrInvalidQuantity)
	}

	return &Item{
		ID:                id,
		SellerID:          sellerID,
		Name:              name,
		Category:          strings.TrimSpace(p.Category),
		Description:       p.Description,
		ImageURL:          p.ImageURL,
		Price:             p.Price,
		AvailableQuantity: p.Quantity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}
