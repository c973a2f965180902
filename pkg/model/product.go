package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
	ImageRef    string `json:"imagen,omitempty"`
	Active      bool   `json:"activo"`
}

type Product struct {
	ID              int64           `json:"id"`
	Name            string          `json:"titulo"`
	Description     string          `json:"descripcion"`
	Price           decimal.Decimal `json:"precio"`
	ImageRef        string          `json:"imagen"`
	Offer           bool            `json:"oferta"`
	DiscountPercent int             `json:"descuento,omitempty"`
	Category        *Category       `json:"categoria,omitempty"`
}

// LineItem snapshots the product into a quantity-1 cart row. The discount only
// carries over while the product is on offer.
func (p Product) LineItem() CartLineItem {
	item := CartLineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		ImageRef:  p.ImageRef,
		Quantity:  1,
	}
	if p.Offer && p.DiscountPercent > 0 {
		item.DiscountPercent = p.DiscountPercent
	}
	return item
}

// OnOffer returns up to limit products with an active discount, in order.
// It stands in for the featured list when the backend cannot provide one.
func OnOffer(products []Product, limit int) []Product {
	out := make([]Product, 0, limit)
	for _, p := range products {
		if len(out) == limit {
			break
		}
		if p.Offer && p.DiscountPercent > 0 {
			out = append(out, p)
		}
	}
	return out
}

// CategoryRef points a product at an existing category.
type CategoryRef struct {
	ID int64 `json:"id"`
}

// ProductInput is the body of a product create or replace.
type ProductInput struct {
	Name            string          `json:"titulo" validate:"required,max=120"`
	Description     string          `json:"descripcion" validate:"max=2000"`
	Price           decimal.Decimal `json:"precio"`
	ImageRef        string          `json:"imagen"`
	Offer           bool            `json:"oferta"`
	DiscountPercent int             `json:"descuento" validate:"min=0,max=100"`
	Category        *CategoryRef    `json:"categoria,omitempty"`
}

// CategoryInput is the body of a category create or replace.
type CategoryInput struct {
	Name        string `json:"nombre" validate:"required,max=80"`
	Description string `json:"descripcion" validate:"max=500"`
	ImageRef    string `json:"imagen"`
	Active      bool   `json:"activo"`
}

// Identity is what the client knows about the logged in user. It is decoded
// from an unverified token and is a display hint only.
type Identity struct {
	UserID    int64
	Email     string
	Role      string
	ExpiresAt time.Time
}
