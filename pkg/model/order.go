package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus mirrors the backend's order states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDIENTE"
	OrderStatusProcessing OrderStatus = "PROCESANDO"
	OrderStatusShipped    OrderStatus = "ENVIADO"
	OrderStatusDelivered  OrderStatus = "ENTREGADO"
	OrderStatusCancelled  OrderStatus = "CANCELADO"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether s is one of the five known states.
func (s OrderStatus) Valid() bool {
	for _, v := range orderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type OrderLine struct {
	ID        int64           `json:"id"`
	Product   Product         `json:"producto"`
	Quantity  int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precioUnitario"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID              int64           `json:"id"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"estado"`
	ShippingAddress string          `json:"direccionEnvio"`
	Notes           string          `json:"notas"`
	Lines           []OrderLine     `json:"detalles"`
	CreatedAt       time.Time       `json:"fechaCreacion"`
	UpdatedAt       time.Time       `json:"fechaActualizacion"`
}

// OrderRequestItem is one line of an order creation request.
type OrderRequestItem struct {
	ProductID int64           `json:"productoId"`
	Quantity  int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precioUnitario"`
}

type OrderRequest struct {
	UserID          int64              `json:"usuarioId"`
	ShippingAddress string             `json:"direccionEnvio"`
	Notes           string             `json:"notas"`
	Items           []OrderRequestItem `json:"items"`
}

// OrderRequestItems maps cart rows to order lines priced at their final price.
func OrderRequestItems(items []CartLineItem) []OrderRequestItem {
	out := make([]OrderRequestItem, 0, len(items))
	for _, it := range items {
		out = append(out, OrderRequestItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.FinalPrice(),
		})
	}
	return out
}
