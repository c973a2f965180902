package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/asteruwu/cartsync/pkg/model"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type orderLineDTO struct {
	ID        int64           `json:"id"`
	Product   productDTO      `json:"producto"`
	Quantity  int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precioUnitario"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type orderDTO struct {
	model.Order
	Lines []orderLineDTO `json:"detalles"`
}

func (o orderDTO) toModel() model.Order {
	out := o.Order
	out.Lines = make([]model.OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		out.Lines = append(out.Lines, model.OrderLine{
			ID:        l.ID,
			Product:   l.Product.toModel(),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		})
	}
	return out
}

func ordersToModel(dtos []orderDTO) []model.Order {
	out := make([]model.Order, len(dtos))
	for i, d := range dtos {
		out[i] = d.toModel()
	}
	return out
}

// CreateOrder submits an order and returns what the backend stored.
func (c *Client) CreateOrder(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	var dto orderDTO
	if err := c.do(ctx, http.MethodPost, "/api/pedidos", nil, req, &dto); err != nil {
		return model.Order{}, pkgerrors.Wrap(err, "could not create order")
	}
	return dto.toModel(), nil
}

func (c *Client) ListOrders(ctx context.Context) ([]model.Order, error) {
	var dtos []orderDTO
	if err := c.do(ctx, http.MethodGet, "/api/pedidos", nil, nil, &dtos); err != nil {
		return nil, pkgerrors.Wrap(err, "could not retrieve orders")
	}
	return ordersToModel(dtos), nil
}

func (c *Client) ListUserOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	var dtos []orderDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/pedidos/usuario/%d", userID), nil, nil, &dtos); err != nil {
		return nil, pkgerrors.Wrapf(err, "could not retrieve orders of user #%d", userID)
	}
	return ordersToModel(dtos), nil
}

func (c *Client) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	var dto orderDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/pedidos/%d", id), nil, nil, &dto); err != nil {
		return model.Order{}, pkgerrors.Wrapf(err, "could not retrieve order #%d", id)
	}
	return dto.toModel(), nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	var dto orderDTO
	q := url.Values{"estado": []string{string(status)}}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/pedidos/%d/estado", id), q, nil, &dto); err != nil {
		return model.Order{}, pkgerrors.Wrapf(err, "could not update order #%d", id)
	}
	return dto.toModel(), nil
}
