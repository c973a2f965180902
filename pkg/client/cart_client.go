package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/asteruwu/cartsync/pkg/model"

	pkgerrors "github.com/pkg/errors"
)

type cartItemDTO struct {
	Product  productDTO `json:"producto"`
	Quantity int        `json:"cantidad"`
}

// cartDTO decodes either {"items": [...]} or a bare array of items.
type cartDTO struct {
	Items []cartItemDTO
}

func (c *cartDTO) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &c.Items)
	}
	var obj struct {
		Items []cartItemDTO `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	c.Items = obj.Items
	return nil
}

func (c cartDTO) lineItems() []model.CartLineItem {
	out := make([]model.CartLineItem, 0, len(c.Items))
	for _, it := range c.Items {
		item := it.Product.toModel().LineItem()
		item.Quantity = it.Quantity
		out = append(out, item)
	}
	return out
}

// GetCart fetches the user's server-side cart.
func (c *Client) GetCart(ctx context.Context, userID int64) ([]model.CartLineItem, error) {
	var dto cartDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/carrito/%d", userID), nil, nil, &dto); err != nil {
		return nil, pkgerrors.Wrap(err, "could not retrieve cart")
	}
	return dto.lineItems(), nil
}

func (c *Client) AddItem(ctx context.Context, userID, productID int64) error {
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/carrito/%d/%d", userID, productID), nil, nil, nil)
	return pkgerrors.Wrapf(err, "failed to add product #%d to cart", productID)
}

func (c *Client) RemoveItem(ctx context.Context, userID, productID int64) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/carrito/%d/%d", userID, productID), nil, nil, nil)
	return pkgerrors.Wrapf(err, "failed to remove product #%d from cart", productID)
}

func (c *Client) EmptyCart(ctx context.Context, userID int64) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/carritovacio/%d", userID), nil, nil, nil)
	return pkgerrors.Wrap(err, "failed to empty cart")
}

func (c *Client) Increase(ctx context.Context, userID, productID int64) error {
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/carrito/increase/%d/%d", userID, productID), nil, nil, nil)
	return pkgerrors.Wrapf(err, "failed to increase product #%d", productID)
}

func (c *Client) Decrease(ctx context.Context, userID, productID int64) error {
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/carrito/decrease/%d/%d", userID, productID), nil, nil, nil)
	return pkgerrors.Wrapf(err, "failed to decrease product #%d", productID)
}
