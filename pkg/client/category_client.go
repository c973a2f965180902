package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/asteruwu/cartsync/pkg/model"

	pkgerrors "github.com/pkg/errors"
)

func categoryPath(id int64) string { return fmt.Sprintf("/api/categorias/%d", id) }

func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	if err := c.do(ctx, http.MethodGet, "/api/categorias", nil, nil, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "could not retrieve categories")
	}
	return out, nil
}

func (c *Client) GetCategory(ctx context.Context, id int64) (model.Category, error) {
	var out model.Category
	if err := c.do(ctx, http.MethodGet, categoryPath(id), nil, nil, &out); err != nil {
		return model.Category{}, pkgerrors.Wrapf(err, "could not retrieve category #%d", id)
	}
	return out, nil
}

func (c *Client) CreateCategory(ctx context.Context, in model.CategoryInput) (model.Category, error) {
	var out model.Category
	if err := c.do(ctx, http.MethodPost, "/api/categorias", nil, in, &out); err != nil {
		return model.Category{}, pkgerrors.Wrap(err, "could not create category")
	}
	return out, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, in model.CategoryInput) (model.Category, error) {
	var out model.Category
	if err := c.do(ctx, http.MethodPut, categoryPath(id), nil, in, &out); err != nil {
		return model.Category{}, pkgerrors.Wrapf(err, "could not update category #%d", id)
	}
	return out, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, categoryPath(id), nil, nil, nil); err != nil {
		return pkgerrors.Wrapf(err, "could not delete category #%d", id)
	}
	return nil
}
