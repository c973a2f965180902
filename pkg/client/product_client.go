package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/asteruwu/cartsync/pkg/model"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// productDTO accepts both "titulo" and "nombre"; the backend is not
// consistent about which one it sends.
type productDTO struct {
	ID          int64           `json:"id"`
	Title       string          `json:"titulo"`
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	Price       decimal.Decimal `json:"precio"`
	Image       string          `json:"imagen"`
	Offer       bool            `json:"oferta"`
	Discount    *int            `json:"descuento"`
	Category    *model.Category `json:"categoria"`
}

func (p productDTO) toModel() model.Product {
	name := p.Title
	if name == "" {
		name = p.Name
	}
	out := model.Product{
		ID:          p.ID,
		Name:        name,
		Description: p.Description,
		Price:       p.Price,
		ImageRef:    p.Image,
		Offer:       p.Offer,
		Category:    p.Category,
	}
	if p.Discount != nil {
		out.DiscountPercent = *p.Discount
	}
	return out
}

func productsToModel(dtos []productDTO) []model.Product {
	out := make([]model.Product, len(dtos))
	for i, d := range dtos {
		out[i] = d.toModel()
	}
	return out
}

func productPath(id int64) string { return "/api/productos/" + strconv.FormatInt(id, 10) }

func (c *Client) listProducts(ctx context.Context, path string, query url.Values, what string) ([]model.Product, error) {
	var dtos []productDTO
	if err := c.do(ctx, http.MethodGet, path, query, nil, &dtos); err != nil {
		return nil, pkgerrors.Wrapf(err, "could not retrieve %s", what)
	}
	return productsToModel(dtos), nil
}

func (c *Client) ListProducts(ctx context.Context) ([]model.Product, error) {
	return c.listProducts(ctx, "/api/productos", nil, "products")
}

func (c *Client) FeaturedProducts(ctx context.Context) ([]model.Product, error) {
	return c.listProducts(ctx, "/api/productos/destacados", nil, "featured products")
}

// SearchProducts matches keyword against product names and descriptions.
func (c *Client) SearchProducts(ctx context.Context, keyword string) ([]model.Product, error) {
	return c.listProducts(ctx, "/api/productos/buscar", url.Values{"keyword": []string{keyword}}, "search results")
}

func (c *Client) ProductsByCategory(ctx context.Context, categoryID int64) ([]model.Product, error) {
	return c.listProducts(ctx, fmt.Sprintf("/api/productos/categoria/%d", categoryID), nil, fmt.Sprintf("products of category #%d", categoryID))
}

func (c *Client) CreateProduct(ctx context.Context, in model.ProductInput) (model.Product, error) {
	var dto productDTO
	if err := c.do(ctx, http.MethodPost, "/api/productos", nil, in, &dto); err != nil {
		return model.Product{}, pkgerrors.Wrap(err, "could not create product")
	}
	return dto.toModel(), nil
}

// UpdateProduct replaces every field of the product.
func (c *Client) UpdateProduct(ctx context.Context, id int64, in model.ProductInput) (model.Product, error) {
	var dto productDTO
	if err := c.do(ctx, http.MethodPut, productPath(id), nil, in, &dto); err != nil {
		return model.Product{}, pkgerrors.Wrapf(err, "could not update product #%d", id)
	}
	return dto.toModel(), nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, productPath(id), nil, nil, nil); err != nil {
		return pkgerrors.Wrapf(err, "could not delete product #%d", id)
	}
	return nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (model.Product, error) {
	var dto productDTO
	if err := c.do(ctx, http.MethodGet, productPath(id), nil, nil, &dto); err != nil {
		return model.Product{}, pkgerrors.Wrapf(err, "could not retrieve product #%d", id)
	}
	return dto.toModel(), nil
}

// GetProducts fetches several products concurrently, preserving order.
func (c *Client) GetProducts(ctx context.Context, ids []int64) ([]model.Product, error) {
	g, groupCtx := errgroup.WithContext(ctx)
	results := make([]model.Product, len(ids))
	for i, id := range ids {
		index, value := i, id
		g.Go(func() error {
			p, err := c.GetProduct(groupCtx, value)
			if err != nil {
				return err
			}
			results[index] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
