package service

import (
	"context"
	"errors"
	"strings"

	"github.com/asteruwu/cartsync/pkg/model"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FeaturedFallback is how many on-offer products stand in for the featured
// list when the backend cannot serve it.
const FeaturedFallback = 4

var ErrInvalidInput = errors.New("service: invalid catalog input")

var validate = validator.New()

type CatalogGateway interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	FeaturedProducts(ctx context.Context) ([]model.Product, error)
	SearchProducts(ctx context.Context, keyword string) ([]model.Product, error)
	ProductsByCategory(ctx context.Context, categoryID int64) ([]model.Product, error)
	CreateProduct(ctx context.Context, in model.ProductInput) (model.Product, error)
	UpdateProduct(ctx context.Context, id int64, in model.ProductInput) (model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, in model.CategoryInput) (model.Category, error)
	UpdateCategory(ctx context.Context, id int64, in model.CategoryInput) (model.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// CatalogService serves catalog queries to everyone and product and category
// changes to admins.
type CatalogService struct {
	gw    CatalogGateway
	roles RoleChecker
	log   logrus.FieldLogger
}

func NewCatalogService(gw CatalogGateway, roles RoleChecker, log logrus.FieldLogger) *CatalogService {
	return &CatalogService{gw: gw, roles: roles, log: log}
}

func (s *CatalogService) Products(ctx context.Context) ([]model.Product, error) {
	return s.gw.ListProducts(ctx)
}

// Featured returns the backend's featured products. If that call fails the
// first FeaturedFallback products on offer are returned instead.
func (s *CatalogService) Featured(ctx context.Context) ([]model.Product, error) {
	featured, err := s.gw.FeaturedProducts(ctx)
	if err == nil {
		return featured, nil
	}
	s.log.WithField("error", err).Warn("featured products unavailable, using products on offer")
	all, lerr := s.gw.ListProducts(ctx)
	if lerr != nil {
		return nil, err
	}
	return model.OnOffer(all, FeaturedFallback), nil
}

// Search lists every product for a blank keyword.
func (s *CatalogService) Search(ctx context.Context, keyword string) ([]model.Product, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.gw.ListProducts(ctx)
	}
	return s.gw.SearchProducts(ctx, keyword)
}

func (s *CatalogService) ByCategory(ctx context.Context, categoryID int64) ([]model.Product, error) {
	return s.gw.ProductsByCategory(ctx, categoryID)
}

func (s *CatalogService) Categories(ctx context.Context) ([]model.Category, error) {
	return s.gw.ListCategories(ctx)
}

func checkInput(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
	}
	return pkgerrors.Wrap(ErrInvalidInput, strings.Join(fields, ", "))
}

func checkProduct(in *model.ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := checkInput(in); err != nil {
		return err
	}
	if !in.Price.IsPositive() {
		return pkgerrors.Wrap(ErrInvalidInput, "price must be positive")
	}
	return nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in model.ProductInput) (model.Product, error) {
	if !s.roles.IsAdmin(ctx) {
		return model.Product{}, ErrForbidden
	}
	if err := checkProduct(&in); err != nil {
		return model.Product{}, err
	}
	p, err := s.gw.CreateProduct(ctx, in)
	if err != nil {
		return model.Product{}, err
	}
	s.log.WithFields(logrus.Fields{"product_id": p.ID, "name": p.Name}).Info("product created")
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in model.ProductInput) (model.Product, error) {
	if !s.roles.IsAdmin(ctx) {
		return model.Product{}, ErrForbidden
	}
	if err := checkProduct(&in); err != nil {
		return model.Product{}, err
	}
	return s.gw.UpdateProduct(ctx, id, in)
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if !s.roles.IsAdmin(ctx) {
		return ErrForbidden
	}
	if err := s.gw.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.log.WithField("product_id", id).Info("product deleted")
	return nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, in model.CategoryInput) (model.Category, error) {
	if !s.roles.IsAdmin(ctx) {
		return model.Category{}, ErrForbidden
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := checkInput(&in); err != nil {
		return model.Category{}, err
	}
	return s.gw.CreateCategory(ctx, in)
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, in model.CategoryInput) (model.Category, error) {
	if !s.roles.IsAdmin(ctx) {
		return model.Category{}, ErrForbidden
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := checkInput(&in); err != nil {
		return model.Category{}, err
	}
	return s.gw.UpdateCategory(ctx, id, in)
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	if !s.roles.IsAdmin(ctx) {
		return ErrForbidden
	}
	return s.gw.DeleteCategory(ctx, id)
}
