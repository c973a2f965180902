package mockbackend

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/asteruwu/cartsync/pkg/model"

	"github.com/go-playground/validator/v10"
)

var (
	errNoProduct     = errors.New("product not found")
	errNoCategory    = errors.New("category not found")
	errCategoryInUse = errors.New("category still has products")
)

// featuredLimit caps /productos/destacados.
const featuredLimit = 4

var validate = validator.New()

// inputError is a rejected create or update body.
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &inputError{msg: err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return &inputError{msg: "invalid fields: " + strings.Join(fields, ", ")}
}

// catalogStore holds products and categories. Products keep only their
// category id so a renamed category shows up everywhere.
type catalogStore struct {
	mu         sync.RWMutex
	products   map[int64]model.Product
	categoryOf map[int64]int64
	categories map[int64]model.Category
	nextProd   int64
	nextCat    int64
}

func newCatalogStore(products []model.Product) *catalogStore {
	c := &catalogStore{
		products:   make(map[int64]model.Product, len(products)),
		categoryOf: make(map[int64]int64),
		categories: make(map[int64]model.Category),
		nextProd:   1,
		nextCat:    1,
	}
	for _, p := range products {
		if p.Category != nil {
			if _, ok := c.categories[p.Category.ID]; !ok {
				c.categories[p.Category.ID] = *p.Category
			}
			c.categoryOf[p.ID] = p.Category.ID
			if p.Category.ID >= c.nextCat {
				c.nextCat = p.Category.ID + 1
			}
		}
		p.Category = nil
		c.products[p.ID] = p
		if p.ID >= c.nextProd {
			c.nextProd = p.ID + 1
		}
	}
	return c
}

// resolve attaches the current category. Called with mu held.
func (c *catalogStore) resolve(p model.Product) model.Product {
	if cid, ok := c.categoryOf[p.ID]; ok {
		if cat, ok := c.categories[cid]; ok {
			p.Category = &cat
		}
	}
	return p
}

func (c *catalogStore) product(id int64) (model.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return model.Product{}, false
	}
	return c.resolve(p), true
}

// list returns the products matching keep, ordered by id.
func (c *catalogStore) list(keep func(p model.Product, categoryID int64) bool) []model.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Product, 0, len(c.products))
	for _, p := range c.products {
		if keep == nil || keep(p, c.categoryOf[p.ID]) {
			out = append(out, c.resolve(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *catalogStore) featured() []model.Product {
	return model.OnOffer(c.list(nil), featuredLimit)
}

// search matches keyword against name and description, ignoring case.
func (c *catalogStore) search(keyword string) []model.Product {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	return c.list(func(p model.Product, _ int64) bool {
		return kw == "" ||
			strings.Contains(strings.ToLower(p.Name), kw) ||
			strings.Contains(strings.ToLower(p.Description), kw)
	})
}

func (c *catalogStore) byCategory(id int64) ([]model.Product, error) {
	if _, ok := c.category(id); !ok {
		return nil, errNoCategory
	}
	return c.list(func(_ model.Product, cid int64) bool { return cid == id }), nil
}

// checkProduct validates in and returns the category it points at, 0 for
// none. Called with mu held.
func (c *catalogStore) checkProduct(in model.ProductInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return 0, invalidInput(err)
	}
	if !in.Price.IsPositive() {
		return 0, &inputError{msg: "precio must be positive"}
	}
	if in.Category == nil {
		return 0, nil
	}
	if _, ok := c.categories[in.Category.ID]; !ok {
		return 0, &inputError{msg: errNoCategory.Error()}
	}
	return in.Category.ID, nil
}

func productFrom(id int64, in model.ProductInput) model.Product {
	return model.Product{
		ID:              id,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Price:           in.Price,
		ImageRef:        in.ImageRef,
		Offer:           in.Offer,
		DiscountPercent: in.DiscountPercent,
	}
}

func (c *catalogStore) createProduct(in model.ProductInput) (model.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cid, err := c.checkProduct(in)
	if err != nil {
		return model.Product{}, err
	}
	p := productFrom(c.nextProd, in)
	c.nextProd++
	c.products[p.ID] = p
	if cid != 0 {
		c.categoryOf[p.ID] = cid
	}
	return c.resolve(p), nil
}

func (c *catalogStore) updateProduct(id int64, in model.ProductInput) (model.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[id]; !ok {
		return model.Product{}, errNoProduct
	}
	cid, err := c.checkProduct(in)
	if err != nil {
		return model.Product{}, err
	}
	p := productFrom(id, in)
	c.products[id] = p
	delete(c.categoryOf, id)
	if cid != 0 {
		c.categoryOf[id] = cid
	}
	return c.resolve(p), nil
}

func (c *catalogStore) deleteProduct(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[id]; !ok {
		return errNoProduct
	}
	delete(c.products, id)
	delete(c.categoryOf, id)
	return nil
}

func (c *catalogStore) category(id int64) (model.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cat, ok := c.categories[id]
	return cat, ok
}

func (c *catalogStore) listCategories() []model.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func checkCategory(in *model.CategoryInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return invalidInput(err)
	}
	return nil
}

func (c *catalogStore) createCategory(in model.CategoryInput) (model.Category, error) {
	if err := checkCategory(&in); err != nil {
		return model.Category{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cat := model.Category{ID: c.nextCat, Name: in.Name, Description: in.Description, ImageRef: in.ImageRef, Active: in.Active}
	c.nextCat++
	c.categories[cat.ID] = cat
	return cat, nil
}

func (c *catalogStore) updateCategory(id int64, in model.CategoryInput) (model.Category, error) {
	if err := checkCategory(&in); err != nil {
		return model.Category{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.categories[id]; !ok {
		return model.Category{}, errNoCategory
	}
	cat := model.Category{ID: id, Name: in.Name, Description: in.Description, ImageRef: in.ImageRef, Active: in.Active}
	c.categories[id] = cat
	return cat, nil
}

// deleteCategory refuses while a product still points at the category.
func (c *catalogStore) deleteCategory(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.categories[id]; !ok {
		return errNoCategory
	}
	for _, cid := range c.categoryOf {
		if cid == id {
			return errCategoryInUse
		}
	}
	delete(c.categories, id)
	return nil
}
