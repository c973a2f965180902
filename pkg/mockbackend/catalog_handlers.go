package mockbackend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/asteruwu/cartsync/pkg/model"
)

// writeCatalogError maps store errors to statuses.
func writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *inputError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.msg)
	case errors.Is(err, errNoProduct), errors.Is(err, errNoCategory):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errCategoryInUse):
		writeError(w, http.StatusConflict, err.Error())
	default:
		requestLogger(r).WithField("error", err).Error("catalog update failed")
		writeError(w, http.StatusInternalServerError, "could not update the catalog")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return false
	}
	return true
}

func (s *Server) listProductsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.list(nil))
}

func (s *Server) getProductHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.catalog.product(pathID(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errNoProduct.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) featuredProductsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.featured())
}

func (s *Server) searchProductsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.search(r.URL.Query().Get("keyword")))
}

func (s *Server) categoryProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.byCategory(pathID(r, "id"))
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) createProductHandler(w http.ResponseWriter, r *http.Request) {
	var in model.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := s.catalog.createProduct(in)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	requestLogger(r).WithField("product_id", p.ID).Info("product created")
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updateProductHandler(w http.ResponseWriter, r *http.Request) {
	var in model.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := s.catalog.updateProduct(pathID(r, "id"), in)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// deleteProductHandler leaves carts alone; lines of a deleted product are
// skipped when a cart is rendered.
func (s *Server) deleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if err := s.catalog.deleteProduct(id); err != nil {
		writeCatalogError(w, r, err)
		return
	}
	requestLogger(r).WithField("product_id", id).Info("product deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCategoriesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.listCategories())
}

func (s *Server) getCategoryHandler(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.catalog.category(pathID(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errNoCategory.Error())
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) createCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var in model.CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}
	cat, err := s.catalog.createCategory(in)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (s *Server) updateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var in model.CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}
	cat, err := s.catalog.updateCategory(pathID(r, "id"), in)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) deleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.deleteCategory(pathID(r, "id")); err != nil {
		writeCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
