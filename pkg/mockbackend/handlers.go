package mockbackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/asteruwu/cartsync/pkg/model"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type cartItemResponse struct {
	Product  model.Product `json:"producto"`
	Quantity int           `json:"cantidad"`
}

type cartResponse struct {
	UserID int64              `json:"usuarioId"`
	Items  []cartItemResponse `json:"items"`
	Total  decimal.Decimal    `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	token, err := s.auth.login(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "nombre, email and password are required")
		return
	}
	u, err := s.auth.register(req, roleUser)
	if errors.Is(err, errEmailTaken) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		requestLogger(r).WithField("error", err).Error("register failed")
		writeError(w, http.StatusInternalServerError, "could not register")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// cartOwner resolves {userId} and checks the caller may use that cart.
func (s *Server) cartOwner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	uid := pathID(r, "userId")
	if !claimsFrom(r).canAccess(uid) {
		writeError(w, http.StatusForbidden, "not your cart")
		return 0, false
	}
	return uid, true
}

func (s *Server) cartProduct(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	uid, ok := s.cartOwner(w, r)
	if !ok {
		return 0, 0, false
	}
	pid := pathID(r, "productId")
	if _, ok := s.catalog.product(pid); !ok {
		writeError(w, http.StatusNotFound, "product not found")
		return 0, 0, false
	}
	return uid, pid, true
}

func (s *Server) writeCart(w http.ResponseWriter, r *http.Request, uid int64) {
	lines, err := s.carts.GetCart(r.Context(), uid)
	if err != nil {
		requestLogger(r).WithField("error", err).Error("could not read cart")
		writeError(w, http.StatusInternalServerError, "could not read cart")
		return
	}
	res := cartResponse{UserID: uid, Items: make([]cartItemResponse, 0, len(lines)), Total: decimal.Zero}
	for _, l := range lines {
		p, ok := s.catalog.product(l.ProductID)
		if !ok {
			continue
		}
		res.Items = append(res.Items, cartItemResponse{Product: p, Quantity: l.Quantity})
		item := p.LineItem()
		item.Quantity = l.Quantity
		res.Total = res.Total.Add(item.Subtotal())
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getCartHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.cartOwner(w, r)
	if !ok {
		return
	}
	s.writeCart(w, r, uid)
}

func (s *Server) cartMutation(op func(r *http.Request, uid, pid int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, pid, ok := s.cartProduct(w, r)
		if !ok {
			return
		}
		if err := op(r, uid, pid); err != nil {
			if errors.Is(err, errNotInCart) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			requestLogger(r).WithField("error", err).Error("cart update failed")
			writeError(w, http.StatusInternalServerError, "could not update cart")
			return
		}
		s.writeCart(w, r, uid)
	}
}

func (s *Server) addToCartHandler(w http.ResponseWriter, r *http.Request) {
	s.cartMutation(func(r *http.Request, uid, pid int64) error { return s.carts.AddItem(r.Context(), uid, pid) })(w, r)
}

func (s *Server) removeFromCartHandler(w http.ResponseWriter, r *http.Request) {
	s.cartMutation(func(r *http.Request, uid, pid int64) error { return s.carts.RemoveItem(r.Context(), uid, pid) })(w, r)
}

func (s *Server) increaseHandler(w http.ResponseWriter, r *http.Request) {
	s.cartMutation(func(r *http.Request, uid, pid int64) error { return s.carts.Increase(r.Context(), uid, pid) })(w, r)
}

func (s *Server) decreaseHandler(w http.ResponseWriter, r *http.Request) {
	s.cartMutation(func(r *http.Request, uid, pid int64) error { return s.carts.Decrease(r.Context(), uid, pid) })(w, r)
}

func (s *Server) emptyCartHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.cartOwner(w, r)
	if !ok {
		return
	}
	if err := s.carts.EmptyCart(r.Context(), uid); err != nil {
		requestLogger(r).WithField("error", err).Error("could not empty cart")
		writeError(w, http.StatusInternalServerError, "could not empty cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	claims := claimsFrom(r)
	if !claims.canAccess(req.UserID) {
		writeError(w, http.StatusForbidden, "cannot order for another user")
		return
	}
	if len(req.Items) == 0 || strings.TrimSpace(req.ShippingAddress) == "" {
		writeError(w, http.StatusBadRequest, "items and direccionEnvio are required")
		return
	}
	if !s.auth.exists(req.UserID) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	now := time.Now().UTC()
	order := &model.Order{
		Status:          model.OrderStatusPending,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		Total:           decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, it := range req.Items {
		p, ok := s.catalog.product(it.ProductID)
		if !ok {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		if it.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "cantidad must be positive")
			return
		}
		sub := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		order.Lines = append(order.Lines, model.OrderLine{Product: p, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Subtotal: sub})
		order.Total = order.Total.Add(sub)
	}

	s.mu.Lock()
	order.ID = s.nextOrderID
	s.nextOrderID++
	for i := range order.Lines {
		order.Lines[i].ID = s.nextLineID
		s.nextLineID++
	}
	s.orders[order.ID] = order
	s.orderOwners[order.ID] = req.UserID
	snapshot := *order
	s.mu.Unlock()

	requestLogger(r).WithField("order", snapshot.ID).Info("order placed")
	writeJSON(w, http.StatusCreated, snapshot)
}

func (s *Server) collectOrders(match func(owner int64) bool) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0)
	for id, o := range s.orders {
		if match(s.orderOwners[id]) {
			out = append(out, *o)
		}
	}
	return out
}

func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	if !claimsFrom(r).isAdmin() {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}
	writeJSON(w, http.StatusOK, s.collectOrders(func(int64) bool { return true }))
}

func (s *Server) userOrdersHandler(w http.ResponseWriter, r *http.Request) {
	uid := pathID(r, "userId")
	if !claimsFrom(r).canAccess(uid) {
		writeError(w, http.StatusForbidden, "not your orders")
		return
	}
	writeJSON(w, http.StatusOK, s.collectOrders(func(owner int64) bool { return owner == uid }))
}

func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	s.mu.Lock()
	o, ok := s.orders[id]
	owner := s.orderOwners[id]
	var snapshot model.Order
	if ok {
		snapshot = *o
	}
	s.mu.Unlock()
	if !ok || !claimsFrom(r).canAccess(owner) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !claimsFrom(r).isAdmin() {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}
	status := model.OrderStatus(strings.ToUpper(r.URL.Query().Get("estado")))
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown estado")
		return
	}
	id := pathID(r, "id")
	s.mu.Lock()
	o, ok := s.orders[id]
	var snapshot model.Order
	if ok {
		o.Status = status
		o.UpdatedAt = time.Now().UTC()
		snapshot = *o
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
