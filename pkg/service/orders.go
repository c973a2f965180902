package service

import (
	"context"
	"errors"
	"sort"

	"github.com/asteruwu/cartsync/pkg/model"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidStatus = errors.New("service: unknown order status")
	ErrForbidden     = errors.New("service: admin role required")
)

type OrderGateway interface {
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListUserOrders(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, id int64) (model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error)
}

// RoleChecker reports whether the current session claims the admin role. The
// backend enforces the real check.
type RoleChecker interface {
	IsAdmin(ctx context.Context) bool
}

type OrderService struct {
	gw    OrderGateway
	roles RoleChecker
	log   logrus.FieldLogger
}

func NewOrderService(gw OrderGateway, roles RoleChecker, log logrus.FieldLogger) *OrderService {
	return &OrderService{gw: gw, roles: roles, log: log}
}

// History lists the user's orders, newest first.
func (s *OrderService) History(ctx context.Context, userID int64) ([]model.Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	orders, err := s.gw.ListUserOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

// All lists every order; admin only.
func (s *OrderService) All(ctx context.Context) ([]model.Order, error) {
	if !s.roles.IsAdmin(ctx) {
		return nil, ErrForbidden
	}
	orders, err := s.gw.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, id int64) (model.Order, error) {
	return s.gw.GetOrder(ctx, id)
}

// SetStatus moves an order to one of the five known states; admin only.
func (s *OrderService) SetStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	if !status.Valid() {
		return model.Order{}, pkgerrors.Wrapf(ErrInvalidStatus, "%q", status)
	}
	if !s.roles.IsAdmin(ctx) {
		return model.Order{}, ErrForbidden
	}
	order, err := s.gw.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return model.Order{}, err
	}
	s.log.WithFields(logrus.Fields{"order_id": id, "status": status}).Info("order status updated")
	return order, nil
}

func sortNewestFirst(orders []model.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
