package service

import (
	"context"
	"errors"

	"github.com/asteruwu/cartsync/pkg/model"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrInvalidUser = errors.New("service: user id must be positive")

// CartGateway is the backend's cart resource for one user id.
type CartGateway interface {
	GetCart(ctx context.Context, userID int64) ([]model.CartLineItem, error)
	AddItem(ctx context.Context, userID, productID int64) error
	RemoveItem(ctx context.Context, userID, productID int64) error
	EmptyCart(ctx context.Context, userID int64) error
	Increase(ctx context.Context, userID, productID int64) error
	Decrease(ctx context.Context, userID, productID int64) error
}

// Reconciler pushes the guest cart into the user's remote cart at login.
type Reconciler struct {
	gw  CartGateway
	log logrus.FieldLogger
	// pushed counts line items merged into a remote cart.
	pushed func(n int)
}

func NewReconciler(gw CartGateway, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{gw: gw, log: log, pushed: func(int) {}}
}

// Reconcile adds every local item the remote cart does not hold yet: one add
// followed by quantity-1 increases. Products already in the remote cart are
// left alone so the remote quantity wins. The first failing call abandons the
// merge; items pushed before it stay pushed.
func (r *Reconciler) Reconcile(ctx context.Context, local []model.CartLineItem, userID int64) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	if len(local) == 0 {
		return nil
	}

	remote, err := r.gw.GetCart(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "reconcile: fetch remote cart")
	}
	present := make(map[int64]struct{}, len(remote))
	for _, it := range remote {
		present[it.ProductID] = struct{}{}
	}

	merged := 0
	for _, it := range local {
		if _, ok := present[it.ProductID]; ok {
			r.log.WithField("product_id", it.ProductID).Debug("already in remote cart, keeping remote quantity")
			continue
		}
		if it.Quantity <= 0 {
			continue
		}
		if err := r.gw.AddItem(ctx, userID, it.ProductID); err != nil {
			r.pushed(merged)
			return pkgerrors.Wrapf(err, "reconcile: add product #%d", it.ProductID)
		}
		for i := 1; i < it.Quantity; i++ {
			if err := r.gw.Increase(ctx, userID, it.ProductID); err != nil {
				r.pushed(merged)
				return pkgerrors.Wrapf(err, "reconcile: increase product #%d", it.ProductID)
			}
		}
		present[it.ProductID] = struct{}{}
		merged++
	}

	r.pushed(merged)
	r.log.WithFields(logrus.Fields{"user_id": userID, "merged": merged, "local": len(local)}).Info("guest cart reconciled")
	return nil
}
