package service

import (
	"github.com/asteruwu/cartsync/pkg/model"

	"github.com/shopspring/decimal"
)

// View is an immutable snapshot of the cart handed to subscribers.
type View struct {
	Mode     model.SyncMode
	UserID   int64
	Items    []model.CartLineItem
	Count    int
	Subtotal decimal.Decimal
	Loading  bool
	// Err is the last failure message; cleared when the next operation starts.
	Err string
}

type cartState struct {
	mode    model.SyncMode
	userID  int64
	cart    model.CartState
	loading bool
	err     string
}

type actionKind int

const (
	actAdd actionKind = iota
	actRemove
	actSetQuantity
	actClear
	actReplace
	actBegin
	actSettle
	actFail
	actSession
)

type action struct {
	kind      actionKind
	item      model.CartLineItem
	productID int64
	quantity  int
	items     []model.CartLineItem
	mode      model.SyncMode
	userID    int64
	err       string
}

// reduce is the only place cart state changes. s is never modified in place.
func reduce(s cartState, a action) cartState {
	next := s
	next.cart = s.cart.Clone()
	switch a.kind {
	case actAdd:
		next.cart.Add(a.item)
	case actRemove:
		next.cart.Remove(a.productID)
	case actSetQuantity:
		next.cart.SetQuantity(a.productID, a.quantity)
	case actClear:
		next.cart.Clear()
	case actReplace:
		next.cart = model.NewCartState(a.items)
		next.loading = false
	case actBegin:
		next.loading = true
		next.err = ""
	case actSettle:
		next.loading = false
	case actFail:
		next.loading = false
		next.err = a.err
	case actSession:
		next.mode = a.mode
		next.userID = a.userID
		next.cart = model.NewCartState(a.items)
		next.loading = false
	}
	return next
}

func (s cartState) view() View {
	return View{
		Mode:     s.mode,
		UserID:   s.userID,
		Items:    s.cart.Items(),
		Count:    s.cart.Count(),
		Subtotal: s.cart.Total(),
		Loading:  s.loading,
		Err:      s.err,
	}
}
