// Package checkout drives the payment flow of the cart: form validation,
// simulated payment, order submission and the confirmation receipt.
package checkout

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/asteruwu/cartsync/pkg/client"
	"github.com/asteruwu/cartsync/pkg/model"
	"github.com/asteruwu/cartsync/pkg/service"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type State int

const (
	StateCart State = iota
	StateProcessing
	StateFailed
	StateSucceeded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCart:
		return "cart"
	case StateProcessing:
		return "processing"
	case StateFailed:
		return "failed"
	case StateSucceeded:
		return "succeeded"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrEmptyCart       = errors.New("checkout: the cart is empty")
	ErrPaymentDeclined = errors.New("checkout: payment was declined")
	ErrWrongState      = errors.New("checkout: action not allowed in the current state")
)

// Cart is the part of the cart view-model checkout needs.
type Cart interface {
	View() service.View
	Empty(ctx context.Context) error
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, req model.OrderRequest) (model.Order, error)
}

// Journal keeps a local copy of confirmed receipts.
type Journal interface {
	Record(ctx context.Context, r model.Receipt) error
}

type Options struct {
	Cart    Cart
	Orders  OrderCreator
	Payment PaymentAuthorizer
	// Journal is optional.
	Journal Journal
	Log     logrus.FieldLogger
}

// Flow is one checkout attempt: Cart -> Processing -> Failed | Succeeded.
// Failed goes back to Cart through Retry; Succeeded only leaves through Close.
type Flow struct {
	cart    Cart
	orders  OrderCreator
	pay     PaymentAuthorizer
	journal Journal
	log     logrus.FieldLogger
	now     func() time.Time

	mu      sync.Mutex
	state   State
	message string
	receipt *model.Receipt
}

func NewFlow(opts Options) *Flow {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Flow{
		cart:    opts.Cart,
		orders:  opts.Orders,
		pay:     opts.Payment,
		journal: opts.Journal,
		log:     log,
		now:     time.Now,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Message is the user facing reason of the last failure.
func (f *Flow) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// Receipt returns the confirmation once the flow succeeded.
func (f *Flow) Receipt() (model.Receipt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipt == nil {
		return model.Receipt{}, false
	}
	return *f.receipt, true
}

func (f *Flow) transition(from, to State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != from {
		return false
	}
	f.state = to
	return true
}

func (f *Flow) fail(msg string) {
	f.mu.Lock()
	f.state = StateFailed
	f.message = msg
	f.mu.Unlock()
}

// Submit validates the form, charges the cart total and places the order.
// userID 0 places a guest order. A validation error leaves the flow in Cart.
func (f *Flow) Submit(ctx context.Context, form Form, userID int64) (model.Receipt, error) {
	if f.State() != StateCart {
		return model.Receipt{}, ErrWrongState
	}
	view := f.cart.View()
	if len(view.Items) == 0 {
		return model.Receipt{}, ErrEmptyCart
	}
	if err := form.Validate(); err != nil {
		return model.Receipt{}, err
	}
	if !f.transition(StateCart, StateProcessing) {
		return model.Receipt{}, ErrWrongState
	}

	log := f.log.WithFields(logrus.Fields{"user_id": userID, "items": len(view.Items), "total": view.Subtotal.String()})
	approved, err := f.pay.Authorize(ctx, view.Subtotal, form.Card)
	if err != nil {
		log.WithField("error", err).Warn("payment authorization failed")
		f.fail("The payment could not be processed")
		return model.Receipt{}, pkgerrors.Wrap(err, "authorize payment")
	}
	if !approved {
		log.Info("payment declined")
		f.fail("The payment could not be processed")
		return model.Receipt{}, ErrPaymentDeclined
	}

	receipt := model.Receipt{
		UserID:    userID,
		Email:     form.Email,
		Items:     view.Items,
		Total:     view.Subtotal,
		CreatedAt: f.now(),
	}
	if userID > 0 {
		order, err := f.orders.CreateOrder(ctx, model.OrderRequest{
			UserID:          userID,
			ShippingAddress: form.ShippingAddress(),
			Notes:           form.Notes,
			Items:           model.OrderRequestItems(view.Items),
		})
		if err != nil {
			log.WithField("error", err).Warn("order creation failed")
			f.fail(FailureMessage(err))
			return model.Receipt{}, err
		}
		receipt.OrderID = strconv.FormatInt(order.ID, 10)
	} else {
		receipt.OrderID = uuid.New().String()
	}

	if err := f.cart.Empty(ctx); err != nil {
		log.WithField("error", err).Warn("order placed but the cart could not be emptied")
	}
	if f.journal != nil {
		if err := f.journal.Record(ctx, receipt); err != nil {
			log.WithField("error", err).Warn("could not journal receipt")
		}
	}

	f.mu.Lock()
	f.state = StateSucceeded
	f.message = ""
	f.receipt = &receipt
	f.mu.Unlock()
	log.WithField("order", receipt.OrderID).Info("order placed")
	return receipt, nil
}

// Retry returns a failed flow to the form.
func (f *Flow) Retry() error {
	if !f.transition(StateFailed, StateCart) {
		return ErrWrongState
	}
	return nil
}

// Close dismisses a finished flow.
func (f *Flow) Close() error {
	if !f.transition(StateSucceeded, StateClosed) {
		return ErrWrongState
	}
	return nil
}

// FailureMessage maps a failed order submission to the text shown to the user.
func FailureMessage(err error) string {
	switch client.StatusCode(err) {
	case http.StatusBadRequest:
		return "The order data is invalid, review the cart and try again"
	case http.StatusNotFound:
		return "A product or the user could not be found"
	case http.StatusUnauthorized:
		return "Your session has expired, log in again"
	}
	return "The order could not be completed, try again later"
}
