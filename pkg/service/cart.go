// Package service holds the cart synchronization logic: the view-model that
// owns the cart state, the reconciler that merges the guest cart at login and
// the order history queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/asteruwu/cartsync/pkg/localcart"
	"github.com/asteruwu/cartsync/pkg/model"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidQuantity = fmt.Errorf("service: quantity must be between 0 and %d", model.MaxQuantity)
	ErrNotInCart       = errors.New("service: product is not in the cart")
)

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Notifier shows a short transient message to the user.
type Notifier interface {
	Notify(msg string)
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

type NotifyFunc func(msg string)

func (f NotifyFunc) Notify(msg string) { f(msg) }

type CartOptions struct {
	Gateway CartGateway
	Local   *localcart.Store
	// Confirmer defaults to approving everything.
	Confirmer Confirmer
	Notifier  Notifier
	// IsAuthError reports a rejected session. Such a failure logs the cart
	// out instead of being kept in the mirror. Nil treats no error that way.
	IsAuthError func(error) bool
	Log         logrus.FieldLogger
}

// CartService is the cart view-model. In local mode the persistent store is
// authoritative; in remote mode the backend is, and the in-memory state is a
// mirror refreshed after every successful mutation.
type CartService struct {
	gw      CartGateway
	local   *localcart.Store
	rec     *Reconciler
	confirm Confirmer
	notify  Notifier
	authErr func(error) bool
	log     logrus.FieldLogger
	metrics *cartMetrics

	mu     sync.Mutex
	st     cartState
	subs   map[int]func(View)
	nextID int
	// gen counts completed remote writes; shown is the gen of the reload
	// whose snapshot the mirror holds. Both are guarded by mu.
	gen   uint64
	shown uint64

	// persistMu orders writes of the local store so an older snapshot never
	// overwrites a newer one.
	persistMu sync.Mutex
	products  keyedMutex
	reloads   singleflight.Group
}

// NewCart starts in local mode seeded from the persistent store.
func NewCart(ctx context.Context, opts CartOptions) (*CartService, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	confirm := opts.Confirmer
	if confirm == nil {
		confirm = ConfirmFunc(func(context.Context, string) bool { return true })
	}
	notify := opts.Notifier
	if notify == nil {
		notify = NotifyFunc(func(msg string) { log.Info(msg) })
	}
	authErr := opts.IsAuthError
	if authErr == nil {
		authErr = func(error) bool { return false }
	}

	s := &CartService{
		gw:      opts.Gateway,
		local:   opts.Local,
		rec:     NewReconciler(opts.Gateway, log),
		confirm: confirm,
		notify:  notify,
		authErr: authErr,
		log:     log,
		metrics: newCartMetrics(log),
		subs:    make(map[int]func(View)),
	}
	s.rec.pushed = s.metrics.reconciledItems

	cart, err := s.local.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.st = cartState{mode: model.ModeLocal, cart: cart}
	return s, nil
}

// View returns the current snapshot.
func (s *CartService) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.view()
}

// Subscribe registers fn for every state change and returns a cancel func.
// fn runs on the goroutine that changed the state and must not block.
func (s *CartService) Subscribe(fn func(View)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *CartService) dispatch(acts ...action) {
	s.commit(nil, acts...)
}

// commit applies acts when guard, evaluated under mu, allows it.
func (s *CartService) commit(guard func() bool, acts ...action) bool {
	s.mu.Lock()
	if guard != nil && !guard() {
		s.mu.Unlock()
		return false
	}
	for _, a := range acts {
		s.st = reduce(s.st, a)
	}
	v := s.st.view()
	fns := make([]func(View), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
	return true
}

// written records a completed remote write and returns its generation.
func (s *CartService) written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

func (s *CartService) session() (model.SyncMode, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.mode, s.st.userID
}

func (s *CartService) find(productID int64) (model.CartLineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.cart.Find(productID)
}

// persist writes the current cart to the local store while in local mode.
func (s *CartService) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	mode := s.st.mode
	snapshot := s.st.cart.Clone()
	s.mu.Unlock()
	if mode != model.ModeLocal {
		return nil
	}
	return s.local.Save(ctx, snapshot)
}

// remoteFailed records a failed backend call and re-applies the change to
// the in-memory mirror so the user still sees it. A rejected session is not
// mirrored: the cart goes back to the guest store instead. It returns err.
func (s *CartService) remoteFailed(ctx context.Context, op string, err error, mirror ...action) error {
	if s.authErr(err) {
		s.expired(ctx, op, err)
		return err
	}
	s.log.WithFields(logrus.Fields{"op": op, "error": err}).Warn("remote cart operation failed, keeping local mirror")
	acts := append(mirror, action{kind: actFail, err: fmt.Sprintf("could not %s: %v", op, err)})
	s.dispatch(acts...)
	return err
}

func (s *CartService) expired(ctx context.Context, op string, err error) {
	s.log.WithFields(logrus.Fields{"op": op, "error": err}).Warn("session rejected, back to the guest cart")
	if lerr := s.Logout(ctx); lerr != nil {
		s.log.WithField("error", lerr).Warn("could not reload the guest cart")
	}
	s.dispatch(action{kind: actFail, err: "your session expired, log in again"})
}

// AddItem adds one unit of p to the cart.
func (s *CartService) AddItem(ctx context.Context, p model.Product) (err error) {
	unlock := s.products.Lock(p.ID)
	defer unlock()

	mode, uid := s.session()
	defer func() { s.metrics.mutation(ctx, "add", mode.String(), err) }()
	defer s.notify.Notify(fmt.Sprintf("%s added to cart", p.Name))

	add := action{kind: actAdd, item: p.LineItem()}
	if mode == model.ModeLocal {
		s.dispatch(add)
		return s.persist(ctx)
	}

	s.dispatch(action{kind: actBegin})
	if err := s.gw.AddItem(ctx, uid, p.ID); err != nil {
		return s.remoteFailed(ctx, "add to the cart", err, add)
	}
	return s.reload(ctx, uid, s.written())
}

// RemoveItem drops the product from the cart whatever its quantity.
func (s *CartService) RemoveItem(ctx context.Context, productID int64) (err error) {
	unlock := s.products.Lock(productID)
	defer unlock()
	return s.removeLocked(ctx, productID)
}

func (s *CartService) removeLocked(ctx context.Context, productID int64) (err error) {
	mode, uid := s.session()
	defer func() { s.metrics.mutation(ctx, "remove", mode.String(), err) }()

	remove := action{kind: actRemove, productID: productID}
	if mode == model.ModeLocal {
		s.dispatch(remove)
		return s.persist(ctx)
	}

	s.dispatch(action{kind: actBegin})
	if err := s.gw.RemoveItem(ctx, uid, productID); err != nil {
		return s.remoteFailed(ctx, "remove from the cart", err, remove)
	}
	return s.reload(ctx, uid, s.written())
}

// UpdateQuantity sets the quantity of a product already in the cart. Zero
// removes it; values outside [0, MaxQuantity] are rejected untouched. In remote
// mode the difference is sent as unit increase or decrease calls.
func (s *CartService) UpdateQuantity(ctx context.Context, productID int64, quantity int) (err error) {
	if quantity < 0 || quantity > model.MaxQuantity {
		return ErrInvalidQuantity
	}

	unlock := s.products.Lock(productID)
	defer unlock()

	if quantity == 0 {
		return s.removeLocked(ctx, productID)
	}

	current, ok := s.find(productID)
	if !ok {
		return ErrNotInCart
	}

	mode, uid := s.session()
	defer func() { s.metrics.mutation(ctx, "update", mode.String(), err) }()

	set := action{kind: actSetQuantity, productID: productID, quantity: quantity}
	if mode == model.ModeLocal {
		s.dispatch(set)
		return s.persist(ctx)
	}

	delta := quantity - current.Quantity
	if delta == 0 {
		return nil
	}
	step, op := s.gw.Increase, "increase the quantity"
	if delta < 0 {
		step, op, delta = s.gw.Decrease, "decrease the quantity", -delta
	}

	s.dispatch(action{kind: actBegin})
	for i := 0; i < delta; i++ {
		if err := step(ctx, uid, productID); err != nil {
			return s.remoteFailed(ctx, op, err, set)
		}
	}
	return s.reload(ctx, uid, s.written())
}

// ClearCart empties the cart after the Confirmer approves. An empty cart
// returns immediately without asking. cleared is false when the user declined.
func (s *CartService) ClearCart(ctx context.Context) (cleared bool, err error) {
	s.mu.Lock()
	empty := s.st.cart.Len() == 0
	s.mu.Unlock()
	if empty {
		return false, nil
	}
	if !s.confirm.Confirm(ctx, "Remove every product from the cart?") {
		return false, nil
	}
	if err := s.Empty(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Empty clears the cart without asking, as after a completed checkout.
func (s *CartService) Empty(ctx context.Context) (err error) {
	mode, uid := s.session()
	defer func() { s.metrics.mutation(ctx, "clear", mode.String(), err) }()

	wipe := action{kind: actClear}
	if mode == model.ModeLocal {
		s.dispatch(wipe)
		return s.local.Clear(ctx)
	}

	s.dispatch(action{kind: actBegin})
	if err := s.gw.EmptyCart(ctx, uid); err != nil {
		return s.remoteFailed(ctx, "empty the cart", err, wipe)
	}
	return s.reload(ctx, uid, s.written())
}

// Reload replaces the mirror with the remote cart. Concurrent reloads for the
// same user share one request. It is a no-op in local mode.
func (s *CartService) Reload(ctx context.Context) error {
	s.mu.Lock()
	mode, uid, gen := s.st.mode, s.st.userID, s.gen
	s.mu.Unlock()
	if mode != model.ModeRemote {
		return nil
	}
	return s.reload(ctx, uid, gen)
}

// reload fetches the cart of uid as of write generation gen. Only callers
// asking for the same generation share a request, so a reload that started
// before a write never answers for it. A snapshot older than the one shown
// is dropped.
func (s *CartService) reload(ctx context.Context, uid int64, gen uint64) error {
	key := strconv.FormatInt(uid, 10) + ":" + strconv.FormatUint(gen, 10)
	_, err, _ := s.reloads.Do(key, func() (interface{}, error) {
		items, err := s.gw.GetCart(ctx, uid)
		if err != nil {
			if s.authErr(err) {
				s.expired(ctx, "load the cart", err)
				return nil, err
			}
			s.dispatch(action{kind: actFail, err: fmt.Sprintf("could not load the cart: %v", err)})
			return nil, err
		}
		s.commit(func() bool {
			if s.st.mode != model.ModeRemote || s.st.userID != uid || gen < s.shown {
				return false
			}
			s.shown = gen
			return true
		}, action{kind: actReplace, items: items})
		return nil, nil
	})
	return err
}

// Login moves the cart to the user's remote cart: the guest cart is
// reconciled into it, then the remote cart is loaded. Reconciliation errors
// are logged only. If the remote cart cannot be loaded the service stays in
// local mode and the guest cart is kept.
func (s *CartService) Login(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrInvalidUser
	}

	guest, err := s.local.Load(ctx)
	if err != nil {
		s.log.WithField("error", err).Warn("could not read the guest cart, nothing to reconcile")
	}
	if err := s.rec.Reconcile(ctx, guest.Items(), userID); err != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Warn("guest cart reconciliation failed")
	}

	s.dispatch(action{kind: actBegin})
	remote, err := s.gw.GetCart(ctx, userID)
	if err != nil {
		s.dispatch(action{kind: actFail, err: fmt.Sprintf("could not load the cart: %v", err)})
		return pkgerrors.Wrap(err, "login: load remote cart")
	}

	if err := s.local.Clear(ctx); err != nil {
		s.log.WithField("error", err).Warn("could not clear the guest cart")
	}
	s.commit(s.resetGen, action{kind: actSession, mode: model.ModeRemote, userID: userID, items: remote})
	s.log.WithFields(logrus.Fields{"user_id": userID, "items": len(remote)}).Info("cart switched to remote")
	return nil
}

// Resume enters remote mode for a session that already existed at start-up.
// No reconciliation happens.
func (s *CartService) Resume(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	s.commit(s.resetGen, action{kind: actSession, mode: model.ModeRemote, userID: userID}, action{kind: actBegin})
	return s.Reload(ctx)
}

// Logout drops the remote mirror and goes back to the persistent local cart.
func (s *CartService) Logout(ctx context.Context) error {
	cart, err := s.local.Load(ctx)
	if err != nil {
		return err
	}
	s.commit(s.resetGen, action{kind: actSession, mode: model.ModeLocal, items: cart.Items()})
	return nil
}

// resetGen makes reloads started before a session change stale. Called
// with mu held.
func (s *CartService) resetGen() bool {
	s.gen++
	s.shown = s.gen
	return true
}
