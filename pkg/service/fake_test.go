package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/asteruwu/cartsync/pkg/localcart"
	"github.com/asteruwu/cartsync/pkg/model"
	"github.com/asteruwu/cartsync/pkg/storage"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("backend down")

var catalog = map[int64]model.Product{
	1: {ID: 1, Name: "Catan", Price: decimal.NewFromInt(29990), Offer: true, DiscountPercent: 10},
	2: {ID: 2, Name: "Carcassonne", Price: decimal.NewFromInt(24990)},
	3: {ID: 3, Name: "Dixit", Price: decimal.NewFromInt(10000), Offer: true, DiscountPercent: 20},
}

// fakeGateway is an in-memory remote cart that records every call.
type fakeGateway struct {
	mu    sync.Mutex
	carts map[int64]map[int64]int
	calls []string
	fail  map[string]error
	// afterGet runs once the snapshot of a GetCart is taken, outside mu.
	afterGet func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{carts: map[int64]map[int64]int{}, fail: map[string]error{}}
}

func (f *fakeGateway) record(op string, userID, productID int64) error {
	f.calls = append(f.calls, fmt.Sprintf("%s %d/%d", op, userID, productID))
	if err, ok := f.fail[op]; ok {
		return err
	}
	if f.carts[userID] == nil {
		f.carts[userID] = map[int64]int{}
	}
	return nil
}

func (f *fakeGateway) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

func (f *fakeGateway) seed(userID int64, quantities map[int64]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[userID] = quantities
}

func (f *fakeGateway) quantities(userID int64) map[int64]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]int{}
	for k, v := range f.carts[userID] {
		out[k] = v
	}
	return out
}

func (f *fakeGateway) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGateway) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeGateway) GetCart(_ context.Context, userID int64) ([]model.CartLineItem, error) {
	out, hook, err := f.snapshot(userID)
	if hook != nil {
		hook()
	}
	return out, err
}

func (f *fakeGateway) snapshot(userID int64) ([]model.CartLineItem, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get", userID, 0); err != nil {
		return nil, f.afterGet, err
	}
	var out []model.CartLineItem
	for id, qty := range f.carts[userID] {
		item := catalog[id].LineItem()
		item.Quantity = qty
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, f.afterGet, nil
}

func (f *fakeGateway) onGet(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterGet = fn
}

func (f *fakeGateway) AddItem(_ context.Context, userID, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("add", userID, productID); err != nil {
		return err
	}
	f.carts[userID][productID]++
	return nil
}

func (f *fakeGateway) RemoveItem(_ context.Context, userID, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("remove", userID, productID); err != nil {
		return err
	}
	delete(f.carts[userID], productID)
	return nil
}

func (f *fakeGateway) EmptyCart(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("empty", userID, 0); err != nil {
		return err
	}
	f.carts[userID] = map[int64]int{}
	return nil
}

func (f *fakeGateway) Increase(_ context.Context, userID, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("increase", userID, productID); err != nil {
		return err
	}
	f.carts[userID][productID]++
	return nil
}

func (f *fakeGateway) Decrease(_ context.Context, userID, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("decrease", userID, productID); err != nil {
		return err
	}
	f.carts[userID][productID]--
	if f.carts[userID][productID] <= 0 {
		delete(f.carts[userID], productID)
	}
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

type harness struct {
	svc      *CartService
	gw       *fakeGateway
	store    *localcart.Store
	prompts  int
	approve  bool
	notified []string
	mu       sync.Mutex
}

type harnessOption func(*CartOptions)

func withAuthErrors(target error) harnessOption {
	return func(o *CartOptions) {
		o.IsAuthError = func(err error) bool { return errors.Is(err, target) }
	}
}

func newHarness(t *testing.T, guest ...model.CartLineItem) *harness {
	return newHarnessWith(t, nil, guest...)
}

func newHarnessWith(t *testing.T, opts []harnessOption, guest ...model.CartLineItem) *harness {
	t.Helper()
	ctx := context.Background()
	log := quietLogger()
	h := &harness{gw: newFakeGateway(), store: localcart.New(storage.NewMemory(), log), approve: true}
	if len(guest) > 0 {
		require.NoError(t, h.store.Save(ctx, model.NewCartState(guest)))
	}
	co := CartOptions{
		Gateway: h.gw,
		Local:   h.store,
		Confirmer: ConfirmFunc(func(context.Context, string) bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.prompts++
			return h.approve
		}),
		Notifier: NotifyFunc(func(msg string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notified = append(h.notified, msg)
		}),
		Log: log,
	}
	for _, o := range opts {
		o(&co)
	}
	svc, err := NewCart(ctx, co)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func quantitiesOf(v View) map[int64]int {
	out := map[int64]int{}
	for _, it := range v.Items {
		out[it.ProductID] = it.Quantity
	}
	return out
}
