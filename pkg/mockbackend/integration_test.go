package mockbackend_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/asteruwu/cartsync/pkg/auth"
	"github.com/asteruwu/cartsync/pkg/checkout"
	"github.com/asteruwu/cartsync/pkg/client"
	"github.com/asteruwu/cartsync/pkg/localcart"
	"github.com/asteruwu/cartsync/pkg/mockbackend"
	"github.com/asteruwu/cartsync/pkg/model"
	"github.com/asteruwu/cartsync/pkg/service"
	"github.com/asteruwu/cartsync/pkg/storage"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stack struct {
	backend *mockbackend.Server
	kv      storage.KV
	session *auth.Session
	api     *client.Client
	local   *localcart.Store
	cart    *service.CartService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := logrus.New()
	log.Out = io.Discard

	backend := mockbackend.New(mockbackend.Options{BcryptCost: bcrypt.MinCost, Log: log})
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	kv := storage.NewMemory()
	session := auth.NewSession(kv, log)
	api := client.New(client.Options{BaseURL: ts.URL, Tokens: session, Log: log})
	local := localcart.New(kv, log)
	cart, err := service.NewCart(context.Background(), service.CartOptions{
		Gateway:     api,
		Local:       local,
		IsAuthError: client.IsUnauthorized,
		Log:         log,
	})
	require.NoError(t, err)
	return &stack{backend: backend, kv: kv, session: session, api: api, local: local, cart: cart}
}

func (s *stack) login(t *testing.T, email, password string) model.Identity {
	t.Helper()
	ctx := context.Background()
	token, err := s.api.Login(ctx, email, password)
	require.NoError(t, err)
	id, err := s.session.Login(ctx, token)
	require.NoError(t, err)
	require.NoError(t, s.cart.Login(ctx, id.UserID))
	return id
}

func quantities(items []model.CartLineItem) map[int64]int {
	out := make(map[int64]int, len(items))
	for _, it := range items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

func TestGuestCartMergedAtLogin(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	_, err := s.backend.AddAccount(mockbackend.Account{Name: "Ana", Email: "ana@example.com", Password: "pw"})
	require.NoError(t, err)

	p, err := s.api.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.cart.AddItem(ctx, p))
	require.NoError(t, s.cart.AddItem(ctx, p))
	assert.Equal(t, model.ModeLocal, s.cart.View().Mode)

	id := s.login(t, "ana@example.com", "pw")
	assert.Equal(t, int64(1), id.UserID)
	assert.Equal(t, auth.RoleUser, id.Role)

	view := s.cart.View()
	assert.Equal(t, model.ModeRemote, view.Mode)
	assert.Equal(t, map[int64]int{1: 2}, quantities(view.Items))

	remote, err := s.api.GetCart(ctx, id.UserID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2}, quantities(remote))

	guest, err := s.local.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, guest.Len())
}

func TestRemoteCartAndCheckout(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	_, err := s.backend.AddAccount(mockbackend.Account{Name: "Ana", Email: "ana@example.com", Password: "pw"})
	require.NoError(t, err)
	id := s.login(t, "ana@example.com", "pw")

	products, err := s.api.GetProducts(ctx, []int64{3, 2})
	require.NoError(t, err)
	for _, p := range products {
		require.NoError(t, s.cart.AddItem(ctx, p))
	}
	require.NoError(t, s.cart.UpdateQuantity(ctx, 3, 3))
	require.NoError(t, s.cart.UpdateQuantity(ctx, 2, 0))

	view := s.cart.View()
	assert.Equal(t, map[int64]int{3: 3}, quantities(view.Items))
	assert.True(t, decimal.NewFromInt(24000).Equal(view.Subtotal))

	flow := checkout.NewFlow(checkout.Options{
		Cart:   s.cart,
		Orders: s.api,
		Payment: checkout.AuthorizerFunc(func(context.Context, decimal.Decimal, string) (bool, error) {
			return true, nil
		}),
	})
	receipt, err := flow.Submit(ctx, checkout.Form{
		Name:    "Ana",
		Surname: "Rojas",
		Email:   "ana@example.com",
		Card:    "4111111111111111",
		Street:  "Av. Siempre Viva 742",
		Region:  "Metropolitana",
		Comuna:  "Providencia",
	}, id.UserID)
	require.NoError(t, err)
	assert.Equal(t, "1", receipt.OrderID)
	assert.Equal(t, checkout.StateSucceeded, flow.State())
	assert.Empty(t, s.cart.View().Items)

	orders, err := service.NewOrderService(s.api, s.session, logrus.New()).History(ctx, id.UserID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderStatusPending, orders[0].Status)
	assert.True(t, decimal.NewFromInt(24000).Equal(orders[0].Total))
}

func TestRejectedTokenEndsSession(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	_, err := s.backend.AddAccount(mockbackend.Account{Name: "Ana", Email: "ana@example.com", Password: "pw"})
	require.NoError(t, err)
	s.login(t, "ana@example.com", "pw")
	p, err := s.api.GetProduct(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, s.cart.AddItem(ctx, p))
	require.Equal(t, model.ModeRemote, s.cart.View().Mode)

	// a token signed with another secret decodes fine but fails verification
	other := mockbackend.New(mockbackend.Options{Secret: []byte("another"), BcryptCost: bcrypt.MinCost, Log: logrus.New()})
	_, err = other.AddAccount(mockbackend.Account{Name: "Ana", Email: "ana@example.com", Password: "pw"})
	require.NoError(t, err)
	ts := httptest.NewServer(other.Handler())
	defer ts.Close()
	forged, err := client.New(client.Options{BaseURL: ts.URL}).Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)
	_, err = s.session.Login(ctx, forged)
	require.NoError(t, err)

	err = s.cart.AddItem(ctx, p)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.False(t, s.session.IsLogged(ctx))

	view := s.cart.View()
	assert.Equal(t, model.ModeLocal, view.Mode)
	assert.Empty(t, view.Items, "the rejected add is not mirrored")

	remote, err := s.backend.Carts().GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, remote, 1)
}
