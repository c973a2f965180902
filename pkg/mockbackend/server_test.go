package mockbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

type testBackend struct {
	t   *testing.T
	srv *Server
	url string
}

func newTestBackend(t *testing.T, opts Options) *testBackend {
	t.Helper()
	opts.BcryptCost = bcrypt.MinCost
	opts.Log = quietLogger()
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testBackend{t: t, srv: srv, url: ts.URL}
}

func (b *testBackend) account(email string, admin bool) (int64, string) {
	b.t.Helper()
	id, err := b.srv.AddAccount(Account{Name: "Test", Email: email, Password: "secret", Admin: admin})
	require.NoError(b.t, err)
	var out struct {
		Token string `json:"token"`
	}
	code := b.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "secret"}, &out)
	require.Equal(b.t, http.StatusOK, code)
	require.NotEmpty(b.t, out.Token)
	return id, out.Token
}

func (b *testBackend) call(method, path, token string, body, out interface{}) int {
	b.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, b.url+path, rd)
	require.NoError(b.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(b.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func fmtID(n int64) string { return strconv.FormatInt(n, 10) }

type cartBody struct {
	Items []struct {
		Product struct {
			ID int64 `json:"id"`
		} `json:"producto"`
		Quantity int `json:"cantidad"`
	} `json:"items"`
	Total string `json:"total"`
}

func (c cartBody) quantities() map[int64]int {
	out := make(map[int64]int, len(c.Items))
	for _, it := range c.Items {
		out[it.Product.ID] = it.Quantity
	}
	return out
}

func TestAuth_LoginAndRegister(t *testing.T) {
	b := newTestBackend(t, Options{})

	code := b.call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"nombre": "Ana", "apellido": "Rojas", "email": "ana@example.com", "password": "pw",
	}, nil)
	assert.Equal(t, http.StatusCreated, code)

	code = b.call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"nombre": "Ana", "email": "ANA@example.com", "password": "pw",
	}, nil)
	assert.Equal(t, http.StatusConflict, code)

	code = b.call(http.MethodPost, "/api/auth/register", "", map[string]string{"nombre": "Ana"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = b.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	var out struct {
		Token string `json:"token"`
	}
	code = b.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "pw"}, &out)
	assert.Equal(t, http.StatusOK, code)
	claims, err := b.srv.auth.verify(out.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, roleUser, claims.Role)
}

func TestCatalog(t *testing.T) {
	b := newTestBackend(t, Options{})

	var products []struct {
		ID int64 `json:"id"`
	}
	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos", "", nil, &products))
	assert.Len(t, products, len(DemoCatalog()))
	assert.Equal(t, int64(1), products[0].ID)

	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos/3", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodGet, "/api/productos/42", "", nil, nil))
}

type productBody struct {
	ID       int64  `json:"id"`
	Name     string `json:"titulo"`
	Category *struct {
		ID   int64  `json:"id"`
		Name string `json:"nombre"`
	} `json:"categoria"`
}

func productIDs(ps []productBody) []int64 {
	out := []int64{}
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestCatalog_Queries(t *testing.T) {
	b := newTestBackend(t, Options{})

	var ps []productBody
	require.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos/destacados", "", nil, &ps))
	assert.Equal(t, []int64{1, 3, 5}, productIDs(ps))

	require.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos/buscar?keyword=DIXIT", "", nil, &ps))
	assert.Equal(t, []int64{3}, productIDs(ps))
	require.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos/buscar?keyword=consola", "", nil, &ps))
	assert.Equal(t, []int64{4, 5}, productIDs(ps))

	require.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos/categoria/2", "", nil, &ps))
	assert.Equal(t, []int64{4, 5}, productIDs(ps))
	assert.Equal(t, "Consolas", ps[0].Category.Name)
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodGet, "/api/productos/categoria/9", "", nil, nil))

	var cats []struct {
		ID int64 `json:"id"`
	}
	require.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/categorias", "", nil, &cats))
	assert.Len(t, cats, 2)
}

func TestCatalog_AdminCRUD(t *testing.T) {
	b := newTestBackend(t, Options{})
	_, user := b.account("user@example.com", false)
	_, admin := b.account("admin@example.com", true)

	puzzles := map[string]interface{}{"nombre": "Puzzles", "activo": true}
	assert.Equal(t, http.StatusUnauthorized, b.call(http.MethodPost, "/api/categorias", "", puzzles, nil))
	assert.Equal(t, http.StatusForbidden, b.call(http.MethodPost, "/api/categorias", user, puzzles, nil))
	assert.Equal(t, http.StatusBadRequest, b.call(http.MethodPost, "/api/categorias", admin, map[string]interface{}{"nombre": " "}, nil))

	var cat struct {
		ID   int64  `json:"id"`
		Name string `json:"nombre"`
	}
	require.Equal(t, http.StatusCreated, b.call(http.MethodPost, "/api/categorias", admin, puzzles, &cat))
	assert.Equal(t, int64(3), cat.ID)

	product := map[string]interface{}{
		"titulo": "Rompecabezas 1000", "precio": "12990", "oferta": true, "descuento": 5,
		"categoria": map[string]int64{"id": cat.ID},
	}
	assert.Equal(t, http.StatusForbidden, b.call(http.MethodPost, "/api/productos", user, product, nil))
	var p productBody
	require.Equal(t, http.StatusCreated, b.call(http.MethodPost, "/api/productos", admin, product, &p))
	assert.Equal(t, int64(6), p.ID)
	require.NotNil(t, p.Category)
	assert.Equal(t, "Puzzles", p.Category.Name)

	for _, bad := range []map[string]interface{}{
		{"titulo": "x", "precio": "0"},
		{"titulo": "", "precio": "10"},
		{"titulo": "x", "precio": "10", "descuento": 150},
		{"titulo": "x", "precio": "10", "categoria": map[string]int64{"id": 99}},
	} {
		assert.Equal(t, http.StatusBadRequest, b.call(http.MethodPost, "/api/productos", admin, bad, nil), "%v", bad)
	}

	require.Equal(t, http.StatusOK, b.call(http.MethodPut, "/api/categorias/3", admin, map[string]interface{}{"nombre": "Rompecabezas", "activo": true}, nil))
	require.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos/6", "", nil, &p))
	assert.Equal(t, "Rompecabezas", p.Category.Name)

	assert.Equal(t, http.StatusConflict, b.call(http.MethodDelete, "/api/categorias/3", admin, nil, nil))
	require.Equal(t, http.StatusOK, b.call(http.MethodPut, "/api/productos/6", admin, map[string]interface{}{"titulo": "Rompecabezas 2000", "precio": "15990"}, &p))
	assert.Equal(t, "Rompecabezas 2000", p.Name)
	assert.Nil(t, p.Category)
	assert.Equal(t, http.StatusNoContent, b.call(http.MethodDelete, "/api/categorias/3", admin, nil, nil))
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodGet, "/api/categorias/3", "", nil, nil))

	assert.Equal(t, http.StatusNoContent, b.call(http.MethodDelete, "/api/productos/6", admin, nil, nil))
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodGet, "/api/productos/6", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodDelete, "/api/productos/6", admin, nil, nil))
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodPut, "/api/productos/42", admin, product, nil))
}

func TestCart_SkipsDeletedProducts(t *testing.T) {
	b := newTestBackend(t, Options{})
	uid, token := b.account("user@example.com", false)
	_, admin := b.account("admin@example.com", true)

	require.Equal(t, http.StatusOK, b.call(http.MethodPost, "/api/carrito/"+fmtID(uid)+"/2", token, nil, nil))
	require.Equal(t, http.StatusOK, b.call(http.MethodPost, "/api/carrito/"+fmtID(uid)+"/3", token, nil, nil))
	require.Equal(t, http.StatusNoContent, b.call(http.MethodDelete, "/api/productos/2", admin, nil, nil))

	var cart cartBody
	require.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/carrito/"+fmtID(uid), token, nil, &cart))
	assert.Equal(t, map[int64]int{3: 1}, cart.quantities())
	assert.Equal(t, "8000", cart.Total)
}

func cartRoutes(t *testing.T, b *testBackend) {
	uid, token := b.account("user@example.com", false)
	base := "/api/carrito/"

	var cart cartBody
	require.Equal(t, http.StatusOK, b.call(http.MethodGet, base+fmtID(uid), token, nil, &cart))
	assert.Empty(t, cart.Items)

	require.Equal(t, http.StatusOK, b.call(http.MethodPost, base+fmtID(uid)+"/3", token, nil, &cart))
	require.Equal(t, http.StatusOK, b.call(http.MethodPost, "/api/carrito/increase/"+fmtID(uid)+"/3", token, nil, &cart))
	require.Equal(t, http.StatusOK, b.call(http.MethodPost, base+fmtID(uid)+"/2", token, nil, &cart))
	assert.Equal(t, map[int64]int{2: 1, 3: 2}, cart.quantities())
	assert.Equal(t, "40990", cart.Total)

	require.Equal(t, http.StatusOK, b.call(http.MethodPost, "/api/carrito/decrease/"+fmtID(uid)+"/2", token, nil, &cart))
	assert.Equal(t, map[int64]int{3: 2}, cart.quantities())

	assert.Equal(t, http.StatusNotFound, b.call(http.MethodPost, "/api/carrito/increase/"+fmtID(uid)+"/1", token, nil, nil))
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodPost, base+fmtID(uid)+"/42", token, nil, nil))

	require.Equal(t, http.StatusOK, b.call(http.MethodDelete, base+fmtID(uid)+"/3", token, nil, &cart))
	assert.Empty(t, cart.Items)

	require.Equal(t, http.StatusOK, b.call(http.MethodPost, base+fmtID(uid)+"/1", token, nil, nil))
	assert.Equal(t, http.StatusNoContent, b.call(http.MethodDelete, "/api/carritovacio/"+fmtID(uid), token, nil, nil))
	require.Equal(t, http.StatusOK, b.call(http.MethodGet, base+fmtID(uid), token, nil, &cart))
	assert.Empty(t, cart.Items)
}

func TestCart_Memory(t *testing.T) {
	cartRoutes(t, newTestBackend(t, Options{}))
}

func TestCart_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cartRoutes(t, newTestBackend(t, Options{Carts: NewRedisCarts(rdb)}))
	assert.False(t, mr.Exists("cart:1"))
}

func TestRedisCarts_CapsQuantity(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	carts := NewRedisCarts(rdb)
	ctx := context.Background()

	mr.HSet("cart:7", "5", "99")
	require.NoError(t, carts.Increase(ctx, 7, 5))
	lines, err := carts.GetCart(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []CartLine{{ProductID: 5, Quantity: 99}}, lines)

	assert.ErrorIs(t, carts.Decrease(ctx, 7, 1), errNotInCart)
}

func TestCart_RequiresOwnToken(t *testing.T) {
	b := newTestBackend(t, Options{})
	_, token := b.account("a@example.com", false)
	other, _ := b.account("b@example.com", false)
	_, admin := b.account("admin@example.com", true)

	assert.Equal(t, http.StatusUnauthorized, b.call(http.MethodGet, "/api/carrito/1", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, b.call(http.MethodGet, "/api/carrito/1", "garbage", nil, nil))
	assert.Equal(t, http.StatusForbidden, b.call(http.MethodGet, "/api/carrito/"+fmtID(other), token, nil, nil))
	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/carrito/"+fmtID(other), admin, nil, nil))
}

func TestOrders(t *testing.T) {
	b := newTestBackend(t, Options{})
	uid, token := b.account("buyer@example.com", false)
	_, admin := b.account("admin@example.com", true)

	req := map[string]interface{}{
		"usuarioId":      uid,
		"direccionEnvio": "Av. Siempre Viva 742, Providencia, RM",
		"items": []map[string]interface{}{
			{"productoId": 3, "cantidad": 3, "precioUnitario": "8000"},
			{"productoId": 2, "cantidad": 1, "precioUnitario": "24990"},
		},
	}
	var order struct {
		ID     int64  `json:"id"`
		Status string `json:"estado"`
		Total  string `json:"total"`
		Lines  []struct {
			ID int64 `json:"id"`
		} `json:"detalles"`
	}
	require.Equal(t, http.StatusCreated, b.call(http.MethodPost, "/api/pedidos", token, req, &order))
	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, "PENDIENTE", order.Status)
	assert.Equal(t, "48990", order.Total)
	assert.Len(t, order.Lines, 2)

	empty := map[string]interface{}{"usuarioId": uid, "direccionEnvio": "x", "items": []interface{}{}}
	assert.Equal(t, http.StatusBadRequest, b.call(http.MethodPost, "/api/pedidos", token, empty, nil))

	unknown := map[string]interface{}{
		"usuarioId": uid, "direccionEnvio": "x",
		"items": []map[string]interface{}{{"productoId": 42, "cantidad": 1, "precioUnitario": "1"}},
	}
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodPost, "/api/pedidos", token, unknown, nil))

	var mine []struct {
		ID int64 `json:"id"`
	}
	require.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/pedidos/usuario/"+fmtID(uid), token, nil, &mine))
	assert.Len(t, mine, 1)

	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/pedidos/1", token, nil, nil))
	assert.Equal(t, http.StatusForbidden, b.call(http.MethodGet, "/api/pedidos", token, nil, nil))
	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/pedidos", admin, nil, nil))

	assert.Equal(t, http.StatusForbidden, b.call(http.MethodPatch, "/api/pedidos/1/estado?estado=ENVIADO", token, nil, nil))
	assert.Equal(t, http.StatusBadRequest, b.call(http.MethodPatch, "/api/pedidos/1/estado?estado=PERDIDO", admin, nil, nil))
	assert.Equal(t, http.StatusNotFound, b.call(http.MethodPatch, "/api/pedidos/9/estado?estado=ENVIADO", admin, nil, nil))
	require.Equal(t, http.StatusOK, b.call(http.MethodPatch, "/api/pedidos/1/estado?estado=enviado", admin, nil, &order))
	assert.Equal(t, "ENVIADO", order.Status)
}

func TestLimiter_PerIP(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := newTestBackend(t, Options{
		Redis:     rdb,
		RateLimit: RateLimit{GlobalRPS: 100, GlobalBurst: 100, IPRPS: 0.001, IPBurst: 2},
	})
	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos", "", nil, nil))
	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos", "", nil, nil))
	assert.Equal(t, http.StatusTooManyRequests, b.call(http.MethodGet, "/api/productos", "", nil, nil))
}

func TestLimiter_RetryAfter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	srv := httptest.NewServer(NewLimiter(rdb, RateLimit{GlobalRPS: 0.5, GlobalBurst: 1, IPRPS: 100, IPBurst: 100}, quietLogger()).
		Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })))
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "2", res.Header.Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	assert.Equal(t, "10.0.0.9", clientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.7")
	assert.Equal(t, "10.0.0.7", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
	assert.Equal(t, "203.0.113.4", clientIP(r))
}

func TestLimiter_RedisDownLetsRequestsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	b := newTestBackend(t, Options{Redis: rdb, RateLimit: RateLimit{GlobalRPS: 1, GlobalBurst: 1, IPRPS: 1, IPBurst: 1}})
	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/api/productos", "", nil, nil))
}
