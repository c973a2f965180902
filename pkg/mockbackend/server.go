// Package mockbackend is an in-process stand-in for the storefront REST API:
// auth, catalog, per-user carts and orders. It backs the integration tests and
// the mock-backend command; it is not meant to be a production server.
package mockbackend

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/asteruwu/cartsync/pkg/model"

	"github.com/gorilla/mux"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type Options struct {
	// Secret signs the HS256 tokens.
	Secret   []byte
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Carts defaults to an in-memory repository.
	Carts    CartRepository
	Products []model.Product
	// Redis enables the token bucket rate limiter when set.
	Redis     *redis.Client
	RateLimit RateLimit
	Log       logrus.FieldLogger
}

// Account is a user created at start-up.
type Account struct {
	Name     string
	Email    string
	Password string
	Admin    bool
}

type Server struct {
	auth     *authStore
	carts   CartRepository
	catalog *catalogStore
	log     logrus.FieldLogger
	handler http.Handler

	mu          sync.Mutex
	orders      map[int64]*model.Order
	orderOwners map[int64]int64
	nextOrderID int64
	nextLineID  int64
}

func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	secret := opts.Secret
	if len(secret) == 0 {
		secret = []byte("cartsync_mock_backend_secret")
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	carts := opts.Carts
	if carts == nil {
		carts = NewMemoryCarts()
	}
	products := opts.Products
	if products == nil {
		products = DemoCatalog()
	}

	s := &Server{
		auth:        newAuthStore(secret, ttl, cost),
		carts:       carts,
		catalog:     newCatalogStore(products),
		log:         log,
		orders:      make(map[int64]*model.Order),
		orderOwners: make(map[int64]int64),
		nextOrderID: 1,
		nextLineID:  1,
	}
	var h http.Handler = s.routes()
	if opts.Redis != nil {
		h = NewLimiter(opts.Redis, opts.RateLimit, log).Middleware(h)
	}
	s.handler = withAccessLog(log, h)
	return s
}

// AddAccount registers a user directly, bypassing the HTTP API.
func (s *Server) AddAccount(a Account) (int64, error) {
	role := roleUser
	if a.Admin {
		role = roleAdmin
	}
	u, err := s.auth.register(registerRequest{Name: a.Name, Email: a.Email, Password: a.Password}, role)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

// Carts exposes the cart repository for seeding and inspection.
func (s *Server) Carts() CartRepository { return s.carts }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", s.loginHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.registerHandler).Methods(http.MethodPost)

	api.HandleFunc("/productos", s.listProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/productos", s.requireAdmin(s.createProductHandler)).Methods(http.MethodPost)
	api.HandleFunc("/productos/destacados", s.featuredProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/productos/buscar", s.searchProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/productos/categoria/{id:[0-9]+}", s.categoryProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/productos/{id:[0-9]+}", s.getProductHandler).Methods(http.MethodGet)
	api.HandleFunc("/productos/{id:[0-9]+}", s.requireAdmin(s.updateProductHandler)).Methods(http.MethodPut)
	api.HandleFunc("/productos/{id:[0-9]+}", s.requireAdmin(s.deleteProductHandler)).Methods(http.MethodDelete)

	api.HandleFunc("/categorias", s.listCategoriesHandler).Methods(http.MethodGet)
	api.HandleFunc("/categorias", s.requireAdmin(s.createCategoryHandler)).Methods(http.MethodPost)
	api.HandleFunc("/categorias/{id:[0-9]+}", s.getCategoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/categorias/{id:[0-9]+}", s.requireAdmin(s.updateCategoryHandler)).Methods(http.MethodPut)
	api.HandleFunc("/categorias/{id:[0-9]+}", s.requireAdmin(s.deleteCategoryHandler)).Methods(http.MethodDelete)

	api.HandleFunc("/carrito/increase/{userId:[0-9]+}/{productId:[0-9]+}", s.requireAuth(s.increaseHandler)).Methods(http.MethodPost)
	api.HandleFunc("/carrito/decrease/{userId:[0-9]+}/{productId:[0-9]+}", s.requireAuth(s.decreaseHandler)).Methods(http.MethodPost)
	api.HandleFunc("/carrito/{userId:[0-9]+}", s.requireAuth(s.getCartHandler)).Methods(http.MethodGet)
	api.HandleFunc("/carrito/{userId:[0-9]+}/{productId:[0-9]+}", s.requireAuth(s.addToCartHandler)).Methods(http.MethodPost)
	api.HandleFunc("/carrito/{userId:[0-9]+}/{productId:[0-9]+}", s.requireAuth(s.removeFromCartHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/carritovacio/{userId:[0-9]+}", s.requireAuth(s.emptyCartHandler)).Methods(http.MethodDelete)

	api.HandleFunc("/pedidos", s.requireAuth(s.listOrdersHandler)).Methods(http.MethodGet)
	api.HandleFunc("/pedidos", s.requireAuth(s.createOrderHandler)).Methods(http.MethodPost)
	api.HandleFunc("/pedidos/usuario/{userId:[0-9]+}", s.requireAuth(s.userOrdersHandler)).Methods(http.MethodGet)
	api.HandleFunc("/pedidos/{id:[0-9]+}", s.requireAuth(s.getOrderHandler)).Methods(http.MethodGet)
	api.HandleFunc("/pedidos/{id:[0-9]+}/estado", s.requireAuth(s.updateStatusHandler)).Methods(http.MethodPatch)

	r.HandleFunc("/_healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("mock backend listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("Gracefully shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// DemoCatalog is the product list the mock backend starts with.
func DemoCatalog() []model.Product {
	games := &model.Category{ID: 1, Name: "Juegos de mesa", Active: true}
	consoles := &model.Category{ID: 2, Name: "Consolas", Active: true}
	return []model.Product{
		{ID: 1, Name: "Catan", Description: "Juego de estrategia y comercio", Price: decimal.NewFromInt(29990), ImageRef: "/img/catan.png", Offer: true, DiscountPercent: 10, Category: games},
		{ID: 2, Name: "Carcassonne", Description: "Juego de colocacion de losetas", Price: decimal.NewFromInt(24990), ImageRef: "/img/carcassonne.png", Category: games},
		{ID: 3, Name: "Dixit", Description: "Juego de cartas ilustradas", Price: decimal.NewFromInt(10000), ImageRef: "/img/dixit.png", Offer: true, DiscountPercent: 20, Category: games},
		{ID: 4, Name: "PlayStation 5", Description: "Consola de sobremesa", Price: decimal.NewFromInt(549990), ImageRef: "/img/ps5.png", Category: consoles},
		{ID: 5, Name: "Nintendo Switch", Description: "Consola hibrida", Price: decimal.NewFromInt(299990), ImageRef: "/img/switch.png", Offer: true, DiscountPercent: 15, Category: consoles},
	}
}
