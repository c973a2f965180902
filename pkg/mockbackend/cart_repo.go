package mockbackend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/asteruwu/cartsync/pkg/model"

	redis "github.com/redis/go-redis/v9"
)

var errNotInCart = errors.New("product not in cart")

// CartLine is one product id and quantity of a stored cart.
type CartLine struct {
	ProductID int64
	Quantity  int
}

// CartRepository stores server-side carts as product id -> quantity.
type CartRepository interface {
	AddItem(ctx context.Context, userID, productID int64) error
	Increase(ctx context.Context, userID, productID int64) error
	Decrease(ctx context.Context, userID, productID int64) error
	RemoveItem(ctx context.Context, userID, productID int64) error
	GetCart(ctx context.Context, userID int64) ([]CartLine, error)
	EmptyCart(ctx context.Context, userID int64) error
}

type memoryCarts struct {
	mu    sync.Mutex
	carts map[int64]map[int64]int
}

func NewMemoryCarts() CartRepository {
	return &memoryCarts{carts: make(map[int64]map[int64]int)}
}

func (m *memoryCarts) cart(userID int64) map[int64]int {
	c, ok := m.carts[userID]
	if !ok {
		c = make(map[int64]int)
		m.carts[userID] = c
	}
	return c
}

func (m *memoryCarts) AddItem(_ context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cart(userID)
	if c[productID] < model.MaxQuantity {
		c[productID]++
	}
	return nil
}

func (m *memoryCarts) Increase(_ context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cart(userID)
	q, ok := c[productID]
	if !ok {
		return errNotInCart
	}
	if q < model.MaxQuantity {
		c[productID] = q + 1
	}
	return nil
}

func (m *memoryCarts) Decrease(_ context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cart(userID)
	q, ok := c[productID]
	if !ok {
		return errNotInCart
	}
	if q <= 1 {
		delete(c, productID)
		return nil
	}
	c[productID] = q - 1
	return nil
}

func (m *memoryCarts) RemoveItem(_ context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cart(userID), productID)
	return nil
}

func (m *memoryCarts) GetCart(_ context.Context, userID int64) ([]CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CartLine, 0, len(m.carts[userID]))
	for id, q := range m.carts[userID] {
		out = append(out, CartLine{ProductID: id, Quantity: q})
	}
	sortLines(out)
	return out, nil
}

func (m *memoryCarts) EmptyCart(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

// redisCarts keeps each cart in a hash "cart:<userId>" of productId -> quantity.
type redisCarts struct {
	rdb *redis.Client
}

func NewRedisCarts(rdb *redis.Client) CartRepository {
	return &redisCarts{rdb: rdb}
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func (r *redisCarts) AddItem(ctx context.Context, userID, productID int64) error {
	return r.incr(ctx, userID, productID)
}

func (r *redisCarts) incr(ctx context.Context, userID, productID int64) error {
	key, field := cartKey(userID), strconv.FormatInt(productID, 10)
	q, err := r.rdb.HIncrBy(ctx, key, field, 1).Result()
	if err != nil {
		return err
	}
	if q > model.MaxQuantity {
		return r.rdb.HSet(ctx, key, field, model.MaxQuantity).Err()
	}
	return nil
}

func (r *redisCarts) Increase(ctx context.Context, userID, productID int64) error {
	ok, err := r.rdb.HExists(ctx, cartKey(userID), strconv.FormatInt(productID, 10)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errNotInCart
	}
	return r.incr(ctx, userID, productID)
}

func (r *redisCarts) Decrease(ctx context.Context, userID, productID int64) error {
	key, field := cartKey(userID), strconv.FormatInt(productID, 10)
	ok, err := r.rdb.HExists(ctx, key, field).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errNotInCart
	}
	q, err := r.rdb.HIncrBy(ctx, key, field, -1).Result()
	if err != nil {
		return err
	}
	if q <= 0 {
		return r.rdb.HDel(ctx, key, field).Err()
	}
	return nil
}

func (r *redisCarts) RemoveItem(ctx context.Context, userID, productID int64) error {
	return r.rdb.HDel(ctx, cartKey(userID), strconv.FormatInt(productID, 10)).Err()
}

func (r *redisCarts) GetCart(ctx context.Context, userID int64) ([]CartLine, error) {
	data, err := r.rdb.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]CartLine, 0, len(data))
	for k, v := range data {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		q, _ := strconv.Atoi(v)
		if q <= 0 {
			continue
		}
		out = append(out, CartLine{ProductID: id, Quantity: q})
	}
	sortLines(out)
	return out, nil
}

func (r *redisCarts) EmptyCart(ctx context.Context, userID int64) error {
	return r.rdb.Del(ctx, cartKey(userID)).Err()
}

func sortLines(lines []CartLine) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
}
