// Package localcart persists the guest cart as JSON under a single key of a
// storage.KV, the way the storefront kept it in browser local storage.
package localcart

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/asteruwu/cartsync/pkg/model"
	"github.com/asteruwu/cartsync/pkg/storage"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Key is the storage key holding the serialized cart.
const Key = "carrito"

type Store struct {
	kv  storage.KV
	log logrus.FieldLogger
}

func New(kv storage.KV, log logrus.FieldLogger) *Store {
	return &Store{kv: kv, log: log}
}

// Load returns the persisted cart. A missing key yields an empty cart; so does
// a value that no longer parses, which is logged and left in place.
func (s *Store) Load(ctx context.Context) (model.CartState, error) {
	raw, err := s.kv.Get(ctx, Key)
	if errors.Is(err, storage.ErrNotFound) {
		return model.CartState{}, nil
	}
	if err != nil {
		return model.CartState{}, pkgerrors.Wrap(err, "load local cart")
	}

	var items []model.CartLineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.log.WithField("error", err).Warn("local cart is not valid json, starting empty")
		return model.CartState{}, nil
	}
	return model.NewCartState(items), nil
}

func (s *Store) Save(ctx context.Context, cart model.CartState) error {
	raw, err := json.Marshal(cart.Items())
	if err != nil {
		return pkgerrors.Wrap(err, "encode local cart")
	}
	return pkgerrors.Wrap(s.kv.Set(ctx, Key, string(raw)), "save local cart")
}

func (s *Store) Clear(ctx context.Context) error {
	return pkgerrors.Wrap(s.kv.Delete(ctx, Key), "clear local cart")
}
