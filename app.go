package main

import (
	"context"

	"github.com/asteruwu/cartsync/pkg/auth"
	"github.com/asteruwu/cartsync/pkg/client"
	"github.com/asteruwu/cartsync/pkg/config"
	"github.com/asteruwu/cartsync/pkg/localcart"
	"github.com/asteruwu/cartsync/pkg/repository"
	"github.com/asteruwu/cartsync/pkg/service"
	"github.com/asteruwu/cartsync/pkg/storage"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// app is the wired client side: session, REST client and cart view-model
// sharing one local store.
type app struct {
	cfg     config.Config
	kv      storage.KV
	rdb     *redis.Client
	session *auth.Session
	api     *client.Client
	local   *localcart.Store
	cart    *service.CartService
	orders  *service.OrderService
	catalog *service.CatalogService
	confirm service.Confirmer
	log     logrus.FieldLogger

	receipts repository.ReceiptRepo
	closers  []func() error
}

func openKV(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (storage.KV, *redis.Client, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("memory storage selected, the cart and session are lost on exit")
		return storage.NewMemory(), nil, nil
	case "redis":
		rdb, err := storage.NewRedisClient(ctx, storage.RedisOptions{
			Addr:          cfg.Storage.RedisAddr,
			SentinelAddrs: cfg.Storage.RedisSentinels,
			MasterName:    cfg.Storage.RedisMaster,
			DB:            cfg.Storage.RedisDB,
			Prefix:        cfg.Storage.RedisPrefix,
			Tracing:       cfg.Metrics.Tracing,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedis(rdb, cfg.Storage.RedisPrefix), rdb, nil
	default:
		kv, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		return kv, nil, err
	}
}

// openApp wires the client side and, when a stored session is still valid,
// resumes the remote cart without reconciling.
func openApp(ctx context.Context, cfg config.Config, confirm service.Confirmer, notify service.Notifier) (*app, error) {
	kv, rdb, err := openKV(ctx, cfg, log)
	if err != nil {
		return nil, errors.Wrap(err, "open local storage")
	}
	a := &app{cfg: cfg, kv: kv, rdb: rdb, confirm: confirm, log: log}
	a.closers = append(a.closers, kv.Close)

	a.session = auth.NewSession(kv, log)
	a.api = client.New(client.Options{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.RequestTimeout,
		Tokens:  a.session,
		Log:     log,
	})
	a.local = localcart.New(kv, log)
	a.cart, err = service.NewCart(ctx, service.CartOptions{
		Gateway:   a.api,
		Local:     a.local,
		Confirmer:   confirm,
		Notifier:    notify,
		IsAuthError: client.IsUnauthorized,
		Log:         log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orders = service.NewOrderService(a.api, a.session, log)
	a.catalog = service.NewCatalogService(a.api, a.session, log)

	if id, err := a.session.Identity(ctx); err == nil && id.UserID > 0 {
		if err := a.cart.Resume(ctx, id.UserID); err != nil {
			log.WithField("error", err).Warn("could not load the remote cart, showing the last known state")
		}
	}
	return a, nil
}

// Receipts opens the journal on first use.
func (a *app) Receipts() (repository.ReceiptRepo, error) {
	if a.receipts != nil {
		return a.receipts, nil
	}
	db, err := repository.Open(repository.Config{
		MySQLDSN:   a.cfg.Receipts.MySQLDSN,
		SQLitePath: a.cfg.Receipts.SQLitePath,
		Tracing:    a.cfg.Metrics.Tracing,
	}, a.log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	a.receipts = repository.NewReceiptRepo(db)
	return a.receipts, nil
}

// userID is the logged in user's id, or 0 for a guest.
func (a *app) userID(ctx context.Context) int64 {
	id, err := a.session.Identity(ctx)
	if err != nil {
		return 0
	}
	return id.UserID
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithField("error", err).Warn("close failed")
		}
	}
}
