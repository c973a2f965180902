package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	redisotel "github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisOptions struct {
	Addr          string
	SentinelAddrs []string
	MasterName    string
	DB            int
	// Prefix namespaces every key, e.g. "cartsync" -> "cartsync:carrito".
	Prefix     string
	MaxRetries int
	Tracing    bool
}

type redisKV struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisClient builds a sentinel client when sentinels are configured and a
// single node client otherwise, then waits for the server with capped
// exponential backoff.
func NewRedisClient(ctx context.Context, opts RedisOptions, log logrus.FieldLogger) (*redis.Client, error) {
	var rdb *redis.Client
	if len(opts.SentinelAddrs) > 0 {
		master := opts.MasterName
		if master == "" {
			master = "mymaster"
		}
		log.Infof("Initializing Redis in Sentinel Mode. Master: %s, DB: %d", master, opts.DB)
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    master,
			SentinelAddrs: opts.SentinelAddrs,
			DB:            opts.DB,
		})
	} else {
		log.Infof("Initializing Redis in Single Mode. Addr: %s, DB: %d", opts.Addr, opts.DB)
		rdb = redis.NewClient(&redis.Options{
			Addr: opts.Addr,
			DB:   opts.DB,
		})
	}

	if opts.Tracing {
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			log.Warnf("failed to instrument redis tracing: %v", err)
		}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	for i := 0; i < maxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.Info("connected to redis")
			return rdb, nil
		}
		if i == maxRetries-1 {
			rdb.Close()
			return nil, errors.Wrapf(err, "failed to connect to redis after %d retries", maxRetries)
		}

		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		log.Warnf("redis not ready, retry in %v... (%d/%d)", backoff, i+1, maxRetries)
		select {
		case <-ctx.Done():
			rdb.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return rdb, nil
}

// NewRedis wraps an existing client as a KV store.
func NewRedis(rdb *redis.Client, prefix string) KV {
	return &redisKV{rdb: rdb, prefix: prefix}
}

func (r *redisKV) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *redisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "get %s", key)
	}
	return v, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string) error {
	return errors.Wrapf(r.rdb.Set(ctx, r.key(key), value, 0).Err(), "set %s", key)
}

func (r *redisKV) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(r.rdb.Del(ctx, r.key(key)).Err(), "delete %s", key)
}

func (r *redisKV) Close() error {
	return r.rdb.Close()
}
