package main

import (
	"github.com/asteruwu/cartsync/pkg/mockbackend"
	"github.com/asteruwu/cartsync/pkg/storage"

	"github.com/spf13/cobra"
)

var demoAccounts = []mockbackend.Account{
	{Name: "Admin", Email: "admin@cartsync.local", Password: "admin123", Admin: true},
	{Name: "Cliente", Email: "cliente@cartsync.local", Password: "cliente123"},
}

func newMockBackendCommand(opts *rootOptions) *cobra.Command {
	var (
		addr       string
		redisCarts bool
		rateLimit  bool
	)
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve a local stand-in for the storefront API",
		Long: `Serve the auth, catalog, cart and order endpoints on a local port with a
demo catalog and two accounts:

  admin@cartsync.local / admin123  (ADMIN)
  cliente@cartsync.local / cliente123

With --redis-carts the carts live in Redis hashes; --rate-limit puts the
Redis token buckets (RATELIMIT_* variables) in front of the API. Both use
the storage.redis_* settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg.MockBackend
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Addr
			}
			redisCarts = redisCarts || cfg.RedisCarts
			rateLimit = rateLimit || cfg.RateLimit

			stopTelemetry := startTelemetry(ctx, opts.cfg.Metrics)
			defer stopTelemetry()

			mo := mockbackend.Options{
				Secret: []byte(cfg.Secret),
				RateLimit: mockbackend.RateLimit{
					GlobalRPS:   cfg.GlobalRPS,
					GlobalBurst: cfg.GlobalBurst,
					IPRPS:       cfg.IPRPS,
					IPBurst:     cfg.IPBurst,
				},
				Log: log,
			}
			if redisCarts || rateLimit {
				sc := opts.cfg.Storage
				rdb, err := storage.NewRedisClient(ctx, storage.RedisOptions{
					Addr:          sc.RedisAddr,
					SentinelAddrs: sc.RedisSentinels,
					MasterName:    sc.RedisMaster,
					DB:            sc.RedisDB,
					Tracing:       opts.cfg.Metrics.Tracing,
				}, log)
				if err != nil {
					return err
				}
				defer rdb.Close()
				if redisCarts {
					mo.Carts = mockbackend.NewRedisCarts(rdb)
				}
				if rateLimit {
					mo.Redis = rdb
				}
			}

			srv := mockbackend.New(mo)
			for _, acc := range demoAccounts {
				if _, err := srv.AddAccount(acc); err != nil {
					return err
				}
			}
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&redisCarts, "redis-carts", false, "keep carts in Redis")
	cmd.Flags().BoolVar(&rateLimit, "rate-limit", false, "enable the Redis rate limiter")
	return cmd
}
