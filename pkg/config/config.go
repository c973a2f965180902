package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BackendURL     string        `yaml:"backend_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogLevel       string        `yaml:"log_level"`

	Storage  StorageConfig  `yaml:"storage"`
	Receipts ReceiptsConfig `yaml:"receipts"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	MockBackend MockBackendConfig `yaml:"mock_backend"`
}

// StorageConfig selects the key-value backend that plays the role of browser
// local storage.
type StorageConfig struct {
	Driver     string `yaml:"driver"` // memory | sqlite | redis
	SQLitePath string `yaml:"sqlite_path"`

	RedisAddr      string   `yaml:"redis_addr"`
	RedisSentinels []string `yaml:"redis_sentinels"`
	RedisMaster    string   `yaml:"redis_master"`
	RedisDB        int      `yaml:"redis_db"`
	RedisPrefix    string   `yaml:"redis_prefix"`
}

type ReceiptsConfig struct {
	MySQLDSN   string `yaml:"mysql_dsn"`
	SQLitePath string `yaml:"sqlite_path"`
}

type CheckoutConfig struct {
	PaymentSuccessRate float64 `yaml:"payment_success_rate"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Tracing installs the otel trace exporter and instruments Redis and gorm.
	Tracing       bool   `yaml:"tracing"`
	CollectorAddr string `yaml:"collector_addr"`
}

// MockBackendConfig drives the `cartsync mock-backend` command.
type MockBackendConfig struct {
	Addr       string `yaml:"addr"`
	Secret     string `yaml:"secret"`
	RedisCarts bool   `yaml:"redis_carts"`
	RateLimit  bool   `yaml:"rate_limit"`

	GlobalRPS   float64 `yaml:"global_rps"`
	GlobalBurst int     `yaml:"global_burst"`
	IPRPS       float64 `yaml:"ip_rps"`
	IPBurst     int     `yaml:"ip_burst"`
}

func Default() Config {
	dir := defaultStateDir()
	return Config{
		BackendURL:     "http://localhost:8080",
		RequestTimeout: 15 * time.Second,
		LogLevel:       "info",
		Storage: StorageConfig{
			Driver:      "sqlite",
			SQLitePath:  dir + "/state.db",
			RedisAddr:   "localhost:6380",
			RedisMaster: "mymaster",
			RedisPrefix: "cartsync",
		},
		Receipts: ReceiptsConfig{
			SQLitePath: dir + "/receipts.db",
		},
		Checkout: CheckoutConfig{PaymentSuccessRate: 0.5},
		MockBackend: MockBackendConfig{
			Addr:        ":8080",
			Secret:      "cartsync_mock_backend_secret",
			GlobalRPS:   1000,
			GlobalBurst: 1000,
			IPRPS:       5,
			IPBurst:     10,
		},
	}
}

// Load layers defaults, the optional YAML file at path and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend_url is required")
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "redis":
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path is required for the sqlite driver")
	}
	if c.Checkout.PaymentSuccessRate < 0 || c.Checkout.PaymentSuccessRate > 1 {
		return errors.Errorf("checkout.payment_success_rate %v out of [0,1]", c.Checkout.PaymentSuccessRate)
	}
	if (c.Metrics.Enabled || c.Metrics.Tracing) && c.Metrics.CollectorAddr == "" {
		return errors.New("metrics.collector_addr is required when metrics or tracing are enabled")
	}
	return nil
}

func applyEnv(c *Config) {
	c.BackendURL = getEnvString("BACKEND_URL", c.BackendURL)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)

	c.Storage.Driver = getEnvString("CARTSYNC_STORAGE", c.Storage.Driver)
	c.Storage.SQLitePath = getEnvString("CARTSYNC_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.RedisAddr = getEnvString("REDIS_ADDR", c.Storage.RedisAddr)
	if v := os.Getenv("REDIS_SENTINEL_ADDRS"); v != "" {
		c.Storage.RedisSentinels = strings.Split(v, ",")
	}
	c.Storage.RedisMaster = getEnvString("REDIS_MASTER_NAME", c.Storage.RedisMaster)
	c.Storage.RedisDB = getEnvInt("REDIS_DB", c.Storage.RedisDB)

	c.Receipts.MySQLDSN = getEnvString("MYSQL_ADDR", c.Receipts.MySQLDSN)
	c.Receipts.SQLitePath = getEnvString("RECEIPTS_SQLITE_PATH", c.Receipts.SQLitePath)

	c.Checkout.PaymentSuccessRate = getEnvFloat("PAYMENT_SUCCESS_RATE", c.Checkout.PaymentSuccessRate)

	if os.Getenv("ENABLE_METRICS") == "1" {
		c.Metrics.Enabled = true
	}
	if os.Getenv("ENABLE_TRACING") == "1" {
		c.Metrics.Tracing = true
	}
	c.Metrics.CollectorAddr = getEnvString("COLLECTOR_SERVICE_ADDR", c.Metrics.CollectorAddr)

	c.MockBackend.Addr = getEnvString("MOCK_BACKEND_ADDR", c.MockBackend.Addr)
	c.MockBackend.Secret = getEnvString("JWT_SECRET", c.MockBackend.Secret)
	c.MockBackend.GlobalRPS = getEnvFloat("RATELIMIT_GLOBAL_RPS", c.MockBackend.GlobalRPS)
	c.MockBackend.GlobalBurst = getEnvInt("RATELIMIT_GLOBAL_BURST", c.MockBackend.GlobalBurst)
	c.MockBackend.IPRPS = getEnvFloat("RATELIMIT_IP_RPS", c.MockBackend.IPRPS)
	c.MockBackend.IPBurst = getEnvInt("RATELIMIT_IP_BURST", c.MockBackend.IPBurst)
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/cartsync"
	}
	return ".cartsync"
}

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
