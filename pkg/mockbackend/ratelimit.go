package mockbackend

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// takeToken refills the bucket in KEYS[1] for the time elapsed since its last
// update and takes one token. It returns {1, 0} on success and {0, wait_ms}
// when the bucket is empty. ARGV: capacity, tokens per second, now in ms.
var takeToken = redis.NewScript(`
local cap = tonumber(ARGV[1])
local per_sec = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or cap
local ts = tonumber(state[2]) or now

tokens = math.min(cap, tokens + math.max(0, now - ts) * per_sec / 1000)
if tokens < 1 then
	return {0, math.ceil((1 - tokens) * 1000 / per_sec)}
end

redis.call("HSET", KEYS[1], "tokens", tokens - 1, "ts", now)
redis.call("PEXPIRE", KEYS[1], math.ceil(cap * 1000 / per_sec) + 1000)
return {1, 0}
`)

// RateLimit configures the Redis token buckets in front of the API: one
// shared by every caller and one per client address.
type RateLimit struct {
	GlobalRPS   float64
	GlobalBurst int
	IPRPS       float64
	IPBurst     int
}

type Limiter struct {
	rdb *redis.Client
	cfg RateLimit
	log logrus.FieldLogger
}

func NewLimiter(rdb *redis.Client, cfg RateLimit, log logrus.FieldLogger) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg, log: log}
}

// Take draws one token from bucket. When it is empty, wait is how long until
// the next token.
func (l *Limiter) Take(ctx context.Context, bucket string, burst int, rps float64) (ok bool, wait time.Duration, err error) {
	res, err := takeToken.Run(ctx, l.rdb, []string{"ratelimit:" + bucket}, burst, rps, time.Now().UnixMilli()).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected reply %v", res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

// Middleware answers 503 when the shared bucket is empty and 429 when the
// caller's is, with a Retry-After hint. A Redis failure lets the request
// through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 200*time.Millisecond)
		defer cancel()

		checks := []struct {
			bucket string
			burst  int
			rps    float64
			status int
			msg    string
		}{
			{"global", l.cfg.GlobalBurst, l.cfg.GlobalRPS, http.StatusServiceUnavailable, "system busy"},
			{"ip:" + clientIP(r), l.cfg.IPBurst, l.cfg.IPRPS, http.StatusTooManyRequests, "too many requests"},
		}
		for _, c := range checks {
			ok, wait, err := l.Take(ctx, c.bucket, c.burst, c.rps)
			if err != nil {
				l.log.WithFields(logrus.Fields{"bucket": c.bucket, "error": err}).Warn("rate limiter unavailable")
				continue
			}
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, c.status, c.msg)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
