package config

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimiterRedis describes the Redis instance holding the login token buckets.
// URL (REDIS_URL, e.g. rediss://:pw@host:6380/0) wins over the discrete
// fields when set.
type LimiterRedis struct {
	URL      string
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// LoadLimiterRedis reads REDIS_URL, or REDIS_HOST/REDIS_PORT (REDIS_ADDR as a
// fallback), REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func LoadLimiterRedis() LimiterRedis {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = net.JoinHostPort(host, port)
	}
	return LimiterRedis{
		URL:      envStr("REDIS_URL", ""),
		Addr:     addr,
		Password: envStr("REDIS_PASSWORD", ""),
		DB:       envInt("REDIS_DB", 0),
		TLS:      envBool("REDIS_TLS", false),
	}
}

// Options converts r into client options.
func (r LimiterRedis) Options() (*redis.Options, error) {
	if r.URL != "" {
		return redis.ParseURL(r.URL)
	}
	opt := &redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB}
	if r.TLS {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opt, nil
}

// Connect returns a client for the limiter, or nil when Redis is unusable so
// that login runs unthrottled instead of failing.
func (r LimiterRedis) Connect(ctx context.Context) (*redis.Client, error) {
	opt, err := r.Options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
