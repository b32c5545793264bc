package config

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestLoadLimiterRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TLS", "true")
	r := LoadLimiterRedis()
	opt, err := r.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opt.Addr != "redis:6380" || opt.DB != 2 || opt.TLSConfig == nil {
		t.Fatalf("options = %+v", opt)
	}
}

func TestLimiterRedisURLWins(t *testing.T) {
	opt, err := LimiterRedis{URL: "redis://:pw@example:6390/3", Addr: "ignored:1"}.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opt.Addr != "example:6390" || opt.Password != "pw" || opt.DB != 3 {
		t.Fatalf("options = %+v", opt)
	}
}

func TestLimiterRedisConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := LimiterRedis{Addr: mr.Addr()}.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = rdb.Close()

	addr := mr.Addr()
	mr.Close()
	if rdb, err := (LimiterRedis{Addr: addr}).Connect(context.Background()); err == nil || rdb != nil {
		t.Fatal("expected an error once redis is gone")
	}
}
