package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/config"
)

const defaultRedisDialTimeout = 5 * time.Second

// Redis holds the client behind the archival queue and the readiness check.
type Redis struct {
	client redis.UniversalClient
	addr   string
}

// NewRedis builds a client for cfg.Addr, a comma separated list for
// cluster or sentinel setups. An unreachable server is logged, not fatal;
// the archival worker retries and /health/ready reports it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = defaultRedisDialTimeout
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       splitAddrs(cfg.Addr),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dial,
	})
	r := &Redis{client: client, addr: cfg.Addr}

	pingCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}
	return r
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Cmdable exposes the commands used by the archival queue.
func (r *Redis) Cmdable() redis.Cmdable {
	if r == nil {
		return nil
	}
	return r.client
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.client != nil {
		_ = r.client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis client not configured")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		if r.addr == "" {
			return fmt.Errorf("redis ping: %w", err)
		}
		return fmt.Errorf("redis ping %s: %w", r.addr, err)
	}
	return nil
}

func splitAddrs(addr string) []string {
	var out []string
	for _, a := range strings.Split(addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
