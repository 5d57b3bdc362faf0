package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shafran/commerce/internal/config"
)

const (
	keyCallbackProvider = "callback:provider:%s"
	keyCallbackSource   = "callback:source:%s:%s"
	keyReconcileLock    = "reconcile:sweep"
)

// CallbackLimiter throttles the provider-facing callback routes. A
// disabled limiter allows everything, so deployments without Redis
// still work.
type CallbackLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

func NewCallbackLimiter(cfg config.Config) (*CallbackLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.CallbackRate <= 0 || limitCfg.CallbackBurst <= 0 {
		return nil, errors.New("callback rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &CallbackLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    float64(limitCfg.CallbackRate),
		burst:   limitCfg.CallbackBurst,
	}, nil
}

func (l *CallbackLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowProvider throttles the whole callback route of one provider.
func (l *CallbackLimiter) AllowProvider(ctx context.Context, provider string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCallbackProvider, strings.TrimSpace(provider)), l.rate, l.burst)
}

// AllowSource throttles one caller address within a provider route so
// a single abusive source cannot exhaust the provider budget.
func (l *CallbackLimiter) AllowSource(ctx context.Context, provider, sourceIP string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := fmt.Sprintf(keyCallbackSource, strings.TrimSpace(provider), strings.TrimSpace(sourceIP))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

// TryReconcileLock elects one replica to run the reconcile sweep.
func (l *CallbackLimiter) TryReconcileLock(ctx context.Context, ttl time.Duration) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keyReconcileLock, ttl)
}

func (l *CallbackLimiter) ReleaseReconcileLock(ctx context.Context, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, keyReconcileLock, token)
}
