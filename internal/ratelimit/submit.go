package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/agencydesk/internal/config"
	"go.uber.org/zap"
)

const keyRegistrationSubmit = "agencydesk:registration:submit:"

// SubmitLimiter throttles public registration submissions per client IP.
// A nil or disabled limiter allows everything.
type SubmitLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int64
}

func NewSubmitLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*SubmitLimiter, error) {
	if !cfg.RateLimit.Enabled || client == nil {
		return nil, nil
	}
	if cfg.RateLimit.SubmitRate <= 0 || cfg.RateLimit.SubmitBurst <= 0 {
		return nil, errors.New("registration submit rate limit must be positive")
	}
	log.Named("ratelimit").Info("registration submit limiter enabled",
		zap.Float64("rate", cfg.RateLimit.SubmitRate),
		zap.Int64("burst", cfg.RateLimit.SubmitBurst),
	)
	return &SubmitLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.SubmitRate,
		burst:  cfg.RateLimit.SubmitBurst,
	}, nil
}

func (l *SubmitLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *SubmitLimiter) Allow(ctx context.Context, clientIP string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		clientIP = "unknown"
	}
	return l.bucket.Allow(ctx, keyRegistrationSubmit+clientIP, l.rate, l.burst)
}
