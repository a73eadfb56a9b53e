// Package cache provides a Redis-backed device-token registry. It gives
// callers a place to keep an audience's tokens and a self-healing hook:
// tokens the gateway reports as permanently invalid are pruned so the
// next send skips them.
package cache

import (
	"context"
	"fmt"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
}

// TokenRegistry stores device tokens per audience as a Redis set.
type TokenRegistry struct {
	cache     CacheClient
	namespace string
}

func NewTokenRegistry(cache CacheClient, namespace string) *TokenRegistry {
	if namespace == "" {
		namespace = "fcm"
	}
	return &TokenRegistry{cache: cache, namespace: namespace}
}

// Register adds tokens to an audience. The set semantics deduplicate
// repeated registrations of the same token.
func (r *TokenRegistry) Register(ctx context.Context, audience string, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.cache.SAdd(ctx, r.key(audience), tokens...)
}

// Tokens returns every token registered for an audience.
func (r *TokenRegistry) Tokens(ctx context.Context, audience string) ([]string, error) {
	return r.cache.SMembers(ctx, r.key(audience))
}

// Prune removes tokens the gateway reported as permanently invalid.
func (r *TokenRegistry) Prune(ctx context.Context, audience string, invalid []string) error {
	if len(invalid) == 0 {
		return nil
	}
	return r.cache.SRem(ctx, r.key(audience), invalid...)
}

func (r *TokenRegistry) key(audience string) string {
	return fmt.Sprintf("%s:tokens:%s", r.namespace, audience)
}
