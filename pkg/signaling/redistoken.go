package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTokenStore is an optional TokenStore backend so the token ACL
// survives a restart in multi-process deployments (SPEC_FULL.md DOMAIN
// STACK). Grounded directly on the teacher's core/redis_registry.go:
// same connection-settings tuning, same "namespace:kind:id" key shape,
// same verify-on-construct retry loop.
type RedisTokenStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisTokenStore connects to redisURL and verifies connectivity before
// returning, retrying as core/redis_registry.go's NewRedisRegistryWithNamespace
// does.
func NewRedisTokenStore(redisURL, namespace string) (*RedisTokenStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("signaling: invalid redis url: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)

	var pingErr error
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = client.Ping(ctx).Err()
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, fmt.Errorf("signaling: redis token store unreachable: %w", pingErr)
	}

	if namespace == "" {
		namespace = "gateway"
	}
	return &RedisTokenStore{client: client, namespace: namespace}, nil
}

func (s *RedisTokenStore) tokenKey(token string) string {
	return fmt.Sprintf("%s:tokens:%s", s.namespace, token)
}

func (s *RedisTokenStore) Exists(token string) bool {
	ctx := context.Background()
	n, err := s.client.Exists(ctx, s.tokenKey(token)).Result()
	return err == nil && n > 0
}

func (s *RedisTokenStore) Add(token string) error {
	ctx := context.Background()
	// SAdd with a marker member so the key exists even with zero plugin
	// grants; plugin grants are separate set members.
	return s.client.SAdd(ctx, s.tokenKey(token), "__registered__").Err()
}

func (s *RedisTokenStore) Remove(token string) error {
	ctx := context.Background()
	if !s.Exists(token) {
		return ErrTokenNotFound
	}
	return s.client.Del(ctx, s.tokenKey(token)).Err()
}

func (s *RedisTokenStore) Allow(token, pkg string) error {
	if !s.Exists(token) {
		return ErrTokenNotFound
	}
	ctx := context.Background()
	return s.client.SAdd(ctx, s.tokenKey(token), pkg).Err()
}

func (s *RedisTokenStore) Disallow(token, pkg string) error {
	if !s.Exists(token) {
		return ErrTokenNotFound
	}
	ctx := context.Background()
	return s.client.SRem(ctx, s.tokenKey(token), pkg).Err()
}

func (s *RedisTokenStore) CanAccess(token, pkg string) bool {
	ctx := context.Background()
	ok, err := s.client.SIsMember(ctx, s.tokenKey(token), pkg).Result()
	return err == nil && ok
}

func (s *RedisTokenStore) List() []string {
	ctx := context.Background()
	keys, err := s.client.Keys(ctx, fmt.Sprintf("%s:tokens:*", s.namespace)).Result()
	if err != nil {
		return nil
	}
	prefix := fmt.Sprintf("%s:tokens:", s.namespace)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(prefix):])
	}
	return out
}
