//go:build !no_redis

package kv

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yeisme/minerva/pkg/configs"
)

const (
	redisScanCount = 500
	// 清理渲染瓦片时一次 DEL 的键数上限
	redisDeleteBatch = 256
)

// RedisKV 基于 Redis 的 KV，多实例部署时共享瓦片与权限缓存，过期交给 Redis.
type RedisKV struct {
	client *redis.Client
	prefix string
}

func init() {
	RegisterKVFactory(KVTypeRedis, NewRedisKV)
}

// NewRedisKV 连接 Redis 并确认可用.
func NewRedisKV(ctx context.Context, cfg *configs.KVConfig) (KVStore, error) {
	rc := cfg.Redis

	client := redis.NewClient(&redis.Options{
		Addr:        rc.Addr,
		Password:    rc.Password,
		DB:          rc.DB,
		PoolSize:    rc.PoolSize,
		DialTimeout: rc.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("redis kv %s: %w", rc.Addr, err)
	}

	return &RedisKV{client: client, prefix: rc.KeyPrefix}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()

	switch {
	case errors.Is(err, redis.Nil):
		return nil, notFound(key)
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return b, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}

	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	return nil
}

// DeleteMany 分批删除，用于按图像清理缓存.
func (r *RedisKV) DeleteMany(ctx context.Context, keys []string) error {
	for batch := range slices.Chunk(keys, redisDeleteBatch) {
		full := make([]string, len(batch))
		for i, k := range batch {
			full[i] = r.prefix + k
		}

		if err := r.client.Del(ctx, full...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}

	return nil
}

func (r *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}

	return n > 0, nil
}

// Keys 以 SCAN 遍历，返回去掉前缀的键. 模式中的 Redis glob 元字符按字面处理，只有末尾 * 表示前缀匹配.
func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	match := r.prefix + "*"
	if pattern != "" && pattern != "*" {
		if p, ok := strings.CutSuffix(pattern, "*"); ok {
			match = r.prefix + escapeGlob(p) + "*"
		} else {
			match = r.prefix + escapeGlob(pattern)
		}
	}

	var keys []string

	iter := r.client.Scan(ctx, 0, match, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}

	return keys, nil
}

// Ping 供健康检查使用.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
