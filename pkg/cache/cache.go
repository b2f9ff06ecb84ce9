// Package cache 在键值存储之上提供按命名空间隔离的类型化缓存.
//
// 值使用 sonic 编码为 JSON 后写入底层 KV，未命中时返回包装了 kv.ErrKeyNotFound 的错误，
// 可用 IsMiss 判断. 同一 KV 可以被多个命名空间共享，Purge 只清理本命名空间下的键.
//
//	c := cache.NewCache(store, cache.WithNamespace("rc:"))
//	_ = cache.Set(ctx, c, imageUUID+":dims", dims, time.Minute)
//	dims, err := cache.Get[types.Dimensions](ctx, c, imageUUID+":dims")
//	n, err := c.Purge(ctx, imageUUID+":")
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/minerva/pkg/internal/storage/kv"
)

// Cache 基于KV存储的缓存实现.
type Cache struct {
	store kv.KVStore
	ns    string
}

// Option 配置 Cache.
type Option func(*Cache)

// WithNamespace 为所有键加上前缀.
func WithNamespace(ns string) Option {
	return func(c *Cache) { c.ns = ns }
}

// NewCache 创建一个新的缓存实例.
func NewCache(store kv.KVStore, opts ...Option) *Cache {
	c := &Cache{store: store}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Namespace 返回键前缀.
func (c *Cache) Namespace() string { return c.ns }

// IsMiss 判断错误是否表示键不存在或已过期.
func IsMiss(err error) bool {
	return errors.Is(err, kv.ErrKeyNotFound)
}

// Get 泛型获取缓存值.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var value T

	data, err := c.store.Get(ctx, c.ns+key)
	if err != nil {
		return value, err
	}

	if err := sonic.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decode cache entry %s: %w", key, err)
	}

	return value, nil
}

// Set 泛型设置缓存值，ttl <= 0 表示不过期.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	return c.store.Set(ctx, c.ns+key, data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.ns+key)
}

// Purge 删除命名空间内以 prefix 开头的全部键，返回删除数量.
// 空 prefix 清空整个命名空间.
func (c *Cache) Purge(ctx context.Context, prefix string) (int, error) {
	keys, err := c.store.Keys(ctx, c.ns+prefix+"*")
	if err != nil {
		return 0, err
	}

	if err := kv.DeleteKeys(ctx, c.store, keys); err != nil {
		return 0, err
	}

	return len(keys), nil
}
