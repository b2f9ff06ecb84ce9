// Package kv 提供键值存储接口与多种实现，用作瓦片缓存、权限缓存与响应缓存的后端.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yeisme/minerva/pkg/configs"
)

// ErrKeyNotFound 键不存在或已过期.
var ErrKeyNotFound = errors.New("key not found")

// Client 包装具体的 KVStore 实现.
type Client struct {
	KVStore
	Type KVType
}

// KVStore 定义键值存储接口.
type KVStore interface {
	// Get 获取键的值，不存在时返回包装了 ErrKeyNotFound 的错误.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 设置键的值，ttl <= 0 表示不过期.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 删除键.
	Delete(ctx context.Context, key string) error
	// Exists 检查键是否存在.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 列出匹配模式的键，模式支持精确匹配与末尾 * 前缀匹配，空串表示全部.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close 关闭存储连接.
	Close() error
}

// Sweeper 由没有原生过期机制的实现提供，定期清除已过期的键.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// BatchDeleter 由能一次删除多个键的后端实现.
type BatchDeleter interface {
	DeleteMany(ctx context.Context, keys []string) error
}

// As 在 s 及其包装的底层存储上查找可选能力，例如 Sweeper.
func As[T any](s KVStore) (T, bool) {
	for s != nil {
		if v, ok := s.(T); ok {
			return v, true
		}

		c, ok := s.(*Client)
		if !ok || c == nil {
			break
		}

		s = c.KVStore
	}

	var zero T

	return zero, false
}

// DeleteKeys 删除多个键，后端支持时批量执行.
func DeleteKeys(ctx context.Context, s KVStore, keys []string) error {
	if bd, ok := As[BatchDeleter](s); ok {
		return bd.DeleteMany(ctx, keys)
	}

	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}

	return nil
}

// KVType 键值存储类型.
type KVType = configs.KVType

const (
	KVTypeMemory     = configs.KVTypeMemory
	KVTypeRedis      = configs.KVTypeRedis
	KVTypeNATS       = configs.KVTypeNATS
	KVTypeGroupcache = configs.KVTypeGroupcache
	KVTypeFreecache  = configs.KVTypeFreecache
	KVTypeBadger     = configs.KVTypeBadger
)

// KVFactory 定义创建 KVStore 的工厂函数类型，实现从 cfg 中读取各自的子配置.
type KVFactory func(ctx context.Context, cfg *configs.KVConfig) (KVStore, error)

var (
	kvFactories = make(map[KVType]KVFactory)
	factoriesMu sync.RWMutex
)

// RegisterKVFactory 注册 KV 工厂函数.
func RegisterKVFactory(kvType KVType, factory KVFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	kvFactories[kvType] = factory
}

// GetRegisteredKVTypes 返回已注册的 KV 类型列表.
func GetRegisteredKVTypes() []KVType {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]KVType, 0, len(kvFactories))
	for kvType := range kvFactories {
		types = append(types, kvType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// NewKVStore 根据类型创建 KVStore 实例.
func NewKVStore(ctx context.Context, kvType KVType, cfg *configs.KVConfig) (KVStore, error) {
	factoriesMu.RLock()
	factory, exists := kvFactories[kvType]
	factoriesMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported KV type: %s", kvType)
	}

	if cfg == nil {
		d := configs.Defaults().KV
		cfg = &d
	}

	return factory(ctx, cfg)
}

// NewKVClient 按类型创建 KV 客户端.
func NewKVClient(ctx context.Context, kvType KVType, cfg *configs.KVConfig) (*Client, error) {
	store, err := NewKVStore(ctx, kvType, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{KVStore: store, Type: kvType}, nil
}

// IsNotFound 判断错误是否表示键不存在.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
}

// matchKey 判断键是否匹配模式.
func matchKey(pattern, key string) bool {
	switch {
	case pattern == "" || pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	default:
		return key == pattern
	}
}
