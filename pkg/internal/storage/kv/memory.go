package kv

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/yeisme/minerva/pkg/configs"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryKV 基于 sync.Map 的进程内 KV 实现，支持 TTL.
type MemoryKV struct {
	data sync.Map
}

// NewMemoryKV 创建内存 KV 实例.
func NewMemoryKV(_ context.Context, _ *configs.KVConfig) (KVStore, error) {
	return &MemoryKV{}, nil
}

func (m *MemoryKV) load(key string) (memoryEntry, bool) {
	v, ok := m.data.Load(key)
	if !ok {
		return memoryEntry{}, false
	}

	e, ok := v.(memoryEntry)
	if !ok {
		return memoryEntry{}, false
	}

	if e.expired(time.Now()) {
		m.data.CompareAndDelete(key, v)

		return memoryEntry{}, false
	}

	return e, true
}

// Get 获取键的值.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.load(key)
	if !ok {
		return nil, notFound(key)
	}

	return slices.Clone(e.value), nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}

	m.data.Store(key, e)

	return nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.data.Delete(key)

	return nil
}

// Exists 检查键是否存在.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.load(key)

	return ok, nil
}

// Keys 获取匹配模式的键.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)
	now := time.Now()

	m.data.Range(func(key, value any) bool {
		k, ok := key.(string)
		if !ok {
			return true
		}

		if e, ok := value.(memoryEntry); ok && e.expired(now) {
			return true
		}

		if matchKey(pattern, k) {
			keys = append(keys, k)
		}

		return true
	})

	slices.Sort(keys)

	return keys, nil
}

// Sweep 删除所有已过期的键.
func (m *MemoryKV) Sweep(_ context.Context) (int, error) {
	n := 0
	now := time.Now()

	m.data.Range(func(key, value any) bool {
		if e, ok := value.(memoryEntry); ok && e.expired(now) && m.data.CompareAndDelete(key, value) {
			n++
		}

		return true
	})

	return n, nil
}

// Close 关闭存储（内存实现无需操作）.
func (m *MemoryKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeMemory, NewMemoryKV)
}
