package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/groupcache"

	"github.com/yeisme/minerva/pkg/configs"
)

var (
	// groupcache 的 HTTPPool 只能注册一次 HTTP handler.
	poolOnce sync.Once
	pool     *groupcache.HTTPPool
	groupSeq atomic.Uint64
)

// GroupcacheKV 基于 Groupcache 的 KV 实现.
// 写入只落在本地，读取优先本地，未命中时通过 group 向持有该键的对等节点拉取.
// 对等节点拉取的值会被 groupcache 缓存，删除不会传播到其他节点.
type GroupcacheKV struct {
	group *groupcache.Group
	data  map[string][]byte // 本地存储数据（可能带 TTL 包装）
	mu    sync.RWMutex
	peers bool
}

// NewGroupcacheKV 创建 Groupcache KV 实例.
func NewGroupcacheKV(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
	gcConfig := cfg.Groupcache

	g := &GroupcacheKV{data: make(map[string][]byte)}

	name := gcConfig.Name
	if groupcache.GetGroup(name) != nil {
		name = fmt.Sprintf("%s-%d", name, groupSeq.Add(1))
	}

	g.group = groupcache.NewGroup(name, gcConfig.CacheBytes, groupcache.GetterFunc(g.load))

	if len(gcConfig.Peers) > 0 {
		if gcConfig.Self == "" {
			return nil, fmt.Errorf("groupcache self url is required when peers are set")
		}

		poolOnce.Do(func() {
			pool = groupcache.NewHTTPPoolOpts(gcConfig.Self, &groupcache.HTTPPoolOptions{})
		})
		pool.Set(gcConfig.Peers...)

		g.peers = true
	}

	return g, nil
}

// load 是 group 的 getter，仅从本地数据读取.
func (g *GroupcacheKV) load(_ context.Context, key string, dest groupcache.Sink) error {
	val, ok, err := g.local(key)
	if err != nil {
		return err
	}

	if !ok {
		return notFound(key)
	}

	return dest.SetBytes(val)
}

func (g *GroupcacheKV) local(key string) ([]byte, bool, error) {
	g.mu.RLock()
	raw, exists := g.data[key]
	g.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	val, expired, err := decodeWithTTL(raw, time.Now())
	if err != nil {
		return nil, false, err
	}

	if expired {
		g.mu.Lock()
		delete(g.data, key)
		g.mu.Unlock()

		return nil, false, nil
	}

	return val, true, nil
}

// Sweep 删除本地已过期的键，对等节点缓存的副本由 groupcache 自行淘汰.
func (g *GroupcacheKV) Sweep(_ context.Context) (int, error) {
	now := time.Now()
	n := 0

	g.mu.Lock()
	defer g.mu.Unlock()

	for k, raw := range g.data {
		if _, expired, err := decodeWithTTL(raw, now); err == nil && expired {
			delete(g.data, k)
			n++
		}
	}

	return n, nil
}

// Get 获取键的值.
func (g *GroupcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, ok, err := g.local(key)
	if err != nil {
		return nil, err
	}

	if ok {
		result := make([]byte, len(val))
		copy(result, val)

		return result, nil
	}

	if !g.peers {
		return nil, notFound(key)
	}

	var data []byte
	if err := g.group.Get(ctx, key, groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return nil, notFound(key)
	}

	return data, nil
}

// Set 设置键的值.
func (g *GroupcacheKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeWithTTL(value, ttl)
	if err != nil {
		return err
	}

	stored := make([]byte, len(encoded))
	copy(stored, encoded)

	g.mu.Lock()
	g.data[key] = stored
	g.mu.Unlock()

	return nil
}

// Delete 删除本地键.
func (g *GroupcacheKV) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.data, key)
	g.mu.Unlock()

	return nil
}

// Exists 检查本地键是否存在.
func (g *GroupcacheKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok, err := g.local(key)

	return ok, err
}

// Keys 获取本地匹配模式的键.
func (g *GroupcacheKV) Keys(_ context.Context, pattern string) ([]string, error) {
	g.mu.RLock()
	candidates := make([]string, 0, len(g.data))

	for key := range g.data {
		if matchKey(pattern, key) {
			candidates = append(candidates, key)
		}
	}
	g.mu.RUnlock()

	keys := candidates[:0]

	for _, key := range candidates {
		if _, ok, _ := g.local(key); ok {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

// Close 关闭缓存.
func (g *GroupcacheKV) Close() error {
	g.mu.Lock()
	g.data = make(map[string][]byte)
	g.mu.Unlock()

	return nil
}

func init() {
	RegisterKVFactory(KVTypeGroupcache, NewGroupcacheKV)
}
