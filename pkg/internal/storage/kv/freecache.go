package kv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"

	"github.com/yeisme/minerva/pkg/configs"
	nlog "github.com/yeisme/minerva/pkg/log"
)

// FreecacheKV 基于 freecache 的进程内 KV，容量固定，满时按近似 LRU 淘汰.
// 单条记录不能超过容量的 1/1024，超出时 Set 返回错误，调用方应视为未缓存.
type FreecacheKV struct {
	cache *freecache.Cache
}

// NewFreecacheKV 创建 freecache KV 实例.
func NewFreecacheKV(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
	size := cfg.Freecache.SizeBytes

	nlog.Logger().Debug().
		Str("size", humanize.IBytes(uint64(size))).
		Str("max_entry", humanize.IBytes(uint64(size/1024))).
		Msg("freecache kv created")

	return &FreecacheKV{cache: freecache.NewCache(size)}, nil
}

// expireSeconds 把 ttl 向上取整为秒，0 表示不过期.
func expireSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	secs := math.Ceil(ttl.Seconds())
	if secs > math.MaxInt32 {
		return 0
	}

	return int(secs)
}

// Get 获取键的值.
func (f *FreecacheKV) Get(_ context.Context, key string) ([]byte, error) {
	val, err := f.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, notFound(key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	return val, nil
}

// Set 设置键的值.
func (f *FreecacheKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.cache.Set([]byte(key), value, expireSeconds(ttl)); err != nil {
		return fmt.Errorf("failed to set key (%s): %w", humanize.IBytes(uint64(len(value))), err)
	}

	return nil
}

// Delete 删除键.
func (f *FreecacheKV) Delete(_ context.Context, key string) error {
	f.cache.Del([]byte(key))

	return nil
}

// Exists 检查键是否存在.
func (f *FreecacheKV) Exists(_ context.Context, key string) (bool, error) {
	_, err := f.cache.TTL([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return false, nil
	}

	return err == nil, err
}

// Keys 遍历缓存获取匹配模式的键.
func (f *FreecacheKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)

	it := f.cache.NewIterator()
	for entry := it.Next(); entry != nil; entry = it.Next() {
		if k := string(entry.Key); matchKey(pattern, k) {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	return keys, nil
}

// Close 清空缓存.
func (f *FreecacheKV) Close() error {
	f.cache.Clear()

	return nil
}

func init() {
	RegisterKVFactory(KVTypeFreecache, NewFreecacheKV)
}
