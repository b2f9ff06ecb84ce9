package kv_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/storage/kv"
)

// countingStore 记录单键删除次数.
type countingStore struct {
	kv.KVStore
	deletes int
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.deletes++
	return c.KVStore.Delete(ctx, key)
}

// batchStore 额外实现批量删除.
type batchStore struct {
	countingStore
	batches int
}

func (b *batchStore) DeleteMany(ctx context.Context, keys []string) error {
	b.batches++

	for _, k := range keys {
		if err := b.KVStore.Delete(ctx, k); err != nil {
			return err
		}
	}

	return nil
}

// TestAsUnwrapsClient 测试可选能力穿过 Client 包装.
func TestAsUnwrapsClient(t *testing.T) {
	mem, err := kv.NewMemoryKV(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	client := &kv.Client{KVStore: mem, Type: kv.KVTypeMemory}
	if _, ok := kv.As[kv.Sweeper](client); !ok {
		t.Fatal("memory kv behind client should sweep")
	}

	if _, ok := kv.As[kv.Sweeper]((*kv.Client)(nil)); ok {
		t.Fatal("nil client has no capabilities")
	}

	if _, ok := kv.As[kv.BatchDeleter](client); ok {
		t.Fatal("memory kv does not batch delete")
	}
}

// TestDeleteKeys 测试批量删除优先走后端的批量接口.
func TestDeleteKeys(t *testing.T) {
	ctx := context.Background()
	keys := []string{"render/img-1/a", "render/img-1/b", "render/img-1/c"}

	seed := func(t *testing.T) kv.KVStore {
		mem, err := kv.NewMemoryKV(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}

		for _, k := range keys {
			if err := mem.Set(ctx, k, []byte("tile"), 0); err != nil {
				t.Fatal(err)
			}
		}

		return mem
	}

	plain := &countingStore{KVStore: seed(t)}
	if err := kv.DeleteKeys(ctx, plain, keys); err != nil || plain.deletes != 3 {
		t.Fatalf("plain deletes = %d, %v", plain.deletes, err)
	}

	batched := &batchStore{countingStore: countingStore{KVStore: seed(t)}}
	if err := kv.DeleteKeys(ctx, &kv.Client{KVStore: batched}, keys); err != nil {
		t.Fatal(err)
	}

	if batched.batches != 1 || batched.deletes != 0 {
		t.Fatalf("batches = %d deletes = %d", batched.batches, batched.deletes)
	}

	if left, _ := batched.Keys(ctx, "render/*"); len(left) != 0 {
		t.Fatalf("left = %v", left)
	}
}

// 典型瓦片：1024x1024 通道 PNG 约数百 KB，渲染后 JPEG 几十 KB.
var tileSizes = []int{16 * 1024, 64 * 1024, 256 * 1024}

func tilePayload(n int) []byte {
	r := rand.New(rand.NewPCG(1, uint64(n)))

	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}

	return b
}

func benchStore(b *testing.B, typ kv.KVType, cfg *configs.KVConfig) {
	store, err := kv.NewKVStore(context.Background(), typ, cfg)
	if err != nil {
		b.Skipf("%s kv unavailable: %v", typ, err)
	}

	b.Cleanup(func() { _ = store.Close() })

	benchTiles(b, store)
	benchTilesParallel(b, store)
}

func BenchmarkFreecacheKV(b *testing.B) {
	cfg := configs.Defaults().KV
	cfg.Freecache.SizeBytes = 64 << 20

	benchStore(b, kv.KVTypeFreecache, &cfg)
}

func BenchmarkMemoryKV(b *testing.B) { benchStore(b, kv.KVTypeMemory, nil) }

func BenchmarkBadgerKV(b *testing.B) {
	cfg := configs.Defaults().KV
	cfg.Badger.InMemory = true

	benchStore(b, kv.KVTypeBadger, &cfg)
}

func BenchmarkGroupcacheKV(b *testing.B) {
	cfg := configs.Defaults().KV
	cfg.Groupcache.Name = "bench-tiles"
	cfg.Groupcache.CacheBytes = 64 << 20

	benchStore(b, kv.KVTypeGroupcache, &cfg)
}

// BenchmarkRedisKV 需要 MINERVA_BENCH_REDIS=host:port.
func BenchmarkRedisKV(b *testing.B) {
	addr := os.Getenv("MINERVA_BENCH_REDIS")
	if addr == "" {
		b.Skip("MINERVA_BENCH_REDIS not set")
	}

	cfg := configs.Defaults().KV
	cfg.Redis.Addr = addr
	cfg.Redis.KeyPrefix = "bench:"

	benchStore(b, kv.KVTypeRedis, &cfg)
}

// BenchmarkNATSKV 需要 MINERVA_BENCH_NATS=nats://host:port.
func BenchmarkNATSKV(b *testing.B) {
	url := os.Getenv("MINERVA_BENCH_NATS")
	if url == "" {
		b.Skip("MINERVA_BENCH_NATS not set")
	}

	cfg := configs.Defaults().KV
	cfg.NATS.URL = url
	cfg.NATS.Bucket = "minerva-bench"

	benchStore(b, kv.KVTypeNATS, &cfg)
}

// benchTiles 模拟一次缓存未命中：写入瓦片后读回.
func benchTiles(b *testing.B, store kv.KVStore) {
	ctx := context.Background()

	for _, size := range tileSizes {
		payload := tilePayload(size)

		for _, ttl := range []time.Duration{0, time.Hour} {
			b.Run(fmt.Sprintf("size=%dKiB/ttl=%s", size/1024, ttl), func(b *testing.B) {
				b.SetBytes(int64(size))
				b.ReportAllocs()

				for i := 0; b.Loop(); i++ {
					key := fmt.Sprintf("raw/bench/%d-%d-0-0-0-0", i%64, i/64)
					if err := store.Set(ctx, key, payload, ttl); err != nil {
						b.Fatalf("set: %v", err)
					}

					if _, err := store.Get(ctx, key); err != nil {
						b.Fatalf("get: %v", err)
					}
				}
			})
		}
	}
}

// benchTilesParallel 模拟查看器并发读取同一批热点瓦片.
func benchTilesParallel(b *testing.B, store kv.KVStore) {
	ctx := context.Background()
	payload := tilePayload(64 * 1024)

	const hot = 256

	for i := range hot {
		if err := store.Set(ctx, fmt.Sprintf("raw/hot/%d", i), payload, 0); err != nil {
			b.Fatalf("seed: %v", err)
		}
	}

	var n atomic.Uint64

	b.Run("parallel-hot", func(b *testing.B) {
		b.SetBytes(int64(len(payload)))
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				key := fmt.Sprintf("raw/hot/%d", n.Add(1)%hot)
				if _, err := store.Get(ctx, key); err != nil && !kv.IsNotFound(err) {
					b.Fatalf("get: %v", err)
				}
			}
		})
	})
}
