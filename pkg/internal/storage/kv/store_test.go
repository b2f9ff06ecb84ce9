package kv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/storage/kv"
)

// newLocalStores 返回无需外部服务即可运行的实现.
func newLocalStores(t *testing.T) map[string]kv.KVStore {
	t.Helper()

	cfg := configs.Defaults().KV
	cfg.Freecache.SizeBytes = 1 << 20
	cfg.Badger.InMemory = true
	cfg.Groupcache.Name = "test-" + t.Name()

	stores := make(map[string]kv.KVStore)

	for _, typ := range []kv.KVType{kv.KVTypeMemory, kv.KVTypeFreecache, kv.KVTypeBadger, kv.KVTypeGroupcache} {
		s, err := kv.NewKVStore(context.Background(), typ, &cfg)
		if err != nil {
			t.Fatalf("create %s kv: %v", typ, err)
		}

		t.Cleanup(func() { _ = s.Close() })
		stores[string(typ)] = s
	}

	return stores
}

// TestKVStoreBasic 测试各本地实现的 Get/Set/Delete/Exists 语义一致.
func TestKVStoreBasic(t *testing.T) {
	ctx := context.Background()

	for name, store := range newLocalStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing"); !kv.IsNotFound(err) {
				t.Fatalf("Get missing: want ErrKeyNotFound, got %v", err)
			}

			if err := store.Set(ctx, "render/a/1", []byte("jpeg"), 0); err != nil {
				t.Fatalf("Set: %v", err)
			}

			got, err := store.Get(ctx, "render/a/1")
			if err != nil || string(got) != "jpeg" {
				t.Fatalf("Get = %q, %v", got, err)
			}

			ok, err := store.Exists(ctx, "render/a/1")
			if err != nil || !ok {
				t.Fatalf("Exists = %v, %v", ok, err)
			}

			if err := store.Delete(ctx, "render/a/1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}

			if _, err := store.Get(ctx, "render/a/1"); !errors.Is(err, kv.ErrKeyNotFound) {
				t.Fatalf("Get after delete: %v", err)
			}
		})
	}
}

// TestKVStoreKeysPrefix 测试前缀模式列举.
func TestKVStoreKeysPrefix(t *testing.T) {
	ctx := context.Background()

	for name, store := range newLocalStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"perm/u1/r1", "perm/u1/r2", "render/x"} {
				if err := store.Set(ctx, k, []byte("1"), 0); err != nil {
					t.Fatalf("Set %s: %v", k, err)
				}
			}

			keys, err := store.Keys(ctx, "perm/*")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}

			if len(keys) != 2 || keys[0] != "perm/u1/r1" || keys[1] != "perm/u1/r2" {
				t.Fatalf("Keys(perm/*) = %v", keys)
			}

			all, _ := store.Keys(ctx, "")
			if len(all) != 3 {
				t.Fatalf("Keys(\"\") = %v", all)
			}
		})
	}
}

// TestMemoryKVTTL 测试内存实现的过期.
func TestMemoryKVTTL(t *testing.T) {
	ctx := context.Background()

	store, err := kv.NewKVStore(ctx, kv.KVTypeMemory, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	if _, err := store.Get(ctx, "k"); !kv.IsNotFound(err) {
		t.Fatalf("Get after expiry: want not found, got %v", err)
	}

	keys, _ := store.Keys(ctx, "*")
	if len(keys) != 0 {
		t.Fatalf("expired key listed: %v", keys)
	}
}

// TestGroupcacheKVTTL 测试值包装 TTL.
func TestGroupcacheKVTTL(t *testing.T) {
	ctx := context.Background()

	cfg := configs.Defaults().KV
	cfg.Groupcache.Name = "ttl-test"

	store, err := kv.NewKVStore(ctx, kv.KVTypeGroupcache, &cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	time.Sleep(40 * time.Millisecond)

	if ok, _ := store.Exists(ctx, "k"); ok {
		t.Fatal("key should have expired")
	}
}

// TestSweep 测试无原生过期的实现清除过期键，未过期的键保留.
func TestSweep(t *testing.T) {
	ctx := context.Background()

	cfg := configs.Defaults().KV
	cfg.Groupcache.Name = "sweep-test"

	for _, typ := range []kv.KVType{kv.KVTypeMemory, kv.KVTypeGroupcache} {
		t.Run(string(typ), func(t *testing.T) {
			store, err := kv.NewKVStore(ctx, typ, &cfg)
			if err != nil {
				t.Fatal(err)
			}

			sw, ok := store.(kv.Sweeper)
			if !ok {
				t.Fatalf("%s does not implement Sweeper", typ)
			}

			_ = store.Set(ctx, "raw/a", []byte("a"), 10*time.Millisecond)
			_ = store.Set(ctx, "raw/b", []byte("b"), 0)

			time.Sleep(30 * time.Millisecond)

			n, err := sw.Sweep(ctx)
			if err != nil || n != 1 {
				t.Fatalf("Sweep = %d, %v", n, err)
			}

			if _, err := store.Get(ctx, "raw/b"); err != nil {
				t.Fatalf("live key removed: %v", err)
			}
		})
	}
}

// TestUnsupportedKVType 测试未知类型.
func TestUnsupportedKVType(t *testing.T) {
	if _, err := kv.NewKVStore(context.Background(), kv.KVType("etcd"), nil); err == nil {
		t.Fatal("expected error for unsupported type")
	}

	types := kv.GetRegisteredKVTypes()
	if len(types) < 4 {
		t.Fatalf("registered types = %v", types)
	}
}
