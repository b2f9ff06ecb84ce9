package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/yeisme/minerva/pkg/cache"
	"github.com/yeisme/minerva/pkg/internal/storage/kv"
)

type dims struct {
	SizeX int    `json:"size_x"`
	SizeY int    `json:"size_y"`
	Type  string `json:"type"`
}

func newStore(t *testing.T) kv.KVStore {
	t.Helper()

	store, err := kv.NewMemoryKV(context.Background(), nil)
	if err != nil {
		t.Fatalf("memory kv: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })

	return store
}

// TestGetSet 测试类型化读写与未命中.
func TestGetSet(t *testing.T) {
	ctx := context.Background()
	c := cache.NewCache(newStore(t), cache.WithNamespace("rc:"))

	if _, err := cache.Get[dims](ctx, c, "img-1:dims"); !cache.IsMiss(err) {
		t.Fatalf("expected miss, got %v", err)
	}

	want := dims{SizeX: 512, SizeY: 256, Type: "uint16"}
	if err := cache.Set(ctx, c, "img-1:dims", want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := cache.Get[dims](ctx, c, "img-1:dims")
	if err != nil || got != want {
		t.Fatalf("got %+v, %v", got, err)
	}

	if err := c.Delete(ctx, "img-1:dims"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := cache.Get[dims](ctx, c, "img-1:dims"); !cache.IsMiss(err) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

// TestNamespaceIsolation 测试共享同一 KV 的命名空间互不可见.
func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	a := cache.NewCache(store, cache.WithNamespace("a:"))
	b := cache.NewCache(store, cache.WithNamespace("b:"))

	if err := cache.Set(ctx, a, "k", "from-a", 0); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Get[string](ctx, b, "k"); !cache.IsMiss(err) {
		t.Fatalf("namespace b saw a's key: %v", err)
	}

	if ok, _ := store.Exists(ctx, "a:k"); !ok {
		t.Fatal("namespaced key not in store")
	}
}

// TestPurge 测试按前缀清理只影响本命名空间.
func TestPurge(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	c := cache.NewCache(store, cache.WithNamespace("rc:"))
	other := cache.NewCache(store, cache.WithNamespace("tile:"))

	for _, k := range []string{"img-1:a", "img-1:b", "img-2:a"} {
		if err := cache.Set(ctx, c, k, 1, time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	if err := cache.Set(ctx, other, "img-1:a", 1, time.Minute); err != nil {
		t.Fatal(err)
	}

	n, err := c.Purge(ctx, "img-1:")
	if err != nil || n != 2 {
		t.Fatalf("purge = %d, %v", n, err)
	}

	if _, err := cache.Get[int](ctx, c, "img-2:a"); err != nil {
		t.Fatalf("img-2 entry purged: %v", err)
	}

	if _, err := cache.Get[int](ctx, other, "img-1:a"); err != nil {
		t.Fatalf("other namespace purged: %v", err)
	}

	if n, _ := c.Purge(ctx, ""); n != 1 {
		t.Fatalf("purge all = %d", n)
	}
}

// TestDecodeError 测试类型不匹配时返回解码错误而非未命中.
func TestDecodeError(t *testing.T) {
	ctx := context.Background()
	c := cache.NewCache(newStore(t))

	if err := cache.Set(ctx, c, "k", "text", 0); err != nil {
		t.Fatal(err)
	}

	_, err := cache.Get[dims](ctx, c, "k")
	if err == nil || cache.IsMiss(err) {
		t.Fatalf("err = %v", err)
	}
}
