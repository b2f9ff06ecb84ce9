package tile_test

import (
	"image"
	"strings"
	"testing"

	"github.com/yeisme/minerva/pkg/tile"
)

func testPyramid() tile.Pyramid {
	return tile.Pyramid{TileSize: 1024, Levels: 3, SizeX: 2500, SizeY: 1100, SizeC: 4, SizeZ: 1, SizeT: 1}
}

// TestPyramidValidate 测试层级与网格越界检查.
func TestPyramidValidate(t *testing.T) {
	p := testPyramid()

	ok := []tile.Coord{
		{X: 0, Y: 0, Level: 0},
		{X: 2, Y: 1, Level: 0},
		{X: 1, Y: 0, Level: 1},
		{X: 0, Y: 0, Level: 2},
	}
	for _, c := range ok {
		if err := p.Validate(c); err != nil {
			t.Errorf("Validate(%+v) = %v", c, err)
		}
	}

	bad := []tile.Coord{
		{Level: 3},
		{X: 3, Level: 0},
		{Y: 2, Level: 0},
		{X: 2, Level: 1},
		{X: -1},
		{Z: 1},
		{T: 1},
	}
	for _, c := range bad {
		if err := p.Validate(c); err == nil {
			t.Errorf("Validate(%+v) expected error", c)
		}
	}
}

// TestTileBoundsEdge 测试边缘瓦片尺寸小于标准瓦片.
func TestTileBoundsEdge(t *testing.T) {
	p := testPyramid()

	if got := p.TileSizeAt(tile.Coord{X: 0, Y: 0}); got != image.Pt(1024, 1024) {
		t.Errorf("interior tile size = %v", got)
	}

	if got := p.TileSizeAt(tile.Coord{X: 2, Y: 1}); got != image.Pt(2500-2048, 1100-1024) {
		t.Errorf("edge tile size = %v", got)
	}

	// level 1: 1250 x 550
	if got := p.TileSizeAt(tile.Coord{X: 1, Y: 0, Level: 1}); got != image.Pt(1250-1024, 550) {
		t.Errorf("level 1 edge tile size = %v", got)
	}
}

// TestCacheKeyModesDisjoint 测试内联参数与渲染设置引用的缓存键不会冲突.
func TestCacheKeyModesDisjoint(t *testing.T) {
	coord := tile.Coord{X: 1, Y: 2, Level: 0}

	chs, err := tile.ParseChannels("0,FFFFFF,0,1")
	if err != nil {
		t.Fatal(err)
	}

	inline := tile.Request{Image: "img", Coord: coord, Mode: tile.InlineSpec{Channels: chs}}.CacheKey()
	ref := tile.Request{Image: "img", Coord: coord, Mode: tile.SettingsRef{UUID: "inline-0"}}.CacheKey()

	if inline == ref {
		t.Fatalf("keys collide: %s", inline)
	}

	if !strings.HasPrefix(inline, "render/") || !strings.HasPrefix(ref, "prerendered/") {
		t.Fatalf("unexpected prefixes: %s %s", inline, ref)
	}
}

// TestCacheKeyDeterministic 测试等价的通道参数得到相同的键.
func TestCacheKeyDeterministic(t *testing.T) {
	a, _ := tile.ParseChannels("1,00ff00,0.10,0.5/0,ff0000,0,1")
	b, _ := tile.ParseChannels("0,FF0000,0,1/1,00FF00,0.1,0.5")

	ka := tile.Request{Image: "img", Mode: tile.InlineSpec{Channels: a}}.CacheKey()
	kb := tile.Request{Image: "img", Mode: tile.InlineSpec{Channels: b}}.CacheKey()

	if ka != kb {
		t.Fatalf("equivalent channels produced %s and %s", ka, kb)
	}

	kg := tile.Request{Image: "img", Mode: tile.InlineSpec{Channels: a}, Gamma: 2}.CacheKey()
	if kg == ka {
		t.Fatal("gamma should change the key")
	}
}

// TestCacheKeyEmbedsChannels 测试内联键包含规范化的通道参数.
func TestCacheKeyEmbedsChannels(t *testing.T) {
	chs, _ := tile.ParseChannels("1,00ff00,0.10,0.5/0,ff0000,0,1")

	key := tile.Request{Image: "img", Mode: tile.InlineSpec{Channels: chs}, Gamma: 2}.CacheKey()

	if want := chs.String() + "|g=2"; !strings.HasSuffix(key, "-"+want) {
		t.Fatalf("key %s does not end with %s", key, want)
	}

	other, _ := tile.ParseChannels("0,ff0000,0,1")
	if (tile.Request{Image: "img", Mode: tile.InlineSpec{Channels: other}, Gamma: 2}).CacheKey() == key {
		t.Fatal("different channels share a key")
	}
}

// TestRawKey 测试原始瓦片对象键格式.
func TestRawKey(t *testing.T) {
	got := tile.RawKey("fs", 2, tile.Coord{X: 3, Y: 4, Z: 5, T: 6, Level: 1}, "tif")
	if want := "fs/C2-T6-Z5-L1-Y4-X3.tif"; got != want {
		t.Fatalf("RawKey = %q, want %q", got, want)
	}
}
