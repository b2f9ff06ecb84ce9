package tile_test

import (
	"image"
	"math"
	"testing"

	"github.com/yeisme/minerva/pkg/tile"
)

// TestOptimumLevel 测试根据输出尺寸选择层级.
func TestOptimumLevel(t *testing.T) {
	p := tile.Pyramid{TileSize: 1024, Levels: 4}

	cases := []struct {
		longest, out int
		prefer       bool
		want         int
	}{
		{4096, 1024, false, 2},
		{4096, 1500, false, 1},
		{4096, 1500, true, 1},
		{4096, 700, true, 2},
		{4096, 100, false, 3},
		{4096, 8192, false, 0},
		{4096, 0, false, 0},
	}

	for _, c := range cases {
		if got := p.OptimumLevel(c.longest, c.out, c.prefer); got != c.want {
			t.Errorf("OptimumLevel(%d, %d, %v) = %d, want %d", c.longest, c.out, c.prefer, got, c.want)
		}
	}
}

// TestPlanRegion 测试区域计划的层级坐标、瓦片与输出尺寸.
func TestPlanRegion(t *testing.T) {
	p := tile.Pyramid{TileSize: 100, Levels: 3, SizeX: 1000, SizeY: 800}

	plan, err := p.PlanRegion(tile.Region{X: 150, Y: 50, Width: 200, Height: 100}, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	if plan.Level != 0 || plan.Rect != image.Rect(150, 50, 350, 150) {
		t.Fatalf("plan = %+v", plan)
	}

	if len(plan.Tiles) != 6 {
		t.Fatalf("tiles = %v", plan.Tiles)
	}

	if plan.Output != image.Pt(200, 100) {
		t.Fatalf("output = %v", plan.Output)
	}

	scaled, err := p.PlanRegion(tile.Region{X: 0, Y: 0, Width: 1000, Height: 800}, 250, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	if scaled.Level != 2 || scaled.Output != image.Pt(250, 200) {
		t.Fatalf("scaled plan = %+v", scaled)
	}

	if _, err := p.PlanRegion(tile.Region{X: 2000, Y: 0, Width: 10, Height: 10}, 0, 0, false); err == nil {
		t.Error("expected error for region outside the image")
	}
}

// TestStitchAndScale 测试瓦片拼接与最近邻缩放.
func TestStitchAndScale(t *testing.T) {
	plan := tile.RegionPlan{
		Rect:  image.Rect(1, 1, 3, 3),
		Tiles: []image.Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	}

	tiles := map[image.Point]*tile.Plane{}
	for i, pt := range plan.Tiles {
		tiles[pt] = constPlane(2, 2, uint16(i+1), math.MaxUint8)
	}

	stitched := plan.Stitch(2, tiles)
	if stitched.Width != 2 || stitched.Height != 2 {
		t.Fatalf("stitched size = %dx%d", stitched.Width, stitched.Height)
	}

	want := []uint16{1, 2, 3, 4}
	for i, v := range want {
		if stitched.Pix[i] != v {
			t.Fatalf("stitched = %v, want %v", stitched.Pix, want)
		}
	}

	scaled := tile.Scale(tile.Blank(2, 2), image.Pt(6, 4))
	if scaled.Bounds().Size() != image.Pt(6, 4) {
		t.Fatalf("scaled size = %v", scaled.Bounds().Size())
	}
}

// TestHistogramRange 测试直方图自动区间.
func TestHistogramRange(t *testing.T) {
	p := tile.NewPlane(100, 100, math.MaxUint16)
	for i := range p.Pix {
		p.Pix[i] = uint16(16384 + i%16384) // [0.25, 0.5)
	}

	r := tile.HistogramRange(p, tile.DefaultAutoThreshold)
	if r.Min < 0.24 || r.Min > 0.26 || r.Max < 0.49 || r.Max > 0.51 {
		t.Fatalf("range = %+v", r)
	}

	g, err := tile.AutoSettings(p, tile.AutoGaussian)
	if err != nil {
		t.Fatal(err)
	}

	if g.Min >= g.Max {
		t.Fatalf("gaussian range = %+v", g)
	}

	if _, err := tile.AutoSettings(p, "magic"); err == nil {
		t.Error("expected unknown method error")
	}
}
