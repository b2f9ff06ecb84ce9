package tile_test

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"
	"testing"

	"github.com/yeisme/minerva/pkg/tile"
)

func gradientPlane(w, h int) *tile.Plane {
	p := tile.NewPlane(w, h, math.MaxUint8)
	for i := range p.Pix {
		p.Pix[i] = uint16(i % 256)
	}

	return p
}

func constPlane(w, h int, v uint16, full float64) *tile.Plane {
	p := tile.NewPlane(w, h, full)
	for i := range p.Pix {
		p.Pix[i] = v
	}

	return p
}

func mustChannel(t *testing.T, s string) tile.Channel {
	t.Helper()

	ch, err := tile.ParseChannel(s)
	if err != nil {
		t.Fatalf("ParseChannel(%q): %v", s, err)
	}

	return ch
}

// TestCompositeIdentity 测试单个白色通道且区间为 0..1 时输出等于输入.
func TestCompositeIdentity(t *testing.T) {
	p := gradientPlane(16, 16)

	out, err := tile.Composite([]tile.Layer{{Channel: mustChannel(t, "0,FFFFFF,0,1"), Plane: p}}, tile.CompositeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	for y := range 16 {
		for x := range 16 {
			c := out.RGBAAt(x, y)
			want := uint8(p.At(x, y))

			if c.R != want || c.G != want || c.B != want {
				t.Fatalf("pixel (%d,%d) = %v, want gray %d", x, y, c, want)
			}
		}
	}
}

// TestCompositeSaturation 测试红绿通道叠加时各分量截断在 255.
func TestCompositeSaturation(t *testing.T) {
	full := constPlane(4, 4, math.MaxUint16, math.MaxUint16)

	layers := []tile.Layer{
		{Channel: mustChannel(t, "1,00FF00,0,1"), Plane: full},
		{Channel: mustChannel(t, "0,FF0000,0,1"), Plane: full},
		{Channel: mustChannel(t, "2,FFFF00,0,1"), Plane: full},
	}

	out, err := tile.Composite(layers, tile.CompositeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	c := out.RGBAAt(0, 0)
	if c.R != 255 || c.G != 255 || c.B != 0 || c.A != 255 {
		t.Fatalf("saturated pixel = %v", c)
	}
}

// TestCompositeWindow 测试 min/max 线性映射与截断.
func TestCompositeWindow(t *testing.T) {
	p := tile.NewPlane(3, 1, math.MaxUint8)
	p.Pix = []uint16{0, 51, 255} // 0, 0.2, 1.0

	out, err := tile.Composite([]tile.Layer{{Channel: mustChannel(t, "0,FF0000,0.1,0.5"), Plane: p}}, tile.CompositeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	got := []uint8{out.RGBAAt(0, 0).R, out.RGBAAt(1, 0).R, out.RGBAAt(2, 0).R}
	want := []uint8{0, 64, 255}

	for i := range got {
		if got[i] != want[i] {
			t.Errorf("pixel %d red = %d, want %d", i, got[i], want[i])
		}
	}

	if out.RGBAAt(2, 0).G != 0 {
		t.Error("red channel leaked into green")
	}
}

// TestCompositeEqualMinMax 测试 min == max 时按阈值二值化.
func TestCompositeEqualMinMax(t *testing.T) {
	p := tile.NewPlane(2, 1, math.MaxUint8)
	p.Pix = []uint16{100, 200}

	out, err := tile.Composite([]tile.Layer{{Channel: mustChannel(t, "0,FFFFFF,0.5,0.5"), Plane: p}}, tile.CompositeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if out.RGBAAt(0, 0).R != 0 || out.RGBAAt(1, 0).R != 255 {
		t.Fatalf("threshold result = %v %v", out.RGBAAt(0, 0), out.RGBAAt(1, 0))
	}
}

// TestCompositeEdgeRegion 测试只渲染有效区域.
func TestCompositeEdgeRegion(t *testing.T) {
	p := gradientPlane(8, 8)

	out, err := tile.Composite([]tile.Layer{{Channel: mustChannel(t, "0,FFFFFF,0,1"), Plane: p}},
		tile.CompositeOptions{Width: 5, Height: 3})
	if err != nil {
		t.Fatal(err)
	}

	if out.Bounds() != image.Rect(0, 0, 5, 3) {
		t.Fatalf("bounds = %v", out.Bounds())
	}
}

// TestCompositeGamma 测试伽马校正提升中间调.
func TestCompositeGamma(t *testing.T) {
	p := constPlane(1, 1, 64, math.MaxUint8)
	ch := mustChannel(t, "0,FFFFFF,0,1")

	plain, _ := tile.Composite([]tile.Layer{{Channel: ch, Plane: p}}, tile.CompositeOptions{})
	bright, _ := tile.Composite([]tile.Layer{{Channel: ch, Plane: p}}, tile.CompositeOptions{Gamma: 2})

	if bright.RGBAAt(0, 0).R <= plain.RGBAAt(0, 0).R {
		t.Fatalf("gamma 2 should brighten: %d vs %d", bright.RGBAAt(0, 0).R, plain.RGBAAt(0, 0).R)
	}
}

// TestEncodeJPEG 测试 JPEG 编码可被解码且尺寸一致.
func TestEncodeJPEG(t *testing.T) {
	data, err := tile.EncodeJPEG(tile.Blank(7, 5), 0)
	if err != nil {
		t.Fatal(err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	if img.Bounds().Dx() != 7 || img.Bounds().Dy() != 5 {
		t.Fatalf("decoded bounds = %v", img.Bounds())
	}
}
