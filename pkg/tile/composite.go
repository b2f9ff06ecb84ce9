package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"slices"
)

// DefaultJPEGQuality 渲染瓦片的 JPEG 质量.
const DefaultJPEGQuality = 85

// Plane 单通道强度数据，样本以 uint16 存储.
// FullScale 为源数据的满量程，8 位源为 255，16 位源为 65535.
type Plane struct {
	Width     int
	Height    int
	Pix       []uint16
	FullScale float64
}

// NewPlane 创建指定尺寸的空平面.
func NewPlane(w, h int, fullScale float64) *Plane {
	return &Plane{Width: w, Height: h, Pix: make([]uint16, w*h), FullScale: fullScale}
}

// At 返回 (x, y) 处的样本.
func (p *Plane) At(x, y int) uint16 {
	return p.Pix[y*p.Width+x]
}

// Set 设置 (x, y) 处的样本.
func (p *Plane) Set(x, y int, v uint16) {
	p.Pix[y*p.Width+x] = v
}

// Crop 返回左上角 size 大小的区域，size 未知或不小于平面时原样返回.
func (p *Plane) Crop(size image.Point) *Plane {
	w, h := min(size.X, p.Width), min(size.Y, p.Height)
	if size.X <= 0 || size.Y <= 0 || (w == p.Width && h == p.Height) {
		return p
	}

	out := NewPlane(w, h, p.FullScale)
	for y := range h {
		copy(out.Pix[y*w:(y+1)*w], p.Pix[y*p.Width:y*p.Width+w])
	}

	return out
}

// PlaneFromImage 把解码后的灰度图像转换为 Plane.
func PlaneFromImage(img image.Image) (*Plane, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray16:
		p := NewPlane(w, h, math.MaxUint16)
		for y := range h {
			for x := range w {
				p.Set(x, y, src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}

		return p, nil
	case *image.Gray:
		p := NewPlane(w, h, math.MaxUint8)
		for y := range h {
			for x := range w {
				p.Set(x, y, uint16(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}

		return p, nil
	case nil:
		return nil, fmt.Errorf("nil image")
	default:
		// 非灰度图像取亮度，按 16 位处理.
		p := NewPlane(w, h, math.MaxUint16)
		for y := range h {
			for x := range w {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				p.Set(x, y, uint16((19595*r+38470*g+7471*bl+1<<15)>>16))
			}
		}

		return p, nil
	}
}

// Layer 一个待合成的通道.
type Layer struct {
	Channel Channel
	Plane   *Plane
}

// CompositeOptions 合成参数.
type CompositeOptions struct {
	// Width/Height 输出的有效区域，为 0 时取所有平面的最小尺寸.
	Width  int
	Height int
	// Gamma 伽马校正系数，0 或 1 表示不校正.
	Gamma float64
}

// Gray16 把平面转换为 16 位灰度图，8 位样本按满量程放大.
func (p *Plane) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))

	scale := 1.0
	if p.FullScale > 0 && p.FullScale != math.MaxUint16 {
		scale = math.MaxUint16 / p.FullScale
	}

	for y := range p.Height {
		for x := range p.Width {
			v := float64(p.At(x, y)) * scale
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Min(math.Round(v), math.MaxUint16))})
		}
	}

	return img
}

// Composite 将多个通道按伪彩色叠加为 8 位 RGB 图像.
//
// 每个样本先归一化到 [0,1]，再由 [min,max] 线性映射并截断到 [0,1]，
// 乘以通道颜色后按通道索引升序累加，最后每个分量截断到 [0,255].
func Composite(layers []Layer, opts CompositeOptions) (*image.RGBA, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("no layers to composite")
	}

	w, h := opts.Width, opts.Height

	for _, l := range layers {
		if l.Plane == nil {
			return nil, fmt.Errorf("channel %d has no data", l.Channel.Index)
		}

		if w == 0 || l.Plane.Width < w {
			w = l.Plane.Width
		}

		if h == 0 || l.Plane.Height < h {
			h = l.Plane.Height
		}
	}

	ordered := slices.Clone(layers)
	slices.SortStableFunc(ordered, func(a, b Layer) int { return a.Channel.Index - b.Channel.Index })

	acc := make([]float64, w*h*3)

	for _, l := range ordered {
		lut := buildLUT(l.Channel, l.Plane.FullScale, opts.Gamma)
		color := [3]float64{
			float64(l.Channel.Color[0]),
			float64(l.Channel.Color[1]),
			float64(l.Channel.Color[2]),
		}

		for y := range h {
			row := l.Plane.Pix[y*l.Plane.Width : y*l.Plane.Width+w]
			for x, s := range row {
				v := lut(s)
				if v == 0 {
					continue
				}

				i := (y*w + x) * 3
				acc[i] += v * color[0]
				acc[i+1] += v * color[1]
				acc[i+2] += v * color[2]
			}
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := range h {
		for x := range w {
			i := (y*w + x) * 3
			o := out.PixOffset(x, y)
			out.Pix[o] = clampByte(acc[i])
			out.Pix[o+1] = clampByte(acc[i+1])
			out.Pix[o+2] = clampByte(acc[i+2])
			out.Pix[o+3] = 0xff
		}
	}

	return out, nil
}

// buildLUT 返回样本到 [0,1] 强度的映射.
func buildLUT(ch Channel, fullScale, gamma float64) func(uint16) float64 {
	if fullScale <= 0 {
		fullScale = math.MaxUint16
	}

	span := ch.Max - ch.Min
	applyGamma := gamma > 0 && gamma != 1

	return func(s uint16) float64 {
		n := float64(s) / fullScale

		var v float64

		if span <= 0 {
			if n >= ch.Max {
				v = 1
			}
		} else {
			v = (n - ch.Min) / span
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
		}

		if applyGamma && v > 0 {
			v = math.Pow(v, 1/gamma)
		}

		return v
	}
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}

// EncodeJPEG 编码为基线 JPEG，quality 不在 1..100 时使用默认质量.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// EncodePNG 编码为 PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return buf.Bytes(), nil
}

// Blank 返回 w x h 的黑色图像.
func Blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}

	return img
}
