package tile

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/yeisme/minerva/pkg/apperr"
)

// Region 全分辨率坐标系中的矩形区域.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// RegionPlan 区域渲染计划.
type RegionPlan struct {
	// Level 使用的金字塔层级.
	Level int
	// Rect 层级像素坐标系中的区域.
	Rect image.Rectangle
	// Tiles 覆盖 Rect 的瓦片网格坐标.
	Tiles []image.Point
	// Output 输出图像尺寸.
	Output image.Point
}

// OptimumLevel 选择最接近输出尺寸的层级：理想层级为 log2(最长边/输出最长边)，
// preferHigher 时向下取整（更高分辨率），否则四舍五入，并截断到有效层级.
func (p Pyramid) OptimumLevel(longest, outputMax int, preferHigher bool) int {
	if outputMax <= 0 || longest <= 0 {
		return 0
	}

	ideal := math.Log2(float64(longest) / float64(outputMax))

	var level int
	if preferHigher {
		level = int(math.Floor(ideal))
	} else {
		level = int(math.Round(ideal))
	}

	return max(0, min(level, p.Levels-1))
}

// PlanRegion 计算区域渲染所需的层级、瓦片与输出尺寸.
// outW/outH 为 0 表示未指定；只指定一边时按比例缩放另一边.
func (p Pyramid) PlanRegion(r Region, outW, outH int, preferHigher bool) (RegionPlan, error) {
	if r.Width <= 0 || r.Height <= 0 || r.X < 0 || r.Y < 0 {
		return RegionPlan{}, apperr.Unprocessable("invalid region %dx%d at (%d,%d)", r.Width, r.Height, r.X, r.Y)
	}

	if p.TileSize <= 0 {
		return RegionPlan{}, apperr.Unprocessable("image has no pyramid")
	}

	if outW < 0 || outH < 0 {
		return RegionPlan{}, apperr.Unprocessable("output size must not be negative")
	}

	full := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
	if p.SizeX > 0 && p.SizeY > 0 {
		full = full.Intersect(image.Rect(0, 0, p.SizeX, p.SizeY))
		if full.Empty() {
			return RegionPlan{}, apperr.Unprocessable("region lies outside the image")
		}
	}

	level := 0

	if outMax := max(outW, outH); outMax > 0 {
		longest := max(p.SizeX, p.SizeY)
		if longest == 0 {
			longest = max(full.Dx(), full.Dy())
		}

		level = p.OptimumLevel(longest, outMax, preferHigher)
	}

	rect := image.Rect(
		full.Min.X>>level, full.Min.Y>>level,
		ceilShift(full.Max.X, level), ceilShift(full.Max.Y, level),
	)

	plan := RegionPlan{Level: level, Rect: rect}

	for ty := rect.Min.Y / p.TileSize; ty*p.TileSize < rect.Max.Y; ty++ {
		for tx := rect.Min.X / p.TileSize; tx*p.TileSize < rect.Max.X; tx++ {
			plan.Tiles = append(plan.Tiles, image.Pt(tx, ty))
		}
	}

	w, h := rect.Dx(), rect.Dy()

	switch {
	case outW > 0 && outH > 0:
		plan.Output = image.Pt(outW, outH)
	case outW > 0:
		plan.Output = image.Pt(outW, max(1, int(math.Round(float64(h)*float64(outW)/float64(w)))))
	case outH > 0:
		plan.Output = image.Pt(max(1, int(math.Round(float64(w)*float64(outH)/float64(h)))), outH)
	default:
		plan.Output = image.Pt(w, h)
	}

	return plan, nil
}

// Stitch 把覆盖区域的瓦片拼接为一个平面，缺失的瓦片以 0 填充.
func (plan RegionPlan) Stitch(tileSize int, tiles map[image.Point]*Plane) *Plane {
	w, h := plan.Rect.Dx(), plan.Rect.Dy()

	full := 0.0
	for _, t := range tiles {
		if t != nil && t.FullScale > full {
			full = t.FullScale
		}
	}

	if full == 0 {
		full = math.MaxUint16
	}

	out := NewPlane(w, h, full)

	for pt, t := range tiles {
		if t == nil {
			continue
		}

		origin := image.Pt(pt.X*tileSize, pt.Y*tileSize)
		area := image.Rect(origin.X, origin.Y, origin.X+t.Width, origin.Y+t.Height).Intersect(plan.Rect)

		scale := 1.0
		if t.FullScale > 0 && t.FullScale != full {
			scale = full / t.FullScale
		}

		for y := area.Min.Y; y < area.Max.Y; y++ {
			for x := area.Min.X; x < area.Max.X; x++ {
				v := t.At(x-origin.X, y-origin.Y)
				if scale != 1 {
					v = uint16(math.Min(float64(v)*scale, math.MaxUint16))
				}

				out.Set(x-plan.Rect.Min.X, y-plan.Rect.Min.Y, v)
			}
		}
	}

	return out
}

// Scale 以最近邻插值缩放图像.
func Scale(src image.Image, size image.Point) *image.RGBA {
	if src.Bounds().Size() == size {
		if rgba, ok := src.(*image.RGBA); ok {
			return rgba
		}
	}

	dst := image.NewRGBA(image.Rectangle{Max: size})
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return dst
}
