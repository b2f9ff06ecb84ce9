package tile

import (
	"fmt"
	"image"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/yeisme/minerva/pkg/apperr"
)

// Coord 金字塔中一个瓦片的位置.
type Coord struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Z     int `json:"z"`
	T     int `json:"t"`
	Level int `json:"level"`
}

// String 返回 T{t}-Z{z}-L{level}-Y{y}-X{x} 形式的片段，用于对象键与缓存键.
func (c Coord) String() string {
	return fmt.Sprintf("T%d-Z%d-L%d-Y%d-X%d", c.T, c.Z, c.Level, c.Y, c.X)
}

// Pyramid 图像金字塔几何.
// Size* 为全分辨率尺寸，为 0 时表示未知，相应维度只做非负检查.
type Pyramid struct {
	TileSize int
	Levels   int
	SizeX    int
	SizeY    int
	SizeC    int
	SizeZ    int
	SizeT    int
}

// LevelSize 返回指定层级的像素尺寸，每层边长减半并向上取整.
func (p Pyramid) LevelSize(level int) (w, h int) {
	return ceilShift(p.SizeX, level), ceilShift(p.SizeY, level)
}

// GridSize 返回指定层级的瓦片列数与行数.
func (p Pyramid) GridSize(level int) (cols, rows int) {
	w, h := p.LevelSize(level)

	return ceilDiv(w, p.TileSize), ceilDiv(h, p.TileSize)
}

// Validate 检查坐标是否落在金字塔内.
func (p Pyramid) Validate(c Coord) error {
	if p.Levels < 1 || p.TileSize < 1 {
		return apperr.Unprocessable("image has no pyramid")
	}

	if c.X < 0 || c.Y < 0 || c.Z < 0 || c.T < 0 || c.Level < 0 {
		return apperr.Unprocessable("tile coordinates must not be negative")
	}

	if c.Level >= p.Levels {
		return apperr.Unprocessable("level %d out of range (pyramid has %d levels)", c.Level, p.Levels)
	}

	if p.SizeX > 0 && p.SizeY > 0 {
		cols, rows := p.GridSize(c.Level)
		if c.X >= cols || c.Y >= rows {
			return apperr.Unprocessable("tile (%d,%d) out of range at level %d (grid %dx%d)", c.X, c.Y, c.Level, cols, rows)
		}
	}

	if p.SizeZ > 0 && c.Z >= p.SizeZ {
		return apperr.Unprocessable("z %d out of range (size %d)", c.Z, p.SizeZ)
	}

	if p.SizeT > 0 && c.T >= p.SizeT {
		return apperr.Unprocessable("t %d out of range (size %d)", c.T, p.SizeT)
	}

	return nil
}

// TileBounds 返回瓦片在层级像素坐标系中的有效区域，边缘瓦片会被裁剪.
// 尺寸未知时返回完整瓦片.
func (p Pyramid) TileBounds(c Coord) image.Rectangle {
	x0, y0 := c.X*p.TileSize, c.Y*p.TileSize
	r := image.Rect(x0, y0, x0+p.TileSize, y0+p.TileSize)

	if p.SizeX > 0 && p.SizeY > 0 {
		w, h := p.LevelSize(c.Level)
		r = r.Intersect(image.Rect(0, 0, w, h))
	}

	return r
}

// TileSizeAt 返回瓦片有效区域的宽高.
func (p Pyramid) TileSizeAt(c Coord) image.Point {
	return p.TileBounds(c).Size()
}

func ceilShift(v, level int) int {
	if v <= 0 {
		return 0
	}

	d := 1 << level

	return (v + d - 1) / d
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}

	return (a + b - 1) / b
}

// RawKey 返回单通道原始瓦片的对象键：{uuid}/C{c}-T{t}-Z{z}-L{level}-Y{y}-X{x}.{ext}.
// uuid 为图像所属 fileset 的 uuid，未关联 fileset 时为图像 uuid.
func RawKey(uuid string, channel int, c Coord, ext string) string {
	return fmt.Sprintf("%s/C%d-%s.%s", uuid, channel, c, ext)
}

// Mode 渲染参数来源，取值为 InlineSpec 或 SettingsRef.
type Mode interface {
	mode()
}

// InlineSpec 请求路径中内联给出的通道参数.
type InlineSpec struct {
	Channels Channels
}

// SettingsRef 引用已保存的渲染设置.
type SettingsRef struct {
	UUID string
}

func (InlineSpec) mode()  {}
func (SettingsRef) mode() {}

// Request 经过校验的渲染请求描述.
type Request struct {
	Image string
	Coord Coord
	Mode  Mode
	Gamma float64
}

const (
	inlinePrefix      = "render"
	prerenderedPrefix = "prerendered"
)

// RenderedPrefixes 返回图像全部渲染结果缓存键的前缀.
func RenderedPrefixes(image string) []string {
	return []string{
		inlinePrefix + "/" + image + "/",
		prerenderedPrefix + "/" + image + "/",
	}
}

// CacheKey 返回确定性的缓存键.
// 内联参数与渲染设置引用使用不同前缀，两类键永不重叠.
func (r Request) CacheKey() string {
	switch m := r.Mode.(type) {
	case InlineSpec:
		canonical := m.Channels.String()
		if r.Gamma != 0 && r.Gamma != 1 {
			canonical += "|g=" + strconv.FormatFloat(r.Gamma, 'f', -1, 64)
		}

		// 规范串本身进入键，哈希碰撞不会返回另一组参数的结果.
		return fmt.Sprintf("%s/%s/%s/inline-%016x-%s", inlinePrefix, r.Image, r.Coord, xxhash.Sum64String(canonical), canonical)
	case SettingsRef:
		return fmt.Sprintf("%s/%s/%s/%s", prerenderedPrefix, r.Image, r.Coord, m.UUID)
	default:
		panic(fmt.Sprintf("tile: unknown request mode %T", r.Mode))
	}
}
