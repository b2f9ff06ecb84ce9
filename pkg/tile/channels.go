// Package tile 实现瓦片寻址、通道参数解析与多通道合成.
//
// 通道参数的路径语法为 "index,color,min,max"，多个通道以 "/" 连接，例如
//
//	0,FF0000,0.05,0.5/1,00ff00,0,1
//
// color 为 6 位十六进制 RGB（大小写不敏感），min/max 为 [0,1] 区间内的归一化强度.
package tile

import (
	"encoding/hex"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/yeisme/minerva/pkg/apperr"
)

const (
	groupSeparator = "/"
	fieldSeparator = ","
)

// Color RGB 颜色.
type Color [3]uint8

// ParseColor 解析 6 位十六进制颜色.
func ParseColor(s string) (Color, error) {
	var c Color

	if len(s) != 6 {
		return c, apperr.Validation("hex color value %q invalid", s)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return c, apperr.Validation("hex color value %q invalid", s)
	}

	copy(c[:], b)

	return c, nil
}

// Hex 返回大写十六进制表示.
func (c Color) Hex() string {
	return strings.ToUpper(hex.EncodeToString(c[:]))
}

// MarshalText 以十六进制序列化.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText 解析十六进制颜色.
func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}

// Channel 单个通道的渲染参数.
type Channel struct {
	Index int     `json:"id"`
	Color Color   `json:"color"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Validate 检查强度区间.
func (c Channel) Validate() error {
	if c.Index < 0 {
		return apperr.Unprocessable("channel index %d must not be negative", c.Index)
	}

	if !inUnit(c.Min) || !inUnit(c.Max) {
		return apperr.Unprocessable("channel %d: min/max must be within [0,1]", c.Index)
	}

	if c.Min > c.Max {
		return apperr.Unprocessable("channel %d: min %v greater than max %v", c.Index, c.Min, c.Max)
	}

	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// String 返回规范化的单通道表示.
func (c Channel) String() string {
	return strconv.Itoa(c.Index) + fieldSeparator +
		c.Color.Hex() + fieldSeparator +
		formatFloat(c.Min) + fieldSeparator +
		formatFloat(c.Max)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseChannel 解析单个 "index,color,min,max" 分组.
func ParseChannel(group string) (Channel, error) {
	var ch Channel

	parts := strings.Split(group, fieldSeparator)
	if len(parts) != 4 {
		return ch, apperr.Validation("incorrect rendering setting: %q", group)
	}

	idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ch, apperr.Validation("invalid channel index %q", parts[0])
	}

	color, err := ParseColor(strings.TrimSpace(parts[1]))
	if err != nil {
		return ch, err
	}

	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return ch, apperr.Validation("invalid min %q", parts[2])
	}

	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return ch, apperr.Validation("invalid max %q", parts[3])
	}

	ch = Channel{Index: idx, Color: color, Min: lo, Max: hi}

	return ch, ch.Validate()
}

// Channels 一组通道参数.
type Channels []Channel

// ParseChannels 解析以 "/" 分隔的通道路径参数.
func ParseChannels(path string) (Channels, error) {
	path = strings.Trim(path, groupSeparator)
	if path == "" {
		return nil, apperr.Validation("no channels given")
	}

	groups := strings.Split(path, groupSeparator)
	out := make(Channels, 0, len(groups))

	for _, g := range groups {
		ch, err := ParseChannel(g)
		if err != nil {
			return nil, err
		}

		out = append(out, ch)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return out.Sorted(), nil
}

// Validate 检查每个通道以及通道索引唯一性.
func (cs Channels) Validate() error {
	if len(cs) == 0 {
		return apperr.Validation("no channels given")
	}

	seen := make(map[int]struct{}, len(cs))

	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return err
		}

		if _, dup := seen[c.Index]; dup {
			return apperr.Unprocessable("duplicate channel index %d", c.Index)
		}

		seen[c.Index] = struct{}{}
	}

	return nil
}

// CheckBounds 检查通道索引小于图像通道数，sizeC 为 0 表示未知.
func (cs Channels) CheckBounds(sizeC int) error {
	if sizeC <= 0 {
		return nil
	}

	for _, c := range cs {
		if c.Index >= sizeC {
			return apperr.Unprocessable("channel index %d out of range (image has %d channels)", c.Index, sizeC)
		}
	}

	return nil
}

// Sorted 返回按索引升序排列的副本.
func (cs Channels) Sorted() Channels {
	out := slices.Clone(cs)
	slices.SortFunc(out, func(a, b Channel) int { return a.Index - b.Index })

	return out
}

// String 返回规范化表示：按索引排序，颜色大写，浮点数为最短可往返格式.
func (cs Channels) String() string {
	sorted := cs.Sorted()
	parts := make([]string, len(sorted))

	for i, c := range sorted {
		parts[i] = c.String()
	}

	return strings.Join(parts, groupSeparator)
}

// Indexes 返回升序通道索引.
func (cs Channels) Indexes() []int {
	sorted := cs.Sorted()
	out := make([]int, len(sorted))

	for i, c := range sorted {
		out[i] = c.Index
	}

	return out
}
