package tile

import (
	"strconv"
	"strings"

	"github.com/yeisme/minerva/pkg/apperr"
)

const omeroFullScale = 65535

// ParseOmeroTile 解析 OMERO 风格的 tile=level,x,y 参数.
func ParseOmeroTile(s string) (level, x, y int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return 0, 0, 0, apperr.Validation("tile parameter %q must be level,x,y", s)
	}

	vals := make([]int, 3)

	for i := range vals {
		if vals[i], err = strconv.Atoi(strings.TrimSpace(parts[i])); err != nil {
			return 0, 0, 0, apperr.Validation("tile parameter %q must be level,x,y", s)
		}
	}

	return vals[0], vals[1], vals[2], nil
}

// ParseOmeroChannels 解析 OMERO 风格的 c=1|0:65535$FF0000,2|0:65535$00FF00 参数.
// 通道编号从 1 开始，负数表示关闭该通道；min/max 按 16 位满量程归一化.
// 所有通道关闭时返回空集合与 nil 错误.
func ParseOmeroChannels(s string) (Channels, error) {
	var out Channels

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idStr, settings, ok := strings.Cut(part, "|")

		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, apperr.Validation("invalid omero channel %q", part)
		}

		if id < 0 {
			continue
		}

		if !ok || id == 0 {
			return nil, apperr.Validation("invalid omero channel %q", part)
		}

		window, colorHex, ok := strings.Cut(settings, "$")
		if !ok {
			return nil, apperr.Validation("invalid omero channel %q", part)
		}

		loStr, hiStr, ok := strings.Cut(window, ":")
		if !ok {
			return nil, apperr.Validation("invalid omero window %q", window)
		}

		lo, err1 := strconv.Atoi(loStr)
		hi, err2 := strconv.Atoi(hiStr)

		if err1 != nil || err2 != nil {
			return nil, apperr.Validation("invalid omero window %q", window)
		}

		color, err := ParseColor(colorHex)
		if err != nil {
			return nil, err
		}

		out = append(out, Channel{
			Index: id - 1,
			Color: color,
			Min:   float64(lo) / omeroFullScale,
			Max:   float64(hi) / omeroFullScale,
		})
	}

	if len(out) == 0 {
		return nil, nil
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return out.Sorted(), nil
}
