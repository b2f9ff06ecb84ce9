package types

import (
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/tile"
)

// CreateImageRequest 注册一张已构建的金字塔图像.
type CreateImageRequest struct {
	Name           string  `json:"name"            rule:"required,max=256"`
	RepositoryUUID string  `json:"repository_uuid" rule:"required"`
	FilesetUUID    *string `json:"fileset_uuid"`
	Format         string  `json:"format"          rule:"omitempty,oneof=tiff tif png raw"`
	Compression    string  `json:"compression"     rule:"omitempty,oneof=none zstd snappy"`
	TileSize       int     `json:"tile_size"       rule:"omitempty,min=16,max=8192"`
	PyramidLevels  int     `json:"pyramid_levels"  rule:"required,min=1,max=32"`
	SizeX          int     `json:"size_x"          rule:"required,min=1"`
	SizeY          int     `json:"size_y"          rule:"required,min=1"`
	SizeC          int     `json:"size_c"          rule:"omitempty,min=1"`
	SizeZ          int     `json:"size_z"          rule:"omitempty,min=1"`
	SizeT          int     `json:"size_t"          rule:"omitempty,min=1"`
}

// ImageResponse 图像及其所属仓库.
type ImageResponse struct {
	Data     model.Image `json:"data"`
	Included struct {
		Repository model.Repository `json:"repository"`
	} `json:"included"`
}

// TileQuery render-tile/prerendered-tile 的查询参数.
type TileQuery struct {
	Gamma  float64 `form:"gamma"`
	Warmup bool    `form:"warmup"`
}

// RegionQuery render-region 的查询参数.
type RegionQuery struct {
	OutputWidth            int  `form:"output-width"             rule:"omitempty,min=1"`
	OutputHeight           int  `form:"output-height"            rule:"omitempty,min=1"`
	PreferHigherResolution bool `form:"prefer-higher-resolution"`
}

// AutoSettingsChannel 单通道自动窗口结果.
type AutoSettingsChannel struct {
	ID  int     `json:"id"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AutoSettingsResponse 自动窗口响应.
type AutoSettingsResponse struct {
	Channels []AutoSettingsChannel `json:"channels"`
}

// AutoSettingsQuery 自动窗口查询参数.
type AutoSettingsQuery struct {
	Method string `form:"method" rule:"omitempty,oneof=histogram gaussian"`
}

// Dimensions 从 OME-XML 中提取的像素维度.
type Dimensions struct {
	SizeX    int           `json:"SizeX"`
	SizeY    int           `json:"SizeY"`
	SizeZ    int           `json:"SizeZ"`
	SizeC    int           `json:"SizeC"`
	SizeT    int           `json:"SizeT"`
	Type     string        `json:"Type,omitempty"`
	Channels []OMEChannel  `json:"channels"`
	Pyramid  PyramidLevels `json:"pyramid"`
}

// OMEChannel OME-XML 中的通道描述.
type OMEChannel struct {
	ID    string `json:"ID"`
	Name  string `json:"Name,omitempty"`
	Color *int   `json:"Color,omitempty"`
}

// PyramidLevels 注册表记录的金字塔信息.
type PyramidLevels struct {
	Levels   int `json:"levels"`
	TileSize int `json:"tile_size"`
}

// RenderingSettingsGroup 一组渲染参数，uuid 为空时创建.
type RenderingSettingsGroup struct {
	UUID     string         `json:"uuid,omitempty"`
	Label    string         `json:"label,omitempty"`
	Channels []tile.Channel `json:"channels"`
}

// SaveRenderingSettingsRequest 保存渲染参数请求.
type SaveRenderingSettingsRequest struct {
	Groups []RenderingSettingsGroup `json:"groups"`
}
