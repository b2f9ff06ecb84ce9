package handle

import (
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/middleware"
	"github.com/yeisme/minerva/pkg/tile"
)

const (
	contentTypeJPEG = "image/jpeg"
	contentTypePNG  = "image/png"
	tileCacheHeader = "private, max-age=3600"
)

// writeTile 写出瓦片并附带 ETag，If-None-Match 匹配时返回 304.
func writeTile(c *gin.Context, contentType string, data []byte) {
	etag := `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`

	c.Header("ETag", etag)
	c.Header("Cache-Control", tileCacheHeader)

	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, contentType, data)
}

// gammaParam 解析 gamma，缺省为 1.
func gammaParam(c *gin.Context) (float64, error) {
	raw, ok := c.GetQuery("gamma")
	if !ok || raw == "" {
		return 1, nil
	}

	g, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation("gamma must be a number")
	}

	return g, nil
}

// RenderTile 按路径中的通道参数渲染瓦片.
//
//	@Summary		渲染瓦片
//	@Description	channels 形如 0,FF0000,0,1/1,00FF00,0.1,0.8；带 warmup 参数时直接返回空 200
//	@Tags			瓦片
//	@Produce		jpeg
//	@Param			uuid		path		string	true	"图像 uuid"
//	@Param			x			path		int		true	"列"
//	@Param			y			path		int		true	"行"
//	@Param			z			path		int		true	"Z 平面"
//	@Param			t			path		int		true	"时间点"
//	@Param			level		path		int		true	"金字塔层级，0 为全分辨率"
//	@Param			channels	path		string	true	"通道参数"
//	@Param			gamma		query		number	false	"gamma 校正，默认 1"
//	@Success		200			{file}		binary
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Router			/image/{uuid}/render-tile/{x}/{y}/{z}/{t}/{level}/{channels} [get]
func RenderTile(c *gin.Context) {
	if isWarmup(c) {
		c.Status(http.StatusOK)
		return
	}

	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	coord, err := tileCoord(c)
	if err != nil {
		fail(c, err)
		return
	}

	gamma, err := gammaParam(c)
	if err != nil {
		fail(c, err)
		return
	}

	data, err := svc.RenderTile(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), coord, c.Param("channels"), gamma)
	if err != nil {
		fail(c, err)
		return
	}

	writeTile(c, contentTypeJPEG, data)
}

// PrerenderedTile 按已保存的渲染设置渲染瓦片，首次引用时锁定该设置.
//
//	@Summary	预渲染瓦片
//	@Tags		瓦片
//	@Produce	jpeg
//	@Param		uuid	path		string	true	"图像 uuid"
//	@Param		x		path		int		true	"列"
//	@Param		y		path		int		true	"行"
//	@Param		z		path		int		true	"Z 平面"
//	@Param		t		path		int		true	"时间点"
//	@Param		level	path		int		true	"金字塔层级"
//	@Param		rs_uuid	path		string	true	"渲染设置 uuid"
//	@Success	200		{file}		binary
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/image/{uuid}/prerendered-tile/{x}/{y}/{z}/{t}/{level}/{rs_uuid} [get]
func PrerenderedTile(c *gin.Context) {
	if isWarmup(c) {
		c.Status(http.StatusOK)
		return
	}

	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	coord, err := tileCoord(c)
	if err != nil {
		fail(c, err)
		return
	}

	data, err := svc.PrerenderedTile(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), coord, c.Param("rs_uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	writeTile(c, contentTypeJPEG, data)
}

// RawTile 返回单通道 16 位灰度 PNG.
//
//	@Summary	原始瓦片
//	@Tags		瓦片
//	@Produce	png
//	@Param		uuid	path		string	true	"图像 uuid"
//	@Param		x		path		int		true	"列"
//	@Param		y		path		int		true	"行"
//	@Param		z		path		int		true	"Z 平面"
//	@Param		t		path		int		true	"时间点"
//	@Param		level	path		int		true	"金字塔层级"
//	@Param		channel	path		int		true	"通道编号"
//	@Success	200		{file}		binary
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/image/{uuid}/raw-tile/{x}/{y}/{z}/{t}/{level}/{channel} [get]
func RawTile(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	coord, err := tileCoord(c)
	if err != nil {
		fail(c, err)
		return
	}

	ch, err := intParams(c, "channel")
	if err != nil {
		fail(c, err)
		return
	}

	data, err := svc.RawTile(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), coord, ch[0])
	if err != nil {
		fail(c, err)
		return
	}

	writeTile(c, contentTypePNG, data)
}

// OmeroRenderTile OMERO 风格的渲染请求.
//
//	@Summary		OMERO 渲染
//	@Description	c 为 1 起始的通道编号，负数表示关闭，窗口以 0..65535 表示
//	@Tags			瓦片
//	@Produce		jpeg
//	@Param			uuid	path		string	true	"图像 uuid"
//	@Param			z		path		int		true	"Z 平面"
//	@Param			t		path		int		true	"时间点"
//	@Param			tile	query		string	true	"level,x,y"
//	@Param			c		query		string	true	"1|0:65535$FF0000,..."
//	@Success		200		{file}		binary
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Router			/image/{uuid}/omero-render-tile/{z}/{t} [get]
func OmeroRenderTile(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	zt, err := intParams(c, "z", "t")
	if err != nil {
		fail(c, err)
		return
	}

	data, err := svc.OmeroRenderTile(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), zt[0], zt[1], c.Query("tile"), c.Query("c"))
	if err != nil {
		fail(c, err)
		return
	}

	writeTile(c, contentTypeJPEG, data)
}

// RenderRegion 拼接任意区域并缩放到输出尺寸.
//
//	@Summary	区域渲染
//	@Tags		瓦片
//	@Produce	jpeg
//	@Param		uuid						path		string	true	"图像 uuid"
//	@Param		x							path		int		true	"全分辨率左上角 x"
//	@Param		y							path		int		true	"全分辨率左上角 y"
//	@Param		width						path		int		true	"区域宽"
//	@Param		height						path		int		true	"区域高"
//	@Param		z							path		int		true	"Z 平面"
//	@Param		t							path		int		true	"时间点"
//	@Param		channels					path		string	true	"通道参数"
//	@Param		output-width				query		int		false	"输出宽"
//	@Param		output-height				query		int		false	"输出高"
//	@Param		prefer-higher-resolution	query		bool	false	"优先更高分辨率层级"
//	@Success	200							{file}		binary
//	@Failure	400							{object}	ErrorResponse
//	@Failure	422							{object}	ErrorResponse
//	@Router		/image/{uuid}/render-region/{x}/{y}/{width}/{height}/{z}/{t}/{channels} [get]
func RenderRegion(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	v, err := intParams(c, "x", "y", "width", "height", "z", "t")
	if err != nil {
		fail(c, err)
		return
	}

	var q types.RegionQuery
	if !bindQuery(c, &q) {
		return
	}

	r := tile.Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}

	data, err := svc.RenderRegion(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), r, v[4], v[5], c.Param("channels"), &q)
	if err != nil {
		fail(c, err)
		return
	}

	writeTile(c, contentTypeJPEG, data)
}
