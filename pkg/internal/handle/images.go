package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/service"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/middleware"
)

const maxSettingsBody = 1 << 20

// CreateImage 注册已构建金字塔的图像.
//
//	@Summary	注册图像
//	@Tags		图像
//	@Accept		json
//	@Produce	json
//	@Param		body	body		types.CreateImageRequest	true	"图像参数"
//	@Success	201		{object}	model.Image
//	@Failure	400		{object}	ErrorResponse
//	@Failure	403		{object}	ErrorResponse
//	@Router		/image [post]
func CreateImage(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.CreateImageRequest
	if !bindJSON(c, &req) {
		return
	}

	img, err := svc.CreateImage(c.Request.Context(), middleware.GetSubject(c), &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, img)
}

// GetImage 获取图像及其仓库.
//
//	@Summary	图像详情
//	@Tags		图像
//	@Produce	json
//	@Param		uuid	path		string	true	"图像 uuid"
//	@Success	200		{object}	types.ImageResponse
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/image/{uuid} [get]
func GetImage(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	resp, err := svc.GetImage(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteImage 软删除图像.
//
//	@Summary	删除图像
//	@Tags		图像
//	@Param		uuid	path	string	true	"图像 uuid"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Router		/image/{uuid} [delete]
func DeleteImage(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	if err := svc.DeleteImage(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid")); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RestoreImage 撤销软删除.
//
//	@Summary	恢复图像
//	@Tags		图像
//	@Produce	json
//	@Param		uuid	path		string	true	"图像 uuid"
//	@Success	200		{object}	model.Image
//	@Failure	403		{object}	ErrorResponse
//	@Router		/image/{uuid}/restore [post]
func RestoreImage(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	img, err := svc.RestoreImage(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, img)
}

// ImageCredentials 为图像瓦片前缀签发临时上传凭证.
//
//	@Summary	图像上传凭证
//	@Tags		图像
//	@Produce	json
//	@Param		uuid	path		string	true	"图像 uuid"
//	@Success	200		{object}	s3.UploadGrant
//	@Failure	403		{object}	ErrorResponse
//	@Router		/image/{uuid}/credentials [get]
func ImageCredentials(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	grant, err := svc.ImageCredentials(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, grant)
}

// RequireImage 要求主体对路由中的图像拥有 need 权限，失败时中止请求.
func RequireImage(need model.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceOf(c)
		if !ok {
			return
		}

		if err := svc.AuthorizeImage(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), need); err != nil {
			fail(c, err)
			return
		}

		c.Next()
	}
}

// ImageMetadata 返回图像的 OME-XML.
//
//	@Summary	OME-XML 元数据
//	@Tags		图像
//	@Produce	xml
//	@Param		uuid	path		string	true	"图像 uuid"
//	@Success	200		{string}	string	"OME-XML"
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/image/{uuid}/metadata [get]
func ImageMetadata(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	data, err := svc.Metadata(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.Data(http.StatusOK, "application/xml", data)
}

// ImageDimensions 返回 OME Pixels 中的维度与通道.
//
//	@Summary	图像维度
//	@Tags		图像
//	@Produce	json
//	@Param		uuid	path		string	true	"图像 uuid"
//	@Success	200		{object}	types.Dimensions
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/image/{uuid}/dimensions [get]
func ImageDimensions(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	dims, err := svc.Dimensions(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dims)
}

// ListRenderingSettings 列出图像的渲染设置.
//
//	@Summary	渲染设置列表
//	@Tags		渲染设置
//	@Produce	json
//	@Param		uuid	path		string	true	"图像 uuid"
//	@Success	200		{object}	types.DataResponse[[]model.RenderingSettings]
//	@Failure	403		{object}	ErrorResponse
//	@Router		/image/{uuid}/rendering_settings [get]
func ListRenderingSettings(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	list, err := svc.ListRenderingSettings(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.RenderingSettings]{Data: list})
}

// SaveRenderingSettings 创建或更新渲染设置.
//
//	@Summary		保存渲染设置
//	@Description	请求体先经 JSON Schema 校验；没有 uuid 的分组新建，已被预渲染瓦片引用（锁定）的分组不可修改
//	@Tags			渲染设置
//	@Accept			json
//	@Produce		json
//	@Param			uuid	path		string								true	"图像 uuid"
//	@Param			body	body		types.SaveRenderingSettingsRequest	true	"渲染设置"
//	@Success		201		{object}	types.SaveRenderingSettingsRequest
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse	"设置已锁定或取值非法"
//	@Router			/image/{uuid}/rendering_settings [post]
func SaveRenderingSettings(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSettingsBody)

	body, err := c.GetRawData()
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, err, "read request body"))
		return
	}

	req, err := service.ValidateRenderingSettings(body)
	if err != nil {
		fail(c, err)
		return
	}

	resp, err := svc.SaveRenderingSettings(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// AutoSettings 基于最低分辨率瓦片估计各通道的显示范围.
//
//	@Summary	自动窗口
//	@Tags		渲染设置
//	@Produce	json
//	@Param		uuid		path		string	true	"图像 uuid"
//	@Param		channels	path		string	true	"逗号分隔的通道编号"
//	@Param		method		query		string	false	"histogram（默认）或 gaussian"
//	@Success	200			{object}	types.AutoSettingsResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/image/{uuid}/autosettings/{channels} [get]
func AutoSettings(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var q types.AutoSettingsQuery
	if !bindQuery(c, &q) {
		return
	}

	resp, err := svc.AutoSettings(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), c.Param("channels"), q.Method)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
