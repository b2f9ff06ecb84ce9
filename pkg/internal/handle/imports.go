package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/middleware"
)

// CreateImport 在仓库中创建导入.
//
//	@Summary	创建导入
//	@Tags		导入
//	@Accept		json
//	@Produce	json
//	@Param		body	body		types.CreateImportRequest	true	"导入参数"
//	@Success	201		{object}	model.Import
//	@Failure	400		{object}	ErrorResponse
//	@Failure	403		{object}	ErrorResponse
//	@Router		/import [post]
func CreateImport(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.CreateImportRequest
	if !bindJSON(c, &req) {
		return
	}

	imp, err := svc.CreateImport(c.Request.Context(), middleware.GetSubject(c), &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, imp)
}

// GetImport 获取导入.
//
//	@Summary	导入详情
//	@Tags		导入
//	@Produce	json
//	@Param		uuid	path		string	true	"导入 uuid"
//	@Success	200		{object}	model.Import
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/import/{uuid} [get]
func GetImport(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	imp, err := svc.GetImport(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, imp)
}

// UpdateImport 重命名或完成导入，完成时发布 minerva.import.completed.
//
//	@Summary		更新导入
//	@Description	complete 只能由 false 变为 true，重复完成不会再次触发构建
//	@Tags			导入
//	@Accept			json
//	@Produce		json
//	@Param			uuid	path		string						true	"导入 uuid"
//	@Param			body	body		types.UpdateImportRequest	true	"更新字段"
//	@Success		200		{object}	model.Import
//	@Failure		403		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse	"事件发布失败，可重试"
//	@Router			/import/{uuid} [put]
func UpdateImport(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.UpdateImportRequest
	if !bindJSON(c, &req) {
		return
	}

	imp, err := svc.UpdateImport(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, imp)
}

// ImportCredentials 为导入前缀签发临时上传凭证.
//
//	@Summary	上传凭证
//	@Tags		导入
//	@Produce	json
//	@Param		uuid	path		string	true	"导入 uuid"
//	@Success	200		{object}	s3.UploadGrant
//	@Failure	403		{object}	ErrorResponse	"无写权限或导入已完成"
//	@Router		/import/{uuid}/credentials [get]
func ImportCredentials(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	grant, err := svc.ImportCredentials(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, grant)
}

// ListImportFilesets 列出导入产生的 fileset.
//
//	@Summary	导入 fileset
//	@Tags		导入
//	@Produce	json
//	@Param		uuid	path		string	true	"导入 uuid"
//	@Success	200		{object}	types.DataResponse[[]model.Fileset]
//	@Failure	403		{object}	ErrorResponse
//	@Router		/import/{uuid}/filesets [get]
func ListImportFilesets(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	filesets, err := svc.ListFilesets(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.Fileset]{Data: filesets})
}

// ListImportKeys 列出导入中登记的原始文件.
//
//	@Summary	导入文件
//	@Tags		导入
//	@Produce	json
//	@Param		uuid	path		string	true	"导入 uuid"
//	@Success	200		{object}	types.DataResponse[[]model.ImportKey]
//	@Failure	403		{object}	ErrorResponse
//	@Router		/import/{uuid}/keys [get]
func ListImportKeys(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	keys, err := svc.ListImportKeys(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.ImportKey]{Data: keys})
}

// GetFileset 获取 fileset.
//
//	@Summary	fileset 详情
//	@Tags		fileset
//	@Produce	json
//	@Param		uuid	path		string	true	"fileset uuid"
//	@Success	200		{object}	model.Fileset
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/fileset/{uuid} [get]
func GetFileset(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	fs, err := svc.GetFileset(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, fs)
}

// ListFilesetImages 列出 fileset 产出的图像.
//
//	@Summary	fileset 图像
//	@Tags		fileset
//	@Produce	json
//	@Param		uuid	path		string	true	"fileset uuid"
//	@Success	200		{object}	types.DataResponse[[]model.Image]
//	@Failure	403		{object}	ErrorResponse
//	@Router		/fileset/{uuid}/images [get]
func ListFilesetImages(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	images, err := svc.ListFilesetImages(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.Image]{Data: images})
}

// ListFilesetKeys 列出 fileset 使用的原始文件.
//
//	@Summary	fileset 文件
//	@Tags		fileset
//	@Produce	json
//	@Param		uuid	path		string	true	"fileset uuid"
//	@Success	200		{object}	types.DataResponse[[]model.ImportKey]
//	@Failure	403		{object}	ErrorResponse
//	@Router		/fileset/{uuid}/keys [get]
func ListFilesetKeys(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	keys, err := svc.ListFilesetKeys(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.ImportKey]{Data: keys})
}
