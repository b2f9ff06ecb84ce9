package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/middleware"
)

// ListRepositories 列出当前主体可访问的仓库.
//
//	@Summary		仓库列表
//	@Description	返回当前主体的授权记录，included 中附带仓库详情
//	@Tags			仓库
//	@Produce		json
//	@Success		200	{object}	types.RepositoryListResponse
//	@Failure		403	{object}	ErrorResponse
//	@Router			/repository [get]
func ListRepositories(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	resp, err := svc.ListRepositories(c.Request.Context(), middleware.GetSubject(c))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateRepository 创建仓库，创建者获得 Admin 授权.
//
//	@Summary	创建仓库
//	@Tags		仓库
//	@Accept		json
//	@Produce	json
//	@Param		body	body		types.CreateRepositoryRequest	true	"仓库参数"
//	@Success	201		{object}	model.Repository
//	@Failure	400		{object}	ErrorResponse
//	@Failure	403		{object}	ErrorResponse
//	@Failure	422		{object}	ErrorResponse
//	@Router		/repository [post]
func CreateRepository(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.CreateRepositoryRequest
	if !bindJSON(c, &req) {
		return
	}

	repo, err := svc.CreateRepository(c.Request.Context(), middleware.GetSubject(c), &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, repo)
}

// GetRepository 获取仓库.
//
//	@Summary	仓库详情
//	@Tags		仓库
//	@Produce	json
//	@Param		uuid	path		string	true	"仓库 uuid"
//	@Success	200		{object}	model.Repository
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/repository/{uuid} [get]
func GetRepository(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	repo, err := svc.GetRepository(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, repo)
}

// UpdateRepository 修改仓库名称、原始数据策略或访问级别，需要 Admin.
//
//	@Summary	更新仓库
//	@Tags		仓库
//	@Accept		json
//	@Produce	json
//	@Param		uuid	path		string							true	"仓库 uuid"
//	@Param		body	body		types.UpdateRepositoryRequest	true	"更新字段"
//	@Success	200		{object}	model.Repository
//	@Failure	400		{object}	ErrorResponse
//	@Failure	403		{object}	ErrorResponse
//	@Router		/repository/{uuid} [put]
func UpdateRepository(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.UpdateRepositoryRequest
	if !bindJSON(c, &req) {
		return
	}

	repo, err := svc.UpdateRepository(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, repo)
}

// DeleteRepository 删除空仓库.
//
//	@Summary	删除仓库
//	@Tags		仓库
//	@Param		uuid	path	string	true	"仓库 uuid"
//	@Success	204
//	@Failure	400	{object}	ErrorResponse	"仓库中仍有图像或导入"
//	@Failure	403	{object}	ErrorResponse
//	@Router		/repository/{uuid} [delete]
func DeleteRepository(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	if err := svc.DeleteRepository(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid")); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListRepositoryImages 列出仓库中的图像.
//
//	@Summary	仓库图像
//	@Tags		仓库
//	@Produce	json
//	@Param		uuid			path		string	true	"仓库 uuid"
//	@Param		include_deleted	query		bool	false	"包含已删除的图像"
//	@Success	200				{object}	types.DataResponse[[]model.Image]
//	@Failure	403				{object}	ErrorResponse
//	@Router		/repository/{uuid}/images [get]
func ListRepositoryImages(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	images, err := svc.ListRepositoryImages(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"),
		c.Query("include_deleted") == "true")
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.Image]{Data: images})
}

// ListRepositoryImports 列出仓库的导入.
//
//	@Summary	仓库导入
//	@Tags		仓库
//	@Produce	json
//	@Param		uuid	path		string	true	"仓库 uuid"
//	@Success	200		{object}	types.DataResponse[[]model.Import]
//	@Failure	403		{object}	ErrorResponse
//	@Router		/repository/{uuid}/imports [get]
func ListRepositoryImports(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	imports, err := svc.ListRepositoryImports(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.Import]{Data: imports})
}

// ListRepositoryGrants 列出仓库的授权，需要 Admin.
//
//	@Summary	仓库授权
//	@Tags		授权
//	@Produce	json
//	@Param		uuid	path		string	true	"仓库 uuid"
//	@Success	200		{object}	types.DataResponse[[]model.Grant]
//	@Failure	403		{object}	ErrorResponse
//	@Router		/repository/{uuid}/grants [get]
func ListRepositoryGrants(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	grants, err := svc.ListGrants(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.Grant]{Data: grants})
}

// CreateGrant 授予或修改他人的权限.
//
//	@Summary		授权
//	@Description	不能修改自己的权限
//	@Tags			授权
//	@Accept			json
//	@Produce		json
//	@Param			body	body		types.CreateGrantRequest	true	"授权参数"
//	@Success		201		{object}	model.Grant
//	@Failure		403		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/grant [post]
func CreateGrant(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.CreateGrantRequest
	if !bindJSON(c, &req) {
		return
	}

	g, err := svc.CreateGrant(c.Request.Context(), middleware.GetSubject(c), &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, g)
}

// DeleteGrant 撤销授权.
//
//	@Summary	撤销授权
//	@Tags		授权
//	@Param		repository_uuid	path	string	true	"仓库 uuid"
//	@Param		subject_uuid	path	string	true	"被授权主体"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/grant/{repository_uuid}/{subject_uuid} [delete]
func DeleteGrant(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	if err := svc.DeleteGrant(c.Request.Context(), middleware.GetSubject(c), c.Param("repository_uuid"), c.Param("subject_uuid")); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RepositoryStats 汇总仓库的图像、导入与 fileset.
//
//	@Summary	仓库统计
//	@Tags		仓库
//	@Produce	json
//	@Param		uuid	path		string	true	"仓库 uuid"
//	@Param		days	query		int		false	"图像注册趋势天数，默认 14，最大 60"
//	@Success	200		{object}	types.RepositoryStats
//	@Failure	400		{object}	ErrorResponse
//	@Failure	403		{object}	ErrorResponse
//	@Router		/repository/{uuid}/stats [get]
func RepositoryStats(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var q types.StatsQuery
	if !bindQuery(c, &q) {
		return
	}

	stats, err := svc.RepositoryStats(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"), q.Days)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
