package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/middleware"
)

// CreateGroup 创建组.
//
//	@Summary	创建组
//	@Tags		组
//	@Accept		json
//	@Produce	json
//	@Param		body	body		types.CreateGroupRequest	true	"组参数"
//	@Success	201		{object}	model.Group
//	@Failure	400		{object}	ErrorResponse
//	@Failure	422		{object}	ErrorResponse	"重名"
//	@Router		/group [post]
func CreateGroup(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	g, err := svc.CreateGroup(c.Request.Context(), middleware.GetSubject(c), &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, g)
}

// ListGroups 列出当前主体所在的组.
//
//	@Summary	我的组
//	@Tags		组
//	@Produce	json
//	@Success	200	{object}	types.DataResponse[[]model.Group]
//	@Router		/group [get]
func ListGroups(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	groups, err := svc.ListGroups(c.Request.Context(), middleware.GetSubject(c))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse[[]model.Group]{Data: groups})
}

// GetGroup 获取组及其成员.
//
//	@Summary	组详情
//	@Tags		组
//	@Produce	json
//	@Param		uuid	path		string	true	"组 uuid"
//	@Success	200		{object}	types.GroupResponse
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/group/{uuid} [get]
func GetGroup(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	g, err := svc.GetGroup(c.Request.Context(), middleware.GetSubject(c), c.Param("uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, g)
}

// CreateMembership 把主体加入组，需要组 Owner.
//
//	@Summary	添加成员
//	@Tags		组
//	@Accept		json
//	@Produce	json
//	@Param		group_uuid		path		string					true	"组 uuid"
//	@Param		subject_uuid	path		string					true	"成员"
//	@Param		body			body		types.MembershipRequest	false	"成员级别"
//	@Success	201				{object}	model.Membership
//	@Failure	403				{object}	ErrorResponse
//	@Failure	422				{object}	ErrorResponse	"已是成员"
//	@Router		/membership/{group_uuid}/{subject_uuid} [post]
func CreateMembership(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.MembershipRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	m, err := svc.CreateMembership(c.Request.Context(), middleware.GetSubject(c), c.Param("group_uuid"), c.Param("subject_uuid"), req.MembershipType)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, m)
}

// GetMembership 读取成员关系.
//
//	@Summary	成员关系
//	@Tags		组
//	@Produce	json
//	@Param		group_uuid		path		string	true	"组 uuid"
//	@Param		subject_uuid	path		string	true	"成员"
//	@Success	200				{object}	model.Membership
//	@Failure	403				{object}	ErrorResponse
//	@Failure	404				{object}	ErrorResponse
//	@Router		/membership/{group_uuid}/{subject_uuid} [get]
func GetMembership(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	m, err := svc.GetMembership(c.Request.Context(), middleware.GetSubject(c), c.Param("group_uuid"), c.Param("subject_uuid"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, m)
}

// UpdateMembership 修改成员级别.
//
//	@Summary	修改成员级别
//	@Tags		组
//	@Accept		json
//	@Produce	json
//	@Param		group_uuid		path		string					true	"组 uuid"
//	@Param		subject_uuid	path		string					true	"成员"
//	@Param		body			body		types.MembershipRequest	true	"成员级别"
//	@Success	200				{object}	model.Membership
//	@Failure	403				{object}	ErrorResponse
//	@Failure	422				{object}	ErrorResponse	"最后一个 Owner"
//	@Router		/membership/{group_uuid}/{subject_uuid} [put]
func UpdateMembership(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	var req types.MembershipRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := svc.UpdateMembership(c.Request.Context(), middleware.GetSubject(c), c.Param("group_uuid"), c.Param("subject_uuid"), req.MembershipType)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, m)
}

// DeleteMembership 把主体移出组，成员本人也可以退出.
//
//	@Summary	移除成员
//	@Tags		组
//	@Param		group_uuid		path	string	true	"组 uuid"
//	@Param		subject_uuid	path	string	true	"成员"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Failure	422	{object}	ErrorResponse	"最后一个 Owner"
//	@Router		/membership/{group_uuid}/{subject_uuid} [delete]
func DeleteMembership(c *gin.Context) {
	svc, ok := serviceOf(c)
	if !ok {
		return
	}

	if err := svc.DeleteMembership(c.Request.Context(), middleware.GetSubject(c), c.Param("group_uuid"), c.Param("subject_uuid")); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
