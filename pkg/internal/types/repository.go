package types

import "github.com/yeisme/minerva/pkg/internal/model"

// DataResponse 通用列表/单项响应.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// CreateRepositoryRequest 创建仓库请求.
type CreateRepositoryRequest struct {
	Name       string           `json:"name"        rule:"required,max=128,reponame"`
	RawStorage model.RawStorage `json:"raw_storage" rule:"omitempty,oneof=Archive Live Destroy"`
	Access     model.Access     `json:"access"      rule:"omitempty,oneof=Private PublicRead"`
}

// UpdateRepositoryRequest 更新仓库请求，未提供的字段保持不变.
type UpdateRepositoryRequest struct {
	Name       *string           `json:"name"        rule:"omitempty,max=128,reponame"`
	RawStorage *model.RawStorage `json:"raw_storage" rule:"omitempty,oneof=Archive Live Destroy"`
	Access     *model.Access     `json:"access"      rule:"omitempty,oneof=Private PublicRead"`
}

// RepositoryIncluded 仓库列表附带的实体.
type RepositoryIncluded struct {
	Repositories []model.Repository `json:"repositories"`
}

// RepositoryListResponse 当前主体可访问的仓库及其授权.
type RepositoryListResponse struct {
	Data     []model.Grant      `json:"data"`
	Included RepositoryIncluded `json:"included"`
}

// CreateGrantRequest 授权请求.
type CreateGrantRequest struct {
	ResourceUUID string           `json:"resource_uuid" rule:"required"`
	Grantee      string           `json:"grantee"       rule:"required,max=64"`
	Permissions  model.Permission `json:"permissions"   rule:"min=1,max=3"`
}
