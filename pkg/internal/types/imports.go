package types

// CreateImportRequest 创建导入请求.
type CreateImportRequest struct {
	Name           string `json:"name"            rule:"required,max=256"`
	RepositoryUUID string `json:"repository_uuid" rule:"required"`
}

// UpdateImportRequest 更新导入请求，complete 只能由 false 变为 true.
type UpdateImportRequest struct {
	Name     *string `json:"name"     rule:"omitempty,max=256"`
	Complete *bool   `json:"complete"`
}
