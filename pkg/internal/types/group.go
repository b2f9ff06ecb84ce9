package types

import "github.com/yeisme/minerva/pkg/internal/model"

// CreateGroupRequest 创建组请求.
type CreateGroupRequest struct {
	Name string `json:"name" rule:"required,max=128,reponame"`
}

// MembershipRequest 添加或修改成员的请求，缺省为 Member.
type MembershipRequest struct {
	MembershipType model.MembershipType `json:"membership_type" rule:"omitempty,oneof=Member Owner"`
}

// GroupResponse 组及其成员.
type GroupResponse struct {
	Data     model.Group `json:"data"`
	Included struct {
		Members []model.Membership `json:"members"`
	} `json:"included"`
}
