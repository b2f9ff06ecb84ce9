package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
)

// CreateGroup 创建组，创建者成为 Owner.
func (s *Service) CreateGroup(ctx context.Context, subject string, req *types.CreateGroupRequest) (*model.Group, error) {
	if subject == "" {
		return nil, apperr.Forbidden("authentication required")
	}

	if err := validateName("group", req.Name); err != nil {
		return nil, err
	}

	g := &model.Group{UUID: model.NewUUID(), Name: req.Name}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Unprocessable("group %q already exists", g.Name)
			}

			return err
		}

		return tx.Create(&model.Membership{
			GroupUUID:      g.UUID,
			SubjectUUID:    subject,
			MembershipType: model.MembershipOwner,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("group", g.UUID).Str("name", g.Name).Str("subject", subject).Msg("group created")

	return g, nil
}

// ListGroups 列出主体所在的组.
func (s *Service) ListGroups(ctx context.Context, subject string) ([]model.Group, error) {
	if subject == "" {
		return nil, apperr.Forbidden("authentication required")
	}

	groups := []model.Group{}
	err := s.DB.WithContext(ctx).
		Where("uuid IN (?)", s.memberGroups(ctx, subject)).
		Order("name").
		Find(&groups).Error

	return groups, err
}

// GetGroup 返回组及其成员，需要是组成员.
func (s *Service) GetGroup(ctx context.Context, subject, uuid string) (*types.GroupResponse, error) {
	g, err := s.requireMember(ctx, uuid, subject, model.MembershipMember)
	if err != nil {
		return nil, err
	}

	resp := &types.GroupResponse{Data: *g}
	resp.Included.Members = []model.Membership{}

	if err := s.DB.WithContext(ctx).Where("group_uuid = ?", uuid).Order("subject_uuid").Find(&resp.Included.Members).Error; err != nil {
		return nil, err
	}

	return resp, nil
}

// CreateMembership 把主体加入组，需要 Owner.
func (s *Service) CreateMembership(ctx context.Context, subject, group, member string, typ model.MembershipType) (*model.Membership, error) {
	if _, err := s.requireMember(ctx, group, subject, model.MembershipOwner); err != nil {
		return nil, err
	}

	if typ == "" {
		typ = model.MembershipMember
	}

	if !typ.Valid() {
		return nil, apperr.Validation("invalid membership_type %q", typ)
	}

	var groups int64
	if err := s.DB.WithContext(ctx).Model(&model.Group{}).Where("uuid = ?", member).Count(&groups).Error; err != nil {
		return nil, err
	}

	if groups > 0 {
		return nil, apperr.Validation("groups cannot be nested")
	}

	m := &model.Membership{GroupUUID: group, SubjectUUID: member, MembershipType: typ}
	if err := s.DB.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Unprocessable("%s is already a member of %s", member, group)
		}

		return nil, err
	}

	s.evictSubjectPermissions(ctx, member)

	return m, nil
}

// GetMembership 读取成员关系，需要是组成员.
func (s *Service) GetMembership(ctx context.Context, subject, group, member string) (*model.Membership, error) {
	if _, err := s.requireMember(ctx, group, subject, model.MembershipMember); err != nil {
		return nil, err
	}

	return s.membership(s.DB.WithContext(ctx), group, member)
}

// UpdateMembership 修改成员级别，需要 Owner，组内至少保留一个 Owner.
func (s *Service) UpdateMembership(ctx context.Context, subject, group, member string, typ model.MembershipType) (*model.Membership, error) {
	if _, err := s.requireMember(ctx, group, subject, model.MembershipOwner); err != nil {
		return nil, err
	}

	if !typ.Valid() {
		return nil, apperr.Validation("invalid membership_type %q", typ)
	}

	var out *model.Membership

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.membership(tx, group, member)
		if err != nil {
			return err
		}

		if m.MembershipType == model.MembershipOwner && typ != model.MembershipOwner {
			if err := keepOwner(tx, group); err != nil {
				return err
			}
		}

		if err := tx.Model(m).Update("membership_type", typ).Error; err != nil {
			return err
		}

		m.MembershipType = typ
		out = m

		return nil
	})

	return out, err
}

// DeleteMembership 把主体移出组，Owner 或成员本人可以操作，组内至少保留一个 Owner.
func (s *Service) DeleteMembership(ctx context.Context, subject, group, member string) error {
	need := model.MembershipOwner
	if subject == member {
		need = model.MembershipMember
	}

	if _, err := s.requireMember(ctx, group, subject, need); err != nil {
		return err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.membership(tx, group, member)
		if err != nil {
			return err
		}

		if m.MembershipType == model.MembershipOwner {
			if err := keepOwner(tx, group); err != nil {
				return err
			}
		}

		return tx.Delete(&model.Membership{}, "group_uuid = ? AND subject_uuid = ?", group, member).Error
	})
	if err != nil {
		return err
	}

	s.evictSubjectPermissions(ctx, member)

	return nil
}

// requireMember 要求主体在组中至少拥有 need 级别，组不存在时返回 NotFound.
func (s *Service) requireMember(ctx context.Context, group, subject string, need model.MembershipType) (*model.Group, error) {
	if subject == "" {
		return nil, apperr.Forbidden("authentication required")
	}

	var g model.Group
	if err := s.DB.WithContext(ctx).Take(&g, "uuid = ?", group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("group %s not found", group)
		}

		return nil, err
	}

	m, err := s.membership(s.DB.WithContext(ctx), group, subject)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && !m.MembershipType.Covers(need)) {
		return nil, apperr.Forbidden("%s membership in group %s required", need, group)
	}

	if err != nil {
		return nil, err
	}

	return &g, nil
}

func (s *Service) membership(db *gorm.DB, group, subject string) (*model.Membership, error) {
	var m model.Membership
	if err := db.Take(&m, "group_uuid = ? AND subject_uuid = ?", group, subject).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("%s is not a member of %s", subject, group)
		}

		return nil, err
	}

	return &m, nil
}

// keepOwner 在移除或降级一个 Owner 前确认还有其他 Owner.
func keepOwner(tx *gorm.DB, group string) error {
	var owners int64
	if err := tx.Model(&model.Membership{}).
		Where("group_uuid = ? AND membership_type = ?", group, model.MembershipOwner).
		Count(&owners).Error; err != nil {
		return err
	}

	if owners <= 1 {
		return apperr.Unprocessable("group %s must keep at least one owner", group)
	}

	return nil
}

// memberGroups 返回主体所属组 uuid 的子查询.
func (s *Service) memberGroups(ctx context.Context, subject string) *gorm.DB {
	return s.DB.WithContext(ctx).Model(&model.Membership{}).Select("group_uuid").Where("subject_uuid = ?", subject)
}
