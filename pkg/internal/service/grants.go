package service

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
)

// ListGrants 列出仓库的授权，需要 Admin.
func (s *Service) ListGrants(ctx context.Context, subject, repository string) ([]model.Grant, error) {
	if err := s.authorize(ctx, subject, repository, model.PermissionAdmin); err != nil {
		return nil, err
	}

	grants := []model.Grant{}
	if err := s.DB.WithContext(ctx).Where("repository_uuid = ?", repository).Order("subject_uuid").Find(&grants).Error; err != nil {
		return nil, err
	}

	return grants, nil
}

// CreateGrant 授予或修改主体或组对仓库的权限，需要 Admin，不能修改自己的权限.
func (s *Service) CreateGrant(ctx context.Context, subject string, req *types.CreateGrantRequest) (*model.Grant, error) {
	if err := s.authorize(ctx, subject, req.ResourceUUID, model.PermissionAdmin); err != nil {
		return nil, err
	}

	if req.Grantee == subject {
		return nil, apperr.Unprocessable("cannot change own permissions")
	}

	if req.Permissions <= model.PermissionNone || req.Permissions > model.PermissionAdmin {
		return nil, apperr.Validation("invalid permission %s", req.Permissions)
	}

	grant := &model.Grant{
		SubjectUUID:    req.Grantee,
		RepositoryUUID: req.ResourceUUID,
		Permission:     req.Permissions,
	}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_uuid"}, {Name: "repository_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission"}),
	}).Create(grant).Error
	if err != nil {
		return nil, err
	}

	s.evictGrantee(ctx, req.Grantee, req.ResourceUUID)

	return grant, nil
}

// DeleteGrant 撤销主体对仓库的权限，需要 Admin，不能撤销自己的权限.
func (s *Service) DeleteGrant(ctx context.Context, subject, repository, grantee string) error {
	if err := s.authorize(ctx, subject, repository, model.PermissionAdmin); err != nil {
		return err
	}

	if grantee == subject {
		return apperr.Unprocessable("cannot change own permissions")
	}

	res := s.DB.WithContext(ctx).Where("subject_uuid = ? AND repository_uuid = ?", grantee, repository).Delete(&model.Grant{})
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return apperr.NotFound("grant for %s on %s not found", grantee, repository)
	}

	s.evictGrantee(ctx, grantee, repository)

	return nil
}

// evictGrantee 授权变化后清理缓存，组授权影响全部成员，因此清理整个仓库.
func (s *Service) evictGrantee(ctx context.Context, grantee, repository string) {
	var groups int64
	if err := s.DB.WithContext(ctx).Model(&model.Group{}).Where("uuid = ?", grantee).Count(&groups).Error; err != nil || groups > 0 {
		s.evictRepositoryPermissions(ctx, repository)
		return
	}

	s.evictPermission(ctx, grantee, repository)
}
