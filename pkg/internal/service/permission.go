package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/storage/kv"
)

// Effective 计算有效权限：主体及其所在组的显式授权取最大值，PublicRead 仓库隐含 Read.
func Effective(grants []model.Permission, access model.Access) model.Permission {
	have := model.PermissionNone
	if access == model.AccessPublicRead {
		have = model.PermissionRead
	}

	for _, g := range grants {
		if g > have {
			have = g
		}
	}

	return have
}

// Authorize 检查 have 是否满足 need.
func Authorize(have, need model.Permission) error {
	if have < need {
		return apperr.Forbidden("permission %s required", need)
	}

	return nil
}

func permissionKey(subject, repository string) string {
	return "perm/" + subject + "/" + repository
}

// Permission 返回主体对仓库的有效权限，结果缓存 render.permission_cache_ttl.
// 仓库不存在时返回 NotFound.
func (s *Service) Permission(ctx context.Context, subject, repository string) (model.Permission, error) {
	key := permissionKey(subject, repository)

	if b, err := s.Cache.Get(ctx, key); err == nil {
		if p, err := strconv.Atoi(string(b)); err == nil {
			return model.Permission(p), nil
		}
	}

	var repo model.Repository
	if err := s.DB.WithContext(ctx).Select("uuid", "access").Take(&repo, "uuid = ?", repository).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.PermissionNone, apperr.NotFound("repository %s not found", repository)
		}

		return model.PermissionNone, err
	}

	var grants []model.Permission
	if subject != "" {
		if err := s.DB.WithContext(ctx).Model(&model.Grant{}).
			Where("repository_uuid = ? AND (subject_uuid = ? OR subject_uuid IN (?))", repository, subject, s.memberGroups(ctx, subject)).
			Pluck("permission", &grants).Error; err != nil {
			return model.PermissionNone, err
		}
	}

	have := Effective(grants, repo.Access)

	if err := s.Cache.Set(ctx, key, []byte(strconv.Itoa(int(have))), s.Render.PermissionCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache permission")
	}

	return have, nil
}

// authorize 要求主体对仓库至少拥有 need 权限，缺少主体时拒绝.
func (s *Service) authorize(ctx context.Context, subject, repository string, need model.Permission) error {
	if subject == "" {
		return apperr.Forbidden("authentication required")
	}

	have, err := s.Permission(ctx, subject, repository)
	if err != nil {
		return err
	}

	return Authorize(have, need)
}

// evictPermission 删除主体对仓库的权限缓存.
func (s *Service) evictPermission(ctx context.Context, subject, repository string) {
	if err := s.Cache.Delete(ctx, permissionKey(subject, repository)); err != nil && !kv.IsNotFound(err) {
		s.log.Warn().Err(err).Msg("evict permission cache")
	}
}

// evictSubjectPermissions 删除主体对所有仓库的权限缓存，成员关系变化时调用.
func (s *Service) evictSubjectPermissions(ctx context.Context, subject string) {
	keys, err := s.Cache.Keys(ctx, permissionKey(subject, "*"))
	if err != nil {
		s.log.Warn().Err(err).Msg("list permission cache")

		return
	}

	for _, k := range keys {
		_ = s.Cache.Delete(ctx, k)
	}
}

// evictRepositoryPermissions 删除仓库相关的全部权限缓存.
func (s *Service) evictRepositoryPermissions(ctx context.Context, repository string) {
	keys, err := s.Cache.Keys(ctx, "perm/*")
	if err != nil {
		s.log.Warn().Err(err).Msg("list permission cache")

		return
	}

	suffix := "/" + repository
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			_ = s.Cache.Delete(ctx, k)
		}
	}
}
