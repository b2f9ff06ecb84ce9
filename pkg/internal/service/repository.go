package service

import (
	"context"
	"errors"
	"regexp"

	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/rule"
)

var repositoryNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9\-_]+$`)

func init() {
	// 请求体在进入服务之前即可按同一规则校验
	if err := rule.RegisterPattern("reponame", repositoryNamePattern); err != nil {
		panic(err)
	}
}

// ValidateRepositoryName 检查仓库名格式.
func ValidateRepositoryName(name string) error {
	return validateName("repository", name)
}

// validateName 仓库名与组名使用同一规则.
func validateName(kind, name string) error {
	if len(name) > 128 || !repositoryNamePattern.MatchString(name) {
		return apperr.Validation("%s name %q must match %s and be at most 128 characters", kind, name, repositoryNamePattern)
	}

	return nil
}

// ListRepositories 返回主体或其所在组拥有显式授权的仓库.
func (s *Service) ListRepositories(ctx context.Context, subject string) (*types.RepositoryListResponse, error) {
	if subject == "" {
		return nil, apperr.Forbidden("authentication required")
	}

	resp := &types.RepositoryListResponse{Data: []model.Grant{}}
	resp.Included.Repositories = []model.Repository{}

	db := s.DB.WithContext(ctx)
	if err := db.Where("subject_uuid = ? OR subject_uuid IN (?)", subject, s.memberGroups(ctx, subject)).
		Order("repository_uuid").Order("subject_uuid").
		Find(&resp.Data).Error; err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return resp, nil
	}

	ids := make([]string, 0, len(resp.Data))
	for _, g := range resp.Data {
		ids = append(ids, g.RepositoryUUID)
	}

	if err := db.Where("uuid IN ?", ids).Order("name").Find(&resp.Included.Repositories).Error; err != nil {
		return nil, err
	}

	return resp, nil
}

// CreateRepository 创建仓库并授予创建者 Admin.
func (s *Service) CreateRepository(ctx context.Context, subject string, req *types.CreateRepositoryRequest) (*model.Repository, error) {
	if subject == "" {
		return nil, apperr.Forbidden("authentication required")
	}

	if err := ValidateRepositoryName(req.Name); err != nil {
		return nil, err
	}

	repo := &model.Repository{
		UUID:       model.NewUUID(),
		Name:       req.Name,
		RawStorage: req.RawStorage,
		Access:     req.Access,
	}

	if repo.RawStorage == "" {
		repo.RawStorage = model.RawStorageArchive
	}

	if repo.Access == "" {
		repo.Access = model.AccessPrivate
	}

	if !repo.RawStorage.Valid() || !repo.Access.Valid() {
		return nil, apperr.Validation("invalid raw_storage %q or access %q", repo.RawStorage, repo.Access)
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(repo).Error; err != nil {
			return nameTaken(err, repo.Name)
		}

		return tx.Create(&model.Grant{
			SubjectUUID:    subject,
			RepositoryUUID: repo.UUID,
			Permission:     model.PermissionAdmin,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("repository", repo.UUID).Str("name", repo.Name).Str("subject", subject).Msg("repository created")

	return repo, nil
}

// nameTaken 把唯一索引冲突转换为重名错误.
func nameTaken(err error, name string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Unprocessable("repository %q already exists", name)
	}

	return err
}

// getRepository 读取仓库，不存在时返回 NotFound.
func (s *Service) getRepository(ctx context.Context, uuid string) (*model.Repository, error) {
	var repo model.Repository
	if err := s.DB.WithContext(ctx).Take(&repo, "uuid = ?", uuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("repository %s not found", uuid)
		}

		return nil, err
	}

	return &repo, nil
}

// GetRepository 读取仓库，需要 Read.
func (s *Service) GetRepository(ctx context.Context, subject, uuid string) (*model.Repository, error) {
	if err := s.authorize(ctx, subject, uuid, model.PermissionRead); err != nil {
		return nil, err
	}

	return s.getRepository(ctx, uuid)
}

// UpdateRepository 更新仓库，需要 Admin.
func (s *Service) UpdateRepository(ctx context.Context, subject, uuid string, req *types.UpdateRepositoryRequest) (*model.Repository, error) {
	if err := s.authorize(ctx, subject, uuid, model.PermissionAdmin); err != nil {
		return nil, err
	}

	repo, err := s.getRepository(ctx, uuid)
	if err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != repo.Name {
		if err := ValidateRepositoryName(*req.Name); err != nil {
			return nil, err
		}

		repo.Name = *req.Name
	}

	if req.RawStorage != nil {
		if !req.RawStorage.Valid() {
			return nil, apperr.Validation("invalid raw_storage %q", *req.RawStorage)
		}

		repo.RawStorage = *req.RawStorage
	}

	accessChanged := false

	if req.Access != nil {
		if !req.Access.Valid() {
			return nil, apperr.Validation("invalid access %q", *req.Access)
		}

		accessChanged = repo.Access != *req.Access
		repo.Access = *req.Access
	}

	if err := s.DB.WithContext(ctx).Save(repo).Error; err != nil {
		return nil, nameTaken(err, repo.Name)
	}

	if accessChanged {
		s.evictRepositoryPermissions(ctx, uuid)
	}

	return repo, nil
}

// DeleteRepository 删除空仓库，需要 Admin；仍有图像或导入时拒绝.
func (s *Service) DeleteRepository(ctx context.Context, subject, uuid string) error {
	if err := s.authorize(ctx, subject, uuid, model.PermissionAdmin); err != nil {
		return err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var images, imports int64
		if err := tx.Model(&model.Image{}).Where("repository_uuid = ?", uuid).Count(&images).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.Import{}).Where("repository_uuid = ?", uuid).Count(&imports).Error; err != nil {
			return err
		}

		if images > 0 || imports > 0 {
			return apperr.Validation("repository %s still has %d images and %d imports", uuid, images, imports)
		}

		if err := tx.Where("repository_uuid = ?", uuid).Delete(&model.Grant{}).Error; err != nil {
			return err
		}

		return tx.Delete(&model.Repository{}, "uuid = ?", uuid).Error
	})
	if err != nil {
		return err
	}

	s.evictRepositoryPermissions(ctx, uuid)

	return nil
}

// ListRepositoryImages 列出仓库的图像，默认排除软删除的图像.
func (s *Service) ListRepositoryImages(ctx context.Context, subject, uuid string, includeDeleted bool) ([]model.Image, error) {
	if err := s.authorize(ctx, subject, uuid, model.PermissionRead); err != nil {
		return nil, err
	}

	q := s.DB.WithContext(ctx).Where("repository_uuid = ?", uuid)
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}

	images := []model.Image{}
	if err := q.Order("name").Find(&images).Error; err != nil {
		return nil, err
	}

	return images, nil
}

// ListRepositoryImports 列出仓库的导入.
func (s *Service) ListRepositoryImports(ctx context.Context, subject, uuid string) ([]model.Import, error) {
	if err := s.authorize(ctx, subject, uuid, model.PermissionRead); err != nil {
		return nil, err
	}

	imports := []model.Import{}
	if err := s.DB.WithContext(ctx).Where("repository_uuid = ?", uuid).Order("created_at").Find(&imports).Error; err != nil {
		return nil, err
	}

	return imports, nil
}
