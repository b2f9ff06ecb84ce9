package service

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/queue"
)

// archiveTags 是 Archive 策略下原始文件的对象标签，由存储生命周期规则转入归档层.
var archiveTags = map[string]string{"archive": "true"}

// RecordFilesetBuilt 持久化构建流水线产出的 fileset 与图像，重复投递时结果不变.
// 提交后按仓库的 raw_storage 删除或标记 fileset 使用的原始文件.
func (s *Service) RecordFilesetBuilt(ctx context.Context, p *queue.FilesetBuiltPayload) error {
	if p.FilesetUUID == "" || p.ImportUUID == "" {
		return apperr.Validation("fileset event requires fileset_uuid and import_uuid")
	}

	imp, err := s.getImport(ctx, p.ImportUUID)
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Fileset

		err := tx.Take(&existing, "uuid = ?", p.FilesetUUID).Error
		switch {
		case err == nil && existing.ImportUUID != p.ImportUUID:
			return apperr.Validation("fileset %s belongs to import %s", p.FilesetUUID, existing.ImportUUID)
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		fs := model.Fileset{
			UUID:       p.FilesetUUID,
			Name:       p.Name,
			ImportUUID: p.ImportUUID,
			Reader:     p.Reader,
			Complete:   true,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "reader", "complete"}),
		}).Create(&fs).Error; err != nil {
			return err
		}

		if err := recordKeys(tx, p); err != nil {
			return err
		}

		return s.linkImages(tx, imp, p)
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("fileset", p.FilesetUUID).Int("images", len(p.Images)).Int("files", len(p.Files)).Msg("fileset recorded")

	return s.applyRawStorage(ctx, imp, p.Files)
}

// recordKeys 登记 fileset 使用的原始文件.
func recordKeys(tx *gorm.DB, p *queue.FilesetBuiltPayload) error {
	if len(p.Files) == 0 {
		return nil
	}

	filesetUUID := p.FilesetUUID

	keys := make([]model.ImportKey, 0, len(p.Files))
	for _, f := range p.Files {
		if f == "" {
			return apperr.Validation("fileset %s: empty file key", p.FilesetUUID)
		}

		keys = append(keys, model.ImportKey{Path: f, ImportUUID: p.ImportUUID, FilesetUUID: &filesetUUID})
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}, {Name: "import_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"fileset_uuid"}),
	}).Create(&keys).Error
}

// linkImages 创建新图像或把已有图像关联到 fileset，图像必须属于导入所在的仓库.
func (s *Service) linkImages(tx *gorm.DB, imp *model.Import, p *queue.FilesetBuiltPayload) error {
	filesetUUID := p.FilesetUUID

	for _, bi := range p.Images {
		if bi.UUID == "" {
			return apperr.Validation("fileset %s: image without uuid", p.FilesetUUID)
		}

		var existing model.Image

		err := tx.Take(&existing, "uuid = ?", bi.UUID).Error
		switch {
		case err == nil:
			if existing.RepositoryUUID != imp.RepositoryUUID {
				return apperr.Validation("fileset %s: image %s belongs to repository %s, import %s to %s",
					p.FilesetUUID, bi.UUID, existing.RepositoryUUID, imp.UUID, imp.RepositoryUUID)
			}

			if err := tx.Model(&existing).Update("fileset_uuid", filesetUUID).Error; err != nil {
				return err
			}

			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		img := &model.Image{
			UUID:           bi.UUID,
			Name:           bi.Name,
			Format:         bi.Format,
			Compression:    bi.Compression,
			TileSize:       bi.TileSize,
			PyramidLevels:  bi.PyramidLevels,
			SizeX:          bi.SizeX,
			SizeY:          bi.SizeY,
			SizeC:          bi.SizeC,
			SizeZ:          bi.SizeZ,
			SizeT:          bi.SizeT,
			FilesetUUID:    &filesetUUID,
			RepositoryUUID: imp.RepositoryUUID,
		}
		applyImageDefaults(img, s.Render.DefaultTileSize)

		if err := tx.Create(img).Error; err != nil {
			return err
		}
	}

	return nil
}

// applyRawStorage 对导入前缀下的原始文件执行仓库的保留策略.
// Destroy 删除，Archive 打上归档标签，Live 保持不变.
func (s *Service) applyRawStorage(ctx context.Context, imp *model.Import, files []string) error {
	if s.Raw == nil || len(files) == 0 {
		return nil
	}

	repo, err := s.getRepository(ctx, imp.RepositoryUUID)
	if err != nil {
		return err
	}

	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = imp.UUID + "/" + f
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	l := s.log.With().Str("import", imp.UUID).Str("raw_storage", string(repo.RawStorage)).Int("files", len(keys)).Logger()

	switch repo.RawStorage {
	case model.RawStorageDestroy:
		err = s.Raw.DeleteObjects(ctx, s.RawBucket, keys)
	case model.RawStorageArchive:
		err = s.Raw.TagObjects(ctx, s.RawBucket, keys, archiveTags)
	default:
		return nil
	}

	if err != nil {
		return apperr.Upstream(err, "apply raw storage %s to import %s", repo.RawStorage, imp.UUID)
	}

	l.Info().Msg("raw storage applied")

	return nil
}

// filesetFor 读取 fileset 并检查主体对其导入所在仓库的权限.
func (s *Service) filesetFor(ctx context.Context, subject, uuid string, need model.Permission) (*model.Fileset, error) {
	var fs model.Fileset
	if err := s.DB.WithContext(ctx).Take(&fs, "uuid = ?", uuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("fileset %s not found", uuid)
		}

		return nil, err
	}

	if _, err := s.importFor(ctx, subject, fs.ImportUUID, need); err != nil {
		return nil, err
	}

	return &fs, nil
}

// GetFileset 读取 fileset，需要 Read.
func (s *Service) GetFileset(ctx context.Context, subject, uuid string) (*model.Fileset, error) {
	return s.filesetFor(ctx, subject, uuid, model.PermissionRead)
}

// ListFilesetImages 列出 fileset 产出的未删除图像，需要 Read.
func (s *Service) ListFilesetImages(ctx context.Context, subject, uuid string) ([]model.Image, error) {
	if _, err := s.filesetFor(ctx, subject, uuid, model.PermissionRead); err != nil {
		return nil, err
	}

	images := []model.Image{}
	if err := s.DB.WithContext(ctx).
		Where("fileset_uuid = ? AND deleted = ?", uuid, false).
		Order("name").
		Find(&images).Error; err != nil {
		return nil, err
	}

	return images, nil
}

// ListFilesetKeys 列出 fileset 使用的原始文件，需要 Read.
func (s *Service) ListFilesetKeys(ctx context.Context, subject, uuid string) ([]model.ImportKey, error) {
	if _, err := s.filesetFor(ctx, subject, uuid, model.PermissionRead); err != nil {
		return nil, err
	}

	keys := []model.ImportKey{}
	if err := s.DB.WithContext(ctx).Where("fileset_uuid = ?", uuid).Order("path").Find(&keys).Error; err != nil {
		return nil, err
	}

	return keys, nil
}

// ListImportKeys 列出导入中已登记的原始文件，需要 Read.
func (s *Service) ListImportKeys(ctx context.Context, subject, uuid string) ([]model.ImportKey, error) {
	if _, err := s.importFor(ctx, subject, uuid, model.PermissionRead); err != nil {
		return nil, err
	}

	keys := []model.ImportKey{}
	if err := s.DB.WithContext(ctx).Where("import_uuid = ?", uuid).Order("path").Find(&keys).Error; err != nil {
		return nil, err
	}

	return keys, nil
}
