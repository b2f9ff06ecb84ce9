package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/model"
	s3c "github.com/yeisme/minerva/pkg/internal/storage/s3"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/queue"
)

// CreateImport 在仓库中创建导入，需要 Write.
func (s *Service) CreateImport(ctx context.Context, subject string, req *types.CreateImportRequest) (*model.Import, error) {
	if err := s.authorize(ctx, subject, req.RepositoryUUID, model.PermissionWrite); err != nil {
		return nil, err
	}

	imp := &model.Import{
		UUID:           model.NewUUID(),
		Name:           req.Name,
		RepositoryUUID: req.RepositoryUUID,
	}

	if err := s.DB.WithContext(ctx).Create(imp).Error; err != nil {
		return nil, err
	}

	return imp, nil
}

func (s *Service) getImport(ctx context.Context, uuid string) (*model.Import, error) {
	var imp model.Import
	if err := s.DB.WithContext(ctx).Take(&imp, "uuid = ?", uuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("import %s not found", uuid)
		}

		return nil, err
	}

	return &imp, nil
}

// importFor 读取导入并检查主体对其仓库的权限.
func (s *Service) importFor(ctx context.Context, subject, uuid string, need model.Permission) (*model.Import, error) {
	imp, err := s.getImport(ctx, uuid)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, subject, imp.RepositoryUUID, need); err != nil {
		return nil, err
	}

	return imp, nil
}

// GetImport 读取导入，需要 Read.
func (s *Service) GetImport(ctx context.Context, subject, uuid string) (*model.Import, error) {
	return s.importFor(ctx, subject, uuid, model.PermissionRead)
}

// UpdateImport 更新导入名称或将其标记为完成，需要 Write.
//
// 完成标记使用条件更新 complete=false -> true，只有真正发生转换的调用会发布
// minerva.import.completed；重复标记直接返回当前导入.发布失败时回滚标记并返回 Upstream.
func (s *Service) UpdateImport(ctx context.Context, subject, uuid string, req *types.UpdateImportRequest) (*model.Import, error) {
	imp, err := s.importFor(ctx, subject, uuid, model.PermissionWrite)
	if err != nil {
		return nil, err
	}

	if req.Complete != nil && !*req.Complete && imp.Complete {
		return nil, apperr.Unprocessable("import %s is already complete", uuid)
	}

	transitioned := false

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Name != nil && *req.Name != imp.Name {
			if err := tx.Model(&model.Import{}).Where("uuid = ?", uuid).Update("name", *req.Name).Error; err != nil {
				return err
			}
		}

		if req.Complete == nil || !*req.Complete {
			return nil
		}

		res := tx.Model(&model.Import{}).Where("uuid = ? AND complete = ?", uuid, false).Update("complete", true)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected != 1 {
			return nil
		}

		transitioned = true

		if req.Name != nil {
			imp.Name = *req.Name
		}

		return s.publishImportCompleted(ctx, imp)
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.log.Info().Str("import", uuid).Str("repository", imp.RepositoryUUID).Msg("import completed")
	}

	return s.getImport(ctx, uuid)
}

func (s *Service) publishImportCompleted(ctx context.Context, imp *model.Import) error {
	if s.Publisher == nil || !s.Events.Enabled || !s.Events.ImportCompleted {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	err := queue.PublishImportCompleted(ctx, s.Publisher, queue.ImportCompletedPayload{
		ImportUUID:     imp.UUID,
		RepositoryUUID: imp.RepositoryUUID,
		Name:           imp.Name,
		Prefix:         imp.UUID + "/",
	},
		queue.WithProducer("minerva/"+configs.AppVersion),
		// 完成请求重试时不会重复触发构建
		queue.WithMessageID(queue.TopicImportCompleted+"."+imp.UUID),
	)
	if err != nil {
		return apperr.Upstream(err, "publish import completed event")
	}

	return nil
}

// ImportCredentials 为未完成的导入签发上传凭证，需要 Write.
func (s *Service) ImportCredentials(ctx context.Context, subject, uuid string) (*s3c.UploadGrant, error) {
	imp, err := s.importFor(ctx, subject, uuid, model.PermissionWrite)
	if err != nil {
		return nil, err
	}

	if imp.Complete {
		return nil, apperr.Forbidden("import %s is complete, uploads are closed", uuid)
	}

	if s.Uploads == nil {
		return nil, apperr.Upstream(nil, "upload credentials are not available")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	grant, err := s.Uploads.GrantUpload(ctx, s.RawBucket, imp.UUID+"/")
	if err != nil {
		return nil, apperr.Upstream(err, "grant upload for import %s", uuid)
	}

	return grant, nil
}

// ListFilesets 列出导入提取出的 fileset，需要 Read.
func (s *Service) ListFilesets(ctx context.Context, subject, uuid string) ([]model.Fileset, error) {
	if _, err := s.importFor(ctx, subject, uuid, model.PermissionRead); err != nil {
		return nil, err
	}

	filesets := []model.Fileset{}
	if err := s.DB.WithContext(ctx).Where("import_uuid = ?", uuid).Order("name").Find(&filesets).Error; err != nil {
		return nil, err
	}

	return filesets, nil
}

// IncompleteImports 返回创建时间早于 olderThan 之前仍未完成的导入.
func (s *Service) IncompleteImports(ctx context.Context, olderThan time.Duration) ([]model.Import, error) {
	var imports []model.Import

	err := s.DB.WithContext(ctx).
		Where("complete = ? AND created_at < ?", false, time.Now().Add(-olderThan)).
		Order("created_at").
		Find(&imports).Error

	return imports, err
}
