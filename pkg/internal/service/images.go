package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	s3c "github.com/yeisme/minerva/pkg/internal/storage/s3"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/tile"
)

func (s *Service) getImage(ctx context.Context, uuid string) (*model.Image, error) {
	var img model.Image
	if err := s.DB.WithContext(ctx).Take(&img, "uuid = ?", uuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("image %s not found", uuid)
		}

		return nil, err
	}

	return &img, nil
}

// imageFor 读取图像并检查权限，软删除的图像只对 Admin 以外的请求表现为不存在.
func (s *Service) imageFor(ctx context.Context, subject, uuid string, need model.Permission) (*model.Image, error) {
	img, err := s.getImage(ctx, uuid)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, subject, img.RepositoryUUID, need); err != nil {
		return nil, err
	}

	if img.Deleted && need < model.PermissionAdmin {
		return nil, apperr.NotFound("image %s not found", uuid)
	}

	return img, nil
}

// AuthorizeImage 检查主体对图像所属仓库的权限.
func (s *Service) AuthorizeImage(ctx context.Context, subject, uuid string, need model.Permission) error {
	_, err := s.imageFor(ctx, subject, uuid, need)
	return err
}

// ImageCredentials 签发写入图像瓦片前缀 {tile_bucket}/{uuid}/ 的上传凭证，需要 Write.
func (s *Service) ImageCredentials(ctx context.Context, subject, uuid string) (*s3c.UploadGrant, error) {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionWrite)
	if err != nil {
		return nil, err
	}

	if s.Uploads == nil {
		return nil, apperr.Upstream(nil, "upload credentials are not available")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	grant, err := s.Uploads.GrantUpload(ctx, s.TileBucket, img.UUID+"/")
	if err != nil {
		return nil, apperr.Upstream(err, "grant upload for image %s", uuid)
	}

	return grant, nil
}

// Pyramid 返回图像的金字塔描述.
func Pyramid(img *model.Image) tile.Pyramid {
	return tile.Pyramid{
		TileSize: img.TileSize,
		Levels:   img.PyramidLevels,
		SizeX:    img.SizeX,
		SizeY:    img.SizeY,
		SizeC:    img.SizeC,
		SizeZ:    img.SizeZ,
		SizeT:    img.SizeT,
	}
}

// CreateImage 注册一张已构建的图像，需要对仓库的 Write.
func (s *Service) CreateImage(ctx context.Context, subject string, req *types.CreateImageRequest) (*model.Image, error) {
	if err := s.authorize(ctx, subject, req.RepositoryUUID, model.PermissionWrite); err != nil {
		return nil, err
	}

	img := &model.Image{
		UUID:           model.NewUUID(),
		Name:           req.Name,
		Format:         req.Format,
		Compression:    req.Compression,
		TileSize:       req.TileSize,
		PyramidLevels:  req.PyramidLevels,
		SizeX:          req.SizeX,
		SizeY:          req.SizeY,
		SizeC:          req.SizeC,
		SizeZ:          req.SizeZ,
		SizeT:          req.SizeT,
		FilesetUUID:    req.FilesetUUID,
		RepositoryUUID: req.RepositoryUUID,
	}
	applyImageDefaults(img, s.Render.DefaultTileSize)

	if err := Pyramid(img).Validate(tile.Coord{}); err != nil {
		return nil, err
	}

	if err := s.DB.WithContext(ctx).Create(img).Error; err != nil {
		return nil, err
	}

	return img, nil
}

func applyImageDefaults(img *model.Image, tileSize int) {
	if img.Format == "" {
		img.Format = tile.FormatTIFF
	}

	if img.Compression == "" {
		img.Compression = tile.CompressionNone
	}

	if img.TileSize == 0 {
		img.TileSize = tileSize
	}

	if img.PyramidLevels == 0 {
		img.PyramidLevels = 1
	}

	for _, v := range []*int{&img.SizeC, &img.SizeZ, &img.SizeT} {
		if *v == 0 {
			*v = 1
		}
	}
}

// GetImage 读取图像及其仓库，需要 Read.
func (s *Service) GetImage(ctx context.Context, subject, uuid string) (*types.ImageResponse, error) {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	repo, err := s.getRepository(ctx, img.RepositoryUUID)
	if err != nil {
		return nil, err
	}

	resp := &types.ImageResponse{Data: *img}
	resp.Included.Repository = *repo

	return resp, nil
}

// DeleteImage 软删除图像，需要 Admin.
func (s *Service) DeleteImage(ctx context.Context, subject, uuid string) error {
	if err := s.setImageDeleted(ctx, subject, uuid, true); err != nil {
		return err
	}

	if n, err := s.PurgeRenderedTiles(ctx, uuid); err != nil {
		s.log.Warn().Err(err).Str("image", uuid).Msg("rendered tiles not purged")
	} else if n > 0 {
		s.log.Debug().Str("image", uuid).Int("tiles", n).Msg("rendered tiles purged")
	}

	return nil
}

// RestoreImage 撤销软删除，需要 Admin.
func (s *Service) RestoreImage(ctx context.Context, subject, uuid string) (*model.Image, error) {
	if err := s.setImageDeleted(ctx, subject, uuid, false); err != nil {
		return nil, err
	}

	return s.getImage(ctx, uuid)
}

func (s *Service) setImageDeleted(ctx context.Context, subject, uuid string, deleted bool) error {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionAdmin)
	if err != nil {
		return err
	}

	if img.Deleted == deleted {
		return nil
	}

	return s.DB.WithContext(ctx).Model(&model.Image{}).Where("uuid = ?", uuid).Update("deleted", deleted).Error
}
