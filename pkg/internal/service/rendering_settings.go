package service

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/tile"
)

//go:embed schemas/rendering_settings.json
var renderingSettingsSchema string

var (
	settingsSchemaOnce sync.Once
	settingsSchema     *jsonschema.Schema
	errSettingsSchema  error
)

func compiledSettingsSchema() (*jsonschema.Schema, error) {
	settingsSchemaOnce.Do(func() {
		settingsSchema, errSettingsSchema = jsonschema.CompileString("rendering_settings.json", renderingSettingsSchema)
	})

	return settingsSchema, errSettingsSchema
}

// ValidateRenderingSettings 按内嵌的 JSON Schema 校验请求体并解码.
func ValidateRenderingSettings(body []byte) (*types.SaveRenderingSettingsRequest, error) {
	sch, err := compiledSettingsSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return nil, apperr.Validation("invalid json: %v", err)
	}

	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, apperr.Validation("%s", strings.TrimSpace(leafMessage(ve)))
		}

		return nil, apperr.Validation("%v", err)
	}

	var req types.SaveRenderingSettingsRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, apperr.Validation("invalid rendering settings: %v", err)
	}

	return &req, nil
}

// leafMessage 返回最深一层的校验错误，附带其 JSON 指针.
func leafMessage(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}

	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}

	return loc + ": " + ve.Message
}

// ListRenderingSettings 列出图像的渲染设置，需要 Read.
func (s *Service) ListRenderingSettings(ctx context.Context, subject, uuid string) ([]model.RenderingSettings, error) {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	var out []model.RenderingSettings
	if err := s.DB.WithContext(ctx).
		Where("image_uuid = ?", img.UUID).
		Order("created_at").
		Find(&out).Error; err != nil {
		return nil, err
	}

	return out, nil
}

// SaveRenderingSettings 创建或更新渲染设置，需要 Write.
// 没有 uuid 的分组被创建并回填 uuid；已锁定的设置拒绝修改.
func (s *Service) SaveRenderingSettings(ctx context.Context, subject, uuid string, req *types.SaveRenderingSettingsRequest) (*types.SaveRenderingSettingsRequest, error) {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionWrite)
	if err != nil {
		return nil, err
	}

	for i := range req.Groups {
		chs := tile.Channels(req.Groups[i].Channels)
		if err := chs.Validate(); err != nil {
			return nil, err
		}

		if err := chs.CheckBounds(img.SizeC); err != nil {
			return nil, err
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range req.Groups {
			g := &req.Groups[i]
			chs := tile.Channels(g.Channels).Sorted()

			if g.UUID == "" {
				g.UUID = model.NewUUID()

				rs := &model.RenderingSettings{UUID: g.UUID, ImageUUID: img.UUID, Label: g.Label, Channels: chs}
				if err := tx.Create(rs).Error; err != nil {
					return err
				}

				continue
			}

			if err := updateSettings(tx, img.UUID, g.UUID, g.Label, chs); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

func updateSettings(tx *gorm.DB, imageUUID, uuid, label string, chs tile.Channels) error {
	var rs model.RenderingSettings
	if err := tx.Take(&rs, "uuid = ?", uuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("rendering settings %s not found", uuid)
		}

		return err
	}

	if rs.ImageUUID != imageUUID {
		return apperr.NotFound("rendering settings %s not found", uuid)
	}

	if rs.Locked {
		return apperr.Unprocessable("rendering settings %s are in use and cannot be changed", uuid)
	}

	res := tx.Model(&model.RenderingSettings{}).
		Where("uuid = ? AND locked = ?", uuid, false).
		Updates(map[string]any{"label": label, "spec": chs.String()})
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return apperr.Unprocessable("rendering settings %s are in use and cannot be changed", uuid)
	}

	return nil
}
