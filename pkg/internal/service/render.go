package service

import (
	"context"
	"errors"
	"image"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/metrics"
	"github.com/yeisme/minerva/pkg/tile"
)

// RenderTile 按路径内联的通道参数渲染一个瓦片，返回 JPEG.
func (s *Service) RenderTile(ctx context.Context, subject, uuid string, c tile.Coord, channels string, gamma float64) ([]byte, error) {
	if gamma <= 0 {
		return nil, apperr.Validation("gamma must be positive")
	}

	chs, err := tile.ParseChannels(channels)
	if err != nil {
		return nil, err
	}

	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	if err := s.checkTile(img, c, chs); err != nil {
		return nil, err
	}

	req := tile.Request{Image: img.UUID, Coord: c, Mode: tile.InlineSpec{Channels: chs}, Gamma: gamma}

	return s.render(ctx, img, req, chs, s.Render.RawCacheTTL, s.Render.CacheInlineRenders)
}

// PrerenderedTile 按已保存的渲染设置渲染瓦片，首次引用时锁定该设置.
func (s *Service) PrerenderedTile(ctx context.Context, subject, uuid string, c tile.Coord, settingsUUID string) ([]byte, error) {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	rs, err := s.settingsFor(ctx, img.UUID, settingsUUID)
	if err != nil {
		return nil, err
	}

	if !rs.Locked {
		if err := s.lockSettings(ctx, rs.UUID); err != nil {
			return nil, err
		}

		// 锁定后设置不可再改，重新读取以渲染最终内容.
		if rs, err = s.settingsFor(ctx, img.UUID, settingsUUID); err != nil {
			return nil, err
		}
	}

	if err := s.checkTile(img, c, rs.Channels); err != nil {
		return nil, err
	}

	req := tile.Request{Image: img.UUID, Coord: c, Mode: tile.SettingsRef{UUID: rs.UUID}}

	return s.render(ctx, img, req, rs.Channels, s.Render.PrerenderedCacheTTL, true)
}

// RawTile 返回单通道原始瓦片的 16 位灰度 PNG.
func (s *Service) RawTile(ctx context.Context, subject, uuid string, c tile.Coord, channel int) ([]byte, error) {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	if err := s.checkTile(img, c, tile.Channels{{Index: channel, Max: 1}}); err != nil {
		return nil, err
	}

	plane, err := s.rawTile(ctx, img, channel, c)
	if err != nil {
		return nil, err
	}

	return tile.EncodePNG(plane.Gray16())
}

// OmeroRenderTile 处理 OMERO 风格的渲染请求，全部通道关闭时返回 1x1 黑色图像.
func (s *Service) OmeroRenderTile(ctx context.Context, subject, uuid string, z, t int, tileParam, channelParam string) ([]byte, error) {
	level, x, y, err := tile.ParseOmeroTile(tileParam)
	if err != nil {
		return nil, err
	}

	chs, err := tile.ParseOmeroChannels(channelParam)
	if err != nil {
		return nil, err
	}

	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	if len(chs) == 0 {
		return tile.EncodeJPEG(tile.Blank(1, 1), s.Render.JPEGQuality)
	}

	c := tile.Coord{X: x, Y: y, Z: z, T: t, Level: level}
	if err := s.checkTile(img, c, chs); err != nil {
		return nil, err
	}

	req := tile.Request{Image: img.UUID, Coord: c, Mode: tile.InlineSpec{Channels: chs}, Gamma: 1}

	return s.render(ctx, img, req, chs, s.Render.RawCacheTTL, s.Render.CacheInlineRenders)
}

// RenderRegion 从最合适的层级拼接区域并缩放到输出尺寸.
func (s *Service) RenderRegion(ctx context.Context, subject, uuid string, r tile.Region, z, t int, channels string, q *types.RegionQuery) ([]byte, error) {
	chs, err := tile.ParseChannels(channels)
	if err != nil {
		return nil, err
	}

	limit := s.Render.MaxRegionOutput
	if limit > 0 && (q.OutputWidth > limit || q.OutputHeight > limit) {
		return nil, apperr.Unprocessable("output size exceeds %d pixels", limit)
	}

	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	pyr := Pyramid(img)
	if pyr.SizeX == 0 || pyr.SizeY == 0 {
		dims, err := s.dimensions(ctx, img)
		if err != nil {
			return nil, err
		}

		pyr.SizeX, pyr.SizeY = dims.SizeX, dims.SizeY
	}

	if err := pyr.Validate(tile.Coord{Z: z, T: t}); err != nil {
		return nil, err
	}

	if err := chs.CheckBounds(pyr.SizeC); err != nil {
		return nil, err
	}

	plan, err := pyr.PlanRegion(r, q.OutputWidth, q.OutputHeight, q.PreferHigherResolution)
	if err != nil {
		return nil, err
	}

	if limit > 0 && (plan.Output.X > limit || plan.Output.Y > limit) {
		return nil, apperr.Unprocessable("output size %dx%d exceeds %d pixels", plan.Output.X, plan.Output.Y, limit)
	}

	layers, err := s.stitchChannels(ctx, img, pyr, plan, z, t, chs)
	if err != nil {
		return nil, err
	}

	out, err := tile.Composite(layers, tile.CompositeOptions{Gamma: 1})
	if err != nil {
		return nil, err
	}

	return tile.EncodeJPEG(tile.Scale(out, plan.Output), s.Render.JPEGQuality)
}

// stitchChannels 并发读取区域覆盖的全部瓦片，缺失的瓦片以 0 填充.
func (s *Service) stitchChannels(ctx context.Context, img *model.Image, pyr tile.Pyramid, plan tile.RegionPlan, z, t int, chs tile.Channels) ([]tile.Layer, error) {
	var mu sync.Mutex

	planes := make([]map[image.Point]*tile.Plane, len(chs))
	for i := range planes {
		planes[i] = make(map[image.Point]*tile.Plane, len(plan.Tiles))
	}

	g, gctx := errgroup.WithContext(ctx)

	for i, ch := range chs {
		for _, pt := range plan.Tiles {
			g.Go(func() error {
				c := tile.Coord{X: pt.X, Y: pt.Y, Z: z, T: t, Level: plan.Level}

				p, err := s.rawTile(gctx, img, ch.Index, c)
				if errors.Is(err, apperr.ErrNotFound) {
					return nil
				}

				if err != nil {
					return err
				}

				mu.Lock()
				planes[i][pt] = p
				mu.Unlock()

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	layers := make([]tile.Layer, len(chs))
	for i, ch := range chs {
		layers[i] = tile.Layer{Channel: ch, Plane: plan.Stitch(pyr.TileSize, planes[i])}
	}

	return layers, nil
}

// AutoSettings 在最低分辨率层级的 (0,0) 瓦片上估算每个通道的显示区间.
// channels 为逗号分隔的通道编号.
func (s *Service) AutoSettings(ctx context.Context, subject, uuid, channels, method string) (*types.AutoSettingsResponse, error) {
	ids, err := parseChannelIDs(channels)
	if err != nil {
		return nil, err
	}

	if method != "" && method != tile.AutoHistogram && method != tile.AutoGaussian {
		return nil, apperr.Validation("unknown autosettings method %q", method)
	}

	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	chs := make(tile.Channels, 0, len(ids))
	for _, id := range ids {
		chs = append(chs, tile.Channel{Index: id, Max: 1})
	}

	c := tile.Coord{Level: max(0, img.PyramidLevels-1)}
	if err := s.checkTile(img, c, chs); err != nil {
		return nil, err
	}

	resp := &types.AutoSettingsResponse{Channels: make([]types.AutoSettingsChannel, len(ids))}

	g, gctx := errgroup.WithContext(ctx)

	for i, id := range ids {
		g.Go(func() error {
			p, err := s.rawTile(gctx, img, id, c)
			if err != nil {
				return err
			}

			rng, err := tile.AutoSettings(p, method)
			if err != nil {
				return apperr.Wrap(apperr.KindValidation, err, "autosettings")
			}

			resp.Channels[i] = types.AutoSettingsChannel{ID: id, Min: rng.Min, Max: rng.Max}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return resp, nil
}

func parseChannelIDs(s string) ([]int, error) {
	var ids []int

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.Atoi(part)
		if err != nil || id < 0 {
			return nil, apperr.Validation("invalid channel id %q", part)
		}

		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, apperr.Validation("no channels given")
	}

	return ids, nil
}

// checkTile 检查坐标与通道编号是否落在图像内.
func (s *Service) checkTile(img *model.Image, c tile.Coord, chs tile.Channels) error {
	if err := Pyramid(img).Validate(c); err != nil {
		return err
	}

	return chs.CheckBounds(img.SizeC)
}

// settingsFor 读取属于该图像的渲染设置，属于其他图像时视为不存在.
func (s *Service) settingsFor(ctx context.Context, imageUUID, uuid string) (*model.RenderingSettings, error) {
	var rs model.RenderingSettings
	if err := s.DB.WithContext(ctx).Take(&rs, "uuid = ?", uuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("rendering settings %s not found", uuid)
		}

		return nil, err
	}

	if rs.ImageUUID != imageUUID {
		return nil, apperr.NotFound("rendering settings %s not found", uuid)
	}

	return &rs, nil
}

// lockSettings 锁定被预渲染瓦片引用的设置，已锁定时不做任何事.
func (s *Service) lockSettings(ctx context.Context, uuid string) error {
	return s.DB.WithContext(ctx).
		Model(&model.RenderingSettings{}).
		Where("uuid = ? AND locked = ?", uuid, false).
		Update("locked", true).Error
}

// render 读取缓存或合成瓦片，相同缓存键的并发请求只渲染一次.
func (s *Service) render(ctx context.Context, img *model.Image, req tile.Request, chs tile.Channels, ttl time.Duration, cache bool) ([]byte, error) {
	key := req.CacheKey()

	kind := "render"
	if _, ok := req.Mode.(tile.SettingsRef); ok {
		kind = "prerendered"
	}

	if cache {
		if data, err := s.Tiles.Get(ctx, key); err == nil {
			metrics.TileRequests.WithLabelValues(kind, "hit").Inc()
			return data, nil
		}
	}

	v, err, shared := s.renders.Do(key, func() (any, error) {
		// 共享的渲染不随首个请求取消.
		rctx := context.WithoutCancel(ctx)

		data, err := s.composite(rctx, img, req.Coord, chs, req.Gamma)
		if err != nil {
			return nil, err
		}

		if cache {
			if err := s.Tiles.Set(rctx, key, data, ttl); err != nil {
				s.log.Debug().Err(err).Str("key", key).Msg("rendered tile not cached")
			}
		}

		return data, nil
	})
	if err != nil {
		metrics.TileRequests.WithLabelValues(kind, "error").Inc()
		return nil, err
	}

	metrics.TileRequests.WithLabelValues(kind, "miss").Inc()

	if shared {
		s.log.Trace().Str("key", key).Msg("render shared")
	}

	return v.([]byte), nil
}

// composite 并发读取各通道原始瓦片并合成为 JPEG.
func (s *Service) composite(ctx context.Context, img *model.Image, c tile.Coord, chs tile.Channels, gamma float64) ([]byte, error) {
	layers := make([]tile.Layer, len(chs))

	g, gctx := errgroup.WithContext(ctx)

	for i, ch := range chs {
		g.Go(func() error {
			p, err := s.rawTile(gctx, img, ch.Index, c)
			if err != nil {
				return err
			}

			layers[i] = tile.Layer{Channel: ch, Plane: p}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := Pyramid(img).TileSizeAt(c)

	out, err := tile.Composite(layers, tile.CompositeOptions{Width: size.X, Height: size.Y, Gamma: gamma})
	if err != nil {
		return nil, err
	}

	return tile.EncodeJPEG(out, s.Render.JPEGQuality)
}
