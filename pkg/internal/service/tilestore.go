package service

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"

	"github.com/yeisme/minerva/pkg/apperr"
	appcache "github.com/yeisme/minerva/pkg/cache"
	"github.com/yeisme/minerva/pkg/internal/model"
	s3c "github.com/yeisme/minerva/pkg/internal/storage/s3"
	"github.com/yeisme/minerva/pkg/metrics"
	"github.com/yeisme/minerva/pkg/tile"
)

const rawCachePrefix = "raw/"

// isBreakerSuccess 对象不存在与调用方取消不计入熔断失败.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, s3c.ErrObjectNotFound) ||
		errors.Is(err, context.Canceled)
}

// readObject 经熔断器与重试读取瓦片桶中的对象.
func (s *Service) readObject(ctx context.Context, key string) ([]byte, error) {
	if s.Objects == nil {
		return nil, apperr.Upstream(nil, "object store not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	data, err := retry.DoWithData(
		func() ([]byte, error) {
			v, err := s.breaker.Execute(func() (interface{}, error) {
				return s.Objects.ReadObject(ctx, s.TileBucket, key)
			})
			if err != nil {
				return nil, err
			}

			return v.([]byte), nil
		},
		retry.Context(ctx),
		retry.Attempts(max(1, s.Render.FetchRetries)),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, s3c.ErrObjectNotFound) &&
				!errors.Is(err, gobreaker.ErrOpenState) &&
				!errors.Is(err, gobreaker.ErrTooManyRequests)
		}),
	)

	switch {
	case err == nil:
		metrics.ObjectReads.WithLabelValues("ok").Inc()
		return data, nil
	case errors.Is(err, s3c.ErrObjectNotFound):
		metrics.ObjectReads.WithLabelValues("not_found").Inc()
		return nil, apperr.NotFound("object %s not found", key)
	default:
		metrics.ObjectReads.WithLabelValues("error").Inc()
		return nil, apperr.Upstream(err, "read object %s", key)
	}
}

// readRaw 读取原始瓦片字节，优先命中瓦片缓存.
func (s *Service) readRaw(ctx context.Context, key string) ([]byte, error) {
	ck := rawCachePrefix + key

	if data, err := s.Tiles.Get(ctx, ck); err == nil {
		return data, nil
	}

	data, err := s.readObject(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := s.Tiles.Set(ctx, ck, data, s.Render.RawCacheTTL); err != nil {
		s.log.Debug().Err(err).Str("key", ck).Msg("raw tile not cached")
	}

	return data, nil
}

// PurgeRenderedTiles 清除图像的全部已渲染瓦片缓存，返回删除的键数.
// 原始瓦片按 fileset 存放且内容不变，不在此列.
func (s *Service) PurgeRenderedTiles(ctx context.Context, imageUUID string) (int, error) {
	c := appcache.NewCache(s.Tiles)
	total := 0

	for _, prefix := range tile.RenderedPrefixes(imageUUID) {
		n, err := c.Purge(ctx, prefix)
		total += n

		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// rawTile 读取并解码单通道原始瓦片.
func (s *Service) rawTile(ctx context.Context, img *model.Image, channel int, c tile.Coord) (*tile.Plane, error) {
	key := tile.RawKey(img.StorageKey(), channel, c, tile.Extension(img.Format, img.Compression))

	data, err := s.readRaw(ctx, key)
	if err != nil {
		return nil, err
	}

	plane, err := tile.Decode(img.Format, img.Compression, data, Pyramid(img).TileSizeAt(c))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "decode "+key)
	}

	return plane, nil
}
