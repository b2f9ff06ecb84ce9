// Package service 实现注册表、授权与瓦片渲染的业务逻辑.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/storage"
	"github.com/yeisme/minerva/pkg/internal/storage/kv"
	s3c "github.com/yeisme/minerva/pkg/internal/storage/s3"
	nlog "github.com/yeisme/minerva/pkg/log"
	"github.com/yeisme/minerva/pkg/queue"
)

// ObjectStore 读取对象存储中的瓦片与元数据.
type ObjectStore interface {
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// UploadGranter 为桶中的前缀签发上传凭证.
type UploadGranter interface {
	GrantUpload(ctx context.Context, bucket, prefix string) (*s3c.UploadGrant, error)
}

// RawStore 按仓库的 raw_storage 处理已提取的原始上传.
type RawStore interface {
	DeleteObjects(ctx context.Context, bucket string, keys []string) error
	TagObjects(ctx context.Context, bucket string, keys []string, tags map[string]string) error
}

// Deps 服务依赖，Uploads、Raw 与 Publisher 可为空.
type Deps struct {
	DB         *gorm.DB
	Objects    ObjectStore
	Uploads    UploadGranter
	Raw        RawStore
	Cache      kv.KVStore // 权限判定缓存
	Tiles      kv.KVStore // 原始瓦片与预渲染瓦片缓存
	Publisher  queue.Publisher
	TileBucket string
	RawBucket  string
	Render     configs.RenderConfig
	Events     configs.EventsConfig
	Breaker    configs.CircuitBreakerConfig
}

// Service 注册表与渲染服务，可被多个请求并发使用.
type Service struct {
	Deps

	breaker *gobreaker.CircuitBreaker
	renders singleflight.Group
	log     zerolog.Logger
}

// New 创建服务.
func New(d Deps) *Service {
	if d.Render.JPEGQuality == 0 {
		d.Render = configs.Defaults().Render
	}

	if d.Cache == nil {
		d.Cache, _ = kv.NewMemoryKV(context.Background(), nil)
	}

	if d.Tiles == nil {
		d.Tiles = d.Cache
	}

	return &Service{
		Deps:    d,
		breaker: newObjectBreaker(d.Breaker),
		log:     nlog.Component("service"),
	}
}

// NewFromManager 由存储管理器与全局配置组装服务.
func NewFromManager(mgr *storage.Manager, cfg *configs.AppConfig) *Service {
	d := Deps{
		DB:         mgr.DB.GetDB(),
		Objects:    mgr.S3,
		Uploads:    mgr.S3,
		Raw:        mgr.S3,
		Cache:      mgr.KV,
		Tiles:      mgr.TileKV,
		TileBucket: mgr.S3.TileBucket(),
		RawBucket:  mgr.S3.RawBucket(),
		Render:     cfg.Render,
		Events:     cfg.Events,
		Breaker:    cfg.CircuitBreaker,
	}

	if mgr.MQ != nil {
		d.Publisher = mgr.MQ
	}

	return New(d)
}

// newObjectBreaker 为对象存储读取创建熔断器，关闭配置时阈值设为不可达.
func newObjectBreaker(cfg configs.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:        "object-store",
		MaxRequests: cfg.HalfOpenMax,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.Trips(counts.Requests, counts.TotalFailures)
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			nlog.Logger().Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return gobreaker.NewCircuitBreaker(st)
}

// timeout 返回外部调用超时.
func (s *Service) timeout() time.Duration {
	if s.Render.FetchTimeout <= 0 {
		return configs.DefaultFetchTimeout
	}

	return s.Render.FetchTimeout
}
