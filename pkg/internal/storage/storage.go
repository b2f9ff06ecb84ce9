// Package storage 聚合注册表数据库、对象存储、KV 缓存与消息队列客户端.
//
// Example:
//
//	mgr, err := storage.Init(ctx)
//	if err != nil {
//		// 处理错误
//	}
//	defer mgr.Close()
//
//	db := mgr.GetDBClient().GetDB()
//	tiles := mgr.GetTileKVClient()
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yeisme/minerva/pkg/configs"
	dbc "github.com/yeisme/minerva/pkg/internal/storage/db"
	kvc "github.com/yeisme/minerva/pkg/internal/storage/kv"
	mqc "github.com/yeisme/minerva/pkg/internal/storage/mq"
	s3c "github.com/yeisme/minerva/pkg/internal/storage/s3"
	nlog "github.com/yeisme/minerva/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	DB *dbc.Client
	S3 *s3c.Client
	// KV 通用缓存：权限判定、响应缓存.
	KV *kvc.Client
	// TileKV 瓦片缓存：原始瓦片与预渲染瓦片，类型与 KV 相同时共用同一实例.
	TileKV *kvc.Client
	MQ     *mqc.Client
}

var (
	mgr     *Manager
	mgrErr  error
	mgrOnce sync.Once
)

// Init 使用全局配置初始化存储，重复调用只返回已初始化实例.
func Init(ctx context.Context) (*Manager, error) {
	mgrOnce.Do(func() {
		mgr, mgrErr = New(ctx, configs.GetConfig())
	})

	return mgr, mgrErr
}

// New 按配置创建存储管理器，任一组件失败时关闭已创建的组件.
func New(ctx context.Context, cfg *configs.AppConfig) (*Manager, error) {
	m := &Manager{}

	var err error

	if m.DB, err = dbc.New(ctx, &cfg.DB); err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	if m.S3, err = s3c.New(ctx, &cfg.S3); err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("init s3: %w", err)
	}

	if m.KV, err = kvc.NewKVClient(ctx, cfg.KV.GetKVType(), &cfg.KV); err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("init kv: %w", err)
	}

	if tileType := cfg.KV.GetTileKVType(); tileType == m.KV.Type {
		m.TileKV = m.KV
	} else if m.TileKV, err = kvc.NewKVClient(ctx, tileType, &cfg.KV); err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("init tile kv: %w", err)
	}

	if m.MQ, err = mqc.New(ctx, &cfg.MQ); err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("init mq: %w", err)
	}

	nlog.Logger().Info().
		Str("db", string(cfg.DB.Type)).
		Str("kv", string(m.KV.Type)).
		Str("tile_kv", string(m.TileKV.Type)).
		Str("mq", string(m.MQ.Type)).
		Msg("storage manager initialized")

	return m, nil
}

// GetS3Client 获取 S3 客户端.
func (m *Manager) GetS3Client() *s3c.Client {
	return m.S3
}

// GetDBClient 获取 DB 客户端.
func (m *Manager) GetDBClient() *dbc.Client {
	return m.DB
}

// GetKVClient 获取通用 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// GetTileKVClient 获取瓦片缓存 KV 客户端.
func (m *Manager) GetTileKVClient() *kvc.Client {
	return m.TileKV
}

// GetMQClient 获取 MQ 客户端.
func (m *Manager) GetMQClient() *mqc.Client {
	return m.MQ
}

// Close 关闭所有已创建的组件.
func (m *Manager) Close() error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.TileKV != nil && m.TileKV != m.KV {
		errs = append(errs, m.TileKV.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.S3 != nil {
		errs = append(errs, m.S3.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
