// Package db 提供注册表数据库连接，支持 PostgreSQL、MySQL 与 SQLite.
package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/minerva/pkg/configs"
	nlog "github.com/yeisme/minerva/pkg/log"
)

// DialectorFactory 按配置创建 dialector，驱动相关的选项在各自文件中处理.
type DialectorFactory func(cfg *configs.DBConfig) gorm.Dialector

var (
	// dialectorFactories 存储数据库类型到 dialector 工厂的映射.
	dialectorFactories = map[configs.DBType]DialectorFactory{}
	factoriesMu        sync.RWMutex
)

// RegisterDialectorFactory 注册数据库 dialector 工厂函数.
func RegisterDialectorFactory(dbType configs.DBType, factory DialectorFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	dialectorFactories[dbType] = factory
}

// GetRegisteredDBTypes 返回已注册的数据库类型列表.
func GetRegisteredDBTypes() []configs.DBType {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]configs.DBType, 0, len(dialectorFactories))
	for dbType := range dialectorFactories {
		types = append(types, dbType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Client 包装 GORM DB 客户端.
type Client struct {
	*gorm.DB
}

// New 按配置创建数据库连接并检查连通性.
func New(ctx context.Context, cfg *configs.DBConfig) (*Client, error) {
	factoriesMu.RLock()
	factory, exists := dialectorFactories[cfg.Type]
	factoriesMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	client, err := Open(ctx, factory(cfg), cfg)
	if err != nil {
		return nil, err
	}

	l := nlog.Component("db")

	if configs.GetConfig().Metrics.Enabled {
		if err := client.RegisterGORMMetrics(cfg.Database); err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("failed to register GORM metrics: %w", err)
		}
	}

	l.Info().
		Str("type", cfg.GetDBType()).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Bool("simple_protocol", cfg.PreferSimpleProtocol).
		Msg("数据库连接成功")

	return client, nil
}

// Open 使用给定 dialector 打开连接，测试可直接传入内存 SQLite.
func Open(ctx context.Context, dialector gorm.Dialector, cfg *configs.DBConfig) (*Client, error) {
	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}

	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = defaultSlowThreshold
	}

	gormLogger := logger.New(
		nlog.Logger(),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		PrepareStmt:    !cfg.PreferSimpleProtocol,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{DB: db}, nil
}

// GetDB 返回 GORM DB 实例.
func (c *Client) GetDB() *gorm.DB {
	return c.DB
}

// Migrate 自动迁移给定模型.
func (c *Client) Migrate(ctx context.Context, models ...any) error {
	if err := c.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}

// Ping 检查数据库连通性.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// Close 关闭底层连接池.
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

const (
	defaultGORMMetricsRefreshInterval = 15 // 秒
	defaultSlowThreshold              = 200 * time.Millisecond
)

// RegisterGORMMetrics 注册GORM指标到现有注册表.
func (c *Client) RegisterGORMMetrics(dbName string) error {
	promConfig := gormPrometheus.Config{
		DBName:          dbName,
		RefreshInterval: defaultGORMMetricsRefreshInterval,
		StartServer:     false,
	}

	if err := c.Use(gormPrometheus.New(promConfig)); err != nil {
		return fmt.Errorf("failed to register GORM prometheus plugin: %w", err)
	}

	return nil
}
