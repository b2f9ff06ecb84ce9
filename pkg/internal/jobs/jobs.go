// Package jobs 注册业务后台任务：未完成导入报告与瓦片缓存清理.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/service"
	"github.com/yeisme/minerva/pkg/internal/storage/kv"
	"github.com/yeisme/minerva/pkg/log"
	"github.com/yeisme/minerva/pkg/metrics"
	"github.com/yeisme/minerva/pkg/scheduler"
)

// 任务名称.
const (
	JobImportReport = "imports.incomplete_report"
	JobCacheSweep   = "tiles.cache_sweep"
)

// Register 按配置注册后台任务，瓦片缓存不需要清理时跳过清理任务.
func Register(sched *scheduler.Scheduler, svc *service.Service, tiles kv.KVStore, cfg configs.JobsConfig) error {
	if sched == nil || svc == nil {
		return errors.New("jobs: scheduler and service are required")
	}

	if !cfg.Enabled {
		return nil
	}

	if err := sched.AddInterval(JobImportReport, cfg.ImportReportInterval, func(ctx context.Context) error {
		_, err := ReportIncompleteImports(ctx, svc, cfg)
		return err
	}); err != nil {
		return err
	}

	sw, ok := kv.As[kv.Sweeper](tiles)
	if !ok || cfg.CacheSweepInterval <= 0 {
		return nil
	}

	return sched.AddInterval(JobCacheSweep, cfg.CacheSweepInterval, func(ctx context.Context) error {
		_, err := SweepTileCache(ctx, sw)
		return err
	})
}

// ReportIncompleteImports 统计超过阈值仍未完成的导入，更新指标并逐条告警.
func ReportIncompleteImports(ctx context.Context, svc *service.Service, cfg configs.JobsConfig) (int, error) {
	stale := cfg.ImportStaleAfter
	if stale <= 0 {
		stale = configs.DefaultImportStaleAfter
	}

	imports, err := svc.IncompleteImports(ctx, stale)
	if err != nil {
		return 0, fmt.Errorf("list incomplete imports: %w", err)
	}

	metrics.IncompleteImports.Set(float64(len(imports)))

	l := log.Logger().With().Str("job", JobImportReport).Logger()
	for _, imp := range imports {
		l.Warn().
			Str("import", imp.UUID).
			Str("repository", imp.RepositoryUUID).
			Str("age", humanize.Time(imp.CreatedAt)).
			Msg("import still incomplete")
	}

	return len(imports), nil
}

// SweepTileCache 清除瓦片缓存中的过期键.
func SweepTileCache(ctx context.Context, sw kv.Sweeper) (int, error) {
	n, err := sw.Sweep(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep tile cache: %w", err)
	}

	if n > 0 {
		log.Logger().Info().Str("job", JobCacheSweep).Str("removed", humanize.Comma(int64(n))).Msg("tile cache swept")
	}

	return n, nil
}
