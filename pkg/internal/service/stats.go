package service

import (
	"context"
	"time"

	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
)

const (
	hoursPerDay      = 24
	defaultTrendDays = 14
	maxTrendDays     = 60

	voxelExpr = "COALESCE(SUM(CASE WHEN deleted = ? THEN size_x * size_y * size_c * size_z * size_t ELSE 0 END),0)"
)

// RepositoryStats 汇总仓库的图像、导入与 fileset，需要 Read.
// days 为图像注册趋势的天数，越界时取默认值.
func (s *Service) RepositoryStats(ctx context.Context, subject, uuid string, days int) (*types.RepositoryStats, error) {
	if err := s.authorize(ctx, subject, uuid, model.PermissionRead); err != nil {
		return nil, err
	}

	if days <= 0 || days > maxTrendDays {
		days = defaultTrendDays
	}

	out := &types.RepositoryStats{RepositoryUUID: uuid}

	var err error
	if out.Images, err = s.imageSummary(ctx, uuid); err != nil {
		return nil, err
	}

	if out.Imports, err = s.importSummary(ctx, uuid); err != nil {
		return nil, err
	}

	if out.Filesets, err = s.filesetSummary(ctx, uuid); err != nil {
		return nil, err
	}

	if out.Formats, err = s.imagesByFormat(ctx, uuid); err != nil {
		return nil, err
	}

	if out.Trend, err = s.imageTrend(ctx, uuid, days, time.Now().UTC()); err != nil {
		return nil, err
	}

	return out, nil
}

// imageSummary 一次聚合计算活跃与已删除图像的数量以及活跃体素.
func (s *Service) imageSummary(ctx context.Context, repo string) (types.StatsImages, error) {
	var agg struct {
		Active  int64 `gorm:"column:active"`
		Deleted int64 `gorm:"column:removed"`
		Voxels  int64 `gorm:"column:voxels"`
	}

	err := s.DB.WithContext(ctx).Model(&model.Image{}).
		Select("COALESCE(SUM(CASE WHEN deleted = ? THEN 1 ELSE 0 END),0) AS active, "+
			"COALESCE(SUM(CASE WHEN deleted = ? THEN 1 ELSE 0 END),0) AS removed, "+
			voxelExpr+" AS voxels", false, true, false).
		Where("repository_uuid = ?", repo).
		Scan(&agg).Error
	if err != nil {
		return types.StatsImages{}, err
	}

	return types.StatsImages{
		Total:   int(agg.Active + agg.Deleted),
		Active:  int(agg.Active),
		Deleted: int(agg.Deleted),
		Voxels:  agg.Voxels,
	}, nil
}

func (s *Service) importSummary(ctx context.Context, repo string) (types.StatsImports, error) {
	var agg struct {
		Total    int64 `gorm:"column:total"`
		Complete int64 `gorm:"column:done"`
	}

	err := s.DB.WithContext(ctx).Model(&model.Import{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN complete = ? THEN 1 ELSE 0 END),0) AS done", true).
		Where("repository_uuid = ?", repo).
		Scan(&agg).Error
	if err != nil {
		return types.StatsImports{}, err
	}

	return types.StatsImports{
		Total:      int(agg.Total),
		Complete:   int(agg.Complete),
		Incomplete: int(agg.Total - agg.Complete),
	}, nil
}

func (s *Service) filesetSummary(ctx context.Context, repo string) (types.StatsFilesets, error) {
	var agg struct {
		Total    int64 `gorm:"column:total"`
		Complete int64 `gorm:"column:done"`
	}

	err := s.DB.WithContext(ctx).Model(&model.Fileset{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN filesets.complete = ? THEN 1 ELSE 0 END),0) AS done", true).
		Joins("JOIN imports ON imports.uuid = filesets.import_uuid").
		Where("imports.repository_uuid = ?", repo).
		Scan(&agg).Error
	if err != nil {
		return types.StatsFilesets{}, err
	}

	return types.StatsFilesets{Total: int(agg.Total), Complete: int(agg.Complete)}, nil
}

// imagesByFormat 按格式聚合活跃图像.
func (s *Service) imagesByFormat(ctx context.Context, repo string) ([]types.StatsFormatItem, error) {
	rows := []struct {
		Format string
		Cnt    int64
		Voxels int64
	}{}

	err := s.DB.WithContext(ctx).Model(&model.Image{}).
		Select("format, COUNT(*) AS cnt, "+voxelExpr+" AS voxels", false).
		Where("repository_uuid = ? AND deleted = ?", repo, false).
		Group("format").
		Order("format").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.StatsFormatItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.StatsFormatItem{Format: r.Format, Count: int(r.Cnt), Voxels: r.Voxels})
	}

	return out, nil
}

// imageTrend 统计最近 days 天每日注册的图像数，按 UTC 日期在内存中分桶并补齐空白日.
func (s *Service) imageTrend(ctx context.Context, repo string, days int, now time.Time) ([]types.StatsTrendPoint, error) {
	start := now.AddDate(0, 0, -days+1).Truncate(hoursPerDay * time.Hour)

	var created []time.Time
	if err := s.DB.WithContext(ctx).Model(&model.Image{}).
		Where("repository_uuid = ? AND created_at >= ?", repo, start).
		Pluck("created_at", &created).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int, days)
	for _, t := range created {
		counts[t.UTC().Format(time.DateOnly)]++
	}

	out := make([]types.StatsTrendPoint, 0, days)
	for i := range days {
		d := start.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, types.StatsTrendPoint{Date: d, Count: counts[d]})
	}

	return out, nil
}
