package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultImportReportInterval = 15 * time.Minute
	DefaultImportStaleAfter     = 24 * time.Hour
	DefaultCacheSweepInterval   = 30 * time.Minute
)

// JobsConfig 后台定时任务配置.
type JobsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// ImportReportInterval 未完成导入报告的执行间隔.
	ImportReportInterval time.Duration `mapstructure:"import_report_interval"`
	// ImportStaleAfter 创建超过该时长仍未完成的导入计入报告.
	ImportStaleAfter time.Duration `mapstructure:"import_stale_after"`
	// CacheSweepInterval 清理无原生过期机制的瓦片缓存，0 表示关闭.
	CacheSweepInterval time.Duration `mapstructure:"cache_sweep_interval"`
}

func (c *JobsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.import_report_interval", DefaultImportReportInterval)
	v.SetDefault("jobs.import_stale_after", DefaultImportStaleAfter)
	v.SetDefault("jobs.cache_sweep_interval", DefaultCacheSweepInterval)
}
