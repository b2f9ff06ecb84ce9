package configs

import "github.com/spf13/viper"

// EventsConfig 控制导入流水线事件的发布与消费.
type EventsConfig struct {
	Enabled bool `mapstructure:"enabled"` // 总开关，关闭时完成导入不会触发构建
	// ImportCompleted 发布 minerva.import.completed（触发金字塔构建）.
	ImportCompleted bool `mapstructure:"import_completed"`
	// ConsumeFilesetBuilt 在本进程内消费 minerva.fileset.built 并写入注册表.
	ConsumeFilesetBuilt bool `mapstructure:"consume_fileset_built"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.import_completed", true)
	v.SetDefault("events.consume_fileset_built", true)
}
