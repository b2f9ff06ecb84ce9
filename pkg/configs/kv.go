package configs

import (
	"time"

	"github.com/spf13/viper"
)

// KVType 键值存储类型.
type KVType string

const (
	KVTypeMemory     KVType = "memory"
	KVTypeRedis      KVType = "redis"
	KVTypeNATS       KVType = "nats"
	KVTypeGroupcache KVType = "groupcache"
	KVTypeFreecache  KVType = "freecache"
	KVTypeBadger     KVType = "badger"
)

// KVConfig 键值存储配置.
// Type 决定通用缓存（权限、元数据响应）使用的存储，TileType 决定瓦片缓存使用的存储，为空时与 Type 相同.
type KVConfig struct {
	Type       KVType             `mapstructure:"type"      rule:"oneof=memory redis nats groupcache freecache badger"`
	TileType   KVType             `mapstructure:"tile_type" rule:"omitempty,oneof=memory redis nats groupcache freecache badger"`
	Redis      RedisKVConfig      `mapstructure:"redis"`
	NATS       NATSKVConfig       `mapstructure:"nats"`
	Groupcache GroupcacheKVConfig `mapstructure:"groupcache"`
	Freecache  FreecacheKVConfig  `mapstructure:"freecache"`
	Badger     BadgerKVConfig     `mapstructure:"badger"`
}

// RedisKVConfig Redis KV 配置.
type RedisKVConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
	// KeyPrefix 多个部署共用一个 Redis 时隔离键空间，Keys 返回的键不含前缀
	KeyPrefix   string        `mapstructure:"key_prefix"`
	PoolSize    int           `mapstructure:"pool_size"    rule:"min=0"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// NATSKVConfig NATS KV 配置.
type NATSKVConfig struct {
	URL      string `mapstructure:"url"      rule:"required"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Bucket   string `mapstructure:"bucket"   rule:"required"`
}

// GroupcacheKVConfig Groupcache KV 配置.
type GroupcacheKVConfig struct {
	Name       string   `mapstructure:"name"        rule:"required"`
	CacheBytes int64    `mapstructure:"cache_bytes" rule:"min=1048576"` // 最小1MB
	Peers      []string `mapstructure:"peers"`
	Self       string   `mapstructure:"self"        rule:"omitempty,url"`
}

// FreecacheKVConfig 进程内 freecache 配置.
type FreecacheKVConfig struct {
	SizeBytes int `mapstructure:"size_bytes" rule:"min=524288"` // freecache 最小 512KB
}

// BadgerKVConfig 本地磁盘 badger 配置.
type BadgerKVConfig struct {
	Dir      string `mapstructure:"dir"       rule:"required_without=InMemory"`
	InMemory bool   `mapstructure:"in_memory"`
}

// GetKVType 返回当前配置的 KV 类型.
func (c *KVConfig) GetKVType() KVType {
	return c.Type
}

// GetTileKVType 返回瓦片缓存使用的 KV 类型.
func (c *KVConfig) GetTileKVType() KVType {
	if c.TileType == "" {
		return c.Type
	}

	return c.TileType
}

// setDefaults 设置 KV 配置的默认值.
func (c *KVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.type", KVTypeMemory)
	v.SetDefault("kv.tile_type", KVTypeFreecache)

	v.SetDefault("kv.redis.addr", "localhost:6379")
	v.SetDefault("kv.redis.password", "")
	v.SetDefault("kv.redis.db", 0)
	v.SetDefault("kv.redis.key_prefix", "minerva:")
	v.SetDefault("kv.redis.dial_timeout", 5*time.Second)

	v.SetDefault("kv.nats.url", "localhost:4222")
	v.SetDefault("kv.nats.user", "")
	v.SetDefault("kv.nats.password", "")
	v.SetDefault("kv.nats.bucket", "minerva-kv")

	const defaultGroupcacheBytes = 512 * 1024 * 1024
	v.SetDefault("kv.groupcache.name", "minerva-cache")
	v.SetDefault("kv.groupcache.cache_bytes", defaultGroupcacheBytes)
	v.SetDefault("kv.groupcache.peers", []string{})
	v.SetDefault("kv.groupcache.self", "")

	const defaultFreecacheBytes = 256 * 1024 * 1024
	v.SetDefault("kv.freecache.size_bytes", defaultFreecacheBytes)

	v.SetDefault("kv.badger.dir", "data/badger")
	v.SetDefault("kv.badger.in_memory", false)
}
