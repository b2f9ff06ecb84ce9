package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	MQTypeNATS   MQType = "nats"
	MQTypeRedis  MQType = "redis"
	MQTypeMemory MQType = "memory" // 进程内 gochannel，单实例部署与测试使用

	DefaultMQURL        = "nats://localhost:4222"
	DefaultMQClientID   = "minerva-api"
	DefaultMQBufferSize = 32 * 1024

	// 导入流水线的重投递节奏：单个图集的登记很快，超过一分钟未确认视为消费者已失联.
	DefaultMQAckWait       = time.Minute
	DefaultMQMaxDeliver    = 5
	DefaultMQMaxAckPending = 256
	DefaultMQMemoryBuffer  = 64
)

// MQConfig 消息队列配置，type 选择后端，其余分节只对对应后端生效.
type MQConfig struct {
	Type   MQType         `mapstructure:"type"   rule:"oneof=nats redis memory"`
	Common MQCommonConfig `mapstructure:"common"`
	NATS   MQNATSConfig   `mapstructure:"nats"`
	Redis  MQRedisConfig  `mapstructure:"redis"`
	Memory MQMemoryConfig `mapstructure:"memory"`
}

// MQCommonConfig 连接参数.
type MQCommonConfig struct {
	URL           string        `mapstructure:"url"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	ClientID      string        `mapstructure:"client_id"      rule:"required"` // 连接名，负载均衡时同时作为队列组
	MaxReconnects int           `mapstructure:"max_reconnects" rule:"min=-1"`   // -1 表示无限重连
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	StrictConnect bool          `mapstructure:"strict_connect"` // 启动时连不上即失败，而不是后台重试
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	MaxPingsOut   int           `mapstructure:"max_pings_out"  rule:"min=1,max=10"`
	BufferSize    int           `mapstructure:"buffer_size"    rule:"min=1024,max=1048576"` // 断线期间的发送缓冲
	// EnableMetrics 把发布、订阅与处理器指标注册到 /metrics
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// MQNATSConfig NATS 与 JetStream 配置.
type MQNATSConfig struct {
	JetStreamEnabled bool   `mapstructure:"jetstream_enabled"`
	AutoProvision    bool   `mapstructure:"auto_provision"` // 按主题自动创建流
	TrackMsgID       bool   `mapstructure:"track_msg_id"`   // 以消息 uuid 去重
	AckAsync         bool   `mapstructure:"ack_async"`
	DurablePrefix    string `mapstructure:"durable_prefix"`

	AckWait       time.Duration `mapstructure:"ack_wait"`
	MaxDeliver    int           `mapstructure:"max_deliver"     rule:"min=0"`
	MaxAckPending int           `mapstructure:"max_ack_pending" rule:"min=0"`

	JWT         string   `mapstructure:"jwt"`
	NKey        string   `mapstructure:"nkey"`
	ClusterURLs []string `mapstructure:"cluster_urls"`
	// LoadBalance 多实例共享队列组，每个事件只由一个实例登记
	LoadBalance bool `mapstructure:"load_balance"`
}

// MQRedisConfig Redis Streams 配置，每个主题一个 stream，所有实例共用一个消费组.
type MQRedisConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`

	ConsumerGroup string        `mapstructure:"consumer_group"`          // 为空时使用 common.client_id
	MaxLen        int64         `mapstructure:"max_len"    rule:"min=0"` // stream 近似长度上限，0 表示不裁剪
	Block         time.Duration `mapstructure:"block"`
	// ClaimIdle 其他消费者持有超过该时长仍未确认的消息会被接管重投
	ClaimIdle time.Duration `mapstructure:"claim_idle"`
	NackDelay time.Duration `mapstructure:"nack_delay"`
}

// MQMemoryConfig 进程内队列配置.
type MQMemoryConfig struct {
	OutputBuffer int64 `mapstructure:"output_buffer" rule:"min=0"`
	// Persistent 保留已发布消息，之后订阅的处理器也能收到
	Persistent bool `mapstructure:"persistent"`
}

// GetMQType 返回当前配置的消息队列类型.
func (c *MQConfig) GetMQType() MQType {
	return c.Type
}

func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeMemory)

	v.SetDefault("mq.common.url", DefaultMQURL)
	v.SetDefault("mq.common.client_id", DefaultMQClientID)
	v.SetDefault("mq.common.max_reconnects", 10)
	v.SetDefault("mq.common.reconnect_wait", 2*time.Second)
	v.SetDefault("mq.common.ping_interval", 20*time.Second)
	v.SetDefault("mq.common.max_pings_out", 3)
	v.SetDefault("mq.common.buffer_size", DefaultMQBufferSize)
	v.SetDefault("mq.common.enable_metrics", true)

	v.SetDefault("mq.nats.jetstream_enabled", true)
	v.SetDefault("mq.nats.auto_provision", true)
	v.SetDefault("mq.nats.track_msg_id", true)
	v.SetDefault("mq.nats.durable_prefix", "minerva")
	v.SetDefault("mq.nats.ack_wait", DefaultMQAckWait)
	v.SetDefault("mq.nats.max_deliver", DefaultMQMaxDeliver)
	v.SetDefault("mq.nats.max_ack_pending", DefaultMQMaxAckPending)
	v.SetDefault("mq.nats.load_balance", true)

	v.SetDefault("mq.redis.addr", "localhost:6379")
	v.SetDefault("mq.redis.max_len", 100000)
	v.SetDefault("mq.redis.block", 5*time.Second)
	v.SetDefault("mq.redis.claim_idle", DefaultMQAckWait)
	v.SetDefault("mq.redis.nack_delay", time.Second)

	v.SetDefault("mq.memory.output_buffer", DefaultMQMemoryBuffer)
}
