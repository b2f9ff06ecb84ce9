package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// ImportCompletedPayload 导入已标记完成，构建流水线据此开始提取 fileset.
type ImportCompletedPayload struct {
	ImportUUID     string `json:"import_uuid"`
	RepositoryUUID string `json:"repository_uuid"`
	Name           string `json:"name"`
	// Bucket/Prefix 指向上传数据所在位置.
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
}

// BuiltImage 构建流水线产出的一张金字塔图像.
type BuiltImage struct {
	UUID          string `json:"uuid"`
	Name          string `json:"name"`
	Format        string `json:"format,omitempty"`
	Compression   string `json:"compression,omitempty"`
	TileSize      int    `json:"tile_size,omitempty"`
	PyramidLevels int    `json:"pyramid_levels"`
	SizeX         int    `json:"size_x"`
	SizeY         int    `json:"size_y"`
	SizeC         int    `json:"size_c,omitempty"`
	SizeZ         int    `json:"size_z,omitempty"`
	SizeT         int    `json:"size_t,omitempty"`
}

// FilesetBuiltPayload 一个 fileset 已提取完成，包含其产出的图像.
type FilesetBuiltPayload struct {
	FilesetUUID string       `json:"fileset_uuid"`
	ImportUUID  string       `json:"import_uuid"`
	Name        string       `json:"name"`
	Reader      string       `json:"reader,omitempty"`
	Images      []BuiltImage `json:"images"`
	// Files 为 fileset 使用的原始文件，相对于导入前缀
	Files []string `json:"files,omitempty"`
}
