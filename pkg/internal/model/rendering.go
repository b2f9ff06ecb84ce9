package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/tile"
)

// RenderingSettings 图像的一组命名渲染参数，被预渲染瓦片引用后锁定.
// 通道以规范化的路径形式存储在 Spec 列中.
type RenderingSettings struct {
	UUID      string        `gorm:"primaryKey;size:36"     json:"uuid"`
	ImageUUID string        `gorm:"size:36;index;not null" json:"image_uuid"`
	Label     string        `gorm:"size:256"               json:"label"`
	Spec      string        `gorm:"type:text"              json:"-"`
	Channels  tile.Channels `gorm:"-"                      json:"channels"`
	Locked    bool          `gorm:"default:false"          json:"locked"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BeforeSave 把 Channels 写回规范化的 Spec.
func (r *RenderingSettings) BeforeSave(*gorm.DB) error {
	if r.Channels != nil {
		r.Spec = r.Channels.String()
	}

	return nil
}

// AfterFind 从 Spec 恢复 Channels.
func (r *RenderingSettings) AfterFind(*gorm.DB) error {
	if r.Spec == "" {
		r.Channels = tile.Channels{}

		return nil
	}

	chs, err := tile.ParseChannels(r.Spec)
	if err != nil {
		return err
	}

	r.Channels = chs

	return nil
}
