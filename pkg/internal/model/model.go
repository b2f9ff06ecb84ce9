// Package model 定义注册表的数据库模型.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewUUID 生成实体主键.
func NewUUID() string {
	return uuid.NewString()
}

// Repository 仓库，权限授予与原始数据保留策略的单位.
type Repository struct {
	UUID       string     `gorm:"primaryKey;size:36"        json:"uuid"`
	Name       string     `gorm:"size:128;uniqueIndex"      json:"name"`
	RawStorage RawStorage `gorm:"size:16;default:Archive"   json:"raw_storage"`
	Access     Access     `gorm:"size:16;default:Private"   json:"access"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Image 一张已构建为金字塔的多维图像.
type Image struct {
	UUID           string    `gorm:"primaryKey;size:36"          json:"uuid"`
	Name           string    `gorm:"size:256"                    json:"name"`
	Deleted        bool      `gorm:"index;default:false"         json:"deleted"`
	Format         string    `gorm:"size:16;default:tiff"        json:"format"`
	Compression    string    `gorm:"size:16;default:none"        json:"compression"`
	TileSize       int       `gorm:"default:1024"                json:"tile_size"`
	PyramidLevels  int       `gorm:"default:1"                   json:"pyramid_levels"`
	SizeX          int       `json:"size_x"`
	SizeY          int       `json:"size_y"`
	SizeC          int       `gorm:"default:1"                   json:"size_c"`
	SizeZ          int       `gorm:"default:1"                   json:"size_z"`
	SizeT          int       `gorm:"default:1"                   json:"size_t"`
	FilesetUUID    *string   `gorm:"size:36;index"               json:"fileset_uuid"`
	RepositoryUUID string    `gorm:"size:36;index;not null"      json:"repository_uuid"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StorageKey 返回原始瓦片在对象存储中的前缀，优先使用 fileset.
func (i *Image) StorageKey() string {
	if i.FilesetUUID != nil && *i.FilesetUUID != "" {
		return *i.FilesetUUID
	}

	return i.UUID
}

// Import 一次上传批次.
type Import struct {
	UUID           string    `gorm:"primaryKey;size:36"     json:"uuid"`
	Name           string    `gorm:"size:256"               json:"name"`
	RepositoryUUID string    `gorm:"size:36;index;not null" json:"repository_uuid"`
	Complete       bool      `gorm:"index;default:false"    json:"complete"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Fileset 从导入中提取出的一组文件.
type Fileset struct {
	UUID       string    `gorm:"primaryKey;size:36"     json:"uuid"`
	Name       string    `gorm:"size:256"               json:"name"`
	ImportUUID string    `gorm:"size:36;index;not null" json:"import_uuid"`
	Reader     string    `gorm:"size:128"               json:"reader"`
	Complete   bool      `gorm:"default:false"          json:"complete"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Grant 主体对仓库的显式授权，(subject, repository) 唯一.
type Grant struct {
	SubjectUUID    string     `gorm:"primaryKey;size:64" json:"subject_uuid"`
	RepositoryUUID string     `gorm:"primaryKey;size:36" json:"repository_uuid"`
	Permission     Permission `gorm:"not null"           json:"permission"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ImportKey 导入中上传的一个原始文件，提取后归属于某个 fileset.
type ImportKey struct {
	Path        string    `gorm:"primaryKey;size:512"    json:"key"`
	ImportUUID  string    `gorm:"primaryKey;size:36"     json:"import_uuid"`
	FilesetUUID *string   `gorm:"size:36;index"          json:"fileset_uuid"`
	CreatedAt   time.Time `json:"created_at"`
}

// Group 主体的集合，可以作为授权对象.
type Group struct {
	UUID      string    `gorm:"primaryKey;size:36"   json:"uuid"`
	Name      string    `gorm:"size:128;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership 主体在组中的成员关系.
type Membership struct {
	GroupUUID      string         `gorm:"primaryKey;size:36"        json:"group_uuid"`
	SubjectUUID    string         `gorm:"primaryKey;size:64;index"  json:"subject_uuid"`
	MembershipType MembershipType `gorm:"size:16;default:Member"    json:"membership_type"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// All 返回需要迁移的全部模型.
func All() []any {
	return []any{
		&Repository{},
		&Image{},
		&Import{},
		&Fileset{},
		&ImportKey{},
		&Grant{},
		&Group{},
		&Membership{},
		&RenderingSettings{},
	}
}

// Migrate 迁移全部模型.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
