package configs

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// S3Config MinIO S3存储配置.
// TileBucket 保存导入流水线生成的金字塔瓦片与 metadata.xml，RawBucket 接收用户上传的原始文件.
type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"          rule:"required"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	TileBucket      string        `mapstructure:"tile_bucket"       rule:"required"`
	RawBucket       string        `mapstructure:"raw_bucket"        rule:"required"`
	EnsureBuckets   bool          `mapstructure:"ensure_buckets"` // 启动时创建缺失的存储桶
	STSEnabled      bool          `mapstructure:"sts_enabled"`    // 使用 AssumeRole 签发导入凭证
	STSEndpoint     string        `mapstructure:"sts_endpoint"`   // 为空时使用 Endpoint
	CredentialTTL   time.Duration `mapstructure:"credential_ttl"` // 导入凭证有效期
}

const (
	DefaultS3Endpoint        = "localhost:9000" // 默认S3端点
	DefaultS3AccessKeyID     = "minioadmin"     // 默认访问密钥ID
	DefaultS3SecretAccessKey = "minioadmin"     // 默认秘密访问密钥
	DefaultS3UseSSL          = false            // 默认是否使用SSL
	DefaultS3Region          = "us-east-1"      // 默认区域
	DefaultS3TileBucket      = "minerva-tiles"  // 默认瓦片存储桶
	DefaultS3RawBucket       = "minerva-raw"    // 默认原始上传存储桶
	DefaultS3CredentialTTL   = 1 * time.Hour    // 默认导入凭证有效期
)

// Buckets 返回需要确保存在的全部存储桶.
func (c *S3Config) Buckets() []string {
	return []string{c.TileBucket, c.RawBucket}
}

// GetEndpointURL 获取完整的端点URL.
func (c *S3Config) GetEndpointURL() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s", scheme, c.Endpoint)
}

// GetSTSEndpointURL 返回 STS 服务地址.
func (c *S3Config) GetSTSEndpointURL() string {
	if c.STSEndpoint != "" {
		return c.STSEndpoint
	}

	return c.GetEndpointURL()
}

// setDefaults 设置 S3 配置的默认值.
func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.endpoint", DefaultS3Endpoint)
	v.SetDefault("s3.access_key_id", DefaultS3AccessKeyID)
	v.SetDefault("s3.secret_access_key", DefaultS3SecretAccessKey)
	v.SetDefault("s3.use_ssl", DefaultS3UseSSL)
	v.SetDefault("s3.region", DefaultS3Region)
	v.SetDefault("s3.tile_bucket", DefaultS3TileBucket)
	v.SetDefault("s3.raw_bucket", DefaultS3RawBucket)
	v.SetDefault("s3.ensure_buckets", true)
	v.SetDefault("s3.sts_enabled", false)
	v.SetDefault("s3.sts_endpoint", "")
	v.SetDefault("s3.credential_ttl", DefaultS3CredentialTTL)
}
