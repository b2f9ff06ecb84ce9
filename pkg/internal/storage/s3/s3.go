// Package s3 封装 MinIO 客户端：读取金字塔瓦片与元数据、签发导入上传凭证.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"

	"github.com/yeisme/minerva/pkg/configs"
	nlog "github.com/yeisme/minerva/pkg/log"
)

// ErrObjectNotFound 对象不存在.
var ErrObjectNotFound = errors.New("object not found")

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client
	cfg configs.S3Config
}

// New 初始化 MinIO 客户端，按配置确保瓦片桶与原始上传桶存在.
func New(ctx context.Context, cfg *configs.S3Config) (*Client, error) {
	c := *cfg
	endpoint := c.Endpoint
	// 允许传入带 scheme 的 endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			c.UseSSL = true
		}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKeyID, c.SecretAccessKey, ""),
		Secure: c.UseSSL,
		Region: c.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo("minerva", configs.AppVersion)

	client := &Client{Client: cli, cfg: c}

	if c.EnsureBuckets {
		if err := client.ensureBuckets(ctx); err != nil {
			return nil, err
		}
	}

	nlog.Logger().Info().
		Str("endpoint", c.Endpoint).
		Str("tile_bucket", c.TileBucket).
		Str("raw_bucket", c.RawBucket).
		Msg("s3 connected")

	return client, nil
}

func (c *Client) ensureBuckets(ctx context.Context) error {
	for _, bkt := range c.cfg.Buckets() {
		if bkt == "" {
			continue
		}

		exists, err := c.BucketExists(ctx, bkt)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bkt, err)
		}

		if exists {
			continue
		}

		if err := c.MakeBucket(ctx, bkt, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bkt, err)
		}

		nlog.Logger().Info().Str("bucket", bkt).Msg("bucket created")
	}

	return nil
}

// TileBucket 返回瓦片桶名称.
func (c *Client) TileBucket() string { return c.cfg.TileBucket }

// RawBucket 返回原始上传桶名称.
func (c *Client) RawBucket() string { return c.cfg.RawBucket }

// ReadObject 读取整个对象，对象不存在时返回 ErrObjectNotFound.
func (c *Client) ReadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err, bucket, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err, bucket, key)
	}

	return data, nil
}

// WriteObject 写入对象.
func (c *Client) WriteObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := c.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}

	return nil
}

// DeleteObjects 批量删除对象，不存在的对象不视为错误.
func (c *Client) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	var errs []error
	for e := range c.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("delete %s/%s: %w", bucket, e.ObjectName, e.Err))
	}

	return errors.Join(errs...)
}

// TagObjects 为对象设置标签，已不存在的对象跳过.
func (c *Client) TagObjects(ctx context.Context, bucket string, keys []string, tagMap map[string]string) error {
	t, err := tags.MapToObjectTags(tagMap)
	if err != nil {
		return fmt.Errorf("object tags: %w", err)
	}

	var errs []error
	for _, k := range keys {
		err := c.PutObjectTagging(ctx, bucket, k, t, minio.PutObjectTaggingOptions{})
		if err == nil {
			continue
		}

		if err = translate(err, bucket, k); !errors.Is(err, ErrObjectNotFound) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func translate(err error, bucket, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}

	return fmt.Errorf("get %s/%s: %w", bucket, key, err)
}

// UploadGrant 导入上传授权.
type UploadGrant struct {
	URL          string            `json:"url"`
	Bucket       string            `json:"bucket"`
	Prefix       string            `json:"prefix"`
	AccessKeyID  string            `json:"access_key_id,omitempty"`
	SecretKey    string            `json:"secret_access_key,omitempty"`
	SessionToken string            `json:"session_token,omitempty"`
	PostURL      string            `json:"post_url,omitempty"`
	FormData     map[string]string `json:"form_data,omitempty"`
	Expiration   time.Time         `json:"expiration"`
}

// GrantUpload 为 bucket 中的前缀签发上传授权.
// 启用 STS 时通过 AssumeRole 获取限定于 {bucket}/{prefix}* 的临时凭证，
// 否则返回一个限定前缀的预签名 POST 策略.
func (c *Client) GrantUpload(ctx context.Context, bucket, prefix string) (*UploadGrant, error) {
	ttl := c.cfg.CredentialTTL
	if ttl <= 0 {
		ttl = configs.DefaultS3CredentialTTL
	}

	grant := &UploadGrant{
		URL:        fmt.Sprintf("s3://%s/%s", bucket, prefix),
		Bucket:     bucket,
		Prefix:     prefix,
		Expiration: time.Now().Add(ttl).UTC(),
	}

	if c.cfg.STSEnabled {
		creds, err := credentials.NewSTSAssumeRole(c.cfg.GetSTSEndpointURL(), credentials.STSAssumeRoleOptions{
			AccessKey:       c.cfg.AccessKeyID,
			SecretKey:       c.cfg.SecretAccessKey,
			Policy:          UploadPolicy(bucket, prefix),
			Location:        c.cfg.Region,
			DurationSeconds: int(ttl.Seconds()),
		})
		if err != nil {
			return nil, fmt.Errorf("assume role: %w", err)
		}

		v, err := creds.Get()
		if err != nil {
			return nil, fmt.Errorf("assume role: %w", err)
		}

		grant.AccessKeyID = v.AccessKeyID
		grant.SecretKey = v.SecretAccessKey
		grant.SessionToken = v.SessionToken

		return grant, nil
	}

	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(bucket); err != nil {
		return nil, err
	}

	if err := policy.SetKeyStartsWith(prefix); err != nil {
		return nil, err
	}

	if err := policy.SetExpires(grant.Expiration); err != nil {
		return nil, err
	}

	u, form, err := c.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("presign post policy: %w", err)
	}

	grant.PostURL = u.String()
	grant.FormData = form

	return grant, nil
}

// UploadPolicy 返回只允许写入 bucket/prefix* 的 IAM 策略.
func UploadPolicy(bucket, prefix string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[`+
		`{"Effect":"Allow","Action":["s3:ListBucket"],"Resource":["arn:aws:s3:::%[1]s"],"Condition":{"StringLike":{"s3:prefix":["%[2]s*"]}}},`+
		`{"Effect":"Allow","Action":["s3:PutObject","s3:GetObject"],"Resource":["arn:aws:s3:::%[1]s/%[2]s*"]}]}`,
		bucket, prefix)
}

// HealthCheck 检查瓦片桶是否可访问.
func (c *Client) HealthCheck(ctx context.Context) error {
	ok, err := c.BucketExists(ctx, c.cfg.TileBucket)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("bucket %s does not exist", c.cfg.TileBucket)
	}

	return nil
}

// Close 关闭 S3 客户端连接（无实际操作，接口兼容）.
func (c *Client) Close() error {
	return nil
}
