package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yeisme/minerva/pkg/configs"
)

// NATSKV 基于 NATS JetStream KeyValue 的实现，TTL 通过值包装实现.
type NATSKV struct {
	kv     nats.KeyValue
	bucket string
	conn   *nats.Conn
}

// NewNATSKV 创建 NATS KV 实例.
func NewNATSKV(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
	natsConfig := cfg.NATS

	opts := []nats.Option{nats.Name("minerva-kv")}
	if natsConfig.User != "" {
		opts = append(opts, nats.UserInfo(natsConfig.User, natsConfig.Password))
	}

	nc, err := nats.Connect(natsConfig.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(natsConfig.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: natsConfig.Bucket})
	}

	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create/get KV bucket: %w", err)
	}

	return &NATSKV{kv: kv, bucket: natsConfig.Bucket, conn: nc}, nil
}

// NATS 键只允许 [-/_=.a-zA-Z0-9]，其余字节（以及 = 本身）写成 =XX.
// 编码逐字节进行，前缀匹配在编码前后保持一致.
func natsKey(key string) string {
	var b strings.Builder

	for i := range len(key) {
		c := key[i]
		if c != '=' && (c == '-' || c == '/' || c == '_' || c == '.' ||
			'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			b.WriteByte(c)
			continue
		}

		fmt.Fprintf(&b, "=%02X", c)
	}

	return b.String()
}

func natsKeyDecode(key string) string {
	if !strings.Contains(key, "=") {
		return key
	}

	var b strings.Builder

	for i := 0; i < len(key); i++ {
		if key[i] == '=' && i+2 < len(key) {
			if v, err := strconv.ParseUint(key[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2

				continue
			}
		}

		b.WriteByte(key[i])
	}

	return b.String()
}

func (n *NATSKV) read(key string) ([]byte, bool, error) {
	key = natsKey(key)

	entry, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get key: %w", err)
	}

	val, expired, err := decodeWithTTL(entry.Value(), time.Now())
	if err != nil {
		return nil, false, err
	}

	if expired {
		_ = n.kv.Delete(key)

		return nil, false, nil
	}

	return val, true, nil
}

// Get 获取键的值.
func (n *NATSKV) Get(_ context.Context, key string) ([]byte, error) {
	val, ok, err := n.read(key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, notFound(key)
	}

	return val, nil
}

// Set 设置键的值.
func (n *NATSKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeWithTTL(value, ttl)
	if err != nil {
		return err
	}

	if _, err := n.kv.Put(natsKey(key), encoded); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Delete 删除键.
func (n *NATSKV) Delete(_ context.Context, key string) error {
	if err := n.kv.Delete(natsKey(key)); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// Exists 检查键是否存在.
func (n *NATSKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok, err := n.read(key)

	return ok, err
}

// Keys 获取匹配模式的键，过期键会被惰性删除.
func (n *NATSKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys, err := n.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get keys: %w", err)
	}

	result := make([]string, 0, len(keys))

	for _, raw := range keys {
		key := natsKeyDecode(raw)
		if !matchKey(pattern, key) {
			continue
		}

		if _, ok, err := n.read(key); err == nil && !ok {
			continue
		}

		result = append(result, key)
	}

	return result, nil
}

// Close 关闭 NATS 连接.
func (n *NATSKV) Close() error {
	n.conn.Close()

	return nil
}

func init() {
	RegisterKVFactory(KVTypeNATS, NewNATSKV)
}
