package kv

import (
	"bytes"
	"encoding/binary"
	"time"
)

// 没有原生 TTL 的后端把过期时间写在值前面：魔数 + 8 字节大端 unix 毫秒.
// 瓦片是二进制数据，定长头部不需要再编码一遍负载.
var ttlMagic = []byte("MNTTL2")

const ttlHeaderLen = 6 + 8

// encodeWithTTL 在 ttl>0 时加上过期头，否则原样返回.
func encodeWithTTL(value []byte, ttl time.Duration) ([]byte, error) {
	if ttl <= 0 {
		return value, nil
	}

	out := make([]byte, ttlHeaderLen, ttlHeaderLen+len(value))
	copy(out, ttlMagic)
	binary.BigEndian.PutUint64(out[len(ttlMagic):], uint64(time.Now().Add(ttl).UnixMilli()))

	return append(out, value...), nil
}

// decodeWithTTL 去掉过期头，返回 (value, expired, error). 没有头部的值视为永不过期.
func decodeWithTTL(b []byte, now time.Time) ([]byte, bool, error) {
	if len(b) < ttlHeaderLen || !bytes.HasPrefix(b, ttlMagic) {
		return b, false, nil
	}

	expires := int64(binary.BigEndian.Uint64(b[len(ttlMagic):ttlHeaderLen]))
	if now.UnixMilli() >= expires {
		return nil, true, nil
	}

	return b[ttlHeaderLen:], false, nil
}
