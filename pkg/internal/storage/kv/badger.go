package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"

	"github.com/yeisme/minerva/pkg/configs"
	nlog "github.com/yeisme/minerva/pkg/log"
)

// BadgerKV 基于 badger 的本地持久化 KV，适合单机部署下缓存原始瓦片.
type BadgerKV struct {
	db *badger.DB
}

// badgerLogger 把 badger 的日志转发到 zerolog.
type badgerLogger struct {
	l *zerolog.Logger
}

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Error().Msgf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn().Msgf(f, v...) }
func (b badgerLogger) Infof(f string, v ...any)    { b.l.Debug().Msgf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...any)   { b.l.Trace().Msgf(f, v...) }

// NewBadgerKV 打开 badger 数据库.
func NewBadgerKV(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
	bc := cfg.Badger

	var opts badger.Options
	if bc.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(bc.Dir)
	}

	l := nlog.Component("badger")
	opts = opts.WithLogger(badgerLogger{l: &l})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerKV{db: db}, nil
}

// Get 获取键的值.
func (b *BadgerKV) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		val, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	return val, nil
}

// Set 设置键的值，ttl 使用 badger 原生过期.
func (b *BadgerKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}

		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Delete 删除键.
func (b *BadgerKV) Delete(_ context.Context, key string) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// Exists 检查键是否存在.
func (b *BadgerKV) Exists(_ context.Context, key string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))

		return err
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
}

// Keys 获取匹配模式的键，结果按字典序排列.
func (b *BadgerKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().KeyCopy(nil))
			if matchKey(pattern, k) {
				keys = append(keys, k)
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return keys, nil
}

// Close 关闭数据库.
func (b *BadgerKV) Close() error {
	return b.db.Close()
}

func init() {
	RegisterKVFactory(KVTypeBadger, NewBadgerKV)
}
