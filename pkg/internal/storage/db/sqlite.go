//go:build !no_sqlite

package db

import (
	"strings"

	"github.com/yeisme/minerva/pkg/configs"
)

// sqliteDSN 在文件库的 DSN 上追加驱动相关的 pragma，两个驱动的参数写法不同.
// 纯内存库没有并发写入，原样返回.
func sqliteDSN(cfg *configs.DBConfig, pragmas func(busyTimeoutMS int64) string) string {
	dsn := cfg.GetDSN()
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + pragmas(cfg.BusyTimeout.Milliseconds())
}
