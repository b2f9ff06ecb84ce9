//go:build !no_sqlite && cgo

package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/configs"
)

func init() {
	RegisterDialectorFactory(configs.SQLite, func(cfg *configs.DBConfig) gorm.Dialector {
		return sqlite.Open(sqliteDSN(cfg, func(timeoutMS int64) string {
			return fmt.Sprintf("_busy_timeout=%d&_foreign_keys=on", timeoutMS)
		}))
	})
}
