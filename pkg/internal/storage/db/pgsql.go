//go:build !no_postgres

package db

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/configs"
)

func init() {
	for _, t := range []configs.DBType{configs.PostgreSQL, configs.Postgres, configs.Pg} {
		RegisterDialectorFactory(t, postgresDialector)
	}
}

// postgresDialector 部署在 pgbouncer 之后时用简单协议，避免预编译语句跨连接失效.
func postgresDialector(cfg *configs.DBConfig) gorm.Dialector {
	return postgres.New(postgres.Config{
		DSN:                  cfg.GetDSN(),
		PreferSimpleProtocol: cfg.PreferSimpleProtocol,
	})
}
