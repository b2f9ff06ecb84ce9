//go:build !no_mysql

package db

import (
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/configs"
)

// utf8mb4 下 InnoDB 旧行格式的索引前缀上限为 767 字节.
const mysqlIndexedStringSize = 191

func init() {
	RegisterDialectorFactory(configs.MySQL, mysqlDialector)
	RegisterDialectorFactory(configs.MariaDB, mysqlDialector)
}

// mysqlDSN 由驱动自身格式化，用户名与密码中的特殊字符无需转义.
func mysqlDSN(cfg *configs.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	dc := mysqldrv.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = cfg.HostPort()
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}

	for _, kv := range cfg.SortedParams() {
		dc.Params[kv[0]] = kv[1]
	}

	return dc.FormatDSN()
}

func mysqlDialector(cfg *configs.DBConfig) gorm.Dialector {
	return mysql.New(mysql.Config{
		DSN:                    mysqlDSN(cfg),
		DefaultStringSize:      mysqlIndexedStringSize,
		DontSupportRenameIndex: cfg.Type == configs.MariaDB,
	})
}
