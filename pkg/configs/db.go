package configs

import (
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBType 注册表数据库类型，同一方言可以有多个别名.
type DBType string

const (
	PostgreSQL DBType = "postgresql"
	Postgres   DBType = "postgres"
	Pg         DBType = "pg"
	MySQL      DBType = "mysql"
	MariaDB    DBType = "mariadb"
	// SQLite cgo 构建时使用 mattn 驱动，否则使用纯 Go 驱动.
	SQLite DBType = "sqlite"
)

// DBConfig 注册表数据库配置.
type DBConfig struct {
	Type DBType `mapstructure:"type" rule:"oneof=postgresql postgres pg mysql mariadb sqlite"`
	// DSN 非空时原样交给驱动，忽略下面的连接字段
	DSN      string            `mapstructure:"dsn"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"     rule:"min=0,max=65535"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Database string            `mapstructure:"database" rule:"required_without=DSN"`
	SSLMode  string            `mapstructure:"sslmode"`
	Params   map[string]string `mapstructure:"params"` // 追加到连接串的驱动参数

	MaxOpenConns    int           `mapstructure:"max_open_conns" rule:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" rule:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	AutoMigrate   bool          `mapstructure:"auto_migrate"`
	LogSQL        bool          `mapstructure:"log_sql"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"` // 超过该耗时的 SQL 记 warn
	// PreferSimpleProtocol 经由 pgbouncer 等事务级连接池时关闭服务端预编译语句
	PreferSimpleProtocol bool `mapstructure:"prefer_simple_protocol"`
	// BusyTimeout SQLite 写锁等待时间
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// GetDBType 返回方言名称，用于日志与命令行输出.
func (c *DBConfig) GetDBType() string {
	switch c.Type {
	case PostgreSQL, Postgres, Pg:
		return "PostgreSQL"
	case MySQL, MariaDB:
		return "MySQL"
	case SQLite:
		return "SQLite"
	}

	return "Unknown"
}

// HostPort 返回 host:port，IPv6 地址带方括号.
func (c *DBConfig) HostPort() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SortedParams 按键排序返回附加参数，保证连接串稳定.
func (c *DBConfig) SortedParams() [][2]string {
	out := make([][2]string, 0, len(c.Params))
	for _, k := range slices.Sorted(maps.Keys(c.Params)) {
		out = append(out, [2]string{k, c.Params[k]})
	}

	return out
}

// GetDSN 返回 PostgreSQL 与 SQLite 的连接串；MySQL 由驱动包按自身格式生成，这里只返回显式 DSN.
func (c *DBConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.Type {
	case PostgreSQL, Postgres, Pg:
		return c.postgresURL()
	case SQLite:
		if c.Database == ":memory:" || strings.HasPrefix(c.Database, "file:") {
			return c.Database
		}

		return "file:" + c.Database + ".db"
	}

	return ""
}

// postgresURL 使用 URL 形式，密码中的空格与引号无需额外转义.
func (c *DBConfig) postgresURL() string {
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}

	for _, kv := range c.SortedParams() {
		q.Set(kv[0], kv[1])
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.HostPort(),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}

	return u.String()
}

func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", PostgreSQL)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.database", "minerva")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.slow_threshold", 200*time.Millisecond)
	v.SetDefault("db.busy_timeout", 5*time.Second)
}
