package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Identity IdentityConfig `mapstructure:"identity"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	Namespace      string `mapstructure:"namespace"`
}

type LedgerConfig struct {
	RPCAddress   string        `mapstructure:"rpc_address"`
	Simulate     bool          `mapstructure:"simulate"`
	JoinStake    string        `mapstructure:"join_stake"` // 最小单位，默认 1 gwei
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// IdentityConfig 启动时连接的账户，可为空
type IdentityConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "", "gorm" 或 "postgres"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.metrics_address", ":9100")
	v.SetDefault("server.namespace", "dilemmaview")
	v.SetDefault("ledger.rpc_address", "127.0.0.1:9000")
	v.SetDefault("ledger.simulate", true)
	v.SetDefault("ledger.join_stake", "1000000000")
	v.SetDefault("ledger.query_timeout", 5*time.Second)
	v.SetDefault("ledger.write_timeout", 30*time.Second)
	v.SetDefault("identity.address", "")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "dilemmaview")
}

// LoadConfig reads config.yaml from path. A missing file leaves the
// defaults; environment variables such as LEDGER_RPC_ADDRESS override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
