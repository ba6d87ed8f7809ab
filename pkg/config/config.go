package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务全量配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log_level"`
	NodeID   int64  `mapstructure:"node_id"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RelayDelay   time.Duration `mapstructure:"relay_delay"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxRetry     int           `mapstructure:"max_retry"`
}

type ReconcileConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	LikeSetTTL time.Duration `mapstructure:"like_set_ttl"`
}

type RankingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	TopN     int           `mapstructure:"top_n"`
	MinHold  time.Duration `mapstructure:"min_hold"`
	MaxHold  time.Duration `mapstructure:"max_hold"`
}

// Load 读取 config.yaml 并允许环境变量覆盖（COMMUNITY_ 前缀）
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMMUNITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 允许无配置文件，全部走默认值/环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.node_id", 0)
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=community port=5432 sslmode=disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("outbox.poll_interval", 200*time.Millisecond)
	v.SetDefault("outbox.relay_delay", time.Second)
	v.SetDefault("outbox.batch_size", 128)
	v.SetDefault("outbox.max_retry", 5)
	v.SetDefault("reconcile.interval", time.Minute)
	v.SetDefault("reconcile.like_set_ttl", 30*24*time.Hour)
	v.SetDefault("ranking.interval", 10*time.Minute)
	v.SetDefault("ranking.top_n", 10)
	v.SetDefault("ranking.min_hold", time.Minute)
	v.SetDefault("ranking.max_hold", 5*time.Minute)
}
