// Package config 加载订单中台的运行配置
//
// 优先级从低到高：默认值、YAML 配置文件、ORDERDESK_ 前缀的环境变量。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"orderdesk/errors"
	"orderdesk/logging"
)

// EnvPrefix 环境变量前缀，例如 ORDERDESK_HTTP_PORT
const EnvPrefix = "ORDERDESK"

// 存储驱动
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// 事件传输
const (
	TransportNone   = "none"
	TransportMemory = "memory"
	TransportNATS   = "nats"
	TransportRedis  = "redis"
)

// Config 根配置
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Events    EventsConfig    `mapstructure:"events"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// Addr 监听地址
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig 存储配置
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// EventsConfig 事件发布配置
type EventsConfig struct {
	Transport         string `mapstructure:"transport"`
	NATSURL           string `mapstructure:"nats_url"`
	NATSStream        string `mapstructure:"nats_stream"`
	RedisAddr         string `mapstructure:"redis_addr"`
	RedisStreamPrefix string `mapstructure:"redis_stream_prefix"`
	QueueSize         int    `mapstructure:"queue_size"`
	Workers           int    `mapstructure:"workers"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DashboardConfig 看板配置
type DashboardConfig struct {
	CostCacheTTL  time.Duration `mapstructure:"cost_cache_ttl"`
	CostCacheSize int           `mapstructure:"cost_cache_size"`
	// MaxRangeDays 单次查询最多覆盖的天数
	MaxRangeDays int `mapstructure:"max_range_days"`
}

// SeedConfig 演示数据配置
type SeedConfig struct {
	Count int `mapstructure:"count"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.dsn", "file:orderdesk.db?_pragma=foreign_keys(1)")

	v.SetDefault("events.transport", TransportNone)
	v.SetDefault("events.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("events.nats_stream", "ORDERDESK")
	v.SetDefault("events.redis_addr", "127.0.0.1:6379")
	v.SetDefault("events.redis_stream_prefix", "orderdesk:")
	v.SetDefault("events.queue_size", 1000)
	v.SetDefault("events.workers", 4)

	v.SetDefault("log.level", "info")

	v.SetDefault("dashboard.cost_cache_ttl", time.Minute)
	v.SetDefault("dashboard.cost_cache_size", 1024)
	v.SetDefault("dashboard.max_range_days", 3660)

	v.SetDefault("seed.count", 50)
}

// Default 返回全部默认值
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load 加载配置；path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("seed.count", EnvPrefix+"_SEED_COUNT", "SEED_COUNT"); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "bind environment")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeInvalidInput,
				fmt.Sprintf("read config file %s", path))
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return errors.Errorf(errors.ErrCodeInvalidInput, "http.port must be within 1..65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	default:
		return errors.Errorf(errors.ErrCodeInvalidInput, "unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Events.Transport {
	case TransportNone, TransportMemory, TransportNATS, TransportRedis:
	default:
		return errors.Errorf(errors.ErrCodeInvalidInput, "unknown events transport %q", c.Events.Transport)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "invalid log.level")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.Errorf(errors.ErrCodeInvalidInput, "http.max_body_bytes must be positive")
	}
	if c.Dashboard.MaxRangeDays <= 0 {
		return errors.Errorf(errors.ErrCodeInvalidInput,
			"dashboard.max_range_days must be positive, got %d", c.Dashboard.MaxRangeDays)
	}
	return nil
}
