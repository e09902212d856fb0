package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Hub       HubConfig       `mapstructure:"hub"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
	// Instance names this process in the shared topic catalog.
	Instance string `mapstructure:"instance"`
}

type RuntimeConfig struct {
	ComputeWorkers int `mapstructure:"compute_workers"`
	TimerWorkers   int `mapstructure:"timer_workers"`
}

type HubConfig struct {
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout"`
	HistorySize     int           `mapstructure:"history_size"`
	// Uptime publishes the hub's own uptime topic at this interval; zero disables it.
	Uptime time.Duration `mapstructure:"uptime"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type WorkersConfig struct {
	ReconcilerInterval time.Duration `mapstructure:"reconciler_interval"`
}

type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type AuthConfig struct {
	Secret          string        `mapstructure:"secret"`
	AdminUser       string        `mapstructure:"admin_user"`
	AdminPassword   string        `mapstructure:"admin_password"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	APIKeyCacheTTL  time.Duration `mapstructure:"api_key_cache_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
}

// MirrorConfig enables mirroring of remote metrics into the local hub.
// Both sources are optional.
type MirrorConfig struct {
	EtcdPrefix string `mapstructure:"etcd_prefix"`
	Upstream   string `mapstructure:"upstream"`
	Prefix     string `mapstructure:"prefix"`
	APIKey     string `mapstructure:"api_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.instance", "pulsehub-0")

	v.SetDefault("runtime.compute_workers", 8)
	v.SetDefault("runtime.timer_workers", 4)

	v.SetDefault("hub.snapshot_timeout", 100*time.Millisecond)
	v.SetDefault("hub.history_size", 256)
	v.SetDefault("hub.uptime", 5*time.Second)

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("etcd.endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault("etcd.dial_timeout", 5*time.Second)

	v.SetDefault("workers.reconciler_interval", time.Minute)
	v.SetDefault("stream.heartbeat_interval", 15*time.Second)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.api_key_cache_ttl", time.Minute)

	v.SetDefault("ratelimit.requests_per_second", 50)
	v.SetDefault("ratelimit.burst", 100)

	v.SetDefault("mirror.etcd_prefix", "")
	v.SetDefault("mirror.upstream", "")
	v.SetDefault("mirror.prefix", "")
	v.SetDefault("mirror.api_key", "")
}

func Load() *Config {
	cfg, err := load(viper.New())
	if err != nil {
		panic(err)
	}
	return cfg
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, defaults and env cover everything
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
