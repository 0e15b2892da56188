package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 进程级配置（文件 + 环境变量覆盖）
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Email       EmailConfig       `mapstructure:"email"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Otel        OtelConfig        `mapstructure:"otel"`
}

type ServerConfig struct {
	IP   string `mapstructure:"ip"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite / postgres
	DSN    string `mapstructure:"dsn"`
	MemMB  int    `mapstructure:"mem_mb"` // 页缓存内存上限（MB）
}

// ReplicationConfig 复制配置；Source 为空表示本进程是 leader
type ReplicationConfig struct {
	Source        string        `mapstructure:"source"`
	UserID        string        `mapstructure:"user_id"`
	Token         string        `mapstructure:"token"` // 预哈希口令
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffCap    time.Duration `mapstructure:"backoff_cap"`
	BatchMaxCount int           `mapstructure:"batch_max_count"`
	BatchMaxBytes int           `mapstructure:"batch_max_bytes"`
}

type SchedulerConfig struct {
	MaxPollInterval time.Duration `mapstructure:"max_poll_interval"`
}

type EmailConfig struct {
	SMTPHost    string        `mapstructure:"smtp_host"`
	SMTPPort    int           `mapstructure:"smtp_port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	LoginRate  float64       `mapstructure:"login_rate"`  // 每秒允许的登录尝试
	LoginBurst int           `mapstructure:"login_burst"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type OtelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// IsLeader 无复制来源即为 leader
func (c *Config) IsLeader() bool { return c.Replication.Source == "" }

// Load 读取 config.yaml（缺省允许），环境变量 REPLWEB_* 覆盖
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("replweb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
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
	v.SetDefault("server.ip", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "replweb.db")
	v.SetDefault("database.mem_mb", 10)

	v.SetDefault("replication.source", "")
	v.SetDefault("replication.poll_interval", 5*time.Second)
	v.SetDefault("replication.backoff_base", 2*time.Second)
	v.SetDefault("replication.backoff_cap", 10*time.Minute)
	v.SetDefault("replication.batch_max_count", 64)
	v.SetDefault("replication.batch_max_bytes", 4<<20)

	v.SetDefault("scheduler.max_poll_interval", 60*time.Second)

	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.backoff_base", time.Minute)
	v.SetDefault("email.backoff_cap", 4*time.Hour)
	v.SetDefault("email.max_attempts", 8)

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.login_rate", 1.0)
	v.SetDefault("auth.login_burst", 5)
}
