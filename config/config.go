package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime settings of the chat server
type Config struct {
	Env       string         `mapstructure:"env"`
	Port      string         `mapstructure:"port"`
	LogLevel  string         `mapstructure:"log_level"`
	JWTSecret string         `mapstructure:"jwt_secret"`
	Database  DatabaseConfig `mapstructure:"database"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Kafka     KafkaConfig    `mapstructure:"kafka"`
	Push      PushConfig     `mapstructure:"push"`
	WS        WSConfig       `mapstructure:"ws"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// RedisConfig is optional; an empty Addr disables the push token cache
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// KafkaConfig is optional; no brokers disables event publication
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PushConfig points at the Expo push service; requests go to Host + APIURL + "/push/send"
type PushConfig struct {
	Host        string        `mapstructure:"host"`
	APIURL      string        `mapstructure:"api_url"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

const (
	defaultPort       = "8080"
	defaultLogLevel   = "info"
	defaultEnv        = "development"
	defaultKafkaTopic = "chat.events"
	defaultPushHost   = "https://exp.host"
	defaultPushAPIURL = "/--/api/v2"
	devJWTSecret      = "your-secret-key"
)

var ErrMissingSecret = errors.New("jwt_secret is required outside development")

// Load reads configuration from the optional file at path and from CHAT_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", defaultEnv)
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "chatapp")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.token_ttl", "10m")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", defaultKafkaTopic)
	v.SetDefault("push.host", defaultPushHost)
	v.SetDefault("push.api_url", defaultPushAPIURL)
	v.SetDefault("push.access_token", "")
	v.SetDefault("push.timeout", "10s")
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.max_message_size", 10000)
	v.SetDefault("ws.send_buffer", 256)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma separated broker lists arrive from the environment as a single string.
	if raw := v.GetString("kafka.brokers"); raw != "" && len(cfg.Kafka.Brokers) <= 1 {
		cfg.Kafka.Brokers = splitList(raw)
	}

	if cfg.JWTSecret == "" {
		if cfg.Env != defaultEnv {
			return nil, ErrMissingSecret
		}
		cfg.JWTSecret = devJWTSecret
	}

	return &cfg, nil
}

// Development reports whether the server runs with development defaults
func (c *Config) Development() bool {
	return c.Env == defaultEnv
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
