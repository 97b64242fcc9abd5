package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/wisegate/wisegate/pkg/config"
	"github.com/wisegate/wisegate/pkg/database"
	"github.com/wisegate/wisegate/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Engine    EngineConfig
	Database  database.Config
	Redis     RedisConfig
	Kafka     KafkaConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	CookieName string        `mapstructure:"cookie_name"`
}

// EngineConfig points at the external answer-generation engine: one
// request/response endpoint and one long-lived event stream.
type EngineConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StreamURL      string        `mapstructure:"stream_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinBackoff     time.Duration `mapstructure:"min_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type RedisConfig struct {
	Address         string
	Password        string
	DB              int
	CachePrefix     string        `mapstructure:"cache_prefix"`
	SessionCacheTTL time.Duration `mapstructure:"session_cache_ttl"`
}

type KafkaConfig struct {
	Brokers    string
	Topic      string
	Partitions int
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.cookie_name", "jwt")
	v.SetDefault("engine.base_url", "http://localhost:9000")
	v.SetDefault("engine.stream_url", "ws://localhost:9000/events")
	v.SetDefault("engine.request_timeout", "120s")
	v.SetDefault("engine.min_backoff", "1s")
	v.SetDefault("engine.max_backoff", "30s")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "wisegate")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", "wisegate")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_prefix", "wisegate")
	v.SetDefault("redis.session_cache_ttl", "5m")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "chat-turns")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "wisegate")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("auth.signing_key", "AUTH_SIGNING_KEY")
	v.BindEnv("engine.base_url", "ENGINE_BASE_URL")
	v.BindEnv("engine.stream_url", "ENGINE_STREAM_URL")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Auth.TokenTTL = parseDuration(v, "auth.token_ttl", 24*time.Hour)
	cfg.Engine.RequestTimeout = parseDuration(v, "engine.request_timeout", 120*time.Second)
	cfg.Engine.MinBackoff = parseDuration(v, "engine.min_backoff", time.Second)
	cfg.Engine.MaxBackoff = parseDuration(v, "engine.max_backoff", 30*time.Second)
	cfg.Redis.SessionCacheTTL = parseDuration(v, "redis.session_cache_ttl", 5*time.Minute)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
