package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/media-push/pkg/auth"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Push        PushConfig        `mapstructure:"push"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	DeviceCache DeviceCacheConfig `mapstructure:"device_cache"`
	Log         LogConfig         `mapstructure:"log"`
	Worker      WorkerConfig      `mapstructure:"worker"`

	// Credential is read from FIREBASE_* environment variables only.
	Credential auth.ServiceCredential `mapstructure:"-"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig configures report publishing. An empty URL disables it.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type PushConfig struct {
	SendURL         string        `mapstructure:"send_url"`
	TokenURI        string        `mapstructure:"token_uri"`
	Scope           string        `mapstructure:"scope"`
	ExpiryMargin    time.Duration `mapstructure:"expiry_margin"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	LinkConcurrency int           `mapstructure:"link_concurrency"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type DeviceCacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	Cleanup time.Duration `mapstructure:"cleanup"`
}

type WorkerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 55*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "media_push")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("push.send_url", "https://fcm.googleapis.com/v1/projects/%s/messages:send")
	v.SetDefault("push.token_uri", auth.DefaultTokenURI)
	v.SetDefault("push.scope", auth.MessagingScope)
	v.SetDefault("push.expiry_margin", auth.DefaultExpiryMargin)
	v.SetDefault("push.http_timeout", 15*time.Second)
	v.SetDefault("push.send_timeout", 10*time.Second)
	v.SetDefault("push.max_concurrency", 64)
	v.SetDefault("push.link_concurrency", 16)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("device_cache.ttl", 5*time.Minute)
	v.SetDefault("device_cache.cleanup", 10*time.Minute)

	v.SetDefault("worker.health_port", 8081)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
}

// LoadConfig reads config.yml from the usual locations, overlays
// environment variables (DATABASE_HOST for database.host and so on) and
// loads the service credential from FIREBASE_* variables. A missing
// config file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	config, err := LoadSettings(paths...)
	if err != nil {
		return nil, err
	}

	if err := envconfig.Process("FIREBASE", &config.Credential); err != nil {
		return nil, fmt.Errorf("failed to load service credential: %w", err)
	}
	// FIREBASE_TOKEN_URI / FIREBASE_SCOPE win over the push section.
	if !envSet("FIREBASE_TOKEN_URI") && config.Push.TokenURI != "" {
		config.Credential.TokenURI = config.Push.TokenURI
	}
	if !envSet("FIREBASE_SCOPE") && config.Push.Scope != "" {
		config.Credential.Scope = config.Push.Scope
	}
	config.Credential = config.Credential.Normalize()

	return config, nil
}

// LoadSettings is LoadConfig without the service credential, for
// processes that never talk to the push provider.
func LoadSettings(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// Addr is the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
