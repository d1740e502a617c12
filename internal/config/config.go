package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	DataAPI  DataAPIConfig
	Redis    RedisConfig
	NATS     NATSConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	LLM      LLMConfig
	Metering MeteringConfig
	CORS     CORSConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// DataAPIConfig describes the data service's REST surface, used as a fetch
// path independent of the pgx client.
type DataAPIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	SuccessURL    string
	CancelURL     string
	PortalReturn  string
}

type LLMConfig struct {
	Provider string // "openai" or "anthropic"
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// MeteringConfig holds the knobs of the entitlement and usage-metering core.
// Deadlines and retry budgets are product policy, not code constants.
type MeteringConfig struct {
	FreeAllowance     int
	UsageTrustWindow  time.Duration
	ReadDeadline      time.Duration
	WriteDeadline     time.Duration
	WriteRetries      int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	AdminMaxOps       int
	AdminWindow       time.Duration
	AuthRateMax       int
	AuthRateWindowSec int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		DataAPI: DataAPIConfig{
			BaseURL: k.String("dataapi.base.url"),
			APIKey:  k.String("dataapi.key"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		Stripe: StripeConfig{
			SecretKey:     k.String("stripe.secret.key"),
			WebhookSecret: k.String("stripe.webhook.secret"),
			PriceID:       k.String("stripe.price.id"),
			SuccessURL:    k.String("stripe.success.url"),
			CancelURL:     k.String("stripe.cancel.url"),
			PortalReturn:  k.String("stripe.portal.return.url"),
		},
		LLM: LLMConfig{
			Provider: k.String("llm.provider"),
			APIKey:   k.String("llm.api.key"),
			Model:    k.String("llm.model"),
			BaseURL:  k.String("llm.base.url"),
		},
		Metering: MeteringConfig{
			FreeAllowance:     k.Int("metering.free.allowance"),
			WriteRetries:      k.Int("metering.write.retries"),
			AdminMaxOps:       k.Int("metering.admin.max.ops"),
			AuthRateMax:       k.Int("metering.auth.rate.max"),
			AuthRateWindowSec: k.Int("metering.auth.rate.window.sec"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "recallbox"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "recallbox"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.Metering.FreeAllowance == 0 {
		cfg.Metering.FreeAllowance = 10
	}
	if cfg.Metering.WriteRetries == 0 {
		cfg.Metering.WriteRetries = 2
	}
	if cfg.Metering.AdminMaxOps == 0 {
		cfg.Metering.AdminMaxOps = 30
	}
	if cfg.Metering.AuthRateMax == 0 {
		cfg.Metering.AuthRateMax = 20
	}
	if cfg.Metering.AuthRateWindowSec == 0 {
		cfg.Metering.AuthRateWindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	if cfg.JWT.AccessExpiry, err = parseDuration(k, "jwt.access.expiry", "15m"); err != nil {
		return nil, err
	}
	if cfg.JWT.RefreshExpiry, err = parseDuration(k, "jwt.refresh.expiry", "168h"); err != nil {
		return nil, err
	}
	if cfg.DataAPI.Timeout, err = parseDuration(k, "dataapi.timeout", "2s"); err != nil {
		return nil, err
	}
	if cfg.LLM.Timeout, err = parseDuration(k, "llm.timeout", "60s"); err != nil {
		return nil, err
	}
	if cfg.Metering.UsageTrustWindow, err = parseDuration(k, "metering.usage.trust.window", "60s"); err != nil {
		return nil, err
	}
	if cfg.Metering.ReadDeadline, err = parseDuration(k, "metering.read.deadline", "2s"); err != nil {
		return nil, err
	}
	if cfg.Metering.WriteDeadline, err = parseDuration(k, "metering.write.deadline", "5s"); err != nil {
		return nil, err
	}
	if cfg.Metering.BackoffBase, err = parseDuration(k, "metering.backoff.base", "250ms"); err != nil {
		return nil, err
	}
	if cfg.Metering.BackoffCap, err = parseDuration(k, "metering.backoff.cap", "5s"); err != nil {
		return nil, err
	}
	if cfg.Metering.AdminWindow, err = parseDuration(k, "metering.admin.window", "1m"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
