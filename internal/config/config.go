// Package config loads gateway configuration from the environment and an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the gateway needs to run.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	SMS      SMSConfig      `yaml:"sms"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT,default=8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT,default=5s"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// SupabaseConfig points at the managed backend.
type SupabaseConfig struct {
	URL        string `yaml:"url" env:"SUPABASE_URL"`
	AnonKey    string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	ServiceKey string `yaml:"service_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	Bucket     string `yaml:"bucket" env:"SUPABASE_STORAGE_BUCKET,default=product-images"`
}

// AuthConfig configures session verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
}

// RedisConfig points at the OTP store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR,default=localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB,default=0"`
}

// SMSConfig configures the Twilio sender.
type SMSConfig struct {
	AccountSID string `yaml:"account_sid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `yaml:"from_number" env:"TWILIO_PHONE_NUMBER"`
}

// LimitsConfig configures the HTTP rate limiter.
type LimitsConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second" env:"RATE_LIMIT_RPS,default=20"`
	Burst             int `yaml:"burst" env:"RATE_LIMIT_BURST,default=40"`
}

// Load reads .env if present, then decodes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromPath reads a YAML config file, then overlays the environment.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	_ = godotenv.Load()
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.Supabase.ServiceKey == "" && c.Supabase.AnonKey == "" {
		return fmt.Errorf("a Supabase API key is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
