package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // dashboard origins for CORS
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // Supabase project JWT secret (HS256)
	Audience  string `yaml:"audience"`
}

// MpesaConfig holds Daraja credentials and the callback trust policy.
type MpesaConfig struct {
	Environment    string `yaml:"environment"` // sandbox | production
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	ShortCode      string `yaml:"shortcode"`
	Passkey        string `yaml:"passkey"`
	CallbackURL    string `yaml:"callback_url"`
	AccountRef     string `yaml:"account_reference"`
	UseNoop        bool   `yaml:"use_noop"` // dev only: fake gateway

	CallbackSecret       string   `yaml:"callback_secret"`
	CallbackSecretHeader string   `yaml:"callback_secret_header"`
	CallbackAllowedIPs   []string `yaml:"callback_allowed_ips"`
	CallbackStrict       bool     `yaml:"callback_strict"`

	InitiateLimit  int           `yaml:"initiate_limit"`
	InitiateWindow time.Duration `yaml:"initiate_window"`
}

type SMSConfig struct {
	Username string `yaml:"username"` // Africa's Talking app username
	APIKey   string `yaml:"api_key"`
	SenderID string `yaml:"sender_id"`
	BaseURL  string `yaml:"base_url"`
}

type EmailConfig struct {
	APIKey  string `yaml:"api_key"`
	From    string `yaml:"from"`
	BaseURL string `yaml:"base_url"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type AlertsConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	ChatIDs       []int64 `yaml:"chat_ids"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Lease        time.Duration `yaml:"lease"`
}

type SchedulerConfig struct {
	ReminderCron string `yaml:"reminder_cron"`
	CronSecret   string `yaml:"cron_secret"`
	Timezone     string `yaml:"timezone"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Mpesa     MpesaConfig     `yaml:"mpesa"`
	SMS       SMSConfig       `yaml:"sms"`
	Email     EmailConfig     `yaml:"email"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads an optional .env file, the YAML file at path (missing file
// is allowed when everything comes from the environment), then applies
// environment overrides, defaults and validation.
func LoadConfig(path string, dev bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Mpesa.Environment == "" {
		cfg.Mpesa.Environment = "sandbox"
	}
	if cfg.Mpesa.CallbackSecretHeader == "" {
		cfg.Mpesa.CallbackSecretHeader = "X-Mpesa-Callback-Secret"
	}
	if cfg.Mpesa.AccountRef == "" {
		cfg.Mpesa.AccountRef = "SMECompliance"
	}
	if cfg.Mpesa.InitiateLimit <= 0 {
		cfg.Mpesa.InitiateLimit = 5
	}
	if cfg.Mpesa.InitiateWindow <= 0 {
		cfg.Mpesa.InitiateWindow = 10 * time.Minute
	}
	if cfg.SMS.BaseURL == "" {
		cfg.SMS.BaseURL = "https://api.africastalking.com"
	}
	if cfg.Email.BaseURL == "" {
		cfg.Email.BaseURL = "https://api.resend.com"
	}
	if cfg.Webhook.Timeout <= 0 {
		cfg.Webhook.Timeout = 10 * time.Second
	}
	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "payments"
	}
	if cfg.Outbox.PollInterval <= 0 {
		cfg.Outbox.PollInterval = 2 * time.Second
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 50
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		cfg.Outbox.MaxAttempts = 8
	}
	if cfg.Outbox.Lease <= 0 {
		cfg.Outbox.Lease = 2 * time.Minute
	}
	if cfg.Scheduler.ReminderCron == "" {
		cfg.Scheduler.ReminderCron = "0 8 * * *"
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Africa/Nairobi"
	}
}

// Validate performs minimal validation; gateway credentials are only
// required when the real gateway is in use.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if !c.Mpesa.UseNoop {
		if c.Mpesa.ConsumerKey == "" || c.Mpesa.ConsumerSecret == "" {
			return errors.New("mpesa.consumer_key and mpesa.consumer_secret are required")
		}
		if c.Mpesa.ShortCode == "" || c.Mpesa.Passkey == "" {
			return errors.New("mpesa.shortcode and mpesa.passkey are required")
		}
		if c.Mpesa.CallbackURL == "" {
			return errors.New("mpesa.callback_url is required")
		}
	}
	switch c.Mpesa.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("mpesa.environment must be sandbox or production, got %q", c.Mpesa.Environment)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv lets deployment secrets override the YAML file.
func applyEnv(cfg *Config, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("SUPABASE_JWT_SECRET", &cfg.Auth.JWTSecret)

	str("MPESA_ENVIRONMENT", &cfg.Mpesa.Environment)
	str("MPESA_CONSUMER_KEY", &cfg.Mpesa.ConsumerKey)
	str("MPESA_CONSUMER_SECRET", &cfg.Mpesa.ConsumerSecret)
	str("MPESA_SHORTCODE", &cfg.Mpesa.ShortCode)
	str("MPESA_PASSKEY", &cfg.Mpesa.Passkey)
	str("MPESA_CALLBACK_URL", &cfg.Mpesa.CallbackURL)
	str("MPESA_CALLBACK_SECRET", &cfg.Mpesa.CallbackSecret)
	boolean("MPESA_CALLBACK_STRICT", &cfg.Mpesa.CallbackStrict)
	if v, ok := lookup("MPESA_CALLBACK_ALLOWED_IPS"); ok {
		cfg.Mpesa.CallbackAllowedIPs = splitList(v)
	}

	str("AT_USERNAME", &cfg.SMS.Username)
	str("AT_API_KEY", &cfg.SMS.APIKey)
	str("EMAIL_API_KEY", &cfg.Email.APIKey)
	str("EMAIL_FROM", &cfg.Email.From)
	str("INTEGRATION_WEBHOOK_URL", &cfg.Webhook.URL)
	str("INTEGRATION_WEBHOOK_SECRET", &cfg.Webhook.Secret)
	str("AMQP_URL", &cfg.AMQP.URL)
	str("TELEGRAM_ALERT_TOKEN", &cfg.Alerts.TelegramToken)
	str("CRON_SECRET", &cfg.Scheduler.CronSecret)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
