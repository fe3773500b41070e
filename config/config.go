package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/reminder-api/pkg/messaging/redis"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port" envconfig:"PORT"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PublicURL is the externally reachable origin used to build the
	// scheduler callback URL. Empty means "derive from the create request".
	PublicURL string `mapstructure:"public_url" envconfig:"PUBLIC_URL"`
}

type DatabaseConfig struct {
	// Driver is "postgres", "mysql" or "sqlite".
	Driver string `mapstructure:"driver" envconfig:"DB_DRIVER"`
	// URL is a full DSN; for postgres it wins over the discrete fields and
	// mysql requires it.
	URL      string `mapstructure:"url" envconfig:"DATABASE_URL"`
	Host     string `mapstructure:"host" envconfig:"DB_HOST"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT"`
	User     string `mapstructure:"user" envconfig:"DB_USER"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path" envconfig:"DB_PATH"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"REDIS_URL"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" envconfig:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" envconfig:"LOG_PRETTY"`
}

type SecurityConfig struct {
	// CronSecret authenticates scheduler callbacks on the trigger endpoint.
	CronSecret        string   `mapstructure:"cron_secret" envconfig:"CRON_SECRET"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	Burst             int      `mapstructure:"burst"`
}

type SchedulerConfig struct {
	APIKey      string        `mapstructure:"api_key" envconfig:"CRONJOB_API_KEY"`
	BaseURL     string        `mapstructure:"base_url" envconfig:"CRONJOB_BASE_URL"`
	Timezone    string        `mapstructure:"timezone" envconfig:"CRONJOB_TIMEZONE"`
	ExpireAfter time.Duration `mapstructure:"expire_after"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type TriggerConfig struct {
	// LockTTL bounds how long a crashed trigger can hold the Redis lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" envconfig:"TG_BOT_TOKEN"`
	ChatID   string `mapstructure:"chat_id" envconfig:"TG_CHAT_ID"`
	APIURL   string `mapstructure:"api_url" envconfig:"TG_API_URL"`
}

type BarkConfig struct {
	Key       string `mapstructure:"key" envconfig:"BARK_KEY"`
	ServerURL string `mapstructure:"server_url" envconfig:"BARK_SERVER"`
}

type EmailConfig struct {
	Host     string   `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int      `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username string   `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string   `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string   `mapstructure:"from" envconfig:"SMTP_FROM"`
	To       []string `mapstructure:"to" envconfig:"SMTP_TO"`
}

type WhatsAppConfig struct {
	AccountSID string `mapstructure:"account_sid" envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `mapstructure:"auth_token" envconfig:"TWILIO_AUTH_TOKEN"`
	From       string `mapstructure:"from" envconfig:"TWILIO_WHATSAPP_FROM"`
	To         string `mapstructure:"to" envconfig:"TWILIO_WHATSAPP_TO"`
}

// ChannelsConfig enumerates every recognised notification channel. A
// channel is active if and only if its credentials are present.
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	WeComURL string         `mapstructure:"wecom_url" envconfig:"WECOM_KEY"`
	Bark     BarkConfig     `mapstructure:"bark"`
	// FeishuURL and DingTalkURL are the two enterprise IM webhook flavours.
	FeishuURL   string         `mapstructure:"feishu_url" envconfig:"FEISHU_KEY"`
	DingTalkURL string         `mapstructure:"dingtalk_url" envconfig:"DINGTALK_KEY"`
	Email       EmailConfig    `mapstructure:"email"`
	WhatsApp    WhatsAppConfig `mapstructure:"whatsapp"`
	// Timeout bounds each channel send; zero means only the request context.
	Timeout time.Duration `mapstructure:"timeout" envconfig:"CHANNEL_TIMEOUT"`
}

func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != ""
}

func (c BarkConfig) Enabled() bool {
	return c.Key != ""
}

func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

func (c WhatsAppConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != "" && c.To != ""
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Trigger   TriggerConfig   `mapstructure:"trigger"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	// Timezone is the calendar zone for recurrence, display and
	// zone-less input times.
	Timezone string `mapstructure:"timezone" envconfig:"TIMEZONE"`
	Monitoring struct {
		PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
		MetricsPath       string `mapstructure:"metrics_path"`
		Namespace         string `mapstructure:"namespace"`
	} `mapstructure:"monitoring"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/reminders.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.requests_per_second", 20.0)
	v.SetDefault("security.burst", 40)
	v.SetDefault("scheduler.base_url", "https://api.cron-job.org")
	v.SetDefault("scheduler.timezone", "Asia/Shanghai")
	v.SetDefault("scheduler.expire_after", 5*time.Minute)
	v.SetDefault("scheduler.timeout", 10*time.Second)
	v.SetDefault("trigger.lock_ttl", 30*time.Second)
	v.SetDefault("channels.bark.server_url", "https://api.day.app")
	v.SetDefault("channels.email.port", 587)
	v.SetDefault("channels.timeout", 15*time.Second)
	v.SetDefault("timezone", "Asia/Shanghai")
	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.namespace", "reminder")
}

// LoadConfig reads config.yml when present, then overlays environment
// variables (including a local .env file).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")
	setDefaults(v)

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

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Security.CronSecret) == "" {
		return errors.New("config: CRON_SECRET is required")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" && c.Database.Host == "" {
			return errors.New("config: postgres needs DATABASE_URL or database.host")
		}
	case "mysql":
		if c.Database.URL == "" {
			return errors.New("config: mysql needs DATABASE_URL")
		}
	case "sqlite":
		if c.Database.URL == "" && c.Database.Path == "" {
			return errors.New("config: sqlite needs database.path")
		}
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the calendar timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PostgresDSN builds a lib/pq connection string.
func (c DatabaseConfig) PostgresDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
