package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config — общая конфигурация приложения
// значения: окружение, затем .env, затем config.yaml, затем значения по умолчанию
type Config struct {
	TelegramToken      string `mapstructure:"telegram_token"`
	ChatID             string `mapstructure:"telegram_chat_id"`
	APIEndpoint        string `mapstructure:"telegram_api_endpoint"`
	UploadDir          string `mapstructure:"upload_dir"`
	ListenAddr         string `mapstructure:"listen_addr"`
	MaxLocalMB         int64  `mapstructure:"max_local_mb"`
	RetentionHours     int    `mapstructure:"retention_hours"`
	FetchTimeoutSec    int    `mapstructure:"fetch_timeout_sec"`
	DocumentTimeoutSec int    `mapstructure:"document_timeout_sec"`
	MessageTimeoutSec  int    `mapstructure:"message_timeout_sec"`
	Debug              bool   `mapstructure:"debug"`
}

// ErrMissingCredentials — не заданы токен бота и/или чат назначения
var ErrMissingCredentials = errors.New("missing telegram credentials")

var defaults = map[string]any{
	"telegram_token":        "",
	"telegram_chat_id":      "",
	"telegram_api_endpoint": "https://api.telegram.org/bot%s/%s",
	"upload_dir":            "uploads",
	"listen_addr":           ":8501",
	"max_local_mb":          5120,
	"retention_hours":       0,
	"fetch_timeout_sec":     60,
	"document_timeout_sec":  180,
	"message_timeout_sec":   60,
	"debug":                 false,
}

// Load — загрузка конфигурации; dir — где искать .env и config.yaml
func Load(dir string) (*Config, error) {
	cfg, err := Read(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read — как Load, но без проверки токена и чата (локальные команды CLI)
func Read(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env")) // необязательно, окружение не перезаписывается

	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)

	// нормализуем путь
	if d, err := filepath.Abs(cfg.UploadDir); err == nil {
		cfg.UploadDir = d
	}
	return cfg, nil
}

// Validate — проверка обязательных значений
func (c *Config) Validate() error {
	var missing []string
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if c.ChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s in the environment or .env", ErrMissingCredentials, strings.Join(missing, " and "))
	}
	return nil
}

// MaxLocalBytes — предел размера локального файла, 0 — без ограничения
func (c *Config) MaxLocalBytes() int64 {
	if c.MaxLocalMB <= 0 {
		return 0
	}
	return c.MaxLocalMB * 1024 * 1024
}

func (c *Config) FetchTimeout() time.Duration {
	return seconds(c.FetchTimeoutSec, 60)
}

func (c *Config) DocumentTimeout() time.Duration {
	return seconds(c.DocumentTimeoutSec, 180)
}

func (c *Config) MessageTimeout() time.Duration {
	return seconds(c.MessageTimeoutSec, 60)
}

func (c *Config) Retention() time.Duration {
	if c.RetentionHours <= 0 {
		return 0
	}
	return time.Duration(c.RetentionHours) * time.Hour
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
