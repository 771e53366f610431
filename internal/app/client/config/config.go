package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultEnv           = "local"
	defaultConfigDir     = ".gravity"
	defaultSQLiteDriver  = "sqlite3"
)

type Config struct {
	Env           string
	ServerAddress string
	EnableTLS     bool
	ConfigDir     string
	DataPath      string
	SQLiteDriver  string
	LogFile       string
	UID           string
	AuthToken     string
	SyncInterval  time.Duration
	HTTPTimeout   time.Duration
}

// MustLoad загружает конфигурацию клиента или завершает процесс с паникой
func MustLoad(v *viper.Viper) *Config {
	cfg, err := Load(v)
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}
	return cfg
}

// Load читает .env, переменные окружения и, если задан, файл конфигурации в v.
// Флаги CLI привязываются к v вызывающей стороной и имеют приоритет.
func Load(v *viper.Viper) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("ошибка загрузки .env файла: %w", err)
		}
	}

	if v == nil {
		v = viper.New()
	}
	v.AutomaticEnv()

	v.SetDefault("app_env", defaultEnv)
	v.SetDefault("server_address", defaultServerAddress)
	v.SetDefault("enable_tls", false)
	v.SetDefault("config_dir", "")
	v.SetDefault("sqlite_driver", defaultSQLiteDriver)
	v.SetDefault("sync_interval_seconds", 30)
	v.SetDefault("http_timeout_seconds", 30)

	configDir := v.GetString("config_dir")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		configDir = filepath.Join(homeDir, defaultConfigDir)
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, fmt.Errorf("ошибка создания директории конфигурации: %w", err)
	}

	cfg := &Config{
		Env:           v.GetString("app_env"),
		ServerAddress: v.GetString("server_address"),
		EnableTLS:     v.GetBool("enable_tls"),
		ConfigDir:     configDir,
		DataPath:      v.GetString("data_path"),
		SQLiteDriver:  v.GetString("sqlite_driver"),
		LogFile:       v.GetString("log_file"),
		UID:           v.GetString("uid"),
		AuthToken:     v.GetString("auth_token"),
		SyncInterval:  time.Duration(v.GetInt("sync_interval_seconds")) * time.Second,
		HTTPTimeout:   time.Duration(v.GetInt("http_timeout_seconds")) * time.Second,
	}
	if cfg.DataPath == "" {
		cfg.DataPath = filepath.Join(configDir, "replica.db")
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(configDir, "client.log")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("server_address не может быть пустым")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval_seconds должен быть положительным")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout_seconds должен быть положительным")
	}
	return nil
}

// BaseURL возвращает адрес сервера со схемой. Адрес со схемой используется как есть.
func (c *Config) BaseURL() string {
	addr := strings.TrimSuffix(c.ServerAddress, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if c.EnableTLS {
		return "https://" + addr
	}
	return "http://" + addr
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
