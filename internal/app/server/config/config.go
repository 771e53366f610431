package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mammuth/gravity-tasks/internal/utils/logger"
)

const (
	envPath = ".env"

	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Env     string
	Storage string
	DB      DB
	Server  Server
	Auth    Auth
	Sync    Sync
}

type DB struct {
	DatabaseURI string `env:"DATABASE_URI"`
	Migrations  string `env:"MIGRATIONS_PATH"`
}

type Server struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT_SECONDS"`
}

type Auth struct {
	// JWTSecret включает проверку Bearer-токенов вместо доверия X-UID
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

type Sync struct {
	MaxBatchSize    int `env:"MAX_BATCH_SIZE"`
	ApplyMaxRetries int `env:"APPLY_MAX_RETRIES"`
}

// MustLoad загружает конфигурацию или завершает процесс
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("app_env", logger.EnvLocal)
	v.SetDefault("run_address", ":8080")
	v.SetDefault("migrations_path", "migrations")
	v.SetDefault("max_batch_size", 500)
	v.SetDefault("apply_max_retries", 5)
	v.SetDefault("shutdown_timeout_seconds", 10)

	cfg := &Config{
		Env:     v.GetString("app_env"),
		Storage: v.GetString("storage"),
		DB: DB{
			DatabaseURI: v.GetString("database_uri"),
			Migrations:  v.GetString("migrations_path"),
		},
		Server: Server{
			RunAddress:      v.GetString("run_address"),
			ShutdownTimeout: time.Duration(v.GetInt("shutdown_timeout_seconds")) * time.Second,
		},
		Auth: Auth{JWTSecret: v.GetString("auth_jwt_secret")},
		Sync: Sync{
			MaxBatchSize:    v.GetInt("max_batch_size"),
			ApplyMaxRetries: v.GetInt("apply_max_retries"),
		},
	}

	if cfg.Storage == "" {
		cfg.Storage = StorageMemory
		if cfg.DB.DatabaseURI != "" {
			cfg.Storage = StoragePostgres
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DB.DatabaseURI == "" {
			errs = append(errs, errors.New("DATABASE_URI is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE %q", c.Storage))
	}
	if c.Server.RunAddress == "" {
		errs = append(errs, errors.New("RUN_ADDRESS is required"))
	}
	if c.Sync.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("MAX_BATCH_SIZE must be positive"))
	}
	if c.Sync.ApplyMaxRetries < 0 {
		errs = append(errs, errors.New("APPLY_MAX_RETRIES must not be negative"))
	}

	return errors.Join(errs...)
}
