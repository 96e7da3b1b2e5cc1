package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	DevMode  bool   `mapstructure:"dev_mode"`

	// Conversations and accounts live in the appchat database,
	// scheduled redirects in the backoffice database
	AppChatDatabaseURL    string `mapstructure:"appchat_database_url"`
	BackofficeDatabaseURL string `mapstructure:"backoffice_database_url"`
	RedisURL              string `mapstructure:"redis_url"`

	// HS256 secret for operator tokens. Empty disables authentication.
	JWTSecret string `mapstructure:"jwt_secret"`

	Directory DirectoryConfig `mapstructure:"directory"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type DirectoryConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ReconcileConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
	LockKey     string        `mapstructure:"lock_key"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present (local development)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("directory.timeout", 10*time.Second)
	v.SetDefault("directory.cache_ttl", 10*time.Minute)
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", 5*time.Minute)
	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("reconcile.item_timeout", 30*time.Second)
	v.SetDefault("reconcile.lock_key", "backoffice:redirects:reconcile")
	v.SetDefault("reconcile.lock_ttl", 10*time.Minute)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("backoffice")

	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("dev_mode", "DEV_MODE")
	_ = v.BindEnv("appchat_database_url", "APPCHAT_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("backoffice_database_url", "BACKOFFICE_DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")

	_ = v.BindEnv("directory.base_url", "DIRECTORY_BASE_URL")
	_ = v.BindEnv("directory.token", "DIRECTORY_TOKEN")
	_ = v.BindEnv("directory.timeout", "DIRECTORY_TIMEOUT")
	_ = v.BindEnv("directory.cache_ttl", "DIRECTORY_CACHE_TTL")

	_ = v.BindEnv("reconcile.enabled", "RECONCILE_ENABLED")
	_ = v.BindEnv("reconcile.interval", "RECONCILE_INTERVAL")
	_ = v.BindEnv("reconcile.concurrency", "RECONCILE_CONCURRENCY")
	_ = v.BindEnv("reconcile.item_timeout", "RECONCILE_ITEM_TIMEOUT")
	_ = v.BindEnv("reconcile.lock_ttl", "RECONCILE_LOCK_TTL")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("Loaded config from: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}

	// Both schemas may share one database
	if cfg.BackofficeDatabaseURL == "" {
		cfg.BackofficeDatabaseURL = cfg.AppChatDatabaseURL
	}

	App = cfg
	setEnvIfEmpty("PORT", App.Port)
	return nil
}

func setEnvIfEmpty(key, value string) {
	if value != "" && os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
