package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	// Server
	Port int    `mapstructure:"PORT"`
	Env  string `mapstructure:"APP_ENV"` // development | production

	// Theater identity (printed on every bill)
	TheaterID   string `mapstructure:"THEATER_ID"`
	TheaterName string `mapstructure:"THEATER_NAME"`
	FSSAINo     string `mapstructure:"FSSAI_NO"`
	GSTNo       string `mapstructure:"GST_NO"`
	LogoPath    string `mapstructure:"LOGO_PATH"`

	// Order API
	APIBaseURL   string        `mapstructure:"API_BASE_URL"`
	PollInterval time.Duration `mapstructure:"POLL_INTERVAL"`

	// Print bridge
	BridgeWSURL          string        `mapstructure:"BRIDGE_WS_URL"`
	BridgeConnectTimeout time.Duration `mapstructure:"BRIDGE_CONNECT_TIMEOUT"`
	BridgeReconnectDelay time.Duration `mapstructure:"BRIDGE_RECONNECT_DELAY"`
	BridgeMaxReconnects  int           `mapstructure:"BRIDGE_MAX_RECONNECTS"`

	// Redis
	RedisURL string `mapstructure:"REDIS_URL"`

	// Push channel — empty disables the consumer, polling still covers
	AMQPURL string `mapstructure:"AMQP_URL"`

	// Notification
	NotificationAudioURL string `mapstructure:"NOTIFICATION_AUDIO_URL"`
}

// Load reads configuration from environment variables (and optional .env file).
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Sensible defaults for development
	viper.SetDefault("PORT", 8600)
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("API_BASE_URL", "http://localhost:8000/api")
	viper.SetDefault("POLL_INTERVAL", "5s")
	viper.SetDefault("BRIDGE_WS_URL", "ws://localhost:8765")
	viper.SetDefault("BRIDGE_CONNECT_TIMEOUT", "5s")
	viper.SetDefault("BRIDGE_RECONNECT_DELAY", "3s")
	viper.SetDefault("BRIDGE_MAX_RECONNECTS", 5)
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")

	// Optional .env file for local development — does not fail if missing
	_ = viper.ReadInConfig()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
