package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/natthaphon/linkfeed/realtime"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	// ServerURL is the backend's HTTP origin, e.g. http://localhost:8000.
	ServerURL string `mapstructure:"server_url" validate:"required,url"`
	// SocketURL is the backend's websocket origin. When empty it is
	// derived from ServerURL by swapping the scheme.
	SocketURL string `mapstructure:"socket_url"`
	// NotificationCap bounds the notification feed to the most recent N
	// entries.
	NotificationCap int `mapstructure:"notification_cap" validate:"gte=1"`
	// Retry tunes reconnection of the notification stream.
	Retry RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	Base        time.Duration `mapstructure:"base"`
	Jitter      time.Duration `mapstructure:"jitter"`
	Cap         time.Duration `mapstructure:"cap"`
	MaxAttempts uint64        `mapstructure:"max_attempts"`
}

// LoadConfig loads the configuration from the config file and environment
// variables. Invalid values surface in the validation step, not here.
func LoadConfig() (*Config, error) {
	config := &Config{}
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server_url", "http://localhost:8000")
	viper.SetDefault("notification_cap", 200)
	def := realtime.DefaultRetryPolicy()
	viper.SetDefault("retry.base", def.Base)
	viper.SetDefault("retry.jitter", def.Jitter)
	viper.SetDefault("retry.cap", def.Cap)
	viper.SetDefault("retry.max_attempts", def.MaxAttempts)

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := viper.Unmarshal(&config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc()),
		),
	); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	return validate.Struct(c)
}

// WebSocketOrigin returns the websocket origin, deriving it from ServerURL
// when SocketURL is not set.
func (c *Config) WebSocketOrigin() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	origin := c.ServerURL
	origin = strings.Replace(origin, "https://", "wss://", 1)
	origin = strings.Replace(origin, "http://", "ws://", 1)
	return origin
}

// RetryPolicy converts the retry knobs into the realtime policy.
func (c *Config) RetryPolicy() realtime.RetryPolicy {
	return realtime.RetryPolicy{
		Base:        c.Retry.Base,
		Jitter:      c.Retry.Jitter,
		Cap:         c.Retry.Cap,
		MaxAttempts: c.Retry.MaxAttempts,
	}
}
