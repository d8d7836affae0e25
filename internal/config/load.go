package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "GENRELAY"

// setDefaults registers every key so that environment overrides are picked
// up by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.connect_attempts", 6)

	v.SetDefault("admin.key_hash", "")

	v.SetDefault("task.max_concurrent", 10)
	v.SetDefault("task.success_lease_policy", LeasePolicyRetain)
	v.SetDefault("task.image_poll.attempts", 300)
	v.SetDefault("task.image_poll.interval", "2s")
	v.SetDefault("task.video_poll.attempts", 600)
	v.SetDefault("task.video_poll.interval", "5s")
	v.SetDefault("task.recovered_image_poll.attempts", 300)
	v.SetDefault("task.recovered_image_poll.interval", "5s")
	v.SetDefault("task.recovered_video_poll.attempts", 600)
	v.SetDefault("task.recovered_video_poll.interval", "10s")
	v.SetDefault("task.lookup_timeout", "15s")

	v.SetDefault("studio.auth_url", "https://sp.deevid.ai")
	v.SetDefault("studio.base_url", "https://api.deevid.ai")
	v.SetDefault("studio.anon_key", "")
	v.SetDefault("studio.device_id", "3401879229")
	v.SetDefault("studio.http_timeout", "30s")

	v.SetDefault("tts.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.default_voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("tts.model_id", "eleven_multilingual_v2")
	v.SetDefault("tts.http_timeout", "60s")
}

// Load configuration from environment variables and optionally config files.
// Values from a .env file in the working directory are exported first and
// never override variables that are already set. Environment variables take
// precedence over config.yaml.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
