package config

import "time"

// Success lease policies. They decide what happens to a credential after
// the generation it served completed.
const (
	// LeasePolicyRetain keeps the credential leased after success.
	LeasePolicyRetain = "retain"
	// LeasePolicyRelease returns the credential to the pool after success.
	LeasePolicyRelease = "release"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Studio   StudioConfig   `mapstructure:"studio" validate:"required"`
	TTS      TTSConfig      `mapstructure:"tts" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string `mapstructure:"url" validate:"required,url"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gt=0"`
	ConnectAttempts int    `mapstructure:"connect_attempts" validate:"gt=0"`
}

// AdminConfig guards the administrative endpoints. They are disabled while
// KeyHash is empty.
type AdminConfig struct {
	// KeyHash is a bcrypt hash of the admin key, see the hash-key command.
	KeyHash string `mapstructure:"key_hash" validate:"omitempty,startswith=$2"`
}

// PollConfig is a polling budget: Attempts waits of Interval each.
type PollConfig struct {
	Attempts int           `mapstructure:"attempts" validate:"gt=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

// Budget returns the total wall-clock time the budget allows.
func (p PollConfig) Budget() time.Duration {
	return time.Duration(p.Attempts) * p.Interval
}

// TaskConfig contains orchestration settings.
type TaskConfig struct {
	// MaxConcurrent is the admission ceiling over pending and running tasks.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gt=0"`

	// SuccessLeasePolicy is LeasePolicyRetain or LeasePolicyRelease.
	SuccessLeasePolicy string `mapstructure:"success_lease_policy" validate:"required,oneof=retain release"`

	ImagePoll          PollConfig `mapstructure:"image_poll"`
	VideoPoll          PollConfig `mapstructure:"video_poll"`
	RecoveredImagePoll PollConfig `mapstructure:"recovered_image_poll"`
	RecoveredVideoPoll PollConfig `mapstructure:"recovered_video_poll"`

	// LookupTimeout bounds each recent-jobs lookup made during reconciliation.
	LookupTimeout time.Duration `mapstructure:"lookup_timeout" validate:"gt=0"`
}

// ReleaseOnSuccess reports whether the configured policy returns a
// credential to the pool after a completed generation.
func (c TaskConfig) ReleaseOnSuccess() bool {
	return c.SuccessLeasePolicy == LeasePolicyRelease
}

// StudioConfig configures the image and video generation vendor.
type StudioConfig struct {
	AuthURL     string        `mapstructure:"auth_url" validate:"required,url"`
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	AnonKey     string        `mapstructure:"anon_key"`
	DeviceID    string        `mapstructure:"device_id"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
}

// TTSConfig configures the text-to-speech vendor. TTS requests are rejected
// while APIKey is empty.
type TTSConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	DefaultVoiceID string        `mapstructure:"default_voice_id" validate:"required"`
	ModelID        string        `mapstructure:"model_id" validate:"required"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
}
