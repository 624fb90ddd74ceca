// Package config manages application configuration from a YAML file,
// BOT_-prefixed environment variables, and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"log"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Summary  SummaryConfig  `mapstructure:"summary"`
}

// LoggerConfig controls log verbosity and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and the channel summaries are
// published to.
type TelegramConfig struct {
	Token     string `mapstructure:"token"      validate:"required"`
	ChannelID int64  `mapstructure:"channel_id" validate:"required"`
}

// DatabaseConfig holds the SQLite DSN and the maintenance window. An
// empty maintenance schedule disables the VACUUM/ANALYZE job.
type DatabaseConfig struct {
	Path                string `mapstructure:"path" validate:"required"`
	MaintenanceSchedule string `mapstructure:"maintenance_schedule"`
}

// GeminiConfig holds the Gemini API settings for the summarizer.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key" validate:"required"`
	ModelName         string  `mapstructure:"model"   validate:"required"`
	Temperature       float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	SystemInstruction string  `mapstructure:"system_instruction"`
	MaxRetries        int     `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"min=1,max=300"`
}

// SummaryConfig controls the scheduled summary run.
type SummaryConfig struct {
	Schedule    string `mapstructure:"schedule"     validate:"required"`
	MinMessages int    `mapstructure:"min_messages" validate:"min=1"`
	BatchLimit  int    `mapstructure:"batch_limit"  validate:"min=1,max=5000"`
}

// LoadConfig reads config.yaml from the given directory (optional),
// overlays BOT_* environment variables, and validates the result.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file, env vars and defaults still apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("database.path", "storage.db?_time_format=sqlite")
	v.SetDefault("database.maintenance_schedule", "0 4 * * *")

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.7)
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay_seconds", 5)

	v.SetDefault("summary.schedule", "0 18 * * *")
	v.SetDefault("summary.min_messages", 5)
	v.SetDefault("summary.batch_limit", 1000)
}
