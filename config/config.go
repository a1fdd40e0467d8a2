// Package config loads sidekick settings from sidekick.yaml, environment
// variables, and command flags, in that order of increasing precedence.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Endpoint      string  `mapstructure:"endpoint"`
	Model         string  `mapstructure:"model"`
	EmbedModel    string  `mapstructure:"embed_model"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxRetries    int     `mapstructure:"max_retries"`
	ContextBudget int     `mapstructure:"context_budget"`
	HistoryBudget int     `mapstructure:"history_budget"`
	DebounceMs    int     `mapstructure:"debounce_ms"`
	Debug         bool    `mapstructure:"debug"`
}

// DefaultConfig values used when no file, env, or flag overrides them.
var DefaultConfig = Config{
	Endpoint:      "http://localhost:11434",
	Model:         "qwen2.5-coder:7b",
	EmbedModel:    "nomic-embed-text",
	Temperature:   0.2,
	MaxRetries:    3,
	ContextBudget: 6000,
	HistoryBudget: 8000,
	DebounceMs:    500,
	Debug:         false,
}

var cfgFile string

// InitFlags registers the persistent flags that feed configuration.
func InitFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a sidekick configuration file")
	rootCmd.PersistentFlags().String("endpoint", DefaultConfig.Endpoint, "model service endpoint")
	rootCmd.PersistentFlags().String("model", DefaultConfig.Model, "chat model name")
	rootCmd.PersistentFlags().String("embed-model", DefaultConfig.EmbedModel, "embedding model name")
	rootCmd.PersistentFlags().Bool("debug", DefaultConfig.Debug, "enable debug logging")
}

// Load resolves the configuration for one run. A missing config file is
// fine; defaults and environment variables still apply.
func Load(rootCmd *cobra.Command, cwd string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SIDEKICK")
	v.AutomaticEnv()
	bindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("sidekick")
		v.SetConfigType("yaml")
		v.AddConfigPath(cwd)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	bindFlags(v, rootCmd)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", DefaultConfig.Endpoint)
	v.SetDefault("model", DefaultConfig.Model)
	v.SetDefault("embed_model", DefaultConfig.EmbedModel)
	v.SetDefault("temperature", DefaultConfig.Temperature)
	v.SetDefault("max_retries", DefaultConfig.MaxRetries)
	v.SetDefault("context_budget", DefaultConfig.ContextBudget)
	v.SetDefault("history_budget", DefaultConfig.HistoryBudget)
	v.SetDefault("debounce_ms", DefaultConfig.DebounceMs)
	v.SetDefault("debug", DefaultConfig.Debug)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("endpoint", "SIDEKICK_ENDPOINT")
	_ = v.BindEnv("model", "SIDEKICK_MODEL")
	_ = v.BindEnv("embed_model", "SIDEKICK_EMBED_MODEL")
	_ = v.BindEnv("debug", "SIDEKICK_DEBUG")
}

func bindFlags(v *viper.Viper, rootCmd *cobra.Command) {
	_ = v.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	_ = v.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	_ = v.BindPFlag("embed_model", rootCmd.PersistentFlags().Lookup("embed-model"))
	_ = v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}
