package auth

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	SessionSecret  string `mapstructure:"SESSION_SECRET"`
	InternalSecret string `mapstructure:"INTERNAL_SECRET"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.BindEnv("SESSION_SECRET", "AUTH_SESSION_SECRET")
	v.BindEnv("INTERNAL_SECRET", "AUTH_INTERNAL_SECRET")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = v.GetString("AUTH_SESSION_SECRET")
	}
	if cfg.InternalSecret == "" {
		cfg.InternalSecret = v.GetString("AUTH_INTERNAL_SECRET")
	}

	if cfg.SessionSecret == "" || cfg.InternalSecret == "" {
		return nil, fmt.Errorf("auth configuration is incomplete")
	}

	return &cfg, nil
}
