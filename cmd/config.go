package cmd

import (
	"fmt"

	"acuvalidator/internal/recon"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Name   string `mapstructure:"name"`
	Driver string `mapstructure:"driver" validate:"required"`
	DSN    string `mapstructure:"dsn" validate:"required"`
	Active bool   `mapstructure:"active"`
}

var validate = validator.New()

// GetActiveDBConfig returns the currently active database configuration.
func GetActiveDBConfig() (*DBConfig, error) {
	var configs []DBConfig

	if err := viper.UnmarshalKey("databases", &configs); err != nil {
		return nil, fmt.Errorf("failed to parse databases config: %w", err)
	}

	var activeConfig *DBConfig
	count := 0

	for i := range configs {
		if configs[i].Active {
			activeConfig = &configs[i]
			count++
		}
	}

	if count == 0 {
		return nil, fmt.Errorf("no active database found in config (set active: true)")
	}
	if count > 1 {
		return nil, fmt.Errorf("multiple active databases found (only one can be active)")
	}
	if err := validate.Struct(activeConfig); err != nil {
		return nil, fmt.Errorf("invalid database %q: %w", activeConfig.Name, err)
	}

	return activeConfig, nil
}

// GetValidatorConfig overlays the "validator" section of the config on the defaults.
func GetValidatorConfig() (recon.Config, error) {
	cfg := recon.DefaultConfig()
	if viper.IsSet("validator") {
		if err := viper.UnmarshalKey("validator", &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse validator config: %w", err)
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid validator config: %w", err)
	}
	return cfg, nil
}
