// Package config handles analyzer configuration loading using viper.
package config

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sqltrace.xyz/sqlna/internal/engine"
	"sqltrace.xyz/sqlna/internal/log"
)

// Config is the top-level analyzer configuration.
type Config struct {
	Log    log.Config    `mapstructure:"log"`
	Engine engine.Config `mapstructure:"engine"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: log.Config{
			Level:  "info",
			Format: "text",
		},
		Engine: engine.DefaultConfig(),
	}
}

// Load reads the YAML configuration at path. An empty path yields
// Default(); a path naming a file that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, fmt.Errorf("config file does not exist: %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("engine.back_scan_limit", cfg.Engine.BackScanLimit)
	v.SetDefault("engine.rollover_gap", cfg.Engine.RolloverGap)
}
