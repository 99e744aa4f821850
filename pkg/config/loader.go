package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".bugfeat"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for bugfeat settings.
const envPrefix = "BUGFEAT"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("extraction.extractors", []string{})
	viperCfg.SetDefault("extraction.cleanups", []string{})
	viperCfg.SetDefault("extraction.model", "")
	viperCfg.SetDefault("extraction.rollback", DefaultExtractionRollback)
	viperCfg.SetDefault("extraction.rollback_when", "")
	viperCfg.SetDefault("extraction.workers", DefaultExtractionWorkers)
	viperCfg.SetDefault("extraction.merge_data", DefaultExtractionMergeData)
	viperCfg.SetDefault("extraction.trim_activity", DefaultExtractionTrimActivity)
	viperCfg.SetDefault("extraction.commit_data", DefaultExtractionCommitData)

	viperCfg.SetDefault("sources.bugs", DefaultSourcesBugs)
	viperCfg.SetDefault("sources.commits", "")
	viperCfg.SetDefault("sources.git_repo", "")
	viperCfg.SetDefault("sources.releases", "")
	viperCfg.SetDefault("sources.max_record_size", DefaultSourcesMaxRecordSize)

	viperCfg.SetDefault("output.format", DefaultOutputFormat)
	viperCfg.SetDefault("output.path", "")
	viperCfg.SetDefault("output.compress", DefaultOutputCompress)

	viperCfg.SetDefault("logging.level", DefaultLoggingLevel)
	viperCfg.SetDefault("logging.json", DefaultLoggingJSON)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
}
