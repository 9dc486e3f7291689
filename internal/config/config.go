// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/grove/database/plugin"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "grove.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
)

type tempConfig struct {
	Config     yaml.Node                 `yaml:"config,omitempty"`
	Database   *databaseConfig           `yaml:"database,omitempty"`
	Blob       map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata   map[string]map[string]any `yaml:"metadata,omitempty"`
	Governance map[string]yaml.Node      `yaml:"governance,omitempty"`
}

type governanceSection struct {
	Governance map[string]yaml.Node `yaml:"governance,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	MetadataPlugin    string        `yaml:"metadataPlugin"    envconfig:"GROVE_DATABASE_METADATA_PLUGIN"`
	BlobPlugin        string        `yaml:"blobPlugin"        envconfig:"GROVE_DATABASE_BLOB_PLUGIN"`
	DatabasePath      string        `yaml:"databasePath"                                              split_words:"true"`
	BindAddr          string        `yaml:"bindAddr"                                                  split_words:"true"`
	ShutdownTimeout   string        `yaml:"shutdownTimeout"                                           split_words:"true"`
	MetricsPort       uint          `yaml:"metricsPort"                                               split_words:"true"`
	SchedulerInterval time.Duration `yaml:"schedulerInterval"                                         split_words:"true"`
	SchedulerMaxSteps int           `yaml:"schedulerMaxSteps"                                         split_words:"true"`
	CycleTickInterval time.Duration `yaml:"cycleTickInterval"                                         split_words:"true"`
	Tracing           bool          `yaml:"tracing"`
	TracingStdout     bool          `yaml:"tracingStdout"                                             split_words:"true"`
	Governance        Params        `yaml:"governance"`
}

var globalConfig = defaultConfig()

func defaultConfig() *Config {
	return &Config{
		BindAddr:          "0.0.0.0",
		DatabasePath:      ".grove",
		MetricsPort:       12799,
		BlobPlugin:        DefaultBlobPlugin,
		MetadataPlugin:    DefaultMetadataPlugin,
		ShutdownTimeout:   DefaultShutdownTimeout,
		SchedulerInterval: 1 * time.Second,
		SchedulerMaxSteps: 100,
		CycleTickInterval: 1 * time.Minute,
	}
}

// LoadConfig reads the config file and the environment. Governance parameters
// have no defaults: every key must be set in one of them.
func LoadConfig(configFile string) (*Config, error) {
	var governanceKeys map[string]yaml.Node
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.grove/grove.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".grove", "grove.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/grove/grove.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/grove/grove.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		// First unmarshal into temp config to handle plugin sections
		var tempCfg tempConfig
		err = yaml.Unmarshal(buf, &tempCfg)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		// If config section exists, use it for main config
		if !tempCfg.Config.IsZero() {
			// Overlay config values onto existing defaults
			if err := tempCfg.Config.Decode(globalConfig); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
			var section governanceSection
			if err := tempCfg.Config.Decode(&section); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
			governanceKeys = section.Governance
		} else {
			governanceKeys = tempCfg.Governance
			err = yaml.Unmarshal(buf, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}

		pluginConfig := make(map[string]map[string]map[string]any)
		if tempCfg.Blob != nil {
			pluginConfig["blob"] = tempCfg.Blob
		}
		if tempCfg.Metadata != nil {
			pluginConfig["metadata"] = tempCfg.Metadata
		}
		if tempCfg.Database != nil {
			if tempCfg.Database.Blob != nil {
				if name, ok := popPluginName(tempCfg.Database.Blob); ok {
					globalConfig.BlobPlugin = name
				}
				mergePluginConfig(pluginConfig, "blob", tempCfg.Database.Blob)
			}
			if tempCfg.Database.Metadata != nil {
				if name, ok := popPluginName(tempCfg.Database.Metadata); ok {
					globalConfig.MetadataPlugin = name
				}
				mergePluginConfig(
					pluginConfig,
					"metadata",
					tempCfg.Database.Metadata,
				)
			}
		}
		if len(pluginConfig) > 0 {
			err = plugin.ProcessConfig(pluginConfig)
			if err != nil {
				return nil, fmt.Errorf(
					"error processing plugin config: %w",
					err,
				)
			}
		}
	}
	// Process environment variables
	err := envconfig.Process("grove", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	if _, err := time.ParseDuration(globalConfig.ShutdownTimeout); err != nil {
		return nil, fmt.Errorf(
			"invalid shutdownTimeout %q: %w",
			globalConfig.ShutdownTimeout,
			err,
		)
	}
	if err := checkParamKeys(governanceKeys); err != nil {
		return nil, err
	}
	if err := globalConfig.Governance.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

// popPluginName removes and returns the 'plugin' key of a database section
func popPluginName(section map[string]any) (string, bool) {
	val, exists := section["plugin"]
	if !exists {
		return "", false
	}
	name, ok := val.(string)
	if !ok {
		return "", false
	}
	delete(section, "plugin")
	return name, true
}

func mergePluginConfig(
	pluginConfig map[string]map[string]map[string]any,
	pluginType string,
	section map[string]any,
) {
	sectionConfig := make(map[string]map[string]any)
	for k, v := range section {
		if val, ok := v.(map[string]any); ok {
			sectionConfig[k] = val
		} else if val, ok := v.(map[any]any); ok {
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			sectionConfig[k] = stringAnyMap
		} else {
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				pluginType,
				k,
				v,
			)
		}
	}
	// Merge with existing plugin config instead of overwriting
	if pluginConfig[pluginType] == nil {
		pluginConfig[pluginType] = sectionConfig
	} else {
		maps.Copy(pluginConfig[pluginType], sectionConfig)
	}
}

func GetConfig() *Config {
	return globalConfig
}
