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
	"errors"
	"flag"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/veilpost/database/plugin"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "veilpost.config"

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

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	MetadataPlugin    string   `yaml:"metadataPlugin"    envconfig:"VEILPOST_DATABASE_METADATA_PLUGIN"`
	BlobPlugin        string   `yaml:"blobPlugin"        envconfig:"VEILPOST_DATABASE_BLOB_PLUGIN"`
	DatabasePath      string   `yaml:"databasePath"                                                    split_words:"true"`
	BindAddr          string   `yaml:"bindAddr"                                                        split_words:"true"`
	ApiPort           uint     `yaml:"apiPort"           envconfig:"port"`
	MetricsPort       uint     `yaml:"metricsPort"                                                     split_words:"true"`
	Admin             string   `yaml:"admin"`
	Confirmers        []string `yaml:"confirmers"`
	SubscriptionPrice uint64   `yaml:"subscriptionPrice"                                               split_words:"true"`
	// SubscriptionDuration is in seconds
	SubscriptionDuration uint64 `yaml:"subscriptionDuration"                                           split_words:"true"`
	TokenKeyPath         string `yaml:"tokenKeyPath"                                                   split_words:"true"`
	VerifierPrincipal    string `yaml:"verifierPrincipal"                                              split_words:"true"`
	VerifyingKeyPath     string `yaml:"verifyingKeyPath"                                               split_words:"true"`
	ProvingKeyPath       string `yaml:"provingKeyPath"                                                 split_words:"true"`
	PoolCapacity         int    `yaml:"poolCapacity"                                                   split_words:"true"`
	Tracing              bool   `yaml:"tracing"`
	TracingStdout        bool   `yaml:"tracingStdout"                                                  split_words:"true"`
	ShutdownTimeout      string `yaml:"shutdownTimeout"                                                split_words:"true"`
}

func (c *Config) ParseCmdlineArgs(programName string, args []string) error {
	fs := flag.NewFlagSet(programName, flag.ExitOnError)
	fs.StringVar(
		&c.BlobPlugin,
		"blob",
		DefaultBlobPlugin,
		"blob store plugin to use, 'list' to show available",
	)
	fs.StringVar(
		&c.MetadataPlugin,
		"metadata",
		DefaultMetadataPlugin,
		"metadata store plugin to use, 'list' to show available",
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Handle plugin listing
	if c.BlobPlugin == "list" {
		fmt.Println("Available blob plugins:")
		blobPlugins := plugin.GetPlugins(plugin.PluginTypeBlob)
		for _, p := range blobPlugins {
			fmt.Printf("  %s: %s\n", p.Name, p.Description)
		}
		return ErrPluginListRequested
	}
	if c.MetadataPlugin == "list" {
		fmt.Println("Available metadata plugins:")
		metadataPlugins := plugin.GetPlugins(plugin.PluginTypeMetadata)
		for _, p := range metadataPlugins {
			fmt.Printf("  %s: %s\n", p.Name, p.Description)
		}
		return ErrPluginListRequested
	}

	return nil
}

var globalConfig = &Config{
	BindAddr:             "0.0.0.0",
	DatabasePath:         ".veilpost",
	ApiPort:              3000,
	MetricsPort:          12798,
	Admin:                "",
	SubscriptionPrice:    1000,
	SubscriptionDuration: 2592000, // 30 days
	PoolCapacity:         1000,
	BlobPlugin:           DefaultBlobPlugin,
	MetadataPlugin:       DefaultMetadataPlugin,
	ShutdownTimeout:      DefaultShutdownTimeout,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.veilpost/veilpost.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".veilpost", "veilpost.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/veilpost/veilpost.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/veilpost/veilpost.yaml"
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
		if tempCfg.Config != nil {
			// Overlay config values onto existing defaults
			configBytes, err := yaml.Marshal(tempCfg.Config)
			if err != nil {
				return nil, fmt.Errorf("error re-marshalling config: %w", err)
			}
			err = yaml.Unmarshal(configBytes, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			// Otherwise unmarshal the whole file as main config (backward compatibility)
			err = yaml.Unmarshal(buf, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}

		// Process plugin configurations
		pluginConfig := make(map[string]map[string]map[string]any)
		if tempCfg.Blob != nil {
			pluginConfig["blob"] = tempCfg.Blob
		}
		if tempCfg.Metadata != nil {
			pluginConfig["metadata"] = tempCfg.Metadata
		}
		// Handle database section if present
		if tempCfg.Database != nil {
			if tempCfg.Database.Blob != nil {
				// Extract plugin name if specified
				if pluginVal, exists := tempCfg.Database.Blob["plugin"]; exists {
					if pluginName, ok := pluginVal.(string); ok {
						globalConfig.BlobPlugin = pluginName
						// Remove plugin from config map
						delete(tempCfg.Database.Blob, "plugin")
					}
				}
				blobConfig := buildPluginConfig("blob", tempCfg.Database.Blob)
				// Merge with existing blob config instead of overwriting
				if pluginConfig["blob"] == nil {
					pluginConfig["blob"] = blobConfig
				} else {
					maps.Copy(pluginConfig["blob"], blobConfig)
				}
			}
			if tempCfg.Database.Metadata != nil {
				// Extract plugin name if specified
				if pluginVal, exists := tempCfg.Database.Metadata["plugin"]; exists {
					if pluginName, ok := pluginVal.(string); ok {
						globalConfig.MetadataPlugin = pluginName
						// Remove plugin from config map
						delete(tempCfg.Database.Metadata, "plugin")
					}
				}
				metadataConfig := buildPluginConfig(
					"metadata",
					tempCfg.Database.Metadata,
				)
				// Merge with existing metadata config instead of overwriting
				if pluginConfig["metadata"] == nil {
					pluginConfig["metadata"] = metadataConfig
				} else {
					maps.Copy(pluginConfig["metadata"], metadataConfig)
				}
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
	err := envconfig.Process("veilpost", globalConfig)
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

	return globalConfig, nil
}

// buildPluginConfig normalizes a plugin config section into nested
// string-keyed maps, skipping non-map entries.
func buildPluginConfig(
	section string,
	raw map[string]any,
) map[string]map[string]any {
	ret := make(map[string]map[string]any)
	for k, v := range raw {
		if val, ok := v.(map[string]any); ok {
			ret[k] = val
		} else if val, ok := v.(map[any]any); ok {
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			ret[k] = stringAnyMap
		} else {
			// Log skipped non-map config entries
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				section,
				k,
				v,
			)
		}
	}
	return ret
}

func GetConfig() *Config {
	return globalConfig
}
