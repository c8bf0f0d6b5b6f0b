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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// envPrefix is prepended to generated plugin environment variable names
const envPrefix = "VEILPOST"

type PluginType int

const (
	PluginTypeBlob PluginType = iota
	PluginTypeMetadata
)

// PluginTypeName returns the name for a given plugin type
func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeBlob:
		return "blob"
	case PluginTypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

// PluginOption describes a single configurable option for a plugin. Dest
// must be a pointer of the type matching Type, and is written to when the
// option is set via cmdline flag, config file, or environment variable.
type PluginOption struct {
	Dest         any
	DefaultValue any
	Name         string
	Description  string
	Type         PluginOptionType
}

// flagName returns the cmdline flag name for an option of the named plugin
func (o *PluginOption) flagName(pluginName string) string {
	return pluginName + "-" + o.Name
}

// envVarName returns the environment variable name for an option of the
// named plugin
func (o *PluginOption) envVarName(pluginName string) string {
	return strings.ToUpper(
		strings.ReplaceAll(
			envPrefix+"_"+pluginName+"_"+o.Name,
			"-",
			"_",
		),
	)
}

// setValue performs a type-checked assignment of the given value into the
// option's destination pointer
func (o *PluginOption) setValue(value any) error {
	if o.Dest == nil {
		return fmt.Errorf("nil destination for option %s", o.Name)
	}
	switch o.Type {
	case PluginOptionTypeString:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf(
				"invalid type for option %s: expected string",
				o.Name,
			)
		}
		dest, ok := o.Dest.(*string)
		if !ok || dest == nil {
			return fmt.Errorf(
				"invalid destination for option %s: expected *string",
				o.Name,
			)
		}
		*dest = v
	case PluginOptionTypeBool:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf(
				"invalid type for option %s: expected bool",
				o.Name,
			)
		}
		dest, ok := o.Dest.(*bool)
		if !ok || dest == nil {
			return fmt.Errorf(
				"invalid destination for option %s: expected *bool",
				o.Name,
			)
		}
		*dest = v
	case PluginOptionTypeInt:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf(
				"invalid type for option %s: expected int",
				o.Name,
			)
		}
		dest, ok := o.Dest.(*int)
		if !ok || dest == nil {
			return fmt.Errorf(
				"invalid destination for option %s: expected *int",
				o.Name,
			)
		}
		*dest = v
	case PluginOptionTypeUint:
		dest, ok := o.Dest.(*uint64)
		if !ok || dest == nil {
			return fmt.Errorf(
				"invalid destination for option %s: expected *uint64",
				o.Name,
			)
		}
		switch v := value.(type) {
		case uint64:
			*dest = v
		case int:
			if v < 0 {
				return fmt.Errorf(
					"invalid value for option %s: negative int",
					o.Name,
				)
			}
			*dest = uint64(v)
		default:
			return fmt.Errorf(
				"invalid type for option %s: expected uint64 or int",
				o.Name,
			)
		}
	default:
		return fmt.Errorf(
			"unknown plugin option type %d for option %s",
			o.Type,
			o.Name,
		)
	}
	return nil
}

// PluginEntry describes a registered plugin and its configurable options
type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var pluginEntries []PluginEntry

// Register adds a plugin to the registry. It's expected to be called from
// an init() function in each plugin package.
func Register(entry PluginEntry) {
	pluginEntries = append(pluginEntries, entry)
}

// GetPlugins returns registered plugin entries for the given plugin type
func GetPlugins(pluginType PluginType) []PluginEntry {
	ret := []PluginEntry{}
	for _, entry := range pluginEntries {
		if entry.Type == pluginType {
			ret = append(ret, entry)
		}
	}
	return ret
}

// GetPlugin creates a plugin instance from the named plugin entry's
// registered options. It returns nil if no matching plugin is found.
func GetPlugin(pluginType PluginType, name string) Plugin {
	for _, entry := range pluginEntries {
		if entry.Type != pluginType || entry.Name != name {
			continue
		}
		if entry.NewFromOptionsFunc == nil {
			return nil
		}
		return entry.NewFromOptionsFunc()
	}
	return nil
}

// PopulateCmdlineOptions adds a flag to the given flagset for each option of
// each registered plugin. Flag names take the form '<plugin>-<option>'.
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	for i := range pluginEntries {
		entry := &pluginEntries[i]
		for j := range entry.Options {
			opt := &entry.Options[j]
			flagName := opt.flagName(entry.Name)
			if fs.Lookup(flagName) != nil {
				return fmt.Errorf("duplicate plugin flag: %s", flagName)
			}
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				if !ok || dest == nil {
					return fmt.Errorf(
						"invalid destination for option %s: expected *string",
						opt.Name,
					)
				}
				defaultValue, _ := opt.DefaultValue.(string)
				fs.StringVar(dest, flagName, defaultValue, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				if !ok || dest == nil {
					return fmt.Errorf(
						"invalid destination for option %s: expected *bool",
						opt.Name,
					)
				}
				defaultValue, _ := opt.DefaultValue.(bool)
				fs.BoolVar(dest, flagName, defaultValue, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				if !ok || dest == nil {
					return fmt.Errorf(
						"invalid destination for option %s: expected *int",
						opt.Name,
					)
				}
				defaultValue, _ := opt.DefaultValue.(int)
				fs.IntVar(dest, flagName, defaultValue, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				if !ok || dest == nil {
					return fmt.Errorf(
						"invalid destination for option %s: expected *uint64",
						opt.Name,
					)
				}
				defaultValue, _ := opt.DefaultValue.(uint64)
				fs.Uint64Var(dest, flagName, defaultValue, opt.Description)
			default:
				return fmt.Errorf(
					"unknown plugin option type %d for option %s",
					opt.Type,
					opt.Name,
				)
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin option values from a parsed config file. The
// outer map is keyed on plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	for typeName, plugins := range pluginConfig {
		for pluginName, options := range plugins {
			entry := getPluginEntry(typeName, pluginName)
			if entry == nil {
				return fmt.Errorf(
					"unknown %s plugin in config: %s",
					typeName,
					pluginName,
				)
			}
			for optName, value := range options {
				var opt *PluginOption
				for i := range entry.Options {
					if entry.Options[i].Name == optName {
						opt = &entry.Options[i]
						break
					}
				}
				if opt == nil {
					return fmt.Errorf(
						"unknown option for %s plugin %s: %s",
						typeName,
						pluginName,
						optName,
					)
				}
				if err := opt.setValue(value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin option values from environment variables.
// Variable names take the form '<prefix>_<plugin>_<option>' in upper case
// with dashes replaced by underscores.
func ProcessEnvVars() error {
	for i := range pluginEntries {
		entry := &pluginEntries[i]
		for j := range entry.Options {
			opt := &entry.Options[j]
			envValue, ok := os.LookupEnv(opt.envVarName(entry.Name))
			if !ok {
				continue
			}
			switch opt.Type {
			case PluginOptionTypeString:
				if err := opt.setValue(envValue); err != nil {
					return err
				}
			case PluginOptionTypeBool:
				v, err := strconv.ParseBool(envValue)
				if err != nil {
					return fmt.Errorf(
						"invalid value for option %s: %w",
						opt.Name,
						err,
					)
				}
				if err := opt.setValue(v); err != nil {
					return err
				}
			case PluginOptionTypeInt:
				v, err := strconv.Atoi(envValue)
				if err != nil {
					return fmt.Errorf(
						"invalid value for option %s: %w",
						opt.Name,
						err,
					)
				}
				if err := opt.setValue(v); err != nil {
					return err
				}
			case PluginOptionTypeUint:
				v, err := strconv.ParseUint(envValue, 10, 64)
				if err != nil {
					return fmt.Errorf(
						"invalid value for option %s: %w",
						opt.Name,
						err,
					)
				}
				if err := opt.setValue(v); err != nil {
					return err
				}
			default:
				return fmt.Errorf(
					"unknown plugin option type %d for option %s",
					opt.Type,
					opt.Name,
				)
			}
		}
	}
	return nil
}

func getPluginEntry(typeName string, pluginName string) *PluginEntry {
	for i := range pluginEntries {
		entry := &pluginEntries[i]
		if PluginTypeName(entry.Type) == typeName &&
			entry.Name == pluginName {
			return entry
		}
	}
	return nil
}
