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
	"strings"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeBlob PluginType = iota + 1
	PluginTypeMetadata
)

const envVarPrefix = "GROVE"

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

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var pluginEntries []PluginEntry

// Register adds a plugin to the registry. Registering the same type and name
// twice replaces the earlier entry.
func Register(pluginEntry PluginEntry) {
	for i, p := range pluginEntries {
		if p.Type == pluginEntry.Type && p.Name == pluginEntry.Name {
			pluginEntries[i] = pluginEntry
			return
		}
	}
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered entries of the given type
func GetPlugins(pluginType PluginType) []PluginEntry {
	ret := []PluginEntry{}
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	return ret
}

// GetPlugin returns a new instance of the named plugin, or nil if not registered
func GetPlugin(pluginType PluginType, name string) Plugin {
	for _, p := range pluginEntries {
		if p.Type == pluginType && p.Name == name {
			return p.NewFromOptionsFunc()
		}
	}
	return nil
}

// PopulateCmdlineOptions adds a flag for every plugin option, named
// <type>-<plugin>-<option>
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			if err := opt.AddToFlagSet(
				fs,
				PluginTypeName(p.Type),
				p.Name,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessConfig applies option values from a config file, keyed by plugin
// type name, plugin name and option name
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	for i := range pluginEntries {
		p := &pluginEntries[i]
		typeConfig, ok := pluginConfig[PluginTypeName(p.Type)]
		if !ok {
			continue
		}
		optValues, ok := typeConfig[p.Name]
		if !ok {
			continue
		}
		for _, opt := range p.Options {
			value, ok := optValues[opt.Name]
			if !ok {
				continue
			}
			if err := opt.setValue(value); err != nil {
				return fmt.Errorf(
					"%s plugin '%s': %w",
					PluginTypeName(p.Type),
					p.Name,
					err,
				)
			}
		}
	}
	return nil
}

// ProcessEnvVars applies option values from environment variables named
// GROVE_<TYPE>_<PLUGIN>_<OPTION>
func ProcessEnvVars() error {
	for i := range pluginEntries {
		p := &pluginEntries[i]
		for _, opt := range p.Options {
			envName := envVarName(PluginTypeName(p.Type), p.Name, opt.Name)
			value, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			if err := opt.setString(value); err != nil {
				return fmt.Errorf("%s: %w", envName, err)
			}
		}
	}
	return nil
}

func envVarName(parts ...string) string {
	ret := envVarPrefix
	for _, part := range parts {
		ret += "_" + strings.ToUpper(strings.ReplaceAll(part, "-", "_"))
	}
	return ret
}
