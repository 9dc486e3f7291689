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
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPlugin struct {
	logger   *slog.Logger
	registry prometheus.Registerer
	started  bool
}

func (m *mockPlugin) Start() error {
	m.started = true
	return nil
}

func (m *mockPlugin) Stop() error {
	return nil
}

func (m *mockPlugin) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

func (m *mockPlugin) SetPromRegistry(registry prometheus.Registerer) {
	m.registry = registry
}

type mockOptions struct {
	path    string
	enabled bool
	workers int
	size    uint64
}

// withMockRegistry swaps in a private registry for the duration of a test
func withMockRegistry(t *testing.T) *mockOptions {
	t.Helper()
	saved := pluginEntries
	pluginEntries = nil
	t.Cleanup(func() { pluginEntries = saved })
	opts := &mockOptions{}
	Register(PluginEntry{
		Type:        PluginTypeBlob,
		Name:        "mock",
		Description: "mock blob store",
		NewFromOptionsFunc: func() Plugin {
			return &mockPlugin{}
		},
		Options: []PluginOption{
			{
				Name:         "path",
				Type:         PluginOptionTypeString,
				DefaultValue: "/tmp/mock",
				Dest:         &opts.path,
			},
			{
				Name:         "enabled",
				Type:         PluginOptionTypeBool,
				DefaultValue: false,
				Dest:         &opts.enabled,
			},
			{
				Name:         "workers",
				Type:         PluginOptionTypeInt,
				DefaultValue: 1,
				Dest:         &opts.workers,
			},
			{
				Name:         "cache-size",
				Type:         PluginOptionTypeUint,
				DefaultValue: uint64(1024),
				Dest:         &opts.size,
			},
		},
	})
	return opts
}

func TestRegisterReplacesSameName(t *testing.T) {
	withMockRegistry(t)
	Register(PluginEntry{
		Type:               PluginTypeBlob,
		Name:               "mock",
		Description:        "replacement",
		NewFromOptionsFunc: func() Plugin { return &mockPlugin{} },
	})
	plugins := GetPlugins(PluginTypeBlob)
	require.Len(t, plugins, 1)
	assert.Equal(t, "replacement", plugins[0].Description)
	assert.Empty(t, GetPlugins(PluginTypeMetadata))
}

func TestStartPluginInstruments(t *testing.T) {
	withMockRegistry(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	p, err := StartPlugin(PluginTypeBlob, "mock", logger, registry)
	require.NoError(t, err)
	mock, ok := p.(*mockPlugin)
	require.True(t, ok)
	assert.True(t, mock.started)
	assert.NotNil(t, mock.logger)
	assert.Equal(t, registry, mock.registry)

	_, err = StartPlugin(PluginTypeBlob, "missing", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob plugin 'missing' not found")
}

func TestErrorPluginDefersError(t *testing.T) {
	withMockRegistry(t)
	boom := errors.New("boom")
	Register(PluginEntry{
		Type:               PluginTypeMetadata,
		Name:               "broken",
		NewFromOptionsFunc: func() Plugin { return NewErrorPlugin(boom) },
	})
	_, err := StartPlugin(PluginTypeMetadata, "broken", nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestSetPluginOption(t *testing.T) {
	opts := withMockRegistry(t)
	require.NoError(t, SetPluginOption(PluginTypeBlob, "mock", "path", "/data"))
	assert.Equal(t, "/data", opts.path)
	require.NoError(t, SetPluginOption(PluginTypeBlob, "mock", "cache-size", 42))
	assert.Equal(t, uint64(42), opts.size)
	// Unknown options are ignored
	require.NoError(t, SetPluginOption(PluginTypeBlob, "mock", "nope", 1))
	assert.Error(t, SetPluginOption(PluginTypeBlob, "mock", "cache-size", -1))
	assert.Error(t, SetPluginOption(PluginTypeBlob, "mock", "enabled", "yes"))
	assert.Error(t, SetPluginOption(PluginTypeMetadata, "mock", "path", "/x"))
}

func TestProcessConfig(t *testing.T) {
	opts := withMockRegistry(t)
	err := ProcessConfig(map[string]map[string]map[string]any{
		"blob": {
			"mock": {
				"path":    "/var/lib/grove",
				"enabled": true,
				"workers": 4,
			},
		},
		"metadata": {
			"other": {"path": "ignored"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/grove", opts.path)
	assert.True(t, opts.enabled)
	assert.Equal(t, 4, opts.workers)

	err = ProcessConfig(map[string]map[string]map[string]any{
		"blob": {"mock": {"workers": "four"}},
	})
	assert.Error(t, err)
}

func TestProcessEnvVars(t *testing.T) {
	opts := withMockRegistry(t)
	t.Setenv("GROVE_BLOB_MOCK_CACHE_SIZE", "2048")
	t.Setenv("GROVE_BLOB_MOCK_ENABLED", "true")
	require.NoError(t, ProcessEnvVars())
	assert.Equal(t, uint64(2048), opts.size)
	assert.True(t, opts.enabled)

	t.Setenv("GROVE_BLOB_MOCK_WORKERS", "many")
	assert.Error(t, ProcessEnvVars())
}

func TestPopulateCmdlineOptions(t *testing.T) {
	opts := withMockRegistry(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, PopulateCmdlineOptions(fs))
	require.NotNil(t, fs.Lookup("blob-mock-path"))
	assert.Equal(t, "/tmp/mock", opts.path)
	require.NoError(t, fs.Parse([]string{"--blob-mock-path=/srv", "--blob-mock-workers=8"}))
	assert.Equal(t, "/srv", opts.path)
	assert.Equal(t, 8, opts.workers)
}
