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

package plugin_test

import (
	"testing"

	"github.com/blinklabs-io/veilpost/database/plugin"
)

// Mock plugin implementation for testing
type mockPlugin struct{}

func (m *mockPlugin) Start() error { return nil }
func (m *mockPlugin) Stop() error  { return nil }

func TestRegister(t *testing.T) {
	pluginName := "test-plugin-" + t.Name()
	testEntry := plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               pluginName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
	}

	plugin.Register(testEntry)

	// Check that GetPlugin finds it
	p := plugin.GetPlugin(plugin.PluginTypeBlob, pluginName)
	if p == nil {
		t.Error("plugin not found")
	}

	// Check that GetPlugins includes it
	plugins := plugin.GetPlugins(plugin.PluginTypeBlob)
	found := false
	for _, pl := range plugins {
		if pl.Name == pluginName && pl.Type == plugin.PluginTypeBlob {
			found = true
			break
		}
	}
	if !found {
		t.Error("plugin not in GetPlugins list")
	}
}

func TestGetPlugins(t *testing.T) {
	blobName1 := "blob-test-1-" + t.Name()
	blobName2 := "blob-test-2-" + t.Name()
	metaName := "meta-test-" + t.Name()

	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               blobName1,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
	})

	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               blobName2,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
	})

	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeMetadata,
		Name:               metaName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
	})

	blobPlugins := plugin.GetPlugins(plugin.PluginTypeBlob)
	// Check that the registered blob plugins are in the list
	found1 := false
	found2 := false
	for _, pl := range blobPlugins {
		if pl.Name == blobName1 && pl.Type == plugin.PluginTypeBlob {
			found1 = true
		}
		if pl.Name == blobName2 && pl.Type == plugin.PluginTypeBlob {
			found2 = true
		}
	}
	if !found1 || !found2 {
		t.Error("not all blob plugins found")
	}

	metaPlugins := plugin.GetPlugins(plugin.PluginTypeMetadata)
	foundMeta := false
	for _, pl := range metaPlugins {
		if pl.Name == metaName && pl.Type == plugin.PluginTypeMetadata {
			foundMeta = true
			break
		}
	}
	if !foundMeta {
		t.Error("metadata plugin not found")
	}
}

func TestGetPlugin(t *testing.T) {
	pluginName := "test-get-plugin-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               pluginName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
	})

	// Test getting the plugin
	p := plugin.GetPlugin(plugin.PluginTypeBlob, pluginName)
	if p == nil {
		t.Fatal("Expected plugin instance, got nil")
	}

	if _, ok := p.(*mockPlugin); !ok {
		t.Errorf("Expected plugin of type *mockPlugin, got %T", p)
	}

	// Test getting non-existent plugin
	nonExistentPlugin := plugin.GetPlugin(
		plugin.PluginTypeBlob,
		"non-existent-"+t.Name(),
	)
	if nonExistentPlugin != nil {
		t.Errorf(
			"Expected nil for non-existent plugin, got %v",
			nonExistentPlugin,
		)
	}
}

func TestProcessConfig(t *testing.T) {
	var dataDir string
	var cacheSize uint64
	pluginName := "config-test-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               pluginName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
		Options: []plugin.PluginOption{
			{
				Name: "data-dir",
				Type: plugin.PluginOptionTypeString,
				Dest: &dataDir,
			},
			{
				Name: "cache-size",
				Type: plugin.PluginOptionTypeUint,
				Dest: &cacheSize,
			},
		},
	})

	err := plugin.ProcessConfig(map[string]map[string]map[string]any{
		"blob": {
			pluginName: {
				"data-dir": "/tmp/test-data",
				// YAML integers decode as int
				"cache-size": 12345,
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error processing config: %v", err)
	}
	if dataDir != "/tmp/test-data" {
		t.Errorf("unexpected data-dir value: %s", dataDir)
	}
	if cacheSize != 12345 {
		t.Errorf("unexpected cache-size value: %d", cacheSize)
	}

	// Unknown option names should be rejected
	err = plugin.ProcessConfig(map[string]map[string]map[string]any{
		"blob": {
			pluginName: {
				"does-not-exist": "x",
			},
		},
	})
	if err == nil {
		t.Error("expected error for unknown option, got nil")
	}

	// Unknown plugin names should be rejected
	err = plugin.ProcessConfig(map[string]map[string]map[string]any{
		"blob": {
			"non-existent-" + t.Name(): {
				"data-dir": "x",
			},
		},
	})
	if err == nil {
		t.Error("expected error for unknown plugin, got nil")
	}
}

func TestProcessEnvVars(t *testing.T) {
	var dataDir string
	var gcEnabled bool
	pluginName := "envtest"
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               pluginName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
		Options: []plugin.PluginOption{
			{
				Name: "data-dir",
				Type: plugin.PluginOptionTypeString,
				Dest: &dataDir,
			},
			{
				Name: "gc",
				Type: plugin.PluginOptionTypeBool,
				Dest: &gcEnabled,
			},
		},
	})

	t.Setenv("VEILPOST_ENVTEST_DATA_DIR", "/tmp/env-data")
	t.Setenv("VEILPOST_ENVTEST_GC", "true")

	if err := plugin.ProcessEnvVars(); err != nil {
		t.Fatalf("unexpected error processing env vars: %v", err)
	}
	if dataDir != "/tmp/env-data" {
		t.Errorf("unexpected data-dir value: %s", dataDir)
	}
	if !gcEnabled {
		t.Error("expected gc option to be set from environment")
	}
}
