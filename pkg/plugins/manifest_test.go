package plugins

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadManifest tests loading a complete manifest from a package filesystem
func TestLoadManifest(t *testing.T) {
	fsys := fstest.MapFS{
		ManifestFile: {Data: []byte(`id: alpha
name: Alpha
version: 1.2.0
api_version: 1.0.0
description: A test plugin
author: Test Author
license: MIT
homepage: https://example.com
main: Main
metadata:
  key: value
`)},
	}

	loaded, err := LoadManifest(fsys)
	require.NoError(t, err)
	assert.Equal(t, "alpha", loaded.ID)
	assert.Equal(t, "Alpha", loaded.Name)
	assert.Equal(t, "1.2.0", loaded.Version)
	assert.Equal(t, "1.0.0", loaded.APIVersion)
	assert.Equal(t, "A test plugin", loaded.Description)
	assert.Equal(t, "Test Author", loaded.Author)
	assert.Equal(t, "MIT", loaded.License)
	assert.Equal(t, "https://example.com", loaded.Homepage)
	assert.Equal(t, "Main", loaded.Main)
	assert.Equal(t, "value", loaded.Metadata["key"])
}

// TestLoadManifest_Missing tests a package without plugin.yaml
func TestLoadManifest_Missing(t *testing.T) {
	loaded, err := LoadManifest(fstest.MapFS{"main": {Data: []byte("x")}})
	assert.ErrorIs(t, err, ErrManifestMissing)
	assert.Nil(t, loaded)
}

// TestParseManifest_Invalid tests manifests that do not yield an identifier
func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid yaml", "invalid: yaml: content: ["},
		{"empty document", ""},
		{"no id", "name: Alpha\nmain: Main\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := ParseManifest([]byte(tt.data))
			assert.ErrorIs(t, err, ErrManifestMissing)
			assert.Nil(t, loaded)
		})
	}
}

// TestMarshalManifest tests that a rendered manifest parses back
func TestMarshalManifest(t *testing.T) {
	manifest := &Manifest{ID: "alpha", Name: "Alpha", Version: "2.1.3", Main: "Main"}

	data, err := MarshalManifest(manifest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id: alpha")

	parsed, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, manifest, parsed)
}

// TestValidateManifest tests manifest field validation
func TestValidateManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		fields   []string
	}{
		{
			name:     "valid",
			manifest: Manifest{ID: "alpha", Version: "1.0.0", APIVersion: "v1.2.3"},
		},
		{
			name:     "optional versions omitted",
			manifest: Manifest{ID: "alpha.beta_gamma-1"},
		},
		{
			name:     "missing id",
			manifest: Manifest{},
			fields:   []string{"id"},
		},
		{
			name:     "invalid id characters",
			manifest: Manifest{ID: "-alpha beta"},
			fields:   []string{"id"},
		},
		{
			name:     "invalid versions",
			manifest: Manifest{ID: "alpha", Version: "one", APIVersion: "1.0"},
			fields:   []string{"version", "api_version"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateManifest(&tt.manifest)
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

// TestIsCompatibleAPIVersion tests major version compatibility
func TestIsCompatibleAPIVersion(t *testing.T) {
	tests := []struct {
		plugin string
		host   string
		want   bool
	}{
		{"", "1.0.0", true},
		{"1.0.0", "1.0.0", true},
		{"1.9.2", "1.0.0", true},
		{"v1.3.0", "1.0.0", true},
		{"2.0.0", "1.0.0", false},
		{"0.9.0", "1.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.plugin+"_"+tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCompatibleAPIVersion(tt.plugin, tt.host))
		})
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("active")
	require.NoError(t, err)
	assert.Equal(t, StateActive, s)

	_, err = ParseState("paused")
	assert.Error(t, err)

	var parsed State
	assert.Error(t, parsed.UnmarshalText([]byte("paused")))
	assert.Equal(t, "unknown", State(42).String())
}
