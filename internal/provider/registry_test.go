package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

func TestLoadFromConfig(t *testing.T) {
	tests := []struct {
		name        string
		config      *ProviderConfig
		wantErr     bool
		errContains string
		registered  bool
	}{
		{
			name:        "empty provider name",
			config:      &ProviderConfig{Type: ProviderTypeAPI, Enabled: true},
			wantErr:     true,
			errContains: "provider name is required",
		},
		{
			name:   "disabled provider",
			config: &ProviderConfig{Name: "gemini", Type: ProviderTypeAPI},
		},
		{
			name:        "unknown API provider",
			config:      &ProviderConfig{Name: "openai", Type: ProviderTypeAPI, Enabled: true},
			wantErr:     true,
			errContains: "unknown API provider",
		},
		{
			name:        "unknown type",
			config:      &ProviderConfig{Name: "x", Type: "grpc", Enabled: true},
			wantErr:     true,
			errContains: "unknown provider type",
		},
		{
			name:        "gemini without key",
			config:      &ProviderConfig{Name: "gemini", Type: ProviderTypeAPI, Enabled: true},
			wantErr:     true,
			errContains: "api_key",
		},
		{
			name:        "genai without key",
			config:      &ProviderConfig{Name: "genai", Type: ProviderTypeSDK, Enabled: true},
			wantErr:     true,
			errContains: "api_key",
		},
		{
			name:       "gemini",
			config:     geminiConfig("http://localhost"),
			registered: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.LoadFromConfig(context.Background(), tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			_, getErr := reg.Get(tt.config.Name)
			assert.Equal(t, tt.registered, getErr == nil)
		})
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	cfg := &ProviderConfig{Name: "fake"}
	client := &fakeClient{content: "x"}

	require.NoError(t, reg.Register("fake", client, cfg))
	assert.Error(t, reg.Register("fake", client, cfg))

	got, err := reg.Get("fake")
	require.NoError(t, err)
	assert.Same(t, client, got)

	gotCfg, err := reg.GetConfig("fake")
	require.NoError(t, err)
	assert.Same(t, cfg, gotCfg)

	_, err = reg.Get("missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeProviderNotFound))
	_, err = reg.GetConfig("missing")
	assert.Error(t, err)
}

func TestRegistry_Select(t *testing.T) {
	reg := NewRegistry()
	unavailable := &fakeClient{}
	a := &fakeClient{content: "a"}
	b := &fakeClient{content: "b"}
	require.NoError(t, reg.Register("a", a, nil))
	require.NoError(t, reg.Register("b", b, nil))
	require.NoError(t, reg.Register("c", unavailable, nil))

	got, err := reg.Select()
	require.NoError(t, err)
	assert.Same(t, a, got)

	reg.SetPreference([]string{"c", "b"})
	got, err = reg.Select()
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = NewRegistry().Select()
	assert.True(t, errors.HasCode(err, errors.ErrCodeProviderNotFound))
}

func TestRegistry_RemoveAndCloseAll(t *testing.T) {
	reg := NewRegistry()
	a := &fakeClient{content: "a"}
	b := &fakeClient{content: "b"}
	require.NoError(t, reg.Register("a", a, nil))
	require.NoError(t, reg.Register("b", b, nil))

	require.NoError(t, reg.Remove("a"))
	assert.True(t, a.closed)
	assert.Error(t, reg.Remove("a"))
	assert.Equal(t, []string{"b"}, reg.List())

	require.NoError(t, reg.CloseAll())
	assert.True(t, b.closed)
	assert.Empty(t, reg.List())
}
