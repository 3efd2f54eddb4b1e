package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloaderReload(t *testing.T) {
	initial := Default()
	r := NewReloader("", initial, nil)

	next := Default()
	next.IPC.Enabled = false
	r.load = func(string) (*Config, error) { return next, nil }

	var seen []*Config
	r.AddCallback(func(ctx context.Context, cfg *Config) error {
		seen = append(seen, cfg)
		return nil
	})

	require.NoError(t, r.Reload(context.Background()))
	require.Len(t, seen, 1)
	assert.Same(t, next, seen[0])
	assert.Same(t, next, r.GetConfig())
	assert.Equal(t, ReloadStateIdle, r.State())
}

func TestReloaderCallbackFailureKeepsConfig(t *testing.T) {
	initial := Default()
	r := NewReloader("", initial, nil)
	r.load = func(string) (*Config, error) { return Default(), nil }

	r.AddCallback(func(context.Context, *Config) error { return errors.New("refused") })

	err := r.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, initial, r.GetConfig())
	assert.Equal(t, ReloadStateIdle, r.State())
}

func TestReloaderLoadFailure(t *testing.T) {
	initial := Default()
	r := NewReloader("", initial, nil)
	r.load = func(string) (*Config, error) { return nil, errors.New("bad file") }

	called := false
	r.AddCallback(func(context.Context, *Config) error {
		called = true
		return nil
	})

	require.Error(t, r.Reload(context.Background()))
	assert.False(t, called)
	assert.Same(t, initial, r.GetConfig())
}

func TestReloaderStartStop(t *testing.T) {
	r := NewReloader("", Default(), nil)
	r.Start()
	r.Start()
	r.Stop()
	assert.Equal(t, ReloadStateStopped, r.State())
	r.Stop()

	r.Start()
	assert.Equal(t, ReloadStateIdle, r.State())
	r.Stop()
}
