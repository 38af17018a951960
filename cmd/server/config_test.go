package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/beastlymac/ccoin/pkg/checkpoints"
)

func testContext(t *testing.T, port int, network string, disable bool) *cli.Context {
	t.Helper()
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	set.Int(PortFlag.Name, port, "")
	set.String(NetworkFlag.Name, network, "")
	set.String(StoragePathFlag.Name, t.TempDir(), "")
	set.String(BootstrapURLFlag.Name, "", "")
	set.Bool(DisableCheckpointsFlag.Name, disable, "")
	return cli.NewContext(&app, set, nil)
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(testContext(t, 3011, "main", false))
	require.NoError(t, err)
	assert.Equal(t, 3011, config.Port)
	assert.Equal(t, "main", config.Network)

	registry, err := config.Registry()
	require.NoError(t, err)
	assert.False(t, registry.Bypassed())
	assert.Equal(t, uint32(382320), registry.EstimateAnchoredHeight())
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(testContext(t, 3011, "nonet", false))
	require.ErrorIs(t, err, checkpoints.ErrUnknownNetwork)

	_, err = LoadConfig(testContext(t, 0, "main", false))
	require.Error(t, err)

	_, err = LoadConfig(testContext(t, 70000, "main", false))
	require.Error(t, err)
}

func TestConfigRegistry_Bypass(t *testing.T) {
	tests := []struct {
		network string
		disable bool
		bypass  bool
	}{
		{"main", true, true},
		{"test", false, true},
		{"regtest", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			config, err := LoadConfig(testContext(t, 3011, tt.network, tt.disable))
			require.NoError(t, err)

			registry, err := config.Registry()
			require.NoError(t, err)
			assert.Equal(t, tt.bypass, registry.Bypassed())
			assert.Equal(t, uint32(0), registry.EstimateAnchoredHeight())
		})
	}
}
