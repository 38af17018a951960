package checkpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForNetwork(t *testing.T) {
	tests := []struct {
		network      string
		bypass       bool
		wantBypassed bool
		wantEstimate uint32
	}{
		{network: "main", wantEstimate: 382320},
		{network: "main", bypass: true, wantBypassed: true},
		{network: "test", wantBypassed: true},
		{network: "regtest", wantBypassed: true},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			r, err := ForNetwork(tt.network, tt.bypass)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBypassed, r.Bypassed())
			assert.Equal(t, tt.wantEstimate, r.EstimateAnchoredHeight())
		})
	}
}

func TestForNetwork_Unknown(t *testing.T) {
	_, err := ForNetwork("nonexistent", false)
	require.ErrorIs(t, err, ErrUnknownNetwork)

	_, err = GenesisHash("nonexistent")
	require.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestMainNetworkTable(t *testing.T) {
	r, err := ForNetwork("main", false)
	require.NoError(t, err)

	genesis, err := GenesisHash("main")
	require.NoError(t, err)
	assert.Equal(t, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f", genesis.String())
	assert.True(t, r.VerifyBlockAtHeight(0, &genesis))

	cps := r.Checkpoints()
	require.NotEmpty(t, cps)
	for i := 1; i < len(cps); i++ {
		assert.Greater(t, cps[i].Height, cps[i-1].Height)
	}

	// The network table itself cannot be modified through a lookup.
	n, err := LookupNetwork("main")
	require.NoError(t, err)
	n.Checkpoints[1].Hash = genesis
	again, err := ForNetwork("main", false)
	require.NoError(t, err)
	assert.False(t, again.VerifyBlockAtHeight(cps[1].Height, &genesis))
}

func TestNetworks(t *testing.T) {
	assert.Equal(t, []string{"main", "regtest", "test"}, Networks())
}
