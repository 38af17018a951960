package chaintracks

import (
	"testing"

	"github.com/bsv-blockchain/go-sdk/block"
	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/beastlymac/ccoin/pkg/checkpoints"
)

// testBits is the regtest proof-of-work limit; every test header carries the same work
const testBits = 0x207fffff

// buildHeaders returns count linked headers on top of prev. salt keeps forks distinct.
func buildHeaders(prev chainhash.Hash, count int, salt byte) []*block.Header {
	headers := make([]*block.Header, 0, count)
	for i := 0; i < count; i++ {
		header := &block.Header{
			PrevHash:   prev,
			MerkleRoot: chainhash.Hash{salt, byte(i), byte(i >> 8)},
			Bits:       testBits,
		}
		headers = append(headers, header)
		prev = header.Hash()
	}
	return headers
}

// hashesOf returns the hashes of headers in order
func hashesOf(headers []*block.Header) []chainhash.Hash {
	hashes := make([]chainhash.Hash, len(headers))
	for i, h := range headers {
		hashes[i] = h.Hash()
	}
	return hashes
}

// registryFor anchors the given heights of chain as checkpoints
func registryFor(t *testing.T, chain []*block.Header, heights ...uint32) *checkpoints.Registry {
	t.Helper()

	genesis := chain[0].Hash()
	entries := []checkpoints.Checkpoint{{Height: 0, Hash: genesis}}
	for _, h := range heights {
		entries = append(entries, checkpoints.Checkpoint{Height: h, Hash: chain[h].Hash()})
	}

	registry, err := checkpoints.New(checkpoints.Config{Genesis: genesis, Checkpoints: entries})
	require.NoError(t, err)
	return registry
}

// newTestManager returns an in-memory ChainManager holding chain as its main chain
func newTestManager(t *testing.T, registry *checkpoints.Registry, chain []*block.Header) *ChainManager {
	t.Helper()

	cm, err := NewChainManager("regtest", "", "", registry)
	require.NoError(t, err)

	if len(chain) > 0 {
		branch, err := cm.buildBranch(chain, 0)
		require.NoError(t, err)
		require.NoError(t, cm.SetChainTip(branch))
	}
	return cm
}

// branchOn builds BlockHeaders for headers descending from the main chain header at parentHeight
func branchOn(t *testing.T, cm *ChainManager, parentHeight uint32, headers []*block.Header) []*BlockHeader {
	t.Helper()

	parent, err := cm.GetHeaderByHeight(parentHeight)
	require.NoError(t, err)

	branch := make([]*BlockHeader, 0, len(headers))
	work := parent.ChainWork
	for i, h := range headers {
		work = AddWork(work, h.Bits)
		branch = append(branch, newBlockHeader(h, parentHeight+1+uint32(i), work))
	}
	return branch
}
