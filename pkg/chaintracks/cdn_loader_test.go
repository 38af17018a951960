package chaintracks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bsv-blockchain/go-sdk/block"
	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beastlymac/ccoin/pkg/checkpoints"
)

// testCDN serves chain as two header files plus the metadata describing them
type testCDN struct {
	*httptest.Server
	fileRequests atomic.Int32
}

func newTestCDN(t *testing.T, network string, chain []*block.Header, split int) *testCDN {
	t.Helper()

	files := map[string][]*block.Header{
		"/" + headersFileName(network, 0): chain[:split],
		"/" + headersFileName(network, 1): chain[split:],
	}

	metadata := CDNMetadata{
		JSONFilename:   metadataFileName(network),
		HeadersPerFile: headersPerFile,
		Files: []CDNFileEntry{
			{Chain: network, FileName: headersFileName(network, 0), FirstHeight: 0, Count: split},
			{Chain: network, FileName: headersFileName(network, 1), FirstHeight: uint32(split), Count: len(chain) - split},
		},
	}
	metadataJSON, err := json.Marshal(metadata)
	require.NoError(t, err)

	cdn := &testCDN{}
	cdn.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/"+metadataFileName(network) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(metadataJSON)
			return
		}

		headers, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		cdn.fileRequests.Add(1)
		for _, h := range headers {
			_, _ = w.Write(h.Bytes())
		}
	}))
	t.Cleanup(cdn.Close)

	return cdn
}

func TestBootstrapFromCDN(t *testing.T) {
	chain := buildHeaders(chainhash.Hash{}, 12, 1)
	cdn := newTestCDN(t, "regtest", chain, 6)
	dir := t.TempDir()

	cm, err := NewChainManager("regtest", dir, cdn.URL, registryFor(t, chain, 5, 9))
	require.NoError(t, err)

	assert.True(t, cm.IsSynced())
	assert.Equal(t, uint32(11), cm.GetHeight())
	assert.Equal(t, chain[11].Hash(), cm.GetTip().Hash)
	assert.Equal(t, int32(2), cdn.fileRequests.Load())

	cp, ok := cm.LastCheckpoint()
	require.True(t, ok)
	assert.Equal(t, uint32(9), cp.Height)

	// A restart restores locally and skips files already covered
	restarted, err := NewChainManager("regtest", dir, cdn.URL, registryFor(t, chain, 5, 9))
	require.NoError(t, err)
	assert.Equal(t, uint32(11), restarted.GetHeight())
	assert.Equal(t, int32(2), cdn.fileRequests.Load())
}

func TestBootstrapFromCDN_CheckpointMismatch(t *testing.T) {
	chain := buildHeaders(chainhash.Hash{}, 12, 1)
	cdn := newTestCDN(t, "regtest", chain, 6)

	genesis := chain[0].Hash()
	registry, err := checkpoints.New(checkpoints.Config{
		Genesis: genesis,
		Checkpoints: []checkpoints.Checkpoint{
			{Height: 0, Hash: genesis},
			{Height: 8, Hash: chainhash.Hash{0xcc}},
		},
	})
	require.NoError(t, err)

	_, err = NewChainManager("regtest", "", cdn.URL, registry)
	require.ErrorIs(t, err, checkpoints.ErrCheckpointMismatch)

	var mismatch *checkpoints.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint32(8), mismatch.Height)
	assert.Equal(t, chain[8].Hash(), mismatch.Hash)
}

func TestBootstrapFromCDN_BypassAcceptsAnyChain(t *testing.T) {
	chain := buildHeaders(chainhash.Hash{}, 12, 1)
	cdn := newTestCDN(t, "regtest", chain, 6)

	registry, err := checkpoints.ForNetwork("regtest", false)
	require.NoError(t, err)

	cm, err := NewChainManager("regtest", "", cdn.URL, registry)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), cm.GetHeight())
}

func TestBootstrapFromCDN_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	cm, err := NewChainManager("regtest", "", srv.URL, nil)
	require.NoError(t, err)

	assert.Nil(t, cm.GetTip())
	assert.False(t, cm.IsSynced())
}

func TestBootstrapFromCDN_TruncatedFile(t *testing.T) {
	chain := buildHeaders(chainhash.Hash{}, 4, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/"+metadataFileName("regtest") {
			_ = json.NewEncoder(w).Encode(CDNMetadata{Files: []CDNFileEntry{
				{FileName: headersFileName("regtest", 0), Count: 4},
			}})
			return
		}
		data := make([]byte, 0, len(chain)*headerSize)
		for _, h := range chain {
			data = append(data, h.Bytes()...)
		}
		_, _ = w.Write(data[:len(data)-10])
	}))
	t.Cleanup(srv.Close)

	// A malformed file is not a checkpoint conflict, so startup continues
	cm, err := NewChainManager("regtest", "", srv.URL, nil)
	require.NoError(t, err)
	assert.Nil(t, cm.GetTip())
}
