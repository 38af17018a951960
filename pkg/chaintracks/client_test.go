package chaintracks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, routes map[string]string) *ChainClient {
	t.Helper()

	mux := http.NewServeMux()
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
		})
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewChainClient(strings.TrimPrefix(srv.URL, "http://"))
}

func TestChainClient_GetLastCheckpoint(t *testing.T) {
	hash := chainhash.Hash{0x01, 0x02}

	cc := newTestAPI(t, map[string]string{
		"/v2/checkpoint/last": fmt.Sprintf(`{"status":"success","value":{"height":500,"hash":%q}}`, hash.String()),
	})

	cp, ok, err := cc.GetLastCheckpoint(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(500), cp.Height)
	assert.Equal(t, hash, cp.Hash)
}

func TestChainClient_GetLastCheckpoint_NoneReached(t *testing.T) {
	cc := newTestAPI(t, map[string]string{
		"/v2/checkpoint/last": `{"status":"success","value":null}`,
	})

	_, ok, err := cc.GetLastCheckpoint(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChainClient_GetLastCheckpoint_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "error status", body: `{"status":"error","code":"ERR_INTERNAL"}`},
		{name: "bad hash", body: `{"status":"success","value":{"height":1,"hash":"xyz"}}`},
		{name: "bad json", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := newTestAPI(t, map[string]string{"/v2/checkpoint/last": tt.body})
			_, _, err := cc.GetLastCheckpoint(context.Background())
			require.Error(t, err)
		})
	}
}

func TestChainClient_GetCheckpointEstimate(t *testing.T) {
	cc := newTestAPI(t, map[string]string{
		"/v2/checkpoint/estimate": `{"status":"success","value":382320}`,
	})

	estimate, err := cc.GetCheckpointEstimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(382320), estimate)
}

func TestChainClient_VerifyCheckpoint(t *testing.T) {
	good := chainhash.Hash{0x0a}
	bad := chainhash.Hash{0x0b}

	cc := newTestAPI(t, map[string]string{
		"/v2/checkpoint/verify/100/" + good.String(): `{"status":"success","value":true}`,
		"/v2/checkpoint/verify/100/" + bad.String():  `{"status":"success","value":false,"code":"ERR_CHECKPOINT_MISMATCH"}`,
	})
	ctx := context.Background()

	ok, err := cc.VerifyCheckpoint(ctx, 100, &good)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cc.VerifyCheckpoint(ctx, 100, &bad)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = cc.VerifyCheckpoint(ctx, 101, &good)
	require.Error(t, err)
}

func TestChainClient_GetNetwork(t *testing.T) {
	cc := newTestAPI(t, map[string]string{
		"/v2/network": `{"status":"success","value":"main"}`,
	})

	network, err := cc.GetNetwork()
	require.NoError(t, err)
	assert.Equal(t, "main", network)
}

func TestChainClient_GetHeaderByHeight_NotFound(t *testing.T) {
	cc := newTestAPI(t, map[string]string{
		"/v2/header/height/7": `{"status":"success","value":null}`,
	})

	_, err := cc.GetHeaderByHeight(7)
	require.ErrorIs(t, err, ErrHeaderNotFound)
}
