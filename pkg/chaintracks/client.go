package chaintracks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/bsv-blockchain/go-sdk/chainhash"

	"github.com/beastlymac/ccoin/pkg/checkpoints"
)

// ChainClient is an HTTP client for chaintracks server with SSE support
type ChainClient struct {
	baseURL    string
	httpClient *http.Client
	currentTip *BlockHeader
	tipMu      sync.RWMutex
	msgChan    chan *BlockHeader
	cancelFunc context.CancelFunc
}

// apiResponse mirrors the server's response envelope
type apiResponse[T any] struct {
	Status      string `json:"status"`
	Value       T      `json:"value"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewChainClient creates a new HTTP client for chaintracks server
func NewChainClient(baseURL string) *ChainClient {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &ChainClient{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Start connects to the SSE stream and returns a channel for tip updates
func (cc *ChainClient) Start(ctx context.Context) (<-chan *BlockHeader, error) {
	cc.msgChan = make(chan *BlockHeader, 1)

	childCtx, cancel := context.WithCancel(ctx)
	cc.cancelFunc = cancel

	req, err := http.NewRequestWithContext(childCtx, "GET", cc.baseURL+"/v2/tip/stream", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create SSE request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := cc.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to SSE stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("SSE stream returned status %d", resp.StatusCode)
	}

	go cc.readSSE(childCtx, resp.Body)

	return cc.msgChan, nil
}

// readSSE reads Server-Sent Events from the response body
func (cc *ChainClient) readSSE(ctx context.Context, body io.ReadCloser) {
	defer body.Close()
	defer close(cc.msgChan)

	reader := bufio.NewReader(body)
	var lastHash *chainhash.Hash

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}

		var blockHeader BlockHeader
		if err := json.Unmarshal([]byte(data), &blockHeader); err != nil {
			continue
		}

		if lastHash != nil && lastHash.IsEqual(&blockHeader.Hash) {
			continue
		}

		lastHash = &blockHeader.Hash

		cc.tipMu.Lock()
		cc.currentTip = &blockHeader
		cc.tipMu.Unlock()

		select {
		case cc.msgChan <- &blockHeader:
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Stop closes the SSE connection
func (cc *ChainClient) Stop() error {
	if cc.cancelFunc != nil {
		cc.cancelFunc()
	}
	return nil
}

// GetTip returns the current chain tip
func (cc *ChainClient) GetTip() *BlockHeader {
	cc.tipMu.RLock()
	defer cc.tipMu.RUnlock()
	return cc.currentTip
}

// GetHeight returns the current chain height
func (cc *ChainClient) GetHeight() uint32 {
	cc.tipMu.RLock()
	defer cc.tipMu.RUnlock()
	if cc.currentTip == nil {
		return 0
	}
	return cc.currentTip.Height
}

// GetHeaderByHeight retrieves a header by height from the server
func (cc *ChainClient) GetHeaderByHeight(height uint32) (*BlockHeader, error) {
	url := fmt.Sprintf("%s/v2/header/height/%d", cc.baseURL, height)
	return cc.fetchHeader(url)
}

// GetHeaderByHash retrieves a header by hash from the server
func (cc *ChainClient) GetHeaderByHash(hash *chainhash.Hash) (*BlockHeader, error) {
	url := fmt.Sprintf("%s/v2/header/hash/%s", cc.baseURL, hash.String())
	return cc.fetchHeader(url)
}

// fetchHeader is a helper to fetch and parse a header from the server
func (cc *ChainClient) fetchHeader(url string) (*BlockHeader, error) {
	var response apiResponse[*BlockHeader]
	if err := cc.getJSON(context.Background(), url, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch header: %w", err)
	}

	if response.Status != "success" || response.Value == nil {
		return nil, ErrHeaderNotFound
	}

	return response.Value, nil
}

// getJSON performs a GET request and decodes the JSON body into out
func (cc *ChainClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// IsValidRootForHeight implements the ChainTracker interface
func (cc *ChainClient) IsValidRootForHeight(ctx context.Context, root *chainhash.Hash, height uint32) (bool, error) {
	header, err := cc.GetHeaderByHeight(height)
	if err != nil {
		return false, err
	}
	return header.MerkleRoot.IsEqual(root), nil
}

// CurrentHeight implements the ChainTracker interface
func (cc *ChainClient) CurrentHeight(ctx context.Context) (uint32, error) {
	return cc.GetHeight(), nil
}

// GetNetwork returns the network name from the server
func (cc *ChainClient) GetNetwork() (string, error) {
	var response apiResponse[string]
	if err := cc.getJSON(context.Background(), cc.baseURL+"/v2/network", &response); err != nil {
		return "", fmt.Errorf("failed to fetch network: %w", err)
	}

	if response.Status != "success" {
		return "", fmt.Errorf("server returned error status")
	}

	return response.Value, nil
}

// GetLastCheckpoint returns the highest checkpoint on the server's main chain
// The second return value is false if the server has not reached any checkpoint
func (cc *ChainClient) GetLastCheckpoint(ctx context.Context) (checkpoints.Checkpoint, bool, error) {
	var response apiResponse[*CheckpointInfo]
	if err := cc.getJSON(ctx, cc.baseURL+"/v2/checkpoint/last", &response); err != nil {
		return checkpoints.Checkpoint{}, false, fmt.Errorf("failed to fetch last checkpoint: %w", err)
	}

	if response.Status != "success" {
		return checkpoints.Checkpoint{}, false, fmt.Errorf("server returned error status")
	}
	if response.Value == nil {
		return checkpoints.Checkpoint{}, false, nil
	}

	hash, err := chainhash.NewHashFromHex(response.Value.Hash)
	if err != nil {
		return checkpoints.Checkpoint{}, false, fmt.Errorf("invalid checkpoint hash: %w", err)
	}

	return checkpoints.Checkpoint{Height: response.Value.Height, Hash: *hash}, true, nil
}

// GetCheckpointEstimate returns the server's checkpoint based height estimate
func (cc *ChainClient) GetCheckpointEstimate(ctx context.Context) (uint32, error) {
	var response apiResponse[uint32]
	if err := cc.getJSON(ctx, cc.baseURL+"/v2/checkpoint/estimate", &response); err != nil {
		return 0, fmt.Errorf("failed to fetch checkpoint estimate: %w", err)
	}

	if response.Status != "success" {
		return 0, fmt.Errorf("server returned error status")
	}

	return response.Value, nil
}

// VerifyCheckpoint asks the server whether hash is acceptable at height
func (cc *ChainClient) VerifyCheckpoint(ctx context.Context, height uint32, hash *chainhash.Hash) (bool, error) {
	url := fmt.Sprintf("%s/v2/checkpoint/verify/%d/%s", cc.baseURL, height, hash.String())

	var response apiResponse[bool]
	if err := cc.getJSON(ctx, url, &response); err != nil {
		return false, fmt.Errorf("failed to verify checkpoint: %w", err)
	}

	if response.Status != "success" {
		return false, fmt.Errorf("server returned error status")
	}

	return response.Value, nil
}
