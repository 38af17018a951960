package chaintracks

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/bsv-blockchain/go-sdk/block"
	"github.com/bsv-blockchain/go-sdk/chainhash"
)

const (
	// syncBatchSize is the number of headers requested per DataHub call
	syncBatchSize = 1000

	// maxCrawlDepth bounds how far back a remote tip is followed before giving up
	maxCrawlDepth = 10000
)

// fetchRemoteHeaders asks a DataHub for up to count headers ending at hash, newest first
func (cm *ChainManager) fetchRemoteHeaders(ctx context.Context, dataHubURL string, hash chainhash.Hash, count int) ([]*block.Header, error) {
	url := fmt.Sprintf("%s/headers/%s?n=%d", strings.TrimSuffix(dataHubURL, "/"), hash.String(), count)

	data, err := cm.fetchCDN(ctx, url)
	if err != nil {
		return nil, err
	}

	return parseHeaders(data)
}

// SyncFromRemoteTip walks back from tipHash through a DataHub until it reaches a
// header we already know, then adds the missing headers and re-evaluates the tip
func (cm *ChainManager) SyncFromRemoteTip(ctx context.Context, tipHash chainhash.Hash, dataHubURL string) error {
	if cm.HasBlock(&tipHash) {
		return nil
	}
	if dataHubURL == "" {
		return fmt.Errorf("%w: no DataHub URL to fetch %s from", ErrBrokenChain, tipHash)
	}

	var pending []*block.Header // newest first
	cursor := tipHash

	for len(pending) < maxCrawlDepth {
		headers, err := cm.fetchRemoteHeaders(ctx, dataHubURL, cursor, syncBatchSize)
		if err != nil {
			return fmt.Errorf("failed to fetch headers from %s: %w", dataHubURL, err)
		}
		if len(headers) == 0 {
			return fmt.Errorf("%w: no headers returned for %s", ErrBrokenChain, cursor)
		}

		for _, header := range headers {
			hash := header.Hash()
			if !hash.IsEqual(&cursor) {
				return fmt.Errorf("%w: expected %s, got %s", ErrBrokenChain, cursor, hash)
			}
			pending = append(pending, header)

			parentHash := header.PrevHash
			if parent, err := cm.GetHeaderByHash(&parentHash); err == nil {
				return cm.connectBranch(parent, pending)
			}
			cursor = parentHash
		}
	}

	return fmt.Errorf("%w: no common ancestor within %d headers of %s", ErrBrokenChain, maxCrawlDepth, tipHash)
}

// connectBranch adds headers (newest first) descending from parent and re-evaluates the tip.
// Nothing is added unless every header passes the checkpoints.
func (cm *ChainManager) connectBranch(parent *BlockHeader, newestFirst []*block.Header) error {
	if len(newestFirst) == 0 {
		return nil
	}

	chainWork := new(big.Int).Set(parent.ChainWork)
	height := parent.Height

	branch := make([]*BlockHeader, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		header := newestFirst[i]
		height++
		chainWork = AddWork(chainWork, header.Bits)
		branch = append(branch, newBlockHeader(header, height, chainWork))
	}

	if err := cm.checkBranch(branch); err != nil {
		return fmt.Errorf("rejected remote branch of %d headers: %w", len(branch), err)
	}

	cm.mu.Lock()
	for _, header := range branch {
		cm.byHash[header.Hash] = header
	}
	cm.mu.Unlock()

	log.WithField("headers", len(branch)).Debug("Connected remote branch")
	return cm.considerTip(branch[len(branch)-1])
}
