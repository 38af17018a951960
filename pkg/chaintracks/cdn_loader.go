package chaintracks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// fetchCDN downloads a single file from the bootstrap CDN
func (cm *ChainManager) fetchCDN(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cm.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CDN returned status %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}

	return data, nil
}

// fetchCDNMetadata downloads and parses the network metadata JSON
func (cm *ChainManager) fetchCDNMetadata(ctx context.Context, baseURL string) (*CDNMetadata, error) {
	data, err := cm.fetchCDN(ctx, baseURL+"/"+metadataFileName(cm.network))
	if err != nil {
		return nil, err
	}

	var metadata CDNMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}

	return &metadata, nil
}

// bootstrapFromCDN downloads header files the local chain does not cover yet
// Every downloaded header goes through SetChainTip, so checkpoints are enforced
func (cm *ChainManager) bootstrapFromCDN(ctx context.Context, bootstrapURL string) error {
	baseURL := strings.TrimSuffix(bootstrapURL, "/")

	metadata, err := cm.fetchCDNMetadata(ctx, baseURL)
	if err != nil {
		return err
	}

	for _, fileEntry := range metadata.Files {
		if fileEntry.Count == 0 {
			continue
		}

		lastHeight := fileEntry.FirstHeight + uint32(fileEntry.Count) - 1
		if tip := cm.GetTip(); tip != nil && lastHeight <= tip.Height {
			continue
		}

		data, err := cm.fetchCDN(ctx, baseURL+"/"+fileEntry.FileName)
		if err != nil {
			return err
		}

		headers, err := parseHeaders(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", fileEntry.FileName, err)
		}

		if len(headers) > fileEntry.Count {
			headers = headers[:fileEntry.Count]
		}

		branch, err := cm.buildBranch(headers, fileEntry.FirstHeight)
		if err != nil {
			return fmt.Errorf("failed to build chain from %s: %w", fileEntry.FileName, err)
		}

		if err := cm.SetChainTip(branch); err != nil {
			return fmt.Errorf("failed to set chain tip for file %s: %w", fileEntry.FileName, err)
		}

		log.WithFields(logrus.Fields{
			"file":   fileEntry.FileName,
			"height": cm.GetHeight(),
		}).Info("Bootstrapped headers from CDN")
	}

	return nil
}
