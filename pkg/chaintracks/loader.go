package chaintracks

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/bsv-blockchain/go-sdk/block"
	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/sirupsen/logrus"
)

const (
	headerSize     = 80
	headersPerFile = 100000
	zeroHex        = "0000000000000000000000000000000000000000000000000000000000000000"
)

// slowPersistThreshold is the write or metadata duration at or above which persistence is logged
var slowPersistThreshold = 100 * time.Millisecond

// metadataFileName returns the name of the metadata JSON for a network
func metadataFileName(network string) string {
	return network + "NetBlockHeaders.json"
}

// headersFileName returns the name of the index-th .headers file for a network
func headersFileName(network string, index uint32) string {
	return fmt.Sprintf("%sNet_%d.headers", network, index)
}

// parseHeaders splits raw bytes into 80 byte headers
// This function performs no validation - just parsing
func parseHeaders(data []byte) ([]*block.Header, error) {
	if len(data)%headerSize != 0 {
		return nil, fmt.Errorf("%w: size %d bytes (not multiple of %d)", ErrInvalidHeader, len(data), headerSize)
	}

	headerCount := len(data) / headerSize
	headers := make([]*block.Header, 0, headerCount)

	for i := 0; i < headerCount; i++ {
		headerBytes := data[i*headerSize : (i+1)*headerSize]
		header, err := block.NewHeaderFromBytes(headerBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse header at index %d: %w", i, err)
		}
		headers = append(headers, header)
	}

	return headers, nil
}

// loadHeadersFromFile reads a binary .headers file and returns a slice of headers
func loadHeadersFromFile(path string) ([]*block.Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return parseHeaders(data)
}

// parseMetadata reads and parses the metadata JSON file
func parseMetadata(path string) (*CDNMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata CDNMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}

	return &metadata, nil
}

// buildBranch attaches heights and chainwork to consecutive headers starting at firstHeight.
// Headers already on the main chain are skipped.
func (cm *ChainManager) buildBranch(headers []*block.Header, firstHeight uint32) ([]*BlockHeader, error) {
	branch := make([]*BlockHeader, 0, len(headers))

	var prevChainWork *big.Int
	if firstHeight > 0 {
		prevHeader, err := cm.GetHeaderByHeight(firstHeight - 1)
		if err != nil {
			return nil, fmt.Errorf("failed to get previous header at height %d: %w", firstHeight-1, err)
		}
		prevChainWork = prevHeader.ChainWork
	} else {
		prevChainWork = big.NewInt(0)
	}

	for i, header := range headers {
		height := firstHeight + uint32(i)
		chainWork := AddWork(prevChainWork, header.Bits)
		prevChainWork = chainWork

		if known, err := cm.GetHeaderByHeight(height); err == nil && known.Hash == header.Hash() {
			prevChainWork = known.ChainWork
			continue
		}

		branch = append(branch, newBlockHeader(header, height, chainWork))
	}

	return branch, nil
}

// loadFromLocalFiles restores the chain from local header files
// Headers are still checked against the checkpoints, nothing else is validated
func (cm *ChainManager) loadFromLocalFiles() error {
	if cm.localStoragePath == "" {
		return nil
	}

	metadataPath := filepath.Join(cm.localStoragePath, metadataFileName(cm.network))
	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return nil
	}

	metadata, err := parseMetadata(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to parse local metadata: %w", err)
	}

	for _, fileEntry := range metadata.Files {
		filePath := filepath.Join(cm.localStoragePath, fileEntry.FileName)
		headers, err := loadHeadersFromFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to load file %s: %w", fileEntry.FileName, err)
		}

		if fileEntry.Count > 0 && fileEntry.Count < len(headers) {
			headers = headers[:fileEntry.Count]
		}

		branch, err := cm.buildBranch(headers, fileEntry.FirstHeight)
		if err != nil {
			return fmt.Errorf("failed to build chain from %s: %w", fileEntry.FileName, err)
		}

		if err := cm.setChainTip(branch, false); err != nil {
			return fmt.Errorf("failed to set chain tip for file %s: %w", fileEntry.FileName, err)
		}
	}

	log.WithField("height", cm.GetHeight()).Info("Restored headers from local files")
	return nil
}

// SetChainTip updates the chain tip with a new branch of headers
// branchHeaders should be ordered from oldest to newest
// The parent of branchHeaders[0] must exist in our current chain
func (cm *ChainManager) SetChainTip(branchHeaders []*BlockHeader) error {
	return cm.setChainTip(branchHeaders, true)
}

func (cm *ChainManager) setChainTip(branchHeaders []*BlockHeader, persist bool) error {
	if len(branchHeaders) == 0 {
		return nil
	}

	if err := cm.checkBranch(branchHeaders); err != nil {
		return err
	}

	// Update in-memory chain
	cm.mu.Lock()
	if err := cm.applyBranchLocked(branchHeaders); err != nil {
		cm.mu.Unlock()
		return err
	}
	tip := cm.tip
	cm.mu.Unlock()

	return cm.finishTipChange(tip, branchHeaders, persist)
}

// checkBranch rejects the whole branch if any header conflicts with a checkpoint
func (cm *ChainManager) checkBranch(branchHeaders []*BlockHeader) error {
	for _, header := range branchHeaders {
		if err := cm.checkHeader(header); err != nil {
			return err
		}
	}
	return nil
}

// applyBranchLocked makes the last header of branchHeaders the tip (must be called with write lock held)
func (cm *ChainManager) applyBranchLocked(branchHeaders []*BlockHeader) error {
	if err := cm.checkReorgLocked(branchHeaders); err != nil {
		return err
	}

	// Update byHeight for all blocks in the new branch
	for _, header := range branchHeaders {
		// Ensure slice is large enough
		for uint32(len(cm.byHeight)) <= header.Height {
			cm.byHeight = append(cm.byHeight, chainhash.Hash{})
		}

		cm.byHeight[header.Height] = header.Hash
		cm.byHash[header.Hash] = header
	}

	// Clear any blocks after the new tip (handles reorg to shorter chain)
	newTipHeight := branchHeaders[len(branchHeaders)-1].Height
	if uint32(len(cm.byHeight)) > newTipHeight+1 {
		cm.byHeight = cm.byHeight[:newTipHeight+1]
	}

	cm.tip = branchHeaders[len(branchHeaders)-1]

	// Prune orphaned headers older than 100 blocks
	cm.pruneOrphans()

	return nil
}

// finishTipChange publishes a new tip and, if persist is set, writes the branch to disk
func (cm *ChainManager) finishTipChange(tip *BlockHeader, branchHeaders []*BlockHeader, persist bool) error {
	cm.updateGauges()
	cm.notifyTip(tip)

	if !persist {
		return nil
	}

	startWrite := time.Now()
	if err := cm.writeHeadersToFiles(branchHeaders); err != nil {
		return fmt.Errorf("failed to write headers to files: %w", err)
	}
	writeDuration := time.Since(startWrite)

	startMeta := time.Now()
	if err := cm.updateMetadataForTip(); err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	metaDuration := time.Since(startMeta)

	if writeDuration >= slowPersistThreshold || metaDuration >= slowPersistThreshold {
		log.WithFields(logrus.Fields{
			"write": writeDuration,
			"meta":  metaDuration,
		}).Debug("Slow chain tip persistence")
	}

	return nil
}

// writeHeadersToFiles writes headers to the appropriate .headers files
func (cm *ChainManager) writeHeadersToFiles(headers []*BlockHeader) error {
	if cm.localStoragePath == "" {
		return nil
	}

	if err := os.MkdirAll(cm.localStoragePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	// Group headers by file
	fileHeaders := make(map[uint32][]*BlockHeader)
	for _, header := range headers {
		fileIndex := header.Height / headersPerFile
		fileHeaders[fileIndex] = append(fileHeaders[fileIndex], header)
	}

	// Write to each file
	for fileIndex, hdrs := range fileHeaders {
		fileName := headersFileName(cm.network, fileIndex)
		filePath := filepath.Join(cm.localStoragePath, fileName)

		// Open file for read/write (create if doesn't exist)
		f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("failed to open file %s: %w", fileName, err)
		}

		// Write each header at its position
		for _, header := range hdrs {
			positionInFile := (header.Height % headersPerFile) * headerSize
			if _, err := f.Seek(int64(positionInFile), 0); err != nil {
				f.Close()
				return fmt.Errorf("failed to seek in file: %w", err)
			}

			if _, err := f.Write(header.Header.Bytes()); err != nil {
				f.Close()
				return fmt.Errorf("failed to write header: %w", err)
			}
		}

		// A reorg to a shorter chain leaves stale headers past the tip
		tip := cm.GetTip()
		if tip != nil && tip.Height/headersPerFile == fileIndex {
			if err := f.Truncate(int64((tip.Height%headersPerFile)+1) * headerSize); err != nil {
				f.Close()
				return fmt.Errorf("failed to truncate file %s: %w", fileName, err)
			}
		}

		f.Close()
	}

	return nil
}

// updateMetadataForTip updates the metadata JSON with current chain tip info
func (cm *ChainManager) updateMetadataForTip() error {
	if cm.localStoragePath == "" {
		return nil
	}

	metadataPath := filepath.Join(cm.localStoragePath, metadataFileName(cm.network))

	// Read existing metadata or create new
	var metadata *CDNMetadata
	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		metadata = &CDNMetadata{
			RootFolder:     "",
			JSONFilename:   metadataFileName(cm.network),
			HeadersPerFile: headersPerFile,
			Files:          []CDNFileEntry{},
		}
	} else {
		metadata, err = parseMetadata(metadataPath)
		if err != nil {
			return fmt.Errorf("failed to parse existing metadata: %w", err)
		}
	}

	// Update file entries based on current chain
	tip := cm.GetTip()
	if tip == nil {
		return nil
	}

	fileIndex := tip.Height / headersPerFile

	// Ensure we have entries for all files up to the current tip
	for i := uint32(len(metadata.Files)); i <= fileIndex; i++ {
		metadata.Files = append(metadata.Files, CDNFileEntry{
			Chain:         cm.network,
			Count:         0,
			FileHash:      "",
			FileName:      headersFileName(cm.network, i),
			FirstHeight:   i * headersPerFile,
			LastChainWork: zeroHex,
			LastHash:      zeroHex,
			PrevChainWork: zeroHex,
			PrevHash:      zeroHex,
			SourceURL:     "",
		})
	}

	// Drop entries past the tip after a reorg to a shorter chain
	metadata.Files = metadata.Files[:fileIndex+1]

	// Update the last file entry with current tip info
	lastFileEntry := &metadata.Files[fileIndex]
	lastFileEntry.Count = int((tip.Height % headersPerFile) + 1)
	lastFileEntry.LastChainWork = ChainWorkToHex(tip.ChainWork)
	lastFileEntry.LastHash = tip.Hash.String()

	// Get previous header for prevChainWork and prevHash
	if tip.Height > 0 {
		prevHeader, err := cm.GetHeaderByHeight(tip.Height - 1)
		if err == nil {
			lastFileEntry.PrevChainWork = ChainWorkToHex(prevHeader.ChainWork)
			lastFileEntry.PrevHash = prevHeader.Hash.String()
		}
	}

	// Write updated metadata
	return cm.writeLocalMetadata(metadata)
}

// writeLocalMetadata writes the metadata JSON to local storage
func (cm *ChainManager) writeLocalMetadata(metadata *CDNMetadata) error {
	if cm.localStoragePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	metadataPath := filepath.Join(cm.localStoragePath, metadataFileName(cm.network))
	if err := os.WriteFile(metadataPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}
