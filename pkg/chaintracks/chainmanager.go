package chaintracks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	p2p "github.com/bsv-blockchain/go-p2p-message-bus"
	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/sirupsen/logrus"

	"github.com/beastlymac/ccoin/pkg/checkpoints"
)

// ChainManager is the main orchestrator for chain management
type ChainManager struct {
	mu sync.RWMutex

	byHeight []chainhash.Hash                // Main chain hashes indexed by height
	byHash   map[chainhash.Hash]*BlockHeader // Hash → Header (all headers: main + orphans)
	tip      *BlockHeader                    // Current chain tip

	checkpoints *checkpoints.Registry

	synced           atomic.Bool
	localStoragePath string
	network          string
	httpClient       *http.Client

	p2pClient p2p.Client
	msgChan   chan *BlockHeader
}

// NewChainManager creates a new ChainManager, restores from local files if present
// and then bootstraps from bootstrapURL when one is given.
// A nil registry disables checkpoint enforcement.
func NewChainManager(network, localStoragePath, bootstrapURL string, registry *checkpoints.Registry) (*ChainManager, error) {
	if registry == nil {
		registry = checkpoints.Disabled()
	}

	cm := &ChainManager{
		byHeight:         make([]chainhash.Hash, 0, 1000000),
		byHash:           make(map[chainhash.Hash]*BlockHeader),
		checkpoints:      registry,
		network:          network,
		localStoragePath: localStoragePath,
		httpClient:       &http.Client{Timeout: 60 * time.Second},
	}

	if err := cm.loadFromLocalFiles(); err != nil {
		return nil, fmt.Errorf("failed to restore local headers: %w", err)
	}

	if bootstrapURL != "" {
		if err := cm.bootstrapFromCDN(context.Background(), bootstrapURL); err != nil {
			// Conflicting data is fatal, an unreachable CDN is not
			if errors.Is(err, checkpoints.ErrCheckpointMismatch) || errors.Is(err, ErrReorgBelowCheckpoint) {
				return nil, fmt.Errorf("failed to bootstrap from %s: %w", bootstrapURL, err)
			}
			log.WithError(err).WithField("url", bootstrapURL).Warn("Bootstrap failed, continuing with local headers")
		}
	}

	if cm.GetTip() != nil {
		cm.SetSynced(true)
	}

	return cm, nil
}

// GetHeaderByHeight retrieves a header by height
func (cm *ChainManager) GetHeaderByHeight(height uint32) (*BlockHeader, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if height >= uint32(len(cm.byHeight)) {
		return nil, ErrHeaderNotFound
	}

	hash := cm.byHeight[height]
	header, ok := cm.byHash[hash]
	if !ok {
		return nil, ErrHeaderNotFound
	}

	return header, nil
}

// GetHeaderByHash retrieves a header by hash
func (cm *ChainManager) GetHeaderByHash(hash *chainhash.Hash) (*BlockHeader, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	header, ok := cm.byHash[*hash]
	if !ok {
		return nil, ErrHeaderNotFound
	}

	return header, nil
}

// HasBlock reports whether a header with the given hash is known, on the main chain or not
func (cm *ChainManager) HasBlock(hash *chainhash.Hash) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	_, ok := cm.byHash[*hash]
	return ok
}

// GetTip returns the current chain tip
func (cm *ChainManager) GetTip() *BlockHeader {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.tip
}

// GetHeight returns the current chain height
func (cm *ChainManager) GetHeight() uint32 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.tip == nil {
		return 0
	}
	return cm.tip.Height
}

// IsSynced returns whether the chain is synced
func (cm *ChainManager) IsSynced() bool {
	return cm.synced.Load()
}

// SetSynced sets the synced status
func (cm *ChainManager) SetSynced(synced bool) {
	cm.synced.Store(synced)
}

// GetNetwork returns the network name
func (cm *ChainManager) GetNetwork() (string, error) {
	return cm.network, nil
}

// Checkpoints returns the checkpoint registry guarding this chain
func (cm *ChainManager) Checkpoints() *checkpoints.Registry {
	return cm.checkpoints
}

// LastCheckpoint returns the highest checkpoint that is part of the main chain
func (cm *ChainManager) LastCheckpoint() (checkpoints.Checkpoint, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lastCheckpointLocked()
}

// EstimatedHeight returns the checkpoint based estimate of the chain height
func (cm *ChainManager) EstimatedHeight() uint32 {
	return cm.checkpoints.EstimateAnchoredHeight()
}

// SyncProgress returns the tip height as a fraction of the estimated height, capped at 1
func (cm *ChainManager) SyncProgress() float64 {
	estimate := cm.EstimatedHeight()
	if estimate == 0 {
		return 1
	}

	progress := float64(cm.GetHeight()) / float64(estimate)
	if progress > 1 {
		return 1
	}
	return progress
}

// AddHeader adds a header to byHash for lookups without modifying the chain tip
func (cm *ChainManager) AddHeader(header *BlockHeader) error {
	if err := cm.checkHeader(header); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.byHash[header.Hash] = header

	return nil
}

// checkHeader rejects a header that conflicts with a checkpoint
func (cm *ChainManager) checkHeader(header *BlockHeader) error {
	err := cm.checkpoints.Check(header.Height, &header.Hash)
	if err == nil {
		return nil
	}

	checkpointViolations.Inc()
	var mismatch *checkpoints.MismatchError
	if errors.As(err, &mismatch) {
		log.WithFields(logrus.Fields{
			"height":   mismatch.Height,
			"hash":     mismatch.Hash.String(),
			"expected": mismatch.Expected.String(),
		}).Warn("Rejected header conflicting with checkpoint")
	}
	return err
}

// onMainChainLocked reports whether hash is on the main chain (must be called with lock held)
func (cm *ChainManager) onMainChainLocked(hash *chainhash.Hash) bool {
	header, ok := cm.byHash[*hash]
	if !ok {
		return false
	}
	return header.Height < uint32(len(cm.byHeight)) && cm.byHeight[header.Height] == *hash
}

// lastCheckpointLocked resolves the highest checkpoint on the main chain (must be called with lock held)
func (cm *ChainManager) lastCheckpointLocked() (checkpoints.Checkpoint, bool) {
	return cm.checkpoints.ResolveReachedCheckpoint(checkpoints.BlockIndexFunc(cm.onMainChainLocked))
}

// forkHeightLocked returns the lowest main chain height the branch would replace or remove.
// The second return value is false if the branch only extends the main chain.
func (cm *ChainManager) forkHeightLocked(branchHeaders []*BlockHeader) (uint32, bool) {
	mainLen := uint32(len(cm.byHeight))

	for _, header := range branchHeaders {
		if header.Height < mainLen && cm.byHeight[header.Height] != header.Hash {
			return header.Height, true
		}
	}

	newTipHeight := branchHeaders[len(branchHeaders)-1].Height
	if mainLen > newTipHeight+1 {
		return newTipHeight + 1, true
	}

	return 0, false
}

// checkReorgLocked refuses a branch that rewrites history at or below the last checkpoint
func (cm *ChainManager) checkReorgLocked(branchHeaders []*BlockHeader) error {
	forkHeight, rewrites := cm.forkHeightLocked(branchHeaders)
	if !rewrites {
		return nil
	}

	cp, ok := cm.lastCheckpointLocked()
	if !ok || forkHeight > cp.Height {
		return nil
	}

	reorgsRejected.Inc()
	log.WithFields(logrus.Fields{
		"forkHeight":       forkHeight,
		"checkpointHeight": cp.Height,
		"checkpointHash":   cp.Hash.String(),
	}).Warn("Refused reorganization below checkpoint")

	return fmt.Errorf("%w: fork at height %d, checkpoint %s at height %d",
		ErrReorgBelowCheckpoint, forkHeight, cp.Hash, cp.Height)
}

// branchFromMainChainLocked walks back from header to the main chain and returns
// the headers not yet on it, oldest first (must be called with lock held)
func (cm *ChainManager) branchFromMainChainLocked(header *BlockHeader) ([]*BlockHeader, error) {
	branch := []*BlockHeader{header}
	current := header

	for current.Height > 0 {
		parent, ok := cm.byHash[current.PrevHash]
		if !ok {
			return nil, fmt.Errorf("%w: missing parent %s of %s", ErrBrokenChain, current.PrevHash, current.Hash)
		}
		if cm.onMainChainLocked(&parent.Hash) {
			break
		}
		branch = append(branch, parent)
		current = parent
	}

	// Reverse into oldest-first order
	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}

	return branch, nil
}

// considerTip makes header the new tip if it carries more work than the current one.
// It holds the write lock from comparison to tip change, so the branch still links
// to the main chain when applied.
func (cm *ChainManager) considerTip(header *BlockHeader) error {
	cm.mu.Lock()
	if cm.tip != nil && header.ChainWork.Cmp(cm.tip.ChainWork) <= 0 {
		cm.mu.Unlock()
		log.WithField("height", header.Height).Debug("Block added as orphan/alternate chain")
		return nil
	}

	branch, err := cm.branchFromMainChainLocked(header)
	if err == nil {
		err = cm.checkBranch(branch)
	}
	if err == nil {
		err = cm.applyBranchLocked(branch)
	}
	if err != nil {
		cm.mu.Unlock()
		return err
	}
	tip := cm.tip
	cm.mu.Unlock()

	log.WithFields(logrus.Fields{
		"height":    header.Height,
		"chainwork": header.ChainWork.String(),
		"branch":    len(branch),
	}).Info("New tip")

	return cm.finishTipChange(tip, branch, true)
}

// pruneOrphans removes old orphaned headers (must be called with lock held)
func (cm *ChainManager) pruneOrphans() {
	if cm.tip == nil {
		return
	}

	pruneHeight := uint32(0)
	if cm.tip.Height > 100 {
		pruneHeight = cm.tip.Height - 100
	}

	// Remove headers that are not in byHeight (orphans) and too old
	for hash, header := range cm.byHash {
		// Check if it's in the main chain
		if header.Height < uint32(len(cm.byHeight)) && cm.byHeight[header.Height] == hash {
			continue
		}
		// It's an orphan, check if too old
		if header.Height < pruneHeight {
			delete(cm.byHash, hash)
		}
	}
}

// updateGauges publishes the tip and checkpoint heights
func (cm *ChainManager) updateGauges() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.tip != nil {
		tipHeightGauge.Set(float64(cm.tip.Height))
	}
	if cp, ok := cm.lastCheckpointLocked(); ok {
		lastCheckpointGauge.Set(float64(cp.Height))
	}
}

// notifyTip hands the latest tip to the channel returned by Start, replacing a stale one
func (cm *ChainManager) notifyTip(tip *BlockHeader) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.msgChan == nil {
		return
	}

	select {
	case cm.msgChan <- tip:
	default:
		select {
		case <-cm.msgChan:
		default:
		}
		select {
		case cm.msgChan <- tip:
		default:
		}
	}
}
