package chaintracks

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	p2p "github.com/bsv-blockchain/go-p2p-message-bus"
	"github.com/bsv-blockchain/go-sdk/block"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/sirupsen/logrus"
)

// Start initializes and starts the P2P listener for block announcements
// Returns a channel that consumers can use to receive tip change notifications
func (cm *ChainManager) Start(ctx context.Context) (<-chan *BlockHeader, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.p2pClient != nil {
		return nil, fmt.Errorf("P2P already started")
	}

	// Load or generate private key
	privKey, err := loadOrGeneratePrivateKey(cm.localStoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	// Create P2P client
	client, err := p2p.NewClient(p2p.Config{
		Name:          "ccoin-chaintracks",
		Logger:        &p2p.DefaultLogger{},
		PrivateKey:    privKey,
		Port:          0, // Random port
		PeerCacheFile: filepath.Join(cm.localStoragePath, "peer_cache.json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create P2P client: %w", err)
	}

	cm.p2pClient = client
	cm.msgChan = make(chan *BlockHeader, 1) // Buffered channel (size 1) for latest tip only
	tipChan := cm.msgChan

	// Subscribe to block topic
	topic := blockTopic(cm.network)
	log.WithField("topic", topic).Info("Subscribing to P2P topic")

	subscription := client.Subscribe(topic)

	// Start message handler goroutine
	go func() {
		defer cm.closeTipChannel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-subscription:
				if !ok {
					return
				}
				if err := cm.handleBlockMessage(ctx, msg.Data); err != nil {
					log.WithError(err).Warn("Error handling block message")
				}
			}
		}
	}()

	return tipChan, nil
}

// blockTopic returns the pubsub topic block announcements are published on
func blockTopic(network string) string {
	return fmt.Sprintf("teranode/bitcoin/1.0.0/%snet-block", network)
}

// closeTipChannel closes the notification channel once no more tips will be sent
func (cm *ChainManager) closeTipChannel() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.msgChan != nil {
		close(cm.msgChan)
		cm.msgChan = nil
	}
}

// Stop stops the P2P listener if it's running
func (cm *ChainManager) Stop() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.p2pClient == nil {
		return nil
	}

	err := cm.p2pClient.Close()
	cm.p2pClient = nil
	return err
}

// GetPeers returns information about connected P2P peers
// Returns empty slice if P2P is not running
func (cm *ChainManager) GetPeers() []PeerInfo {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.p2pClient == nil {
		return []PeerInfo{}
	}

	p2pPeers := cm.p2pClient.GetPeers()
	peers := make([]PeerInfo, len(p2pPeers))
	for i, p := range p2pPeers {
		peers[i] = PeerInfo{
			ID:    p.ID,
			Name:  p.Name,
			Addrs: p.Addrs,
		}
	}
	return peers
}

// handleBlockMessage processes a received block message
func (cm *ChainManager) handleBlockMessage(ctx context.Context, data []byte) error {
	log.Debugf("Raw block message: %s", string(data))

	var blockMsg BlockMessage
	if err := json.Unmarshal(data, &blockMsg); err != nil {
		return fmt.Errorf("failed to unmarshal block message: %w", err)
	}

	log.WithFields(logrus.Fields{
		"height":  blockMsg.Height,
		"hash":    blockMsg.Hash,
		"peer":    blockMsg.PeerID,
		"datahub": blockMsg.DataHubURL,
	}).Info("Received block")

	// Decode header from hex
	headerBytes, err := hex.DecodeString(blockMsg.Header)
	if err != nil {
		return fmt.Errorf("failed to decode header hex: %w", err)
	}

	if len(headerBytes) != headerSize {
		return fmt.Errorf("%w: size %d bytes", ErrInvalidHeader, len(headerBytes))
	}

	header, err := block.NewHeaderFromBytes(headerBytes)
	if err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}

	// Check if parent exists in our chain
	parentHash := header.PrevHash
	if cm.HasBlock(&parentHash) {
		// Parent exists - simple case
		return cm.addBlockToChain(header)
	}

	// Parent doesn't exist - need to crawl back
	log.WithField("hash", blockMsg.Hash).Info("Parent not found, crawling back")
	return cm.crawlBackAndMerge(ctx, header, blockMsg.DataHubURL)
}

// addBlockToChain processes a block and evaluates if it becomes the new chain tip
// The height is derived from the parent rather than trusted from the announcement
func (cm *ChainManager) addBlockToChain(header *block.Header) error {
	// Get parent to calculate chainwork
	parentHash := header.PrevHash
	parentHeader, err := cm.GetHeaderByHash(&parentHash)
	if err != nil {
		return fmt.Errorf("failed to get parent header: %w", err)
	}

	blockHeader := newBlockHeader(header, parentHeader.Height+1, AddWork(parentHeader.ChainWork, header.Bits))

	// Always add the header to byHash first
	if err := cm.AddHeader(blockHeader); err != nil {
		return fmt.Errorf("failed to add header: %w", err)
	}

	return cm.considerTip(blockHeader)
}

// crawlBackAndMerge fetches missing parents until we find a connection to our chain
func (cm *ChainManager) crawlBackAndMerge(ctx context.Context, header *block.Header, dataHubURL string) error {
	// Use the shared sync logic to walk backwards and find common ancestor
	return cm.SyncFromRemoteTip(ctx, header.Hash(), dataHubURL)
}

// loadOrGeneratePrivateKey loads a private key from file or generates a new one
func loadOrGeneratePrivateKey(storagePath string) (crypto.PrivKey, error) {
	keyPath := filepath.Join(storagePath, "p2p_key.hex")

	// Try to load existing key
	if _, err := os.Stat(keyPath); err == nil {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}

		privKey, err := p2p.PrivateKeyFromHex(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}

		log.WithField("path", keyPath).Info("Loaded P2P private key")
		return privKey, nil
	}

	// Generate new key
	privKey, err := p2p.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	// Save to file
	keyHex, err := p2p.PrivateKeyToHex(privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := os.WriteFile(keyPath, []byte(keyHex), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	log.WithField("path", keyPath).Info("Generated new P2P private key")
	return privKey, nil
}
