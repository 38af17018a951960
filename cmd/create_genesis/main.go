// Command create_genesis writes the genesis header file and metadata for a
// network into data/headers, in the layout the server restores from.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bsv-blockchain/go-sdk/block"
	"github.com/sirupsen/logrus"

	"github.com/beastlymac/ccoin/pkg/chaintracks"
	"github.com/beastlymac/ccoin/pkg/checkpoints"
)

var log = logrus.WithField("prefix", "create_genesis")

// Raw 80 byte genesis headers per network
var genesisHeaders = map[string]string{
	"main":    "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c",
	"test":    "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4adae5494dffff001d1aa4ae18",
	"regtest": "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4adae5494dffff7f2002000000",
}

const zeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: create_genesis <network>")
	}

	network := os.Args[1]
	outDir := filepath.Join("data", "headers")

	if err := writeGenesis(outDir, network); err != nil {
		log.WithError(err).Fatal("Failed to create genesis files")
	}

	log.WithField("network", network).Info("Genesis files created")
}

// genesisHeader decodes the network's genesis header and checks it hashes to the registered genesis
func genesisHeader(network string) (*block.Header, error) {
	genesisHex, ok := genesisHeaders[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", checkpoints.ErrUnknownNetwork, network)
	}

	headerBytes, err := hex.DecodeString(genesisHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode genesis hex: %w", err)
	}

	header, err := block.NewHeaderFromBytes(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse genesis header: %w", err)
	}

	expected, err := checkpoints.GenesisHash(network)
	if err != nil {
		return nil, err
	}
	if hash := header.Hash(); !hash.IsEqual(&expected) {
		return nil, fmt.Errorf("genesis header hashes to %s, expected %s", hash, expected)
	}

	return header, nil
}

// writeGenesis writes <network>Net_0.headers and <network>NetBlockHeaders.json into outDir
func writeGenesis(outDir, network string) error {
	header, err := genesisHeader(network)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	headerFileName := fmt.Sprintf("%sNet_0.headers", network)
	headerFile := filepath.Join(outDir, headerFileName)
	if err := os.WriteFile(headerFile, header.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write header file: %w", err)
	}
	log.WithField("path", headerFile).Info("Created header file")

	metadata := chaintracks.CDNMetadata{
		JSONFilename:   fmt.Sprintf("%sNetBlockHeaders.json", network),
		HeadersPerFile: 100000,
		Files: []chaintracks.CDNFileEntry{
			{
				Chain:         network,
				Count:         1,
				FileName:      headerFileName,
				FirstHeight:   0,
				LastChainWork: chaintracks.ChainWorkToHex(chaintracks.CalculateWork(header.Bits)),
				LastHash:      header.Hash().String(),
				PrevChainWork: zeroHash,
				PrevHash:      zeroHash,
			},
		},
	}

	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	metadataFile := filepath.Join(outDir, metadata.JSONFilename)
	if err := os.WriteFile(metadataFile, metadataBytes, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	log.WithField("path", metadataFile).Info("Created metadata file")

	return nil
}
