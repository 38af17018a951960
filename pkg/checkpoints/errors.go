package checkpoints

import (
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

var (
	// ErrCheckpointMismatch is matched by every *MismatchError
	ErrCheckpointMismatch = errors.New("block does not match checkpoint")

	// ErrUnorderedCheckpoints is returned when checkpoint heights are not strictly increasing
	ErrUnorderedCheckpoints = errors.New("checkpoint heights not strictly increasing")

	// ErrMissingGenesisCheckpoint is returned when a non-empty table has no height 0 entry
	ErrMissingGenesisCheckpoint = errors.New("checkpoint table has no genesis entry")

	// ErrGenesisMismatch is returned when the height 0 entry is not the network genesis
	ErrGenesisMismatch = errors.New("genesis checkpoint does not match network genesis")

	// ErrUnknownNetwork is returned for a network without compiled-in parameters
	ErrUnknownNetwork = errors.New("unknown network")
)

// MismatchError describes a block that claims a checkpointed height with the
// wrong hash.
type MismatchError struct {
	Height   uint32
	Hash     chainhash.Hash
	Expected chainhash.Hash
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("block %s at height %d does not match checkpoint %s", e.Hash, e.Height, e.Expected)
}

// Is makes errors.Is(err, ErrCheckpointMismatch) hold.
func (e *MismatchError) Is(target error) bool {
	return target == ErrCheckpointMismatch
}
