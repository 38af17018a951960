// Package checkpoints holds the trusted height/hash anchors of a chain and
// answers the queries block acceptance and chain selection make against them.
//
// A Registry is built once from a fixed list and never changes afterwards, so
// it can be shared by any number of goroutines without locking.
package checkpoints

import (
	"fmt"
	"sort"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// What makes a good checkpoint block?
//   - It is surrounded by blocks with reasonable timestamps (no block before it
//     with a later timestamp, none after it with an earlier one).
//   - It contains no strange transactions.
//   - It is buried deep enough that no honest reorganization reaches it.

// Checkpoint is a block height paired with the hash the block at that height
// must have.
type Checkpoint struct {
	Height uint32         `json:"height"`
	Hash   chainhash.Hash `json:"hash"`
}

// BlockIndex is the caller's index of known block headers.
type BlockIndex interface {
	// HasBlock reports whether a header with the given hash is in the index.
	HasBlock(hash *chainhash.Hash) bool
}

// BlockIndexFunc adapts a plain function to the BlockIndex interface.
type BlockIndexFunc func(hash *chainhash.Hash) bool

// HasBlock calls f(hash).
func (f BlockIndexFunc) HasBlock(hash *chainhash.Hash) bool {
	return f(hash)
}

// Config describes the table a Registry is built from.
type Config struct {
	// Genesis is the hash of the network's height 0 block. When Checkpoints is
	// non-empty its first entry must be height 0 with this hash.
	Genesis chainhash.Hash

	// Checkpoints must be ordered by strictly increasing height.
	Checkpoints []Checkpoint

	// Bypass disables every constraint, as on test networks.
	Bypass bool
}

// Registry is an immutable, height-ordered table of checkpoints.
type Registry struct {
	entries []Checkpoint
	bypass  bool
}

// New validates cfg and returns a Registry owning a private copy of its
// checkpoints.
func New(cfg Config) (*Registry, error) {
	if err := validate(cfg.Genesis, cfg.Checkpoints); err != nil {
		return nil, err
	}

	entries := make([]Checkpoint, len(cfg.Checkpoints))
	copy(entries, cfg.Checkpoints)

	return &Registry{
		entries: entries,
		bypass:  cfg.Bypass,
	}, nil
}

// MustNew is like New but panics on an invalid table. It is meant for
// compiled-in tables only.
func MustNew(cfg Config) *Registry {
	r, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf("invalid checkpoint table: %v", err))
	}
	return r
}

// Disabled returns a Registry that constrains nothing.
func Disabled() *Registry {
	return &Registry{bypass: true}
}

func validate(genesis chainhash.Hash, entries []Checkpoint) error {
	if len(entries) == 0 {
		return nil
	}

	first := entries[0]
	if first.Height != 0 {
		return fmt.Errorf("%w: first checkpoint is at height %d", ErrMissingGenesisCheckpoint, first.Height)
	}
	if !first.Hash.IsEqual(&genesis) {
		return fmt.Errorf("%w: checkpoint %s, genesis %s", ErrGenesisMismatch, first.Hash, genesis)
	}

	for i := 1; i < len(entries); i++ {
		if entries[i].Height <= entries[i-1].Height {
			return fmt.Errorf("%w: height %d follows height %d", ErrUnorderedCheckpoints, entries[i].Height, entries[i-1].Height)
		}
	}

	return nil
}

// lookup returns the checkpoint at height, if any.
func (r *Registry) lookup(height uint32) (Checkpoint, bool) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Height >= height
	})
	if i < len(r.entries) && r.entries[i].Height == height {
		return r.entries[i], true
	}
	return Checkpoint{}, false
}

// VerifyBlockAtHeight reports whether a block claiming height with the given
// hash is consistent with the checkpoints. Heights without a checkpoint are
// unconstrained. A nil hash never matches a checkpoint.
func (r *Registry) VerifyBlockAtHeight(height uint32, hash *chainhash.Hash) bool {
	if r.bypass {
		return true
	}

	cp, ok := r.lookup(height)
	if !ok {
		return true
	}

	return hash != nil && cp.Hash.IsEqual(hash)
}

// Check returns a *MismatchError if the block at height is a checkpoint and
// hash does not match it, and nil otherwise. A nil hash is reported as the
// zero hash.
func (r *Registry) Check(height uint32, hash *chainhash.Hash) error {
	if r.VerifyBlockAtHeight(height, hash) {
		return nil
	}

	mismatch := &MismatchError{Height: height}
	if hash != nil {
		mismatch.Hash = *hash
	}
	cp, _ := r.lookup(height)
	mismatch.Expected = cp.Hash
	return mismatch
}

// EstimateAnchoredHeight returns the height of the highest checkpoint. It is a
// coarse estimate of chain length for progress reporting only.
func (r *Registry) EstimateAnchoredHeight() uint32 {
	if r.bypass || len(r.entries) == 0 {
		return 0
	}
	return r.entries[len(r.entries)-1].Height
}

// ResolveReachedCheckpoint returns the highest checkpoint whose block is
// present in index. The second return value is false when none is.
func (r *Registry) ResolveReachedCheckpoint(index BlockIndex) (Checkpoint, bool) {
	if r.bypass || index == nil {
		return Checkpoint{}, false
	}

	for i := len(r.entries) - 1; i >= 0; i-- {
		hash := r.entries[i].Hash
		if index.HasBlock(&hash) {
			return r.entries[i], true
		}
	}

	return Checkpoint{}, false
}

// Checkpoints returns a copy of the table in ascending height order.
func (r *Registry) Checkpoints() []Checkpoint {
	out := make([]Checkpoint, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of checkpoints in the table.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Bypassed reports whether the registry constrains nothing.
func (r *Registry) Bypassed() bool {
	return r.bypass
}
