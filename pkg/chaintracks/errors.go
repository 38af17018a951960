package chaintracks

import "errors"

var (
	// ErrHeaderNotFound is returned when a header cannot be found
	ErrHeaderNotFound = errors.New("header not found")

	// ErrInvalidHeader is returned when a header cannot be parsed
	ErrInvalidHeader = errors.New("invalid header")

	// ErrBrokenChain is returned when a header's previous hash doesn't link to known chain
	ErrBrokenChain = errors.New("broken chain linkage")

	// ErrNotSynced is returned by ChainTracker queries before the chain is loaded
	ErrNotSynced = errors.New("chain not synced")

	// ErrReorgBelowCheckpoint is returned when a new tip would rewrite history
	// at or below the highest checkpoint on the main chain
	ErrReorgBelowCheckpoint = errors.New("reorganization below checkpoint")
)
