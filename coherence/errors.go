// Package coherence implements the directory-based two-state (Shared /
// Exclusive) cache-coherence protocol: the CoherenceEngine state machine,
// cascading eviction, the FlowAccountant hop-cost bookkeeping, and the
// post-transaction invariant checker. This is the hard engineering the rest
// of the module exists to support.
package coherence

import "errors"

// The error taxonomy from spec.md §7. None of these are recoverable: every
// one indicates either a malformed input or a logic bug in the engine
// itself, and the caller (the CLI) is expected to abort on any of them.
var (
	// ErrInvariantViolation means a post-transaction check in I1-I7 failed.
	ErrInvariantViolation = errors.New("coherence: invariant violation")

	// ErrCapacityRetryFailure means a cascade ran and the retried
	// allocation still could not install — a bug in the eviction logic,
	// since a cascade always frees the capacity it needs.
	ErrCapacityRetryFailure = errors.New("coherence: capacity retry failed after cascade")

	// ErrMissingDirectory means a host holds a line that the DirectoryIndex
	// has no entry for, violating I7.
	ErrMissingDirectory = errors.New("coherence: host holds line with no directory entry")

	// ErrUnknownNode means a node id was passed to Resolve (or as a
	// requestor) that is neither a known host, the device, nor a switch.
	ErrUnknownNode = errors.New("coherence: unknown node id")
)
