package types

import "time"

// PatchPayloadKind distinguishes a consolidated-delta patch payload
// from a full-state one.
type PatchPayloadKind string

const (
	PayloadDeltas PatchPayloadKind = "deltas"
	PayloadState  PatchPayloadKind = "state"
)

// Patch is the consolidation of a chain segment into either a merged,
// stripped delta set or a full state snapshot, whichever encodes
// smaller.
type Patch struct {
	HeadHash   string           `msgpack:"head_hash"`
	CreatedAt  time.Time        `msgpack:"created_at"`
	BlockCount int              `msgpack:"block_count"`
	Kind       PatchPayloadKind `msgpack:"kind"`
	Deltas     []Delta          `msgpack:"deltas,omitempty"`
	State      *State           `msgpack:"state,omitempty"`
}

// IsEmpty reports whether the patch covers zero blocks.
func (p Patch) IsEmpty() bool {
	return p.BlockCount == 0
}
