package types

import (
	"strings"
	"time"
)

// GenesisHash is the 40-hex all-zeros sentinel used as the parent of
// the first block in a chain.
var GenesisHash = strings.Repeat("0", 40)

// Block is an immutable record of the deltas between two successive
// snapshots of the configured tables. Its content address is the hash
// of its canonical wire encoding.
type Block struct {
	Parent    string    `msgpack:"parent"`
	CreatedAt time.Time `msgpack:"created_at"`
	Deltas    []Delta   `msgpack:"deltas"`
}

// IsGenesisParent reports whether the block has no real parent.
func (b Block) IsGenesisParent() bool {
	return b.Parent == GenesisHash
}
