// Package patch implements consolidation of a chain segment into a
// single patch, and acknowledgement of a previously published patch.
package patch

import (
	"context"
	"time"

	"github.com/csvleech/leech/internal/chain"
	"github.com/csvleech/leech/internal/codec"
	"github.com/csvleech/leech/internal/config"
	"github.com/csvleech/leech/internal/delta"
	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/internal/store"
	"github.com/csvleech/leech/pkg/types"
)

// Create walks the chain from HEAD back toward ancestor (or, if empty,
// REPORTED, or else genesis), folding blocks pairwise into a single
// consolidated delta. A merge Conflict anywhere in the walk is
// recovered locally by falling back to the full current state. The
// consolidated delta, once stripped, is compared against the state
// payload by encoded size; ties favour the delta payload.
func Create(ctx context.Context, s store.Store, cfg *config.Config, ancestor string) (types.Patch, error) {
	head, err := chain.ReadHead(ctx, s)
	if err != nil {
		return types.Patch{}, err
	}

	if ancestor == "" {
		reported, ok, err := chain.ReadReported(ctx, s)
		if err != nil {
			return types.Patch{}, err
		}
		if ok {
			ancestor = reported
		} else {
			ancestor = types.GenesisHash
		}
	}

	if ancestor == head {
		return types.Patch{
			HeadHash:   head,
			CreatedAt:  time.Now().UTC(),
			BlockCount: 0,
			Kind:       types.PayloadDeltas,
			Deltas:     []types.Delta{},
		}, nil
	}

	var (
		headHash     = head
		consolidated []types.Delta
		count        int
		conflict     bool
	)

	hash := head
	for hash != ancestor {
		if hash == types.GenesisHash {
			// Ancestor not found on the chain: treat the whole reachable
			// history as the segment, same as walking to genesis.
			break
		}
		blk, err := loadBlock(ctx, s, hash)
		if err != nil {
			return types.Patch{}, err
		}

		if count == 0 {
			consolidated = blk.Deltas
		} else if !conflict {
			merged, err := delta.MergeBlockDeltas(blk.Deltas, consolidated)
			if err != nil {
				if _, _, ok := errors.IsConflict(err); ok {
					conflict = true
				} else {
					return types.Patch{}, err
				}
			} else {
				consolidated = merged
			}
		}
		count++
		hash = blk.Parent
	}

	if conflict {
		st, err := chain.ReadState(ctx, s)
		if err != nil {
			return types.Patch{}, err
		}
		return types.Patch{
			HeadHash:   headHash,
			CreatedAt:  time.Now().UTC(),
			BlockCount: count,
			Kind:       types.PayloadState,
			State:      &st,
		}, nil
	}

	stripped := make([]types.Delta, len(consolidated))
	for i, d := range consolidated {
		stripped[i] = delta.Strip(d)
	}

	st, err := chain.ReadState(ctx, s)
	if err != nil {
		return types.Patch{}, err
	}

	deltaBytes, err := codec.Encode(stripped, false)
	if err != nil {
		return types.Patch{}, err
	}
	stateBytes, err := codec.Encode(st, false)
	if err != nil {
		return types.Patch{}, err
	}

	kind := types.PayloadDeltas
	if len(stateBytes) < len(deltaBytes) {
		kind = types.PayloadState
	}

	result := types.Patch{
		HeadHash:   headHash,
		CreatedAt:  time.Now().UTC(),
		BlockCount: count,
		Kind:       kind,
	}
	if kind == types.PayloadDeltas {
		result.Deltas = stripped
	} else {
		result.State = &st
	}
	return result, nil
}

// Applied decodes patchBytes only to extract its head hash, and when
// reported is true advances REPORTED to that hash. The contract is
// unconditional: the caller's buffer is considered released once this
// function returns, whether or not decoding succeeded.
func Applied(ctx context.Context, s store.Store, patchBytes []byte, reported bool) error {
	var p types.Patch
	if err := codec.Decode(patchBytes, &p); err != nil {
		return errors.NewCorruptError(errors.CodeDecodeFailed, "decode acknowledged patch", err)
	}
	if !reported {
		return nil
	}
	return chain.WriteReported(ctx, s, p.HeadHash)
}

func loadBlock(ctx context.Context, s store.Store, hash string) (types.Block, error) {
	data, err := s.Read(ctx, hash)
	if err != nil {
		if errors.IsNotFound(err) {
			return types.Block{}, errors.NotFoundBlock(hash)
		}
		return types.Block{}, err
	}
	var blk types.Block
	if err := codec.Decode(data, &blk); err != nil {
		return types.Block{}, errors.NewCorruptError(errors.CodeDecodeFailed, "decode block "+hash, err)
	}
	return blk, nil
}
