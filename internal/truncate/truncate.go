// Package truncate implements the reachability walk and the additive
// pruning rules — orphan sweep, reported cutoff, max-blocks, max-age —
// that run after every successful block creation.
package truncate

import (
	"context"
	"log/slog"
	"time"

	"github.com/csvleech/leech/internal/chain"
	"github.com/csvleech/leech/internal/codec"
	"github.com/csvleech/leech/internal/config"
	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/internal/store"
	"github.com/csvleech/leech/pkg/types"
)

// StaleLockSweeper is implemented by store backends that leave
// filesystem lock sidecars behind independent of the Store interface's
// named-file contract. LocalStore implements it; S3Store's leases have
// their own expiry-based cleanup and do not need this.
type StaleLockSweeper interface {
	SweepStaleLocks(ctx context.Context, isLive func(name string) bool) error
}

// reachableBlock is one hash in the chain walked from HEAD, in chain
// order (index 0 = HEAD).
type reachableBlock struct {
	hash      string
	createdAt time.Time
}

// Run performs the full truncation pass described in §4.9: a
// reachability walk from HEAD, then the orphan sweep, reported cutoff,
// max-blocks, and max-age rules, whose contributions to the removal
// set are unioned before anything is removed. The block at HEAD is
// never removed.
func Run(ctx context.Context, s store.Store, cfg *config.Config, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	head, err := chain.ReadHead(ctx, s)
	if err != nil {
		return err
	}

	reachable, index, err := walk(ctx, s, head)
	if err != nil {
		return err
	}

	toRemove := make(map[string]bool)

	names, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if !chain.ValidHash(name) {
			continue
		}
		if _, ok := index[name]; !ok {
			toRemove[name] = true
		}
	}

	position := make(map[string]int, len(reachable))
	for i, b := range reachable {
		position[b.hash] = i
	}

	if reportedHash, ok, err := chain.ReadReported(ctx, s); err != nil {
		log.Warn("reading REPORTED during truncation", "error", err)
	} else if ok {
		if iRep, ok := position[reportedHash]; ok {
			for _, b := range reachable {
				if position[b.hash] > iRep {
					toRemove[b.hash] = true
				}
			}
		}
	}

	if cfg.Truncate.MaxBlocks > 0 {
		for i, b := range reachable {
			if i >= cfg.Truncate.MaxBlocks {
				toRemove[b.hash] = true
			}
		}
	}

	if cfg.Truncate.MaxAge != "" {
		maxAge, err := config.ParseMaxAge(cfg.Truncate.MaxAge)
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-maxAge)
		for i, b := range reachable {
			if i > 0 && b.createdAt.Before(cutoff) {
				toRemove[b.hash] = true
			}
		}
	}

	delete(toRemove, head)

	for hash := range toRemove {
		if err := s.Remove(ctx, hash); err != nil && !errors.IsNotFound(err) {
			log.Warn("removing block during truncation", "hash", hash, "error", err)
		}
	}

	if sweeper, ok := s.(StaleLockSweeper); ok {
		// Non-hash names are the HEAD/REPORTED/STATE pointer files,
		// which this walk never tracks and are always live. Hash names
		// are live only if they survived both the reachability walk and
		// this pass's removal decisions — toRemove entries are already
		// gone from the store by the time this runs.
		isLive := func(name string) bool {
			if !chain.ValidHash(name) {
				return true
			}
			return index[name] && !toRemove[name]
		}
		if err := sweeper.SweepStaleLocks(ctx, isLive); err != nil {
			log.Warn("sweeping stale locks", "error", err)
		}
	}

	return nil
}

// walk follows parent links from head to genesis, returning the chain
// in order (index 0 = head) and an index set for O(1) membership
// checks.
func walk(ctx context.Context, s store.Store, head string) ([]reachableBlock, map[string]bool, error) {
	var chainList []reachableBlock
	index := make(map[string]bool)

	hash := head
	for hash != types.GenesisHash {
		data, err := s.Read(ctx, hash)
		if err != nil {
			if errors.IsNotFound(err) {
				break
			}
			return nil, nil, err
		}
		var blk types.Block
		if err := codec.Decode(data, &blk); err != nil {
			return nil, nil, errors.NewCorruptError(errors.CodeDecodeFailed, "decode block "+hash+" during truncation", err)
		}
		chainList = append(chainList, reachableBlock{hash: hash, createdAt: blk.CreatedAt})
		index[hash] = true
		hash = blk.Parent
	}

	return chainList, index, nil
}
