// Package block implements creation and loading of the immutable,
// content-addressed blocks that make up the chain.
package block

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/csvleech/leech/internal/chain"
	"github.com/csvleech/leech/internal/codec"
	"github.com/csvleech/leech/internal/config"
	"github.com/csvleech/leech/internal/delta"
	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/internal/loader"
	"github.com/csvleech/leech/internal/store"
	"github.com/csvleech/leech/internal/truncate"
	"github.com/csvleech/leech/pkg/types"
)

// Create loads every configured table from its CSV source, diffs it
// against the previously persisted state, writes the resulting block
// under its content address, and advances HEAD/STATE. It returns the
// new block's hash.
//
// Write order is block, then state, then HEAD (§4.7): a crash between
// any two of these steps leaves the prior HEAD valid.
func Create(ctx context.Context, s store.Store, cfg *config.Config, log *slog.Logger) (string, error) {
	if log == nil {
		log = slog.Default()
	}

	prevHead, err := chain.ReadHead(ctx, s)
	if err != nil {
		return "", err
	}
	prevState, err := chain.ReadState(ctx, s)
	if err != nil {
		return "", err
	}

	currState := types.NewState()
	deltas := make([]types.Delta, 0, len(cfg.Tables))

	for _, tc := range cfg.Tables {
		schema := tc.Schema()
		tbl, err := loader.LoadTable(tc.ResolvedSource(cfg.WorkDir), schema, tc.HeadersPresent)
		if err != nil {
			return "", err
		}
		currState = currState.WithTable(tbl)

		prevTable, _ := prevState.Table(tc.Name)
		d := delta.Compute(tc.Name, schema.Fields, prevTable, tbl)
		if !d.IsEmpty() {
			deltas = append(deltas, d)
		}
	}

	blk := types.Block{
		Parent:    prevHead,
		CreatedAt: time.Now().UTC(),
		Deltas:    deltas,
	}

	encoded, err := codec.EncodeBlock(blk)
	if err != nil {
		return "", err
	}
	hash := hashBytes(encoded)

	if err := s.Write(ctx, hash, encoded); err != nil {
		return "", err
	}
	if err := chain.WriteState(ctx, s, currState); err != nil {
		return "", err
	}
	if err := chain.WriteHead(ctx, s, hash); err != nil {
		return "", err
	}

	log.Info("block created", "hash", hash, "parent", prevHead, "tables_changed", len(deltas))

	if err := truncate.Run(ctx, s, cfg, log); err != nil {
		log.Warn("truncation failed", "error", err)
	}

	return hash, nil
}

// Load reads and decodes the block named by hash.
func Load(ctx context.Context, s store.Store, hash string) (types.Block, error) {
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

func hashBytes(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
