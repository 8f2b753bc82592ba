// Package engine ties the core subsystems — block, patch, truncate —
// to a single configured Store and exposes the three operations a
// caller actually needs: recording a block, publishing a patch, and
// acknowledging one. It owns no state beyond the Store and Config it
// was built with.
package engine

import (
	"context"
	"log/slog"

	"github.com/csvleech/leech/internal/block"
	"github.com/csvleech/leech/internal/config"
	"github.com/csvleech/leech/internal/patch"
	"github.com/csvleech/leech/internal/store"
	"github.com/csvleech/leech/pkg/types"
)

// Engine wraps a Store and Config with the three operations callers
// drive: Record, Publish, Ack.
type Engine struct {
	store store.Store
	cfg   *config.Config
	log   *slog.Logger
}

// New builds an Engine, constructing its Store backend from cfg.Storage.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	s, err := store.New(ctx, store.Config{
		Type:         cfg.Storage.Type,
		WorkDir:      cfg.WorkDir,
		Bucket:       cfg.Storage.Bucket,
		Prefix:       cfg.Storage.Prefix,
		Region:       cfg.Storage.Region,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{store: s, cfg: cfg, log: log}, nil
}

// NewWithStore builds an Engine against an already-constructed Store,
// bypassing the storage factory — used by tests and by callers that
// manage their own Store lifecycle.
func NewWithStore(s store.Store, cfg *config.Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, cfg: cfg, log: log}
}

// Record snapshots every configured table's CSV source, diffs it
// against the tracked state, and always writes a new block and
// advances HEAD to it, even when no table changed (such a block
// carries an empty delta set and differs from its parent only in its
// hash and timestamp). It returns the new HEAD hash.
func (e *Engine) Record(ctx context.Context) (string, error) {
	return block.Create(ctx, e.store, e.cfg, e.log)
}

// Publish consolidates every block between HEAD and ancestor into a
// single patch. An empty ancestor defaults to REPORTED, or to genesis
// if REPORTED has never been written.
func (e *Engine) Publish(ctx context.Context, ancestor string) (types.Patch, error) {
	return patch.Create(ctx, e.store, e.cfg, ancestor)
}

// Ack records that a previously published patch was applied
// downstream, advancing REPORTED to the patch's HEAD when reported is
// true.
func (e *Engine) Ack(ctx context.Context, patchBytes []byte, reported bool) error {
	return patch.Applied(ctx, e.store, patchBytes, reported)
}
