package patch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csvleech/leech/internal/block"
	"github.com/csvleech/leech/internal/chain"
	"github.com/csvleech/leech/internal/codec"
	"github.com/csvleech/leech/internal/config"
	"github.com/csvleech/leech/internal/store"
	"github.com/csvleech/leech/pkg/types"
)

func storeHash(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func mustNow() time.Time {
	return time.Now().UTC()
}

func usersConfig(workDir string) *config.Config {
	return &config.Config{
		WorkDir: workDir,
		Tables: []config.TableConfig{
			{
				Name:   "users",
				Source: "users.csv",
				Fields: []config.FieldConfig{
					{Name: "id", Type: types.Integer, PrimaryKey: true},
					{Name: "name", Type: types.Text},
				},
			},
		},
	}
}

func writeCSV(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.csv"), []byte(content), 0o644))
}

func TestCreate_InsertThenUpdate_Rule7(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewLocalStore(dir)
	require.NoError(t, err)
	cfg := usersConfig(dir)
	ctx := context.Background()

	writeCSV(t, dir, "3,Charlie\n")
	_, err = block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	writeCSV(t, dir, "3,Charles\n")
	_, err = block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	p, err := Create(ctx, s, cfg, types.GenesisHash)
	require.NoError(t, err)
	require.Equal(t, types.PayloadDeltas, p.Kind)
	require.Len(t, p.Deltas, 1)
	require.Len(t, p.Deltas[0].Inserts, 1)
	assert.Equal(t, []string{"Charles"}, p.Deltas[0].Inserts[0].Values)
	assert.Empty(t, p.Deltas[0].Updates)
}

func TestCreate_InsertThenDelete_Rule6(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewLocalStore(dir)
	require.NoError(t, err)
	cfg := usersConfig(dir)
	ctx := context.Background()

	writeCSV(t, dir, "3,Charlie\n")
	_, err = block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	writeCSV(t, dir, "")
	_, err = block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	p, err := Create(ctx, s, cfg, types.GenesisHash)
	require.NoError(t, err)
	require.Equal(t, types.PayloadDeltas, p.Kind)
	for _, d := range p.Deltas {
		assert.Empty(t, d.Inserts)
		assert.Empty(t, d.Deletes)
		assert.Empty(t, d.Updates)
	}
}

func TestCreate_DeleteThenReinsertDifferentValue_Rule9b(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewLocalStore(dir)
	require.NoError(t, err)
	cfg := usersConfig(dir)
	ctx := context.Background()

	writeCSV(t, dir, "2,Bob\n")
	base, err := block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	writeCSV(t, dir, "")
	_, err = block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	writeCSV(t, dir, "2,Robert\n")
	_, err = block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	// Publish from the block that established (2,"Bob"), so the patch
	// covers only the delete and the re-insert.
	p, err := Create(ctx, s, cfg, base)
	require.NoError(t, err)
	require.Equal(t, types.PayloadDeltas, p.Kind)
	require.Len(t, p.Deltas, 1)
	require.Len(t, p.Deltas[0].Updates, 1)
	u := p.Deltas[0].Updates[0]
	assert.Equal(t, []string{"2"}, u.Key)
}

func TestCreate_ConflictFallsBackToState_Rule5(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewLocalStore(dir)
	require.NoError(t, err)
	cfg := usersConfig(dir)
	ctx := context.Background()

	blk1 := types.Block{
		Parent:    types.GenesisHash,
		CreatedAt: mustNow(),
		Deltas: []types.Delta{{
			Table:  "users",
			Fields: cfg.Tables[0].Schema().Fields,
			Inserts: []types.Entry{{Key: []string{"4"}, Values: []string{"Dave"}}},
		}},
	}
	data1, err := codec.EncodeBlock(blk1)
	require.NoError(t, err)
	hash1 := storeHash(data1)
	require.NoError(t, s.Write(ctx, hash1, data1))
	require.NoError(t, chain.WriteHead(ctx, s, hash1))

	blk2 := types.Block{
		Parent:    hash1,
		CreatedAt: mustNow(),
		Deltas: []types.Delta{{
			Table:  "users",
			Fields: cfg.Tables[0].Schema().Fields,
			Inserts: []types.Entry{{Key: []string{"4"}, Values: []string{"David"}}},
		}},
	}
	data2, err := codec.EncodeBlock(blk2)
	require.NoError(t, err)
	hash2 := storeHash(data2)
	require.NoError(t, s.Write(ctx, hash2, data2))
	require.NoError(t, chain.WriteHead(ctx, s, hash2))

	p, err := Create(ctx, s, cfg, types.GenesisHash)
	require.NoError(t, err)
	assert.Equal(t, types.PayloadState, p.Kind)
	assert.NotNil(t, p.State)
}

func TestCreate_EmptyPatchWhenAncestorIsHead(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewLocalStore(dir)
	require.NoError(t, err)
	cfg := usersConfig(dir)
	ctx := context.Background()

	writeCSV(t, dir, "1,Alice\n")
	head, err := block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	p, err := Create(ctx, s, cfg, head)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
	assert.Equal(t, head, p.HeadHash)
}

func TestApplied_UpdatesReportedOnlyWhenRequested(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewLocalStore(dir)
	require.NoError(t, err)
	cfg := usersConfig(dir)
	ctx := context.Background()

	writeCSV(t, dir, "1,Alice\n")
	head, err := block.Create(ctx, s, cfg, nil)
	require.NoError(t, err)

	p, err := Create(ctx, s, cfg, types.GenesisHash)
	require.NoError(t, err)
	encoded, err := codec.Encode(p, false)
	require.NoError(t, err)

	require.NoError(t, Applied(ctx, s, encoded, false))
	_, ok, err := chain.ReadReported(ctx, s)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Applied(ctx, s, encoded, true))
	reported, ok, err := chain.ReadReported(ctx, s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, head, reported)
}
