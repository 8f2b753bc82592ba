package sqlemit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/csvleech/leech/internal/config"
	"github.com/csvleech/leech/internal/engine"
	"github.com/csvleech/leech/internal/store"
	"github.com/csvleech/leech/pkg/types"
)

// TestEmit_ReplaysAgainstSQLite drives a real block recording and patch
// consolidation, emits the resulting SQL, and replays it against an
// actual SQLite database, checking the replayed table against the rows
// the engine tracked.
func TestEmit_ReplaysAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		WorkDir: dir,
		Tables: []config.TableConfig{{
			Name:   "users",
			Source: "users.csv",
			Fields: []config.FieldConfig{
				{Name: "id", Type: types.Integer, PrimaryKey: true},
				{Name: "name", Type: types.Text},
				{Name: "active", Type: types.Boolean},
			},
		}},
	}

	csvPath := filepath.Join(dir, "users.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1,Alice,true\n2,Bob,true\n"), 0o644))

	s, err := store.NewLocalStore(dir)
	require.NoError(t, err)
	e := engine.NewWithStore(s, cfg, nil)
	ctx := context.Background()

	_, err = e.Record(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(csvPath, []byte("1,Alicia,true\n3,Charles,false\n"), 0o644))
	_, err = e.Record(ctx)
	require.NoError(t, err)

	p, err := e.Publish(ctx, types.GenesisHash)
	require.NoError(t, err)
	require.Equal(t, types.PayloadDeltas, p.Kind)

	sqlText, err := Emit(p)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `CREATE TABLE "users" ("id" INTEGER PRIMARY KEY, "name" TEXT, "active" BOOLEAN)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO "users" ("id", "name", "active") VALUES (1, 'Alice', TRUE), (2, 'Bob', TRUE)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, sqlText)
	require.NoError(t, err)

	rows, err := db.QueryContext(ctx, `SELECT "id", "name", "active" FROM "users" ORDER BY "id"`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		id     int
		name   string
		active bool
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.id, &r.name, &r.active))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	require.Equal(t, []row{
		{id: 1, name: "Alicia", active: true},
		{id: 3, name: "Charles", active: false},
	}, got)
}
