package sqlemit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csvleech/leech/pkg/types"
)

func usersFields() []types.Field {
	return []types.Field{
		{Name: "id", Type: types.Integer, PrimaryKey: true},
		{Name: "name", Type: types.Text},
		{Name: "active", Type: types.Boolean},
	}
}

func TestEmit_DeltaOrdersDeleteInsertUpdate(t *testing.T) {
	p := types.Patch{
		Kind: types.PayloadDeltas,
		Deltas: []types.Delta{
			{
				Table:   "users",
				Fields:  usersFields(),
				Deletes: []types.Entry{{Key: []string{"1"}}},
				Inserts: []types.Entry{{Key: []string{"2"}, Values: []string{"Bob", "true"}}},
				Updates: []types.Update{{
					Key: []string{"3"},
					Old: []*string{nil, nil},
					New: []*string{types.StrPtr("Charles"), nil},
				}},
			},
		},
	}

	sql, err := Emit(p)
	require.NoError(t, err)

	deletePos := indexOf(sql, "DELETE FROM")
	insertPos := indexOf(sql, "INSERT INTO")
	updatePos := indexOf(sql, "UPDATE ")
	require.True(t, deletePos >= 0 && insertPos >= 0 && updatePos >= 0)
	assert.True(t, deletePos < insertPos)
	assert.True(t, insertPos < updatePos)
	assert.Contains(t, sql, `"id" = 1`)
	assert.Contains(t, sql, `VALUES (2, 'Bob', TRUE)`)
	assert.Contains(t, sql, `SET "name" = 'Charles'`)
}

func TestEmit_UpdateWithNoPopulatedIndicesIsOmitted(t *testing.T) {
	p := types.Patch{
		Kind: types.PayloadDeltas,
		Deltas: []types.Delta{{
			Table:  "users",
			Fields: usersFields(),
			Updates: []types.Update{{
				Key: []string{"1"},
				Old: []*string{nil, nil},
				New: []*string{nil, nil},
			}},
		}},
	}
	sql, err := Emit(p)
	require.NoError(t, err)
	assert.NotContains(t, sql, "UPDATE")
}

func TestEmit_StateEmitsTruncateThenInsert(t *testing.T) {
	state := types.State{Tables: []types.Table{{
		Schema: types.TableSchema{Name: "users", Fields: usersFields()},
		Rows: []types.Row{
			{Key: []string{"1"}, Values: []string{"Alice", "false"}},
		},
	}}}
	p := types.Patch{Kind: types.PayloadState, State: &state}

	sql, err := Emit(p)
	require.NoError(t, err)
	truncPos := indexOf(sql, "TRUNCATE")
	insertPos := indexOf(sql, "INSERT INTO")
	require.True(t, truncPos >= 0 && insertPos >= 0)
	assert.True(t, truncPos < insertPos)
	assert.Contains(t, sql, `VALUES (1, 'Alice', FALSE)`)
}

func TestEmit_QuotesEmbeddedQuotes(t *testing.T) {
	lit, err := literal(types.Field{Name: "name", Type: types.Text}, "O'Brien")
	require.NoError(t, err)
	assert.Equal(t, "'O''Brien'", lit)
}

func TestEmit_BinaryAsHexLiteral(t *testing.T) {
	lit, err := literal(types.Field{Name: "blob", Type: types.Binary}, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "X'DEADBEEF'", lit)
}

func TestEmit_InvalidBooleanErrors(t *testing.T) {
	_, err := literal(types.Field{Name: "active", Type: types.Boolean}, "maybe")
	assert.Error(t, err)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
