package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/pkg/types"
)

func fields() []types.Field {
	return []types.Field{
		{Name: "id", Type: types.Integer, PrimaryKey: true},
		{Name: "name", Type: types.Text},
	}
}

func table(rows ...types.Row) types.Table {
	t := types.NewTable(types.TableSchema{Name: "users", Fields: fields()})
	t.Rows = append([]types.Row{}, rows...)
	types.SortRows(t.Rows)
	return t
}

func row(id, name string) types.Row {
	return types.Row{Key: []string{id}, Values: []string{name}}
}

func TestCompute_InsertDeleteUpdate(t *testing.T) {
	prev := table(row("1", "Alice"), row("2", "Bob"))
	curr := table(row("1", "Alicia"), row("3", "Charlie"))

	d := Compute("users", fields(), prev, curr)

	require.Len(t, d.Inserts, 1)
	assert.Equal(t, []string{"3"}, d.Inserts[0].Key)

	require.Len(t, d.Deletes, 1)
	assert.Equal(t, []string{"2"}, d.Deletes[0].Key)

	require.Len(t, d.Updates, 1)
	assert.Equal(t, []string{"1"}, d.Updates[0].Key)
	assert.Equal(t, "Alice", *d.Updates[0].Old[0])
	assert.Equal(t, "Alicia", *d.Updates[0].New[0])
}

func TestCompute_EqualTuplesProduceNoEntry(t *testing.T) {
	prev := table(row("1", "Alice"))
	curr := table(row("1", "Alice"))
	d := Compute("users", fields(), prev, curr)
	assert.True(t, d.IsEmpty())
}

func insertDelta(key, value string) types.Delta {
	return types.Delta{Table: "users", Fields: fields(), Inserts: []types.Entry{{Key: []string{key}, Values: []string{value}}}}
}

func deleteDelta(key, value string) types.Delta {
	return types.Delta{Table: "users", Fields: fields(), Deletes: []types.Entry{{Key: []string{key}, Values: []string{value}}}}
}

func updateDelta(key, old, new string) types.Delta {
	return types.Delta{Table: "users", Fields: fields(), Updates: []types.Update{{Key: []string{key}, Old: []*string{types.StrPtr(old)}, New: []*string{types.StrPtr(new)}}}}
}

func empty() types.Delta {
	return types.Delta{Table: "users", Fields: fields()}
}

func TestMerge_Rule1_InsertOnlyCurrent(t *testing.T) {
	res, err := Merge(empty(), insertDelta("3", "Charlie"))
	require.NoError(t, err)
	require.Len(t, res.Inserts, 1)
	assert.Equal(t, []string{"Charlie"}, res.Inserts[0].Values)
}

func TestMerge_Rule2_DeleteOnlyCurrent(t *testing.T) {
	res, err := Merge(empty(), deleteDelta("3", "Charlie"))
	require.NoError(t, err)
	require.Len(t, res.Deletes, 1)
}

func TestMerge_Rule3_UpdateOnlyCurrent(t *testing.T) {
	res, err := Merge(empty(), updateDelta("3", "Charlie", "Charles"))
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
}

func TestMerge_Rule4_InsertOnlyParent(t *testing.T) {
	res, err := Merge(insertDelta("3", "Charlie"), empty())
	require.NoError(t, err)
	require.Len(t, res.Inserts, 1)
}

func TestMerge_Rule5_InsertInsertConflict(t *testing.T) {
	_, err := Merge(insertDelta("3", "Charlie"), insertDelta("3", "Chuck"))
	require.Error(t, err)
	table, key, ok := errors.IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, "users", table)
	assert.Equal(t, []string{"3"}, key)
}

func TestMerge_Rule6_InsertThenDeleteOmits(t *testing.T) {
	res, err := Merge(insertDelta("3", "Charlie"), deleteDelta("3", "Charlie"))
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestMerge_Rule7_InsertThenUpdate(t *testing.T) {
	res, err := Merge(insertDelta("3", "Charlie"), updateDelta("3", "Charlie", "Charles"))
	require.NoError(t, err)
	require.Len(t, res.Inserts, 1)
	assert.Equal(t, []string{"Charles"}, res.Inserts[0].Values)
}

func TestMerge_Rule8_DeleteOnlyParent(t *testing.T) {
	res, err := Merge(deleteDelta("3", "Charlie"), empty())
	require.NoError(t, err)
	require.Len(t, res.Deletes, 1)
}

func TestMerge_Rule9a_DeleteThenReinsertSameValueOmits(t *testing.T) {
	res, err := Merge(deleteDelta("2", "Bob"), insertDelta("2", "Bob"))
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestMerge_Rule9b_DeleteThenReinsertNewValue(t *testing.T) {
	res, err := Merge(deleteDelta("2", "Bob"), insertDelta("2", "Robert"))
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "Bob", *res.Updates[0].Old[0])
	assert.Equal(t, "Robert", *res.Updates[0].New[0])
}

func TestMerge_Rule10_DeleteDeleteConflict(t *testing.T) {
	_, err := Merge(deleteDelta("3", "Charlie"), deleteDelta("3", "Charlie"))
	_, _, ok := errors.IsConflict(err)
	assert.True(t, ok)
}

func TestMerge_Rule11_DeleteUpdateConflict(t *testing.T) {
	_, err := Merge(deleteDelta("3", "Charlie"), updateDelta("3", "Charlie", "Charlie"))
	_, _, ok := errors.IsConflict(err)
	assert.True(t, ok)
}

func TestMerge_Rule12_UpdateOnlyParent(t *testing.T) {
	res, err := Merge(updateDelta("3", "Charlie", "Charles"), empty())
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
}

func TestMerge_Rule13_UpdateInsertConflict(t *testing.T) {
	_, err := Merge(updateDelta("3", "Charlie", "Charlie"), insertDelta("3", "Charlie"))
	_, _, ok := errors.IsConflict(err)
	assert.True(t, ok)
}

func TestMerge_Rule14a_UpdateThenDeleteMatchingNewValue(t *testing.T) {
	res, err := Merge(updateDelta("3", "Charlie", "Charles"), deleteDelta("3", "Charles"))
	require.NoError(t, err)
	require.Len(t, res.Deletes, 1)
	assert.Equal(t, []string{"Charlie"}, res.Deletes[0].Values)
}

func TestMerge_Rule14b_UpdateThenDeleteMismatchConflict(t *testing.T) {
	_, err := Merge(updateDelta("3", "Charlie", "Charles"), deleteDelta("3", "Chuck"))
	_, _, ok := errors.IsConflict(err)
	assert.True(t, ok)
}

func TestMerge_Rule15_UpdateUpdate(t *testing.T) {
	res, err := Merge(updateDelta("3", "Charlie", "Chuck"), updateDelta("3", "Chuck", "Charles"))
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "Charlie", *res.Updates[0].Old[0])
	assert.Equal(t, "Charles", *res.Updates[0].New[0])
}

func TestMerge_AssociativeForConflictFreeInputs(t *testing.T) {
	a := insertDelta("1", "Alice")
	b := updateDelta("1", "Alice", "Alicia")
	c := updateDelta("1", "Alicia", "Al")

	ab, err := Merge(a, b)
	require.NoError(t, err)
	left, err := Merge(ab, c)
	require.NoError(t, err)

	bc, err := Merge(b, c)
	require.NoError(t, err)
	right, err := Merge(a, bc)
	require.NoError(t, err)

	assert.Equal(t, left, right)
}

func TestStrip_DeletesLoseValues(t *testing.T) {
	d := deleteDelta("3", "Charlie")
	stripped := Strip(d)
	assert.Nil(t, stripped.Deletes[0].Values)
}

func TestStrip_UpdatesBecomeSparse(t *testing.T) {
	d := types.Delta{
		Table:  "users",
		Fields: fields(),
		Updates: []types.Update{{
			Key: []string{"3"},
			Old: []*string{types.StrPtr("Charlie"), types.StrPtr("x")},
			New: []*string{types.StrPtr("Charles"), types.StrPtr("x")},
		}},
	}
	stripped := Strip(d)
	require.Len(t, stripped.Updates, 1)
	assert.Equal(t, "Charlie", *stripped.Updates[0].Old[0])
	assert.Nil(t, stripped.Updates[0].Old[1])
	assert.Nil(t, stripped.Updates[0].New[1])
}

func TestStrip_Idempotent(t *testing.T) {
	d := types.Delta{
		Table:   "users",
		Fields:  fields(),
		Deletes: []types.Entry{{Key: []string{"1"}, Values: []string{"Alice"}}},
		Updates: []types.Update{{Key: []string{"2"}, Old: []*string{types.StrPtr("Bob"), nil}, New: []*string{types.StrPtr("Bobby"), nil}}},
	}
	once := Strip(d)
	twice := Strip(once)
	assert.Equal(t, once, twice)
}
