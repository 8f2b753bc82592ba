// Package delta implements the three per-table operations that make
// up the core's semantic heart: computing a diff between two table
// snapshots, merging two successive deltas under the 15-rule pairwise
// algebra, and stripping a consolidated delta down for the wire.
package delta

import "github.com/csvleech/leech/pkg/types"

// Compute diffs prev against curr under the given field schema.
// Keys present only in curr become inserts, keys present only in prev
// become deletes, and keys present in both with differing values
// become updates; equal tuples produce no entry.
func Compute(table string, fields []types.Field, prev, curr types.Table) types.Delta {
	prevByKey := prev.ByKey()
	currByKey := curr.ByKey()

	d := types.Delta{Table: table, Fields: fields}

	for k, row := range currByKey {
		if _, ok := prevByKey[k]; !ok {
			d.Inserts = append(d.Inserts, types.Entry{Key: row.Key, Values: row.Values})
		}
	}
	for k, row := range prevByKey {
		if _, ok := currByKey[k]; !ok {
			d.Deletes = append(d.Deletes, types.Entry{Key: row.Key, Values: row.Values})
		}
	}
	for k, prevRow := range prevByKey {
		currRow, ok := currByKey[k]
		if !ok || valuesEqual(prevRow.Values, currRow.Values) {
			continue
		}
		d.Updates = append(d.Updates, types.Update{
			Key: prevRow.Key,
			Old: toPtrSlice(prevRow.Values),
			New: toPtrSlice(currRow.Values),
		})
	}

	d.Sort()
	return d
}

func valuesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toPtrSlice(values []string) []*string {
	out := make([]*string, len(values))
	for i, v := range values {
		out[i] = types.StrPtr(v)
	}
	return out
}

func derefSlice(ptrs []*string) []string {
	out := make([]string, len(ptrs))
	for i, p := range ptrs {
		if p != nil {
			out[i] = *p
		}
	}
	return out
}

func ptrSlicesEqual(a []*string, b []*string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		av, bv := "", ""
		if a[i] != nil {
			av = *a[i]
		}
		if b[i] != nil {
			bv = *b[i]
		}
		if av != bv {
			return false
		}
	}
	return true
}
