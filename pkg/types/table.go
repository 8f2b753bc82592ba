package types

import "sort"

// Row is one primary-key tuple and its associated non-key value-tuple.
type Row struct {
	Key    []string `msgpack:"key"`
	Values []string `msgpack:"values"`
}

// Table is the in-memory materialization of one configured source: an
// ordered set of rows under a fixed schema. Rows are always kept
// sorted by key so wire encoding never leaks map iteration order.
type Table struct {
	Schema TableSchema `msgpack:"schema"`
	Rows   []Row       `msgpack:"rows"`
}

// NewTable returns an empty table under the given schema.
func NewTable(schema TableSchema) Table {
	return Table{Schema: schema, Rows: []Row{}}
}

// ByKey indexes the table's rows by their joined key tuple for O(1)
// lookup during diffing.
func (t Table) ByKey() map[string]Row {
	m := make(map[string]Row, len(t.Rows))
	for _, r := range t.Rows {
		m[JoinKey(r.Key)] = r
	}
	return m
}

// SortRows orders rows by their joined key tuple, in place, so two
// tables built from the same logical contents encode identically
// regardless of insertion order.
func SortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		return JoinKey(rows[i].Key) < JoinKey(rows[j].Key)
	})
}
