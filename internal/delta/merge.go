package delta

import (
	"sort"

	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/pkg/types"
)

type opKind int

const (
	opNone opKind = iota
	opInsert
	opDelete
	opUpdate
)

type op struct {
	kind opKind
	key  []string

	// insertValues/deleteValues hold an insert's or delete's dense
	// value-tuple. updateOld/updateNew hold an update's dense old/new
	// value-tuples. Merge only ever sees dense, unstripped deltas (the
	// output of Compute or of a prior Merge) — strip happens once, to
	// the final consolidated result.
	insertValues []string
	deleteValues []string
	updateOld    []*string
	updateNew    []*string
}

func indexDelta(d types.Delta) map[string]op {
	m := make(map[string]op, len(d.Inserts)+len(d.Deletes)+len(d.Updates))
	for _, e := range d.Inserts {
		m[types.JoinKey(e.Key)] = op{kind: opInsert, key: e.Key, insertValues: e.Values}
	}
	for _, e := range d.Deletes {
		m[types.JoinKey(e.Key)] = op{kind: opDelete, key: e.Key, deleteValues: e.Values}
	}
	for _, u := range d.Updates {
		m[types.JoinKey(u.Key)] = op{kind: opUpdate, key: u.Key, updateOld: u.Old, updateNew: u.New}
	}
	return m
}

func sameFields(a, b []types.Field) bool {
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

// Merge combines a Parent delta (an earlier block) and a Current delta
// (a later block) for the same table into a single Result delta
// representing their combined effect, per the 15-rule pairwise algebra.
// An error return is either a Conflict, raised by rules 5, 10, 11, 13,
// or 14b, or a Corrupt schema-mismatch error when both operands carry
// fields and those fields differ.
func Merge(parent, current types.Delta) (types.Delta, error) {
	table := parent.Table
	if table == "" {
		table = current.Table
	}
	fields := parent.Fields
	if len(fields) == 0 {
		fields = current.Fields
	}
	if len(parent.Fields) > 0 && len(current.Fields) > 0 && !sameFields(parent.Fields, current.Fields) {
		return types.Delta{}, errors.NewCorruptError(errors.CodeSchemaMismatch,
			"merge operands for table "+table+" do not share a schema", nil)
	}

	pOps := indexDelta(parent)
	cOps := indexDelta(current)

	keys := make([]string, 0, len(pOps)+len(cOps))
	seen := make(map[string]bool, len(pOps)+len(cOps))
	for k := range pOps {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range cOps {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	result := types.Delta{Table: table, Fields: fields}

	for _, k := range keys {
		p, pOk := pOps[k]
		c, cOk := cOps[k]

		switch {
		case !pOk && cOk:
			switch c.kind {
			case opInsert: // rule 1
				result.Inserts = append(result.Inserts, types.Entry{Key: c.key, Values: c.insertValues})
			case opDelete: // rule 2
				result.Deletes = append(result.Deletes, types.Entry{Key: c.key, Values: c.deleteValues})
			case opUpdate: // rule 3
				result.Updates = append(result.Updates, types.Update{Key: c.key, Old: c.updateOld, New: c.updateNew})
			}

		case pOk && !cOk:
			switch p.kind {
			case opInsert: // rule 4
				result.Inserts = append(result.Inserts, types.Entry{Key: p.key, Values: p.insertValues})
			case opDelete: // rule 8
				result.Deletes = append(result.Deletes, types.Entry{Key: p.key, Values: p.deleteValues})
			case opUpdate: // rule 12
				result.Updates = append(result.Updates, types.Update{Key: p.key, Old: p.updateOld, New: p.updateNew})
			}

		case pOk && cOk:
			res, err := mergePair(table, p, c)
			if err != nil {
				return types.Delta{}, err
			}
			if res != nil {
				applyOp(&result, *res)
			}
		}
	}

	result.Sort()
	return result, nil
}

// mergePair resolves the single rule that applies when both Parent and
// Current reference the same key. A nil, nil return means the
// combination cancels out (rules 6 and 9a).
func mergePair(table string, p, c op) (*op, error) {
	switch {
	case p.kind == opInsert && c.kind == opInsert: // rule 5
		return nil, errors.NewConflictError(errors.CodeRule5, table, p.key)

	case p.kind == opInsert && c.kind == opDelete: // rule 6
		return nil, nil

	case p.kind == opInsert && c.kind == opUpdate: // rule 7
		return &op{kind: opInsert, key: p.key, insertValues: derefSlice(c.updateNew)}, nil

	case p.kind == opDelete && c.kind == opInsert: // rules 9a/9b
		if valuesEqual(p.deleteValues, c.insertValues) {
			return nil, nil
		}
		return &op{
			kind:      opUpdate,
			key:       p.key,
			updateOld: toPtrSlice(p.deleteValues),
			updateNew: toPtrSlice(c.insertValues),
		}, nil

	case p.kind == opDelete && c.kind == opDelete: // rule 10
		return nil, errors.NewConflictError(errors.CodeRule10, table, p.key)

	case p.kind == opDelete && c.kind == opUpdate: // rule 11
		return nil, errors.NewConflictError(errors.CodeRule11, table, p.key)

	case p.kind == opUpdate && c.kind == opInsert: // rule 13
		return nil, errors.NewConflictError(errors.CodeRule13, table, p.key)

	case p.kind == opUpdate && c.kind == opDelete: // rules 14a/14b
		if ptrSlicesEqual(p.updateNew, toPtrSlice(c.deleteValues)) {
			return &op{kind: opDelete, key: p.key, deleteValues: derefSlice(p.updateOld)}, nil
		}
		return nil, errors.NewConflictError(errors.CodeRule14b, table, p.key)

	case p.kind == opUpdate && c.kind == opUpdate: // rule 15
		return &op{kind: opUpdate, key: p.key, updateOld: p.updateOld, updateNew: c.updateNew}, nil
	}
	return nil, nil
}

func applyOp(result *types.Delta, o op) {
	switch o.kind {
	case opInsert:
		result.Inserts = append(result.Inserts, types.Entry{Key: o.key, Values: o.insertValues})
	case opDelete:
		result.Deletes = append(result.Deletes, types.Entry{Key: o.key, Values: o.deleteValues})
	case opUpdate:
		result.Updates = append(result.Updates, types.Update{Key: o.key, Old: o.updateOld, New: o.updateNew})
	}
}

// MergeBlockDeltas merges the per-table deltas of a Parent block and a
// Current block pairwise; tables appearing in only one side pass
// through unchanged.
func MergeBlockDeltas(parent, current []types.Delta) ([]types.Delta, error) {
	parentByTable := make(map[string]types.Delta, len(parent))
	for _, d := range parent {
		parentByTable[d.Table] = d
	}
	currentByTable := make(map[string]types.Delta, len(current))
	for _, d := range current {
		currentByTable[d.Table] = d
	}

	tables := make(map[string]bool, len(parent)+len(current))
	for name := range parentByTable {
		tables[name] = true
	}
	for name := range currentByTable {
		tables[name] = true
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]types.Delta, 0, len(names))
	for _, name := range names {
		p, pOk := parentByTable[name]
		c, cOk := currentByTable[name]
		switch {
		case pOk && cOk:
			merged, err := Merge(p, c)
			if err != nil {
				return nil, err
			}
			result = append(result, merged)
		case pOk:
			result = append(result, p)
		case cOk:
			result = append(result, c)
		}
	}
	return result, nil
}
