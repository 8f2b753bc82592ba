package types

import "sort"

// State is the collection of current table contents across every
// configured table, the post-image persisted after each block.
type State struct {
	Tables []Table `msgpack:"tables"`
}

// NewState returns an empty state.
func NewState() State {
	return State{Tables: []Table{}}
}

// Table returns the named table and whether it was present.
func (s State) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Schema.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// WithTable returns a copy of the state with the given table set
// (replacing any existing table of the same name), kept sorted by
// table name for deterministic encoding.
func (s State) WithTable(t Table) State {
	out := make([]Table, 0, len(s.Tables)+1)
	replaced := false
	for _, existing := range s.Tables {
		if existing.Schema.Name == t.Schema.Name {
			out = append(out, t)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Schema.Name < out[j].Schema.Name })
	return State{Tables: out}
}
