package types

// TableSchema names a table and fixes its field order: primary-key
// fields first (in declared order), then non-key fields. Callers that
// build a TableSchema directly (rather than through config validation)
// are responsible for this ordering; every core subsystem assumes it
// holds.
type TableSchema struct {
	Name   string  `msgpack:"name"`
	Fields []Field `msgpack:"fields"`
}

// NumKeyFields returns the count of leading primary-key fields.
func (s TableSchema) NumKeyFields() int {
	n := 0
	for _, f := range s.Fields {
		if f.PrimaryKey {
			n++
		}
	}
	return n
}

// KeyFields returns the primary-key fields, in declared order.
func (s TableSchema) KeyFields() []Field {
	return s.Fields[:s.NumKeyFields()]
}

// ValueFields returns the non-key fields, in declared order.
func (s TableSchema) ValueFields() []Field {
	return s.Fields[s.NumKeyFields():]
}

// FieldNames returns the full ordered list of field names.
func (s TableSchema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// SameSchema reports whether two schemas have the same table name and
// field order, the requirement merge imposes on both delta operands.
func SameSchema(a, b TableSchema) bool {
	if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}
