// Package sqlemit turns a patch into the SQL transaction text described
// in §6: a delta payload replays as DELETE-then-INSERT-then-UPDATE, a
// state payload replays as TRUNCATE-then-INSERT, both within one
// BEGIN/COMMIT block. It is a small, swappable collaborator, not part
// of the core — callers may supply any emitter that produces equivalent
// replayable SQL.
package sqlemit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/pkg/types"
)

// Emit produces the full transaction text for p.
func Emit(p types.Patch) (string, error) {
	var body string
	var err error
	switch p.Kind {
	case types.PayloadDeltas:
		body, err = emitDeltas(p.Deltas)
	case types.PayloadState:
		if p.State == nil {
			return "", errors.NewCorruptError(errors.CodeSchemaMismatch, "state payload has no state", nil)
		}
		body, err = emitState(*p.State)
	default:
		return "", errors.NewCorruptError(errors.CodeSchemaMismatch, "unknown patch payload kind "+string(p.Kind), nil)
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("BEGIN;\n")
	sb.WriteString(body)
	sb.WriteString("COMMIT;\n")
	return sb.String(), nil
}

// emitDeltas emits, in the global order required by §6, every DELETE
// across every table's delta, then every INSERT, then every UPDATE.
func emitDeltas(deltas []types.Delta) (string, error) {
	var sb strings.Builder
	for _, d := range deltas {
		numKey := numKeyFields(d.Fields)
		for _, e := range d.Deletes {
			sb.WriteString("DELETE FROM ")
			sb.WriteString(quoteIdent(d.Table))
			sb.WriteString(" WHERE ")
			pred, err := keyPredicate(d.Fields[:numKey], e.Key)
			if err != nil {
				return "", err
			}
			sb.WriteString(pred)
			sb.WriteString(";\n")
		}
	}
	for _, d := range deltas {
		numKey := numKeyFields(d.Fields)
		for _, e := range d.Inserts {
			stmt, err := insertStatement(d.Table, d.Fields, numKey, e.Key, e.Values)
			if err != nil {
				return "", err
			}
			sb.WriteString(stmt)
		}
	}
	for _, d := range deltas {
		numKey := numKeyFields(d.Fields)
		for _, u := range d.Updates {
			stmt, err := updateStatement(d.Table, d.Fields, numKey, u)
			if err != nil {
				return "", err
			}
			if stmt != "" {
				sb.WriteString(stmt)
			}
		}
	}
	return sb.String(), nil
}

// emitState emits a TRUNCATE followed by one INSERT per row, per table,
// in table-name order for determinism.
func emitState(state types.State) (string, error) {
	var sb strings.Builder
	for _, t := range state.Tables {
		sb.WriteString("TRUNCATE ")
		sb.WriteString(quoteIdent(t.Schema.Name))
		sb.WriteString(";\n")

		numKey := t.Schema.NumKeyFields()
		for _, row := range t.Rows {
			stmt, err := insertStatement(t.Schema.Name, t.Schema.Fields, numKey, row.Key, row.Values)
			if err != nil {
				return "", err
			}
			sb.WriteString(stmt)
		}
	}
	return sb.String(), nil
}

func insertStatement(table string, fields []types.Field, numKey int, key, values []string) (string, error) {
	cols := make([]string, 0, len(fields))
	lits := make([]string, 0, len(fields))
	for i, f := range fields {
		cols = append(cols, quoteIdent(f.Name))
		var raw string
		if i < numKey {
			raw = key[i]
		} else {
			raw = values[i-numKey]
		}
		lit, err := literal(f, raw)
		if err != nil {
			return "", err
		}
		lits = append(lits, lit)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);\n",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(lits, ", ")), nil
}

// updateStatement emits SET clauses only for indices the sparse update
// populates; an update with no populated indices (both sides absent
// everywhere) emits nothing.
func updateStatement(table string, fields []types.Field, numKey int, u types.Update) (string, error) {
	sets := make([]string, 0, len(u.New))
	for i, nv := range u.New {
		if nv == nil {
			continue
		}
		field := fields[numKey+i]
		lit, err := literal(field, *nv)
		if err != nil {
			return "", err
		}
		sets = append(sets, quoteIdent(field.Name)+" = "+lit)
	}
	if len(sets) == 0 {
		return "", nil
	}
	pred, err := keyPredicate(fields[:numKey], u.Key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s;\n",
		quoteIdent(table), strings.Join(sets, ", "), pred), nil
}

func keyPredicate(keyFields []types.Field, key []string) (string, error) {
	if len(keyFields) != len(key) {
		return "", errors.NewCorruptError(errors.CodeSchemaMismatch, "key arity does not match schema", nil)
	}
	clauses := make([]string, len(key))
	for i, f := range keyFields {
		lit, err := literal(f, key[i])
		if err != nil {
			return "", err
		}
		clauses[i] = quoteIdent(f.Name) + " = " + lit
	}
	return strings.Join(clauses, " AND "), nil
}

// literal formats raw per f's logical type: integers and floats
// unquoted, booleans as TRUE/FALSE, binary as a hex literal,
// everything else (text, date, time, datetime) single-quoted with
// embedded quotes doubled.
func literal(f types.Field, raw string) (string, error) {
	switch f.Type {
	case types.Integer, types.Float:
		return raw, nil
	case types.Boolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", errors.NewCorruptError(errors.CodeSchemaMismatch,
				fmt.Sprintf("field %q: %q is not a valid boolean", f.Name, raw), err)
		}
		if b {
			return "TRUE", nil
		}
		return "FALSE", nil
	case types.Binary:
		return "X'" + strings.ToUpper(raw) + "'", nil
	case types.Text, types.Date, types.Time, types.DateTime:
		return "'" + strings.ReplaceAll(raw, "'", "''") + "'", nil
	default:
		return "", errors.NewCorruptError(errors.CodeSchemaMismatch, "unknown logical type "+string(f.Type), nil)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// numKeyFields counts the leading primary-key fields of a canonically
// ordered field list.
func numKeyFields(fields []types.Field) int {
	n := 0
	for _, f := range fields {
		if !f.PrimaryKey {
			break
		}
		n++
	}
	return n
}
