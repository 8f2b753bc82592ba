// Package loader materializes CSV sources into in-memory tables under
// a configured schema.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/pkg/types"
)

// LoadTable parses the CSV file at path into a types.Table under
// schema. With headers enabled, the header row must present a
// permutation of schema's declared field names; columns are then
// reordered into the canonical primary-keys-first layout. With headers
// disabled, column order is assumed to already match schema.Fields.
//
// A present-but-zero-row source produces a valid empty table. A
// missing source file is an error — missing and empty are not the
// same thing.
func LoadTable(path string, schema types.TableSchema, headersPresent bool) (types.Table, error) {
	table := types.NewTable(schema)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, errors.NotFoundSource(path)
		}
		return table, errors.NewIoError(errors.CodeReadFailed, fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	sourceOrder := schema.FieldNames()
	if headersPresent {
		header, err := r.Read()
		if err == io.EOF {
			return table, nil
		}
		if err != nil {
			return table, errors.NewIoError(errors.CodeReadFailed, fmt.Sprintf("read header of %s", path), err)
		}
		sourceOrder, err = validateHeader(schema, header)
		if err != nil {
			return table, err
		}
	}

	// columnToField[i] is the index into schema.Fields that source
	// column i maps to.
	columnToField := make([]int, len(sourceOrder))
	for col, name := range sourceOrder {
		idx, err := fieldIndex(schema, name)
		if err != nil {
			return table, err
		}
		columnToField[col] = idx
	}

	numKey := schema.NumKeyFields()
	seen := make(map[string]bool)
	rows := make([]types.Row, 0)

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return table, errors.NewIoError(errors.CodeReadFailed, fmt.Sprintf("read row of %s", path), err)
		}
		if len(record) != len(columnToField) {
			return table, errors.NewConfigError(errors.CodeHeaderMismatch,
				fmt.Sprintf("%s: row has %d columns, expected %d", path, len(record), len(columnToField)))
		}

		ordered := make([]string, len(schema.Fields))
		for col, val := range record {
			ordered[columnToField[col]] = val
		}

		key := ordered[:numKey]
		values := ordered[numKey:]

		joined := types.JoinKey(key)
		if seen[joined] {
			return table, errors.NewDuplicateKeyError(schema.Name, append([]string{}, key...))
		}
		seen[joined] = true

		rows = append(rows, types.Row{Key: append([]string{}, key...), Values: values})
	}

	types.SortRows(rows)
	table.Rows = rows
	return table, nil
}

// validateHeader checks that header is a permutation of schema's
// declared field names and returns it verbatim as the source column
// order.
func validateHeader(schema types.TableSchema, header []string) ([]string, error) {
	if len(header) != len(schema.Fields) {
		return nil, errors.NewConfigError(errors.CodeHeaderMismatch,
			fmt.Sprintf("%s: header has %d columns, schema declares %d", schema.Name, len(header), len(schema.Fields)))
	}
	seen := make(map[string]bool, len(header))
	for _, name := range header {
		if _, err := fieldIndex(schema, name); err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, errors.NewConfigError(errors.CodeHeaderMismatch,
				fmt.Sprintf("%s: header column %q repeated", schema.Name, name))
		}
		seen[name] = true
	}
	return header, nil
}

func fieldIndex(schema types.TableSchema, name string) (int, error) {
	for i, f := range schema.Fields {
		if f.Name == name {
			return i, nil
		}
	}
	return 0, errors.NewConfigError(errors.CodeHeaderMismatch,
		fmt.Sprintf("%s: header column %q is not a declared field", schema.Name, name))
}
