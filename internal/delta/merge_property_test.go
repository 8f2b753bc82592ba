package delta

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/csvleech/leech/pkg/types"
)

// deltaFromKind builds a single-key, single-table delta for one of the
// four operation kinds the merge algebra's decision table dispatches
// on: 0 absent, 1 insert, 2 delete, 3 update.
func deltaFromKind(kind int, v1, v2 string) types.Delta {
	d := types.Delta{Table: "t", Fields: fields()}
	switch kind % 4 {
	case 1:
		d.Inserts = []types.Entry{{Key: []string{"k"}, Values: []string{v1}}}
	case 2:
		d.Deletes = []types.Entry{{Key: []string{"k"}, Values: []string{v1}}}
	case 3:
		d.Updates = []types.Update{{
			Key: []string{"k"},
			Old: []*string{types.StrPtr(v1)},
			New: []*string{types.StrPtr(v2)},
		}}
	}
	return d
}

func deltasEqual(a, b types.Delta) bool {
	a.Sort()
	b.Sort()
	return reflect.DeepEqual(a.Inserts, b.Inserts) &&
		reflect.DeepEqual(a.Deletes, b.Deletes) &&
		reflect.DeepEqual(a.Updates, b.Updates)
}

func TestMergeProperty_RuleSelectionIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("merging the same pair twice yields identical results or identical errors", prop.ForAll(
		func(pKind, cKind int, pv1, pv2, cv1, cv2 string) bool {
			p := deltaFromKind(pKind, pv1, pv2)
			c := deltaFromKind(cKind, cv1, cv2)

			r1, err1 := Merge(p, c)
			r2, err2 := Merge(p, c)
			if (err1 == nil) != (err2 == nil) {
				return false
			}
			if err1 != nil {
				return err1.Error() == err2.Error()
			}
			return deltasEqual(r1, r2)
		},
		gen.IntRange(0, 3), gen.IntRange(0, 3),
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestMergeProperty_AssociativeForConflictFreeTriples(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("merge(merge(a,b),c) == merge(a,merge(b,c)) whenever both sides succeed", prop.ForAll(
		func(aKind, bKind, cKind int, v1, v2, v3 string) bool {
			a := deltaFromKind(aKind, v1, v2)
			b := deltaFromKind(bKind, v2, v3)
			c := deltaFromKind(cKind, v3, v1)

			ab, errAB := Merge(a, b)
			bc, errBC := Merge(b, c)
			if errAB != nil || errBC != nil {
				return true // only conflict-free triples are asserted
			}

			left, errLeft := Merge(ab, c)
			right, errRight := Merge(a, bc)
			if (errLeft == nil) != (errRight == nil) {
				return false
			}
			if errLeft != nil {
				return true
			}
			return deltasEqual(left, right)
		},
		gen.IntRange(0, 3), gen.IntRange(0, 3), gen.IntRange(0, 3),
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
