package delta

import "github.com/csvleech/leech/pkg/types"

// Strip shrinks a consolidated delta for the wire: delete entries lose
// their value-tuples (only the key remains), and updates are reduced
// to sparse form, keeping only the indices where old and new differ
// (or where either side was already absent). Strip is idempotent and
// must only be applied to the final consolidated delta — merge needs
// the full value context strip throws away.
func Strip(d types.Delta) types.Delta {
	out := types.Delta{
		Table:   d.Table,
		Fields:  d.Fields,
		Inserts: d.Inserts,
		Deletes: make([]types.Entry, len(d.Deletes)),
		Updates: make([]types.Update, len(d.Updates)),
	}

	for i, e := range d.Deletes {
		out.Deletes[i] = types.Entry{Key: e.Key, Values: nil}
	}

	for i, u := range d.Updates {
		out.Updates[i] = stripUpdate(u)
	}

	return out
}

func stripUpdate(u types.Update) types.Update {
	n := len(u.Old)
	if len(u.New) > n {
		n = len(u.New)
	}
	old := make([]*string, n)
	new := make([]*string, n)
	for i := 0; i < n; i++ {
		var o, nv *string
		if i < len(u.Old) {
			o = u.Old[i]
		}
		if i < len(u.New) {
			nv = u.New[i]
		}
		if ptrEqual(o, nv) {
			continue
		}
		old[i] = o
		new[i] = nv
	}
	return types.Update{Key: u.Key, Old: old, New: new}
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
