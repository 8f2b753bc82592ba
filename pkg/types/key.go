package types

import "strings"

// keySep joins primary-key tuple components into a single comparable
// string. It is a control character chosen to be extremely unlikely to
// appear in CSV-sourced values; it never reaches the wire — it exists
// only as an in-memory map key.
const keySep = "\x1f"

// JoinKey canonicalizes a key-tuple into a map key.
func JoinKey(key []string) string {
	return strings.Join(key, keySep)
}
