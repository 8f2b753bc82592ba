// Package chain provides the singleton pointer files that locate the
// chain inside a work directory: HEAD, REPORTED, and STATE. Every
// other core subsystem reads and writes these through this package
// rather than touching the store directly, so the hash-format and
// absence rules live in one place.
package chain

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/csvleech/leech/internal/codec"
	"github.com/csvleech/leech/internal/errors"
	"github.com/csvleech/leech/internal/store"
	"github.com/csvleech/leech/pkg/types"
)

const (
	HeadName     = "HEAD"
	ReportedName = "REPORTED"
	StateName    = "STATE"

	hashLen = 40
)

// ValidHash reports whether s is a well-formed 40-hex block address,
// including the genesis sentinel.
func ValidHash(s string) bool {
	if len(s) != hashLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func normalize(raw []byte) string {
	return strings.TrimSpace(string(raw))
}

// ReadHead returns the current HEAD hash. A HEAD that has never been
// written is reported as genesis, per the first-block case in §4.7.
func ReadHead(ctx context.Context, s store.Store) (string, error) {
	data, err := s.Read(ctx, HeadName)
	if err != nil {
		if errors.IsNotFound(err) {
			return types.GenesisHash, nil
		}
		return "", err
	}
	hash := normalize(data)
	if !ValidHash(hash) {
		return "", errors.NewCorruptError(errors.CodePointerMalformed, "HEAD contents are not a 40-hex hash", nil)
	}
	return hash, nil
}

// WriteHead overwrites the HEAD pointer with hash.
func WriteHead(ctx context.Context, s store.Store, hash string) error {
	return s.Write(ctx, HeadName, []byte(hash))
}

// ReadReported returns the REPORTED hash and true, or ("", false) if
// REPORTED has never been written.
func ReadReported(ctx context.Context, s store.Store) (string, bool, error) {
	data, err := s.Read(ctx, ReportedName)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	hash := normalize(data)
	if !ValidHash(hash) {
		return "", false, errors.NewCorruptError(errors.CodePointerMalformed, "REPORTED contents are not a 40-hex hash", nil)
	}
	return hash, true, nil
}

// WriteReported overwrites the REPORTED pointer with hash.
func WriteReported(ctx context.Context, s store.Store, hash string) error {
	return s.Write(ctx, ReportedName, []byte(hash))
}

// ReadState returns the persisted state. A STATE that has never been
// written is reported as an empty state, per the first-block case in
// §4.7 and the startup recovery rule in §7.
func ReadState(ctx context.Context, s store.Store) (types.State, error) {
	data, err := s.Read(ctx, StateName)
	if err != nil {
		if errors.IsNotFound(err) {
			return types.NewState(), nil
		}
		return types.State{}, err
	}
	var st types.State
	if err := codec.Decode(data, &st); err != nil {
		return types.State{}, errors.NewCorruptError(errors.CodeDecodeFailed, "decode STATE", err)
	}
	return st, nil
}

// WriteState canonically encodes and persists st.
func WriteState(ctx context.Context, s store.Store, st types.State) error {
	data, err := codec.Encode(st, false)
	if err != nil {
		return errors.NewCorruptError(errors.CodeDecodeFailed, "encode STATE", err)
	}
	return s.Write(ctx, StateName, data)
}
