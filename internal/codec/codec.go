// Package codec implements the canonical wire encoding shared by
// blocks, patches, and states: a deterministic MessagePack encoding
// wrapped in a one-byte envelope that says whether the payload that
// follows is raw or Snappy-compressed.
package codec

import (
	"bytes"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/csvleech/leech/internal/errors"
)

// envelope flag values. The decoder distinguishes raw from compressed
// payloads by this leading byte rather than by sniffing magic numbers.
const (
	flagRaw    byte = 0x00
	flagSnappy byte = 0x01
)

// Encode canonically encodes v and wraps it in the envelope. Blocks
// must always be encoded with compress=false, because a block's
// content address is the hash of the exact bytes the store writes —
// see EncodeBlock.
func Encode(v interface{}, compress bool) ([]byte, error) {
	inner, err := marshal(v)
	if err != nil {
		return nil, errors.NewCorruptError(errors.CodeDecodeFailed, "encode failed", err)
	}
	if !compress {
		out := make([]byte, 0, len(inner)+1)
		out = append(out, flagRaw)
		return append(out, inner...), nil
	}
	body := snappy.Encode(nil, inner)
	out := make([]byte, 0, len(body)+1)
	out = append(out, flagSnappy)
	return append(out, body...), nil
}

// Decode unwraps the envelope, transparently decompressing if needed,
// and decodes the inner MessagePack message into v.
func Decode(data []byte, v interface{}) error {
	if len(data) < 1 {
		return errors.NewCorruptError(errors.CodePointerMalformed, "empty wire payload", nil)
	}
	flag, body := data[0], data[1:]

	var inner []byte
	switch flag {
	case flagRaw:
		inner = body
	case flagSnappy:
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return errors.NewCorruptError(errors.CodeDecodeFailed, "snappy decompress failed", err)
		}
		inner = decoded
	default:
		return errors.NewCorruptError(errors.CodePointerMalformed, "unknown wire envelope flag", nil)
	}

	if err := unmarshal(inner, v); err != nil {
		return errors.NewCorruptError(errors.CodeDecodeFailed, "decode failed", err)
	}
	return nil
}

// EncodeBlock encodes a block with no compression: the block's content
// address hashes exactly these bytes.
func EncodeBlock(v interface{}) ([]byte, error) {
	return Encode(v, false)
}

func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	// SetSortMapKeys is a defensive backstop; every collection in the
	// domain model is already an ordered slice by the time it reaches
	// this encoder, so no map's iteration order should ever matter.
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	return dec.Decode(v)
}
