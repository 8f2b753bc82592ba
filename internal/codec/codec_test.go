package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/csvleech/leech/pkg/types"
)

func sampleBlock() types.Block {
	return types.Block{
		Parent:    types.GenesisHash,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Deltas: []types.Delta{
			{
				Table:  "users",
				Fields: []types.Field{{Name: "id", Type: types.Integer, PrimaryKey: true}, {Name: "name", Type: types.Text}},
				Inserts: []types.Entry{
					{Key: []string{"3"}, Values: []string{"Charlie"}},
				},
			},
		},
	}
}

func TestEncodeDecode_Raw(t *testing.T) {
	b := sampleBlock()
	encoded, err := Encode(b, false)
	assert.NoError(t, err)
	assert.Equal(t, flagRaw, encoded[0])

	var decoded types.Block
	assert.NoError(t, Decode(encoded, &decoded))
	assert.True(t, decoded.CreatedAt.Equal(b.CreatedAt))
	assert.Equal(t, b.Parent, decoded.Parent)
	assert.Equal(t, b.Deltas, decoded.Deltas)
}

func TestEncodeDecode_Compressed(t *testing.T) {
	b := sampleBlock()
	encoded, err := Encode(b, true)
	assert.NoError(t, err)
	assert.Equal(t, flagSnappy, encoded[0])

	var decoded types.Block
	assert.NoError(t, Decode(encoded, &decoded))
	assert.Equal(t, b.Deltas, decoded.Deltas)
}

func TestEncode_Stable(t *testing.T) {
	b := sampleBlock()
	first, err := Encode(b, false)
	assert.NoError(t, err)
	second, err := Encode(b, false)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecode_EmptyPayload(t *testing.T) {
	var decoded types.Block
	err := Decode(nil, &decoded)
	assert.Error(t, err)
}

func TestDecode_UnknownFlag(t *testing.T) {
	var decoded types.Block
	err := Decode([]byte{0x7f, 0x00}, &decoded)
	assert.Error(t, err)
}
