package scarf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestID_ParseAndString(t *testing.T) {
	const s = "0190c2a6-3b0e-7c4e-9b4d-3f1d5e2a8c11"
	id, err := ParseID(s)
	require.NoError(t, err)
	assert.Equal(t, s, id.String())
	assert.False(t, id.IsZero())
	assert.True(t, ID{}.IsZero())

	_, err = ParseID("nope")
	assert.Error(t, err)
	assert.Panics(t, func() { MustParseID("nope") })
}

func TestID_Compare(t *testing.T) {
	a := MustParseID("00000000-0000-0000-0000-000000000001")
	b := MustParseID("00000000-0000-0000-0000-000000000002")
	c := MustParseID("80000000-0000-0000-0000-000000000000")
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, c.Compare(b))
	assert.Equal(t, 0, a.Compare(a))

	hi, lo := c.Uint128()
	assert.Equal(t, uint64(1)<<63, hi)
	assert.Equal(t, uint64(0), lo)
}

func TestID_New(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())

	s1 := NewSequentialID()
	s2 := NewSequentialID()
	assert.Equal(t, -1, s1.Compare(s2))
}

func TestID_Marshaling(t *testing.T) {
	id := NewID()

	text, err := id.MarshalText()
	require.NoError(t, err)
	var fromText ID
	require.NoError(t, fromText.UnmarshalText(text))
	assert.Equal(t, id, fromText)

	bin, err := id.MarshalBinary()
	require.NoError(t, err)
	var fromBin ID
	require.NoError(t, fromBin.UnmarshalBinary(bin))
	assert.Equal(t, id, fromBin)
	assert.Error(t, fromBin.UnmarshalBinary([]byte{1, 2}))

	type doc struct {
		ID ID
	}
	raw, err := msgpack.Marshal(doc{id})
	require.NoError(t, err)
	var d doc
	require.NoError(t, msgpack.Unmarshal(raw, &d))
	assert.Equal(t, id, d.ID)
}
