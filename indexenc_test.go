package scarf

import (
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeIndexValue_Deterministic(t *testing.T) {
	type nested struct {
		Name  string
		Attrs map[int]string
		Tags  []map[string]int
	}
	intKeyed := func() any {
		m := make(map[int]string)
		for i := range 50 {
			m[i] = "x"
		}
		return m
	}
	stringKeyed := func() any {
		m := make(map[string]int)
		for i := range 50 {
			m[strconv.Itoa(i)] = i
		}
		return m
	}
	tests := map[string]func() any{
		"map[string]any": func() any { return map[string]any{"b": 2, "a": 1, "c": "x"} },
		"map[int]string": intKeyed,
		"map[string]int": stringKeyed,
		"nested": func() any {
			return nested{
				Name:  "n",
				Attrs: intKeyed().(map[int]string),
				Tags:  []map[string]int{stringKeyed().(map[string]int), {"z": 1, "y": 2}},
			}
		},
	}
	for name, mk := range tests {
		t.Run(name, func(t *testing.T) {
			expected, err := EncodeIndexValue(mk())
			require.NoError(t, err)
			for range 50 {
				actual, err := EncodeIndexValue(mk())
				require.NoError(t, err)
				require.Equal(t, expected, actual)
			}
		})
	}
}

func TestEncodeIndexValue_CanonicalMapDecodes(t *testing.T) {
	in := map[int]string{3: "c", 1: "a", 2: "b"}
	raw, err := EncodeIndexValue(in)
	require.NoError(t, err)

	var out map[int]string
	require.NoError(t, DecodeIndexValue(raw, &out))
	assert.Equal(t, in, out)
}

func TestEncodeBody_Deterministic(t *testing.T) {
	mk := func() map[string]int {
		m := make(map[string]int)
		for i := range 50 {
			m[strconv.Itoa(i)] = i
		}
		return m
	}
	expected, err := encodeBody(nil, mk())
	require.NoError(t, err)
	for range 50 {
		actual, err := encodeBody([]byte{0xFF}, mk())
		require.NoError(t, err)
		require.Equal(t, append([]byte{0xFF}, expected...), actual)
	}
}

func TestEncodeIndexValue_IntWidthNormalized(t *testing.T) {
	expected, err := EncodeIndexValue(int64(5))
	require.NoError(t, err)
	for _, v := range []any{5, int8(5), int16(5), int32(5), uint(5), uint8(5), uint64(5)} {
		actual, err := EncodeIndexValue(v)
		require.NoError(t, err)
		assert.Equal(t, expected, actual, "%T", v)
	}
}

func TestEncodeIndexValue_Distinct(t *testing.T) {
	values := []any{"foo", "bar", 1, 2, -1, true, false, nil, 1.5, []string{"a"}, map[string]int{"a": 1}}
	seen := make(map[string]any)
	for _, v := range values {
		raw, err := EncodeIndexValue(v)
		require.NoError(t, err)
		if prev, ok := seen[string(raw)]; ok {
			t.Errorf("** %v and %v encode to the same bytes %x", prev, v, raw)
		}
		seen[string(raw)] = v
	}
}

func TestDecodeIndexValue(t *testing.T) {
	type pair struct {
		Name string
		Age  int
	}
	raw, err := EncodeIndexValue(pair{"Alice", 30})
	require.NoError(t, err)

	var p pair
	require.NoError(t, DecodeIndexValue(raw, &p))
	assert.Equal(t, pair{"Alice", 30}, p)

	var s string
	assert.Error(t, DecodeIndexValue(raw, &s))
}

func TestIndexKeyString(t *testing.T) {
	s := IndexKeyString([]byte("foo"))
	assert.Equal(t, "cpnmu", s)
	assert.NotContains(t, s, "=")

	raw, err := ParseIndexKeyString(s)
	require.NoError(t, err)
	assert.Equal(t, []byte("foo"), raw)

	_, err = ParseIndexKeyString("not base32!")
	assert.Error(t, err)

	assert.Equal(t, "", IndexKeyString(nil))
}

func TestIndexKeyString_PreservesOrder(t *testing.T) {
	keys := [][]byte{{0x00, 0x01}, {0x00, 0xFF}, {0x7F, 0x00}, {0x80, 0x00}, {0xFF, 0xFE}}
	var strs []string
	for _, k := range keys {
		strs = append(strs, IndexKeyString(k))
	}
	assert.True(t, sort.StringsAreSorted(strs), "%v", strs)
}

func TestEncodeIndexKeyString(t *testing.T) {
	raw, err := EncodeIndexValue("hello")
	require.NoError(t, err)
	s, err := EncodeIndexKeyString("hello")
	require.NoError(t, err)
	assert.Equal(t, IndexKeyString(raw), s)

	_, err = EncodeIndexKeyString(make(chan int))
	assert.Error(t, err)
}
