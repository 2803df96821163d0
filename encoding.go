package scarf

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// encodeBody appends the msgpack encoding of obj to buf. Maps are written in
// canonical order, so re-saving an unchanged document produces identical
// bytes and Put can skip it.
func encodeBody(buf []byte, obj any) ([]byte, error) {
	var bb bytesBuilder
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	enc.UseCompactInts(false)
	enc.UseCompactFloats(false)
	err := enc.Encode(obj)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using msgpack: %w", obj, err)
	}
	buf, err = appendCanonical(buf, bb.Buf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using msgpack: %w", obj, err)
	}
	return buf, nil
}

func decodeBody(buf []byte, ptr any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(ptr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, 0, err, "failed to decode msgpack into %T", ptr)
	}
	return nil
}

// appendCanonical appends the msgpack value in raw to buf, with the entries
// of every map (at any depth, struct maps included) ordered by their encoded
// keys. msgpack itself only sorts a few map types, and Go randomizes map
// iteration order.
func appendCanonical(buf []byte, raw []byte) ([]byte, error) {
	cz := canonicalizer{raw: raw}
	cz.r.Reset(raw)
	cz.dec = msgpack.GetDecoder()
	cz.dec.ResetDict(&cz.r, nil)
	defer msgpack.PutDecoder(cz.dec)

	buf, err := cz.append(buf)
	if err != nil {
		return nil, err
	}
	if cz.r.Len() != 0 {
		return nil, fmt.Errorf("canonical msgpack: %d trailing bytes", cz.r.Len())
	}
	return buf, nil
}

type canonicalizer struct {
	raw []byte
	r   bytes.Reader
	dec *msgpack.Decoder
}

type canonicalEntry struct {
	key   []byte
	value []byte
}

func (cz *canonicalizer) off() int {
	return len(cz.raw) - cz.r.Len()
}

func (cz *canonicalizer) append(buf []byte) ([]byte, error) {
	c, err := cz.dec.PeekCode()
	if err != nil {
		return nil, err
	}
	start := cz.off()
	switch {
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := cz.dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		buf = append(buf, cz.raw[start:cz.off()]...)

		entries := make([]canonicalEntry, n)
		for i := range entries {
			if entries[i].key, err = cz.append(nil); err != nil {
				return nil, err
			}
			if entries[i].value, err = cz.append(nil); err != nil {
				return nil, err
			}
		}
		slices.SortFunc(entries, func(a, b canonicalEntry) int {
			return bytes.Compare(a.key, b.key)
		})
		for _, e := range entries {
			buf = append(buf, e.key...)
			buf = append(buf, e.value...)
		}
		return buf, nil

	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := cz.dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		buf = append(buf, cz.raw[start:cz.off()]...)
		for i := 0; i < n; i++ {
			if buf, err = cz.append(buf); err != nil {
				return nil, err
			}
		}
		return buf, nil

	default:
		if err := cz.dec.Skip(); err != nil {
			return nil, err
		}
		return append(buf, cz.raw[start:cz.off()]...), nil
	}
}
