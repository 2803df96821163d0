package scarf

import (
	"bytes"
	"encoding/base32"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// indexKeyEncoding is base32 with an alphabet in ASCII order, so text forms
// of equal-length keys sort like the keys themselves.
var indexKeyEncoding = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

// EncodeIndexValue encodes v into the canonical byte form used in index
// tables. Equal values always encode to equal bytes: map entries of any map
// type are ordered by their encoded keys, and integers and floats use the
// narrowest lossless representation, so int8(5) and int64(5) produce the
// same key.
func EncodeIndexValue(v any) ([]byte, error) {
	return appendIndexValue(nil, v)
}

func appendIndexValue(buf []byte, v any) ([]byte, error) {
	var bb bytesBuilder
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	enc.UseCompactInts(true)
	enc.UseCompactFloats(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode index value %T: %w", v, err)
	}
	buf, err = appendCanonical(buf, bb.Buf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode index value %T: %w", v, err)
	}
	return buf, nil
}

// DecodeIndexValue decodes bytes produced by EncodeIndexValue into ptr.
func DecodeIndexValue(raw []byte, ptr any) error {
	var r bytes.Reader
	r.Reset(raw)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(ptr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(raw, 0, err, "failed to decode index value into %T", ptr)
	}
	return nil
}

// IndexKeyString returns the text form of an encoded index value.
func IndexKeyString(raw []byte) string {
	return indexKeyEncoding.EncodeToString(raw)
}

// ParseIndexKeyString is the inverse of IndexKeyString.
func ParseIndexKeyString(s string) ([]byte, error) {
	raw, err := indexKeyEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid index key string %q: %w", s, err)
	}
	return raw, nil
}

// EncodeIndexKeyString is a shortcut for IndexKeyString(EncodeIndexValue(v)).
func EncodeIndexKeyString(v any) (string, error) {
	raw, err := EncodeIndexValue(v)
	if err != nil {
		return "", err
	}
	return IndexKeyString(raw), nil
}

// describeIndexValue decodes an encoded index value generically for dumps.
func describeIndexValue(raw []byte) string {
	var v any
	if err := DecodeIndexValue(raw, &v); err != nil {
		return "<invalid>"
	}
	return fmt.Sprintf("%v", v)
}
