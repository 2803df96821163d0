package scarf

import (
	"bytes"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"
)

func TestTuple(t *testing.T) {
	l1024 := longhex(1024)
	tests := []struct {
		input    string
		expected string
	}{
		{"", "01"},
		{"4241", "424101"},
		{l1024, l1024 + "01"},
		{"4241|393837", "42413938370202"},
		{"1122|334455|66778899", "112233445566778899020303"},
		{l1024 + "|" + l1024, l1024 + l1024 + "088002"},
		{"|", "0002"},
		{"||", "000003"},
		{"|||", "00000004"},
		{"||||", "0000000005"},
	}
	for _, tt := range tests {
		src := parseTupleString(tt.input)
		if src.String() != tt.input {
			t.Errorf("** parseTupleString(%q).String() does not round-trip", tt.input)
			continue
		}

		encoded := src.encode(nil)
		encodedStr := hex.EncodeToString(encoded)
		if encodedStr != tt.expected {
			t.Errorf("** tuple(%q).encode() = %q, wanted %q", tt.input, encodedStr, tt.expected)
		} else {
			decoded := must(decodeTuple(encoded))
			if !reflect.DeepEqual(src, decoded) {
				t.Errorf("** decodeTuple(%q) = %s, wanted %s", encodedStr, decoded.String(), tt.input)
			}
		}
	}
}

func TestDecodeTuple_Invalid(t *testing.T) {
	for _, s := range []string{"80", "05", "ff0202"} {
		raw := must(hex.DecodeString(s))
		if _, err := decodeTuple(raw); err == nil {
			t.Errorf("** decodeTuple(%s) err = nil, wanted error", s)
		}
	}
}

func TestIndexRowKey(t *testing.T) {
	key := encodeIndexRowKey(nil, []byte("value"), []byte("pk"))
	if !bytes.HasPrefix(key, []byte("value")) {
		t.Fatalf("encodeIndexRowKey = %x, wanted value prefix", key)
	}
	value, pk, err := decodeIndexRowKey(key)
	if err != nil {
		t.Fatalf("decodeIndexRowKey failed: %v", err)
	}
	if string(value) != "value" || string(pk) != "pk" {
		t.Fatalf("decodeIndexRowKey = (%q, %q), wanted (value, pk)", value, pk)
	}

	_, _, err = decodeIndexRowKey(tuple{[]byte("a")}.encode(nil))
	if err == nil || !strings.Contains(err.Error(), "invalid index row key 61: 1 elements") {
		t.Fatalf("decodeIndexRowKey(1-tuple) err = %v, wanted invalid index row key error", err)
	}
}

func parseTupleString(s string) tuple {
	els := strings.Split(s, "|")
	tup := make(tuple, len(els))
	for i, el := range els {
		tup[i] = must(hex.DecodeString(el))
	}
	return tup
}

func longhex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return hex.EncodeToString(b)
}
