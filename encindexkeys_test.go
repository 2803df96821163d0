package scarf

import (
	"fmt"
	"strings"
	"testing"
)

func TestIndexDiffing(t *testing.T) {
	tests := []struct {
		old     string
		new     string
		removed string
	}{
		{"", "", ""},
		{"", "email:a", ""},
		{"email:a", "", "email:a"},
		{"email:abc", "", "email:abc"},
		{"email:a email:b", "email:a", "email:b"},
		{"email:a email:b", "email:b", "email:a"},
		{"email:a email:b", "email:a email:b", ""},
		{"age:a email:a email:b", "", "age:a email:a email:b"},
		{"age:a email:a email:b", "age:a", "email:a email:b"},
		{"age:a email:a email:b", "email:a", "age:a email:b"},
		{"age:a email:a email:b", "email:b", "age:a email:a"},
		{"age:a email:a email:b", "age:a email:a", "email:b"},
		{"age:a email:a email:b", "email:a email:b", "age:a"},
		{"age:a email:a email:b", "age:a email:b", "email:a"},
		{"age:a email:a email:b", "age:a email:a email:b", ""},
		{"age:b", "age:a age:c", "age:b"},
	}
	for _, tt := range tests {
		oldKeys := parseIndexKeys(tt.old)
		newKeys := parseIndexKeys(tt.new)
		oldKeysData := appendIndexKeys(nil, oldKeys)
		var removedKeys []string
		err := findRemovedIndexKeys(oldKeysData, newKeys, func(index string, key []byte) {
			removedKeys = append(removedKeys, fmt.Sprintf("%s:%s", index, key))
		})
		if err != nil {
			t.Errorf("** Removed(%s => %s) failed: %v", tt.old, tt.new, err)
			continue
		}
		actual := strings.Join(removedKeys, " ")
		if actual != tt.removed {
			t.Errorf("** Removed(%s => %s) == %q, expected %q", tt.old, tt.new, actual, tt.removed)
		}
	}
}

func TestIndexRows_Sort(t *testing.T) {
	rows := parseIndexKeys("email:b age:z email:a")
	rows.sort()
	var names []string
	for _, row := range rows {
		names = append(names, fmt.Sprintf("%s:%s", row.Index, row.KeyRaw))
	}
	if a, e := strings.Join(names, " "), "age:z email:a email:b"; a != e {
		t.Errorf("sorted rows = %q, wanted %q", a, e)
	}
}

func TestDecodeIndexKeys_Corrupt(t *testing.T) {
	data := appendIndexKeys(nil, parseIndexKeys("email:a"))
	err := decodeIndexKeys(data[:len(data)-1], func(string, []byte) {})
	if err == nil {
		t.Errorf("decodeIndexKeys(truncated) err = nil, wanted error")
	}
	err = decodeIndexKeys(append(data, 0), func(string, []byte) {})
	if err == nil {
		t.Errorf("decodeIndexKeys(trailing) err = nil, wanted error")
	}
}

func parseIndexKeys(s string) indexRows {
	cc := strings.Fields(s)
	rows := make(indexRows, len(cc))
	for i, c := range cc {
		name, keyStr, ok := strings.Cut(c, ":")
		if !ok {
			panic("invalid entry: " + c)
		}
		rows[i] = indexRow{Index: name, KeyRaw: []byte(keyStr)}
	}
	return rows
}
