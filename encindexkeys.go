package scarf

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"
)

// indexRow is one row a document contributes to one of its index tables.
// KeyRaw is the full index row key, i.e. tuple(encoded value, primary key).
type indexRow struct {
	Index  string
	KeyRaw []byte
}

type indexRows []indexRow

func (rows indexRows) Len() int      { return len(rows) }
func (rows indexRows) Swap(i, j int) { rows[i], rows[j] = rows[j], rows[i] }
func (rows indexRows) Less(i, j int) bool {
	return compareIndexRows(rows[i].Index, rows[i].KeyRaw, rows[j].Index, rows[j].KeyRaw) < 0
}

func (rows indexRows) sort() {
	sort.Sort(rows)
}

func compareIndexRows(aIndex string, aKey []byte, bIndex string, bKey []byte) int {
	if c := strings.Compare(aIndex, bIndex); c != 0 {
		return c
	}
	return bytes.Compare(aKey, bKey)
}

func appendIndexKeys(buf []byte, rows indexRows) []byte {
	var total = binary.MaxVarintLen32 + len(rows)*(binary.MaxVarintLen32+binary.MaxVarintLen32)
	for _, row := range rows {
		total += len(row.Index) + len(row.KeyRaw)
	}

	w := prealloc(buf, total)
	w.AppendUvarinti(len(rows))
	for _, row := range rows {
		w.AppendVarBytes([]byte(row.Index))
		w.AppendVarBytes(row.KeyRaw)
	}
	return w.Trimmed()
}

func decodeIndexKeys(data []byte, f func(index string, key []byte)) error {
	if len(data) == 0 {
		return nil
	}
	d := makeByteDecoder(data)
	n, err := d.Uvarinti()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		name, err := d.VarBytes()
		if err != nil {
			return err
		}
		key, err := d.VarBytes()
		if err != nil {
			return err
		}
		f(string(name), key)
	}
	if !d.Done() {
		return dataErrf(data, d.Off(), nil, "trailing data after %d index keys", n)
	}
	return nil
}

type indexDiffer struct {
	newRows indexRows
}

func (d *indexDiffer) checkOldKey(oldIndex string, oldKey []byte) bool {
	// Look for a new row that's >= old row.
	for len(d.newRows) > 0 {
		c := compareIndexRows(oldIndex, oldKey, d.newRows[0].Index, d.newRows[0].KeyRaw)
		if c < 0 {
			return false
		} else if c == 0 {
			return true // found exact match
		}
		d.newRows = d.newRows[1:] // shift to next new row and compare again
	}
	return false // no more new rows, so remaining old rows have been deleted
}

// findRemovedIndexKeys reports the rows recorded in oldData that are absent
// from newRows. Both must be sorted.
func findRemovedIndexKeys(oldData []byte, newRows indexRows, removed func(index string, key []byte)) error {
	d := indexDiffer{newRows}
	return decodeIndexKeys(oldData, func(index string, key []byte) {
		if !d.checkOldKey(index, key) {
			removed(index, key)
		}
	})
}
