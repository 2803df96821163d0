package scarf

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpTableHeaders = DumpFlags(1 << iota)
	DumpRows
	DumpStats
	DumpIndices
	DumpIndexRows

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the collection's tables in a human-readable form. Index rows
// show the text form of the index value (see IndexKeyString), the decoded
// value and the primary key.
func (c *Collection[D, K]) Dump(tx *Tx, f DumpFlags) (string, error) {
	var buf strings.Builder
	err := tx.do("dump", false, func(stx storageTx) error {
		c.dump(&buf, stx, f)
		return nil
	})
	return buf.String(), err
}

func (c *Collection[D, K]) dump(w *strings.Builder, stx storageTx, f DumpFlags) {
	prefix := c.mainTable
	s := c.stats(stx)

	if f.Contains(DumpTableHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d rows)\n", prefix, s.Rows)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: index_rows = %d, data_size = %d, data_alloc = %d, index_size = %d, index_alloc = %d, total_alloc = %d\n", prefix, s.IndexRows, s.DataSize, s.DataAlloc, s.IndexSize, s.IndexAlloc, s.TotalAlloc())
	}

	if f.Contains(DumpRows) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		var rowPos int
		_ = c.scan(stx, func(k, v []byte) error {
			rowPos++
			c.dumpRow(w, prefix, rowPos, k, v)
			return nil
		})
	}

	if f.Contains(DumpIndices) {
		for _, name := range c.indexTableNamesIn(stx) {
			c.dumpIndex(w, f, stx, name)
		}
	}
}

func (c *Collection[D, K]) dumpIndex(w *strings.Builder, f DumpFlags, stx storageTx, name string) {
	fmt.Fprintln(w, dumpSep2)
	b := stx.Bucket(name)
	fmt.Fprintf(w, "%s (%d rows)\n", name, b.Stats().KeyN)

	if f.Contains(DumpIndexRows) {
		cur := b.Cursor()
		var rowPos int
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			rowPos++
			c.dumpIndexRow(w, name, rowPos, k)
		}
	}
}

func (c *Collection[D, K]) dumpRow(w *strings.Builder, prefix string, rowPos int, k, v []byte) {
	doc, vle, err := c.decodeDoc(k, v)
	if err != nil {
		fmt.Fprintf(w, "%s.%d = %s ** ERROR: %v\n", prefix, rowPos, hexstr(k), err)
		return
	}
	m := vle.meta()
	var z string
	if m.Compressed {
		z = " z"
	}
	fmt.Fprintf(w, "%s.%d = (m%d%s) %s => %s\n", prefix, rowPos, m.ModCount, z, keyString[K](k), loggableDoc(doc))
}

func (c *Collection[D, K]) dumpIndexRow(w *strings.Builder, prefix string, rowPos int, k []byte) {
	valueRaw, pk, err := decodeIndexRowKey(k)
	if err != nil {
		fmt.Fprintf(w, "%s.%d: %s ** ERROR: %v\n", prefix, rowPos, hexstr(k), err)
		return
	}
	fmt.Fprintf(w, "%s.%d: %s (%s) => %s\n", prefix, rowPos, IndexKeyString(valueRaw), describeIndexValue(valueRaw), keyString[K](pk))
}
