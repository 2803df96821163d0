package scarf

import (
	"encoding/json"
)

type CollectionStats struct {
	Rows      int
	IndexRows int

	DataSize   int64
	DataAlloc  int64
	IndexSize  int64
	IndexAlloc int64
}

func (cs *CollectionStats) TotalSize() int64 {
	return cs.DataSize + cs.IndexSize
}

func (cs *CollectionStats) TotalAlloc() int64 {
	return cs.DataAlloc + cs.IndexAlloc
}

// Stats reports row counts and space usage of the collection's tables. The
// in-memory engine only reports row counts and sizes.
func (c *Collection[D, K]) Stats(tx *Tx) (CollectionStats, error) {
	var result CollectionStats
	err := tx.do("stats", false, func(stx storageTx) error {
		result = c.stats(stx)
		return nil
	})
	return result, err
}

func (c *Collection[D, K]) stats(stx storageTx) CollectionStats {
	var result CollectionStats
	if b := stx.Bucket(c.mainTable); b != nil {
		bs := b.Stats()
		result.Rows = bs.KeyN
		result.DataSize = bs.LeafInuse
		result.DataAlloc = bs.TotalAlloc()
	}
	for _, name := range c.indexTableNamesIn(stx) {
		bs := stx.Bucket(name).Stats()
		result.IndexRows += bs.KeyN
		result.IndexSize += bs.LeafInuse
		result.IndexAlloc += bs.TotalAlloc()
	}
	return result
}

func loggableDoc(doc any) string {
	if doc == nil {
		return "<none>"
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "<unloggable: " + err.Error() + ">"
	}
	return string(raw)
}
