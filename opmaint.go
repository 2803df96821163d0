package scarf

import (
	"bytes"
	"time"
)

// TableExists returns whether the collection's main table has been created.
func (c *Collection[D, K]) TableExists(tx *Tx) (bool, error) {
	var found bool
	err := tx.do("table exists", false, func(stx storageTx) error {
		found = stx.Bucket(c.mainTable) != nil
		return nil
	})
	return found, err
}

// Drop deletes the collection's main table and all of its index tables.
// Returns an ErrUnknownTable error if the collection has no main table.
func (c *Collection[D, K]) Drop(tx *Tx) error {
	return tx.do("drop", true, func(stx storageTx) error {
		indexTables := c.indexTableNamesIn(stx)
		if err := dropTable(c.db, stx, "drop", c.mainTable); err != nil {
			return err
		}
		for _, name := range indexTables {
			if err := dropTable(c.db, stx, "drop", name); err != nil {
				return err
			}
		}
		return nil
	})
}

type reindexedRow struct {
	keyRaw   []byte
	valueRaw []byte
	rows     indexRows
}

// Reindex rebuilds all index tables of the collection from the documents in
// the main table. Index tables of keys D no longer declares are dropped.
func (c *Collection[D, K]) Reindex(tx *Tx) error {
	return tx.do("reindex", true, func(stx storageTx) error {
		return c.reindex(stx)
	})
}

func (c *Collection[D, K]) reindex(stx storageTx) error {
	start := time.Now()
	for _, name := range c.indexTableNamesIn(stx) {
		if err := stx.DeleteBucket(name); err != nil {
			return engineErr("reindex", err)
		}
	}

	// Collect first, as tables must not be modified while iterating.
	var pending []reindexedRow
	var docs, indexRowCount int
	err := c.scan(stx, func(keyRaw, raw []byte) error {
		doc, vle, err := c.decodeDoc(keyRaw, raw)
		if err != nil {
			return err
		}
		rows, err := c.indexRowsOf(doc, keyRaw)
		if err != nil {
			return err
		}
		docs++
		indexRowCount += len(rows)

		r := reindexedRow{keyRaw: bytes.Clone(keyRaw), rows: rows}
		index := appendIndexKeys(nil, rows)
		if !bytes.Equal(index, vle.Index) {
			sd := storedData{flags: vle.Flags, data: vle.Data, rawSize: int(vle.RawSize), checksum: vle.Checksum}
			r.valueRaw = sd.value(vle.ModCount, index)
		}
		pending = append(pending, r)
		return nil
	})
	if err != nil {
		return err
	}

	var rewritten int
	mainB := stx.Bucket(c.mainTable)
	for _, r := range pending {
		if r.valueRaw != nil {
			if err := mainB.Put(r.keyRaw, r.valueRaw); err != nil {
				return engineErr("reindex", err)
			}
			rewritten++
		}
		if err := c.putIndexRows(stx, "reindex", r.rows); err != nil {
			return err
		}
	}

	c.db.logger.Info("scarf: reindexed collection", "collection", c.name, "docs", docs, "index_rows", indexRowCount, "rewritten", rewritten, "elapsed", time.Since(start))
	return nil
}
