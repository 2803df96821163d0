package scarf

import (
	"bytes"
)

var emptyIndexValue = []byte{}

// Put stores doc under doc.ID(), replacing any previous version, and updates
// its index rows. The main row and all index rows are written in tx, so they
// become visible together on Commit.
func (c *Collection[D, K]) Put(tx *Tx, doc D) error {
	var handler func(*Change)
	var changed bool
	var keyRaw []byte
	err := tx.do("put", true, func(stx storageTx) error {
		var err error
		keyRaw, changed, err = c.put(stx, doc)
		handler = tx.core.changeHandler
		return err
	})
	if err == nil && changed {
		c.notify(handler, OpPut, keyRaw, doc.ID(), &doc)
	}
	return err
}

func (c *Collection[D, K]) put(stx storageTx, doc D) ([]byte, bool, error) {
	id := doc.ID()
	keyRaw := encodeKey(nil, id)

	rows, err := c.indexRowsOf(doc, keyRaw)
	if err != nil {
		return nil, false, err
	}
	body, err := encodeBody(nil, doc)
	if err != nil {
		return nil, false, tableErrf(c.mainTable, "", keyRaw, err, "")
	}

	mainB, err := stx.CreateBucket(c.mainTable)
	if err != nil {
		return nil, false, engineErr("put", err)
	}

	var old value
	oldRaw := mainB.Get(keyRaw)
	if oldRaw != nil {
		err := old.decode(oldRaw)
		if err != nil {
			return nil, false, tableErrf(c.mainTable, "", keyRaw, err, "decoding old value")
		}
	}

	sd := prepareData(body, c.db.compressThreshold)
	index := appendIndexKeys(nil, rows)

	isDataUnchanged := oldRaw != nil && old.sameData(&sd)
	isIndexKeySetUnchanged := oldRaw != nil && bytes.Equal(index, old.Index)
	newModCount := old.ModCount
	if isDataUnchanged && isIndexKeySetUnchanged {
		if c.db.verbose {
			c.db.logf("db: PUT.NOOP %s/%s => m=%d %s", c.mainTable, keyString[K](keyRaw), newModCount, loggableDoc(doc))
		}
		return keyRaw, false, nil
	}
	if !isDataUnchanged {
		newModCount++
	}
	valueRaw := sd.value(newModCount, index)

	// old.Index points into storage memory which Put may invalidate
	oldIndex := bytes.Clone(old.Index)

	if err := mainB.Put(keyRaw, valueRaw); err != nil {
		return nil, false, engineErr("put", err)
	}
	if c.db.verbose {
		c.db.logf("db: PUT %s/%s => m=%d %s", c.mainTable, keyString[K](keyRaw), newModCount, loggableDoc(doc))
	}

	if oldRaw != nil && !isIndexKeySetUnchanged {
		err := c.deleteIndexRows(stx, "put", oldIndex, rows)
		if err != nil {
			return nil, false, err
		}
	}
	err = c.putIndexRows(stx, "put", rows)
	if err != nil {
		return nil, false, err
	}
	return keyRaw, true, nil
}

func (c *Collection[D, K]) putIndexRows(stx storageTx, op string, rows indexRows) error {
	var name string
	var b storageBucket
	for _, row := range rows {
		if b == nil || row.Index != name {
			var err error
			name = row.Index
			b, err = stx.CreateBucket(c.IndexTableName(name))
			if err != nil {
				return engineErr(op, err)
			}
		}
		if err := b.Put(row.KeyRaw, emptyIndexValue); err != nil {
			return engineErr(op, err)
		}
	}
	return nil
}

// deleteIndexRows deletes the index rows recorded in oldIndex that are not
// among keep. Index tables that no longer exist are skipped.
func (c *Collection[D, K]) deleteIndexRows(stx storageTx, op string, oldIndex []byte, keep indexRows) error {
	var name string
	var b storageBucket
	var deleteErr error
	err := findRemovedIndexKeys(oldIndex, keep, func(index string, key []byte) {
		if deleteErr != nil {
			return
		}
		if b == nil || index != name {
			name = index
			b = stx.Bucket(c.IndexTableName(index))
		}
		if b != nil {
			if err := b.Delete(key); err != nil {
				deleteErr = engineErr(op, err)
			}
		}
	})
	if err != nil {
		return tableErrf(c.mainTable, "", nil, err, "decoding index keys")
	}
	return deleteErr
}
