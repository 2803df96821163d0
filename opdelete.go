package scarf

// Delete removes the document stored under id together with its index rows.
// Returns false if there was no such document.
func (c *Collection[D, K]) Delete(tx *Tx, id K) (bool, error) {
	var handler func(*Change)
	var deleted bool
	var old D
	keyRaw := encodeKey(nil, id)
	err := tx.do("delete", true, func(stx storageTx) error {
		var err error
		old, deleted, err = c.delete(stx, "delete", keyRaw)
		handler = tx.core.changeHandler
		return err
	})
	if err == nil && deleted {
		c.notify(handler, OpDelete, keyRaw, id, &old)
	}
	return deleted, err
}

func (c *Collection[D, K]) delete(stx storageTx, op string, keyRaw []byte) (D, bool, error) {
	var old D
	mainB := stx.Bucket(c.mainTable)
	if mainB == nil {
		if c.db.verbose {
			c.db.logf("db: DELETE.NOOP %s/%s", c.mainTable, keyString[K](keyRaw))
		}
		return old, false, nil
	}
	raw := mainB.Get(keyRaw)
	if raw == nil {
		if c.db.verbose {
			c.db.logf("db: DELETE.NOOP %s/%s", c.mainTable, keyString[K](keyRaw))
		}
		return old, false, nil
	}

	old, vle, err := c.decodeDoc(keyRaw, raw)
	if err != nil {
		return old, false, err
	}
	oldIndex := append([]byte(nil), vle.Index...)

	if err := mainB.Delete(keyRaw); err != nil {
		return old, false, engineErr(op, err)
	}
	if err := c.deleteIndexRows(stx, op, oldIndex, nil); err != nil {
		return old, false, err
	}
	if c.db.verbose {
		c.db.logf("db: DELETE %s/%s", c.mainTable, keyString[K](keyRaw))
	}
	return old, true, nil
}
