package scarf

// Get returns the document stored under id. The boolean is false if there is
// no such document, including when the collection has never been written to.
func (c *Collection[D, K]) Get(tx *Tx, id K) (D, bool, error) {
	var doc D
	var found bool
	err := tx.do("get", false, func(stx storageTx) error {
		var err error
		doc, found, err = c.get(stx, encodeKey(nil, id))
		return err
	})
	return doc, found, err
}

// GetMeta returns storage metadata of the document stored under id without
// decoding its body.
func (c *Collection[D, K]) GetMeta(tx *Tx, id K) (ValueMeta, bool, error) {
	var meta ValueMeta
	var found bool
	err := tx.do("get", false, func(stx storageTx) error {
		keyRaw := encodeKey(nil, id)
		raw := c.getRaw(stx, keyRaw)
		if raw == nil {
			return nil
		}
		var vle value
		if err := vle.decode(raw); err != nil {
			return tableErrf(c.mainTable, "", keyRaw, err, "")
		}
		meta, found = vle.meta(), true
		return nil
	})
	return meta, found, err
}

func (c *Collection[D, K]) Exists(tx *Tx, id K) (bool, error) {
	var found bool
	err := tx.do("exists", false, func(stx storageTx) error {
		keyRaw := encodeKey(keyBytesPool.Get().([]byte), id)
		defer releaseKeyBytes(keyRaw)
		found = c.getRaw(stx, keyRaw) != nil
		if c.db.verbose {
			c.db.logf("db: EXISTS.%s %s/%s", map[bool]string{false: "NO", true: "YES"}[found], c.mainTable, keyString[K](keyRaw))
		}
		return nil
	})
	return found, err
}

func (c *Collection[D, K]) get(stx storageTx, keyRaw []byte) (D, bool, error) {
	raw := c.getRaw(stx, keyRaw)
	if raw == nil {
		if c.db.verbose {
			c.db.logf("db: GET.NOTFOUND %s/%s", c.mainTable, keyString[K](keyRaw))
		}
		var zero D
		return zero, false, nil
	}
	doc, _, err := c.decodeDoc(keyRaw, raw)
	if err != nil {
		return doc, false, err
	}
	if c.db.verbose {
		c.db.logf("db: GET %s/%s => %s", c.mainTable, keyString[K](keyRaw), loggableDoc(doc))
	}
	return doc, true, nil
}

func (c *Collection[D, K]) getRaw(stx storageTx, keyRaw []byte) []byte {
	b := stx.Bucket(c.mainTable)
	if b == nil {
		return nil
	}
	return b.Get(keyRaw)
}
