package scarf

import (
	"bytes"
	"slices"
)

// Lookup returns the primary keys of the documents whose value for indexKey
// equals v, in primary key order. Values are compared by their encoded
// form, see EncodeIndexValue.
func (c *Collection[D, K]) Lookup(tx *Tx, indexKey string, v any) ([]K, error) {
	var result []K
	err := tx.do("lookup", false, func(stx storageTx) error {
		return c.lookup(stx, indexKey, v, func(pk []byte) (bool, error) {
			id, err := decodeKey[K](pk)
			if err != nil {
				return false, tableErrf(c.IndexTableName(indexKey), "", pk, err, "")
			}
			result = append(result, id)
			return true, nil
		})
	})
	return result, err
}

// LookupExists returns whether any document has value v for indexKey.
func (c *Collection[D, K]) LookupExists(tx *Tx, indexKey string, v any) (bool, error) {
	var found bool
	err := tx.do("lookup", false, func(stx storageTx) error {
		return c.lookup(stx, indexKey, v, func(pk []byte) (bool, error) {
			found = true
			return false, nil
		})
	})
	return found, err
}

// Find returns the documents whose value for indexKey equals v, in
// primary key order.
func (c *Collection[D, K]) Find(tx *Tx, indexKey string, v any) ([]D, error) {
	var result []D
	err := tx.do("find", false, func(stx storageTx) error {
		return c.find(stx, indexKey, v, func(doc D) bool {
			result = append(result, doc)
			return true
		})
	})
	return result, err
}

// FindOne returns the first document, in primary key order, whose value for
// indexKey equals v.
func (c *Collection[D, K]) FindOne(tx *Tx, indexKey string, v any) (D, bool, error) {
	var result D
	var found bool
	err := tx.do("find", false, func(stx storageTx) error {
		return c.find(stx, indexKey, v, func(doc D) bool {
			result, found = doc, true
			return false
		})
	})
	return result, found, err
}

func (c *Collection[D, K]) find(stx storageTx, indexKey string, v any, f func(doc D) bool) error {
	return c.lookup(stx, indexKey, v, func(pk []byte) (bool, error) {
		doc, found, err := c.get(stx, pk)
		if err != nil {
			return false, err
		}
		if !found {
			if c.db.strict {
				return false, tableErrf(c.mainTable, indexKey, pk, nil, "dangling index row")
			}
			c.db.logger.Warn("scarf: dangling index row", "table", c.IndexTableName(indexKey), "key", keyString[K](pk))
			return true, nil
		}
		return f(doc), nil
	})
}

// lookup calls f with the primary key of every index row matching v
// until f returns false.
func (c *Collection[D, K]) lookup(stx storageTx, indexKey string, v any, f func(pk []byte) (bool, error)) error {
	if _, ok := c.indexTables[indexKey]; !ok {
		return tableErrf(c.mainTable, indexKey, nil, nil, "index key not declared by %T", zeroDocument[D]())
	}
	valueRaw, err := EncodeIndexValue(v)
	if err != nil {
		return tableErrf(c.mainTable, indexKey, nil, err, "")
	}

	b := stx.Bucket(c.indexTables[indexKey])
	if b == nil {
		if c.db.verbose {
			c.db.logf("db: LOOKUP.EMPTY %s/%s", c.IndexTableName(indexKey), IndexKeyString(valueRaw))
		}
		return nil
	}

	// Row keys end with the tuple lengths, so rows whose primary keys are
	// prefixes of one another don't come out in primary key order.
	var pks [][]byte
	cur := b.Cursor()
	for k, _ := cur.Seek(valueRaw); k != nil && bytes.HasPrefix(k, valueRaw); k, _ = cur.Next() {
		rowValue, pk, err := decodeIndexRowKey(k)
		if err != nil {
			return tableErrf(c.mainTable, indexKey, k, err, "")
		}
		if bytes.Equal(rowValue, valueRaw) {
			pks = append(pks, pk)
		}
	}
	slices.SortFunc(pks, bytes.Compare)

	for _, pk := range pks {
		more, err := f(pk)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	if c.db.verbose {
		c.db.logf("db: LOOKUP %s/%s => %d rows", c.IndexTableName(indexKey), IndexKeyString(valueRaw), len(pks))
	}
	return nil
}
