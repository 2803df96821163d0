package scarf

import (
	"errors"
)

// Scan calls f for every document in primary key order. Returning Break
// from f stops the scan without an error; any other error stops it and is
// returned.
//
// The transaction is locked while scanning, so f must not use tx. Collect
// what you need and act on it after Scan returns.
func (c *Collection[D, K]) Scan(tx *Tx, f func(doc D) error) error {
	err := tx.do("scan", false, func(stx storageTx) error {
		return c.scan(stx, func(keyRaw, raw []byte) error {
			doc, _, err := c.decodeDoc(keyRaw, raw)
			if err != nil {
				return err
			}
			return f(doc)
		})
	})
	if errors.Is(err, Break) {
		return nil
	}
	return err
}

// All returns all documents in primary key order.
func (c *Collection[D, K]) All(tx *Tx) ([]D, error) {
	var result []D
	err := c.Scan(tx, func(doc D) error {
		result = append(result, doc)
		return nil
	})
	return result, err
}

// Keys returns the primary keys of all documents in ascending order.
func (c *Collection[D, K]) Keys(tx *Tx) ([]K, error) {
	var result []K
	err := tx.do("keys", false, func(stx storageTx) error {
		return c.scan(stx, func(keyRaw, raw []byte) error {
			id, err := decodeKey[K](keyRaw)
			if err != nil {
				return tableErrf(c.mainTable, "", keyRaw, err, "")
			}
			result = append(result, id)
			return nil
		})
	})
	return result, err
}

func (c *Collection[D, K]) Count(tx *Tx) (int, error) {
	var n int
	err := tx.do("count", false, func(stx storageTx) error {
		if b := stx.Bucket(c.mainTable); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

func (c *Collection[D, K]) scan(stx storageTx, f func(keyRaw, raw []byte) error) error {
	b := stx.Bucket(c.mainTable)
	if b == nil {
		return nil
	}
	cur := b.Cursor()
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		if err := f(k, v); err != nil {
			return err
		}
	}
	return nil
}
