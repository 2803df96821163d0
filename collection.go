package scarf

import (
	"fmt"
	"slices"
	"strings"
)

const (
	collectionTablePrefix = "collections/"
	indexTableInfix       = "/index/"
)

// MainTableName returns the name of the table holding the documents of the
// named collection.
func MainTableName(collection string) string {
	return collectionTablePrefix + collection
}

// IndexTableName returns the name of the table holding the index rows of
// the given index key of the named collection.
func IndexTableName(collection, indexKey string) string {
	return collectionTablePrefix + collection + indexTableInfix + indexKey
}

func indexTablePrefix(collection string) string {
	return collectionTablePrefix + collection + indexTableInfix
}

// Collection is a typed view of the documents stored under one name. It holds
// no transaction; every operation takes one. Tables are created on the first
// write, and reading a collection that was never written to behaves as
// reading an empty one.
type Collection[D Document[K], K Key] struct {
	db          *DB
	name        string
	mainTable   string
	indexKeys   []string
	indexTables map[string]string
}

// CollectionOf returns the collection of D documents named name. It does not
// touch the storage.
//
// Panics if D declares the same index key twice.
func CollectionOf[D Document[K], K Key](db *DB, name string) *Collection[D, K] {
	keys := slices.Clone(zeroDocument[D]().IndexKeys())
	c := &Collection[D, K]{
		db:          db,
		name:        name,
		mainTable:   MainTableName(name),
		indexKeys:   keys,
		indexTables: make(map[string]string, len(keys)),
	}
	for _, k := range keys {
		if _, dup := c.indexTables[k]; dup {
			panic(fmt.Errorf("%T declares index key %q twice", zeroDocument[D](), k))
		}
		c.indexTables[k] = IndexTableName(name, k)
	}
	return c
}

func (c *Collection[D, K]) Name() string {
	return c.name
}

func (c *Collection[D, K]) DB() *DB {
	return c.db
}

func (c *Collection[D, K]) MainTableName() string {
	return c.mainTable
}

// IndexTableName returns the table name for the given index key. The key
// doesn't have to be declared by D.
func (c *Collection[D, K]) IndexTableName(indexKey string) string {
	if t, ok := c.indexTables[indexKey]; ok {
		return t
	}
	return IndexTableName(c.name, indexKey)
}

// IndexTableNames returns the index table names in the order D declares the
// index keys.
func (c *Collection[D, K]) IndexTableNames() []string {
	names := make([]string, len(c.indexKeys))
	for i, k := range c.indexKeys {
		names[i] = c.indexTables[k]
	}
	return names
}

func (c *Collection[D, K]) IndexKeys() []string {
	return slices.Clone(c.indexKeys)
}

func (c *Collection[D, K]) String() string {
	return c.name
}

// indexTableNamesIn returns all existing index tables of this collection,
// including ones for index keys D no longer declares.
func (c *Collection[D, K]) indexTableNamesIn(stx storageTx) []string {
	prefix := indexTablePrefix(c.name)
	var result []string
	for _, name := range stx.BucketNames() {
		if strings.HasPrefix(name, prefix) {
			result = append(result, name)
		}
	}
	return result
}

func (c *Collection[D, K]) indexRowsOf(doc D, keyRaw []byte) (indexRows, error) {
	values := doc.IndexValues()
	rows := make(indexRows, 0, len(values))
	for name, v := range values {
		if _, ok := c.indexTables[name]; !ok {
			return nil, tableErrf(c.mainTable, name, keyRaw, nil, "index key not declared by %T", doc)
		}
		enc, err := EncodeIndexValue(v)
		if err != nil {
			return nil, tableErrf(c.mainTable, name, keyRaw, err, "")
		}
		rows = append(rows, indexRow{Index: name, KeyRaw: encodeIndexRowKey(nil, enc, keyRaw)})
	}
	rows.sort()
	return rows, nil
}

// decodeDoc decodes a stored main table value.
func (c *Collection[D, K]) decodeDoc(keyRaw, raw []byte) (D, *value, error) {
	var doc D
	vle := new(value)
	err := vle.decode(raw)
	if err != nil {
		return doc, nil, tableErrf(c.mainTable, "", keyRaw, err, "")
	}
	body, err := vle.body()
	if err != nil {
		return doc, nil, tableErrf(c.mainTable, "", keyRaw, err, "")
	}
	err = decodeBody(body, &doc)
	if err != nil {
		return doc, nil, tableErrf(c.mainTable, "", keyRaw, err, "")
	}
	return doc, vle, nil
}

func (c *Collection[D, K]) notify(handler func(*Change), op Op, keyRaw []byte, id K, doc *D) {
	if handler == nil {
		return
	}
	chg := &Change{
		collection: c.name,
		op:         op,
		rawKey:     keyRaw,
		key:        id,
	}
	if doc != nil {
		chg.doc = *doc
	}
	handler(chg)
}
