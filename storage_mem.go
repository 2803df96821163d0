package scarf

import (
	"bytes"
	"maps"
	"slices"
	"sort"
	"sync"

	"go.etcd.io/bbolt"
)

// memStorage is a volatile storage engine with the same isolation guarantees
// as Bolt: readers see the state as of their BeginTx, and a single writer at
// a time works on a private copy that replaces the committed state on Commit.
//
// Committed tables are never mutated. Writers copy a table the first time
// they modify it.
type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

func newMemStorage() storage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, bbolt.ErrDatabaseNotOpen
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, bbolt.ErrDatabaseNotOpen
		}
		s.writer = true
	}

	tx := &memTx{
		base:     s,
		writable: writable,
	}
	if writable {
		tx.buckets = maps.Clone(s.buckets)
		tx.owned = make(map[*memBucket]bool)
	} else {
		tx.buckets = s.buckets
	}
	return tx, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	s.cond.Broadcast()
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	owned    map[*memBucket]bool
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

// bucketForWrite returns a private copy of the named table, copying the
// committed one on first use.
func (tx *memTx) bucketForWrite(name string) *memBucket {
	b := tx.buckets[name]
	if b == nil || tx.owned[b] {
		return b
	}
	b = b.clone()
	tx.buckets[name] = b
	tx.owned[b] = true
	return b
}

func (tx *memTx) Bucket(name string) storageBucket {
	if tx.closed {
		panic("tx is closed")
	}
	b := tx.buckets[name]
	if b == nil {
		return nil
	}
	return &memBucketHandle{tx: tx, name: name, b: b}
}

func (tx *memTx) CreateBucket(name string) (storageBucket, error) {
	if tx.closed {
		return nil, bbolt.ErrTxClosed
	}
	if !tx.writable {
		return nil, bbolt.ErrTxNotWritable
	}
	if name == "" {
		return nil, bbolt.ErrBucketNameRequired
	}
	b := tx.bucketForWrite(name)
	if b == nil {
		b = &memBucket{}
		tx.buckets[name] = b
		tx.owned[b] = true
	}
	return &memBucketHandle{tx: tx, name: name, b: b}, nil
}

func (tx *memTx) DeleteBucket(name string) error {
	if tx.closed {
		return bbolt.ErrTxClosed
	}
	if !tx.writable {
		return bbolt.ErrTxNotWritable
	}
	if tx.buckets[name] == nil {
		return bbolt.ErrBucketNotFound
	}
	delete(tx.buckets, name)
	return nil
}

func (tx *memTx) BucketNames() []string {
	if tx.closed {
		panic("tx is closed")
	}
	names := make([]string, 0, len(tx.buckets))
	for name := range tx.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return bbolt.ErrTxClosed
	}
	if !tx.writable {
		return bbolt.ErrTxNotWritable
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return bbolt.ErrDatabaseNotOpen
	}
	tx.base.buckets = tx.buckets
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

func (tx *memTx) Size() int64 {
	var size int64
	for name, b := range tx.buckets {
		size += int64(len(name)) + b.inuse()
	}
	return size
}

type memBucket struct {
	items []memKV // sorted by key
}

// clone copies the item list. Keys and values are shared: they are never
// modified in place, only replaced.
func (b *memBucket) clone() *memBucket {
	return &memBucket{items: slices.Clone(b.items)}
}

func (b *memBucket) inuse() int64 {
	var n int64
	for _, kv := range b.items {
		n += int64(len(kv.key) + len(kv.value))
	}
	return n
}

type memKV struct {
	key   []byte
	value []byte
}

// memBucketHandle reads the table as the tx currently sees it and copies it
// on the first write.
type memBucketHandle struct {
	tx   *memTx
	name string
	b    *memBucket
}

func (h *memBucketHandle) current() *memBucket {
	if b := h.tx.buckets[h.name]; b != nil {
		h.b = b
	}
	return h.b
}

func (h *memBucketHandle) Get(key []byte) []byte {
	b := h.current()
	i, ok := b.find(key)
	if !ok {
		return nil
	}
	return b.items[i].value
}

func (h *memBucketHandle) Put(key, value []byte) error {
	if h.tx.closed {
		return bbolt.ErrTxClosed
	}
	if !h.tx.writable {
		return bbolt.ErrTxNotWritable
	}
	if len(key) == 0 {
		return bbolt.ErrKeyRequired
	}
	b := h.tx.bucketForWrite(h.name)
	if b == nil {
		return bbolt.ErrBucketNotFound
	}
	h.b = b
	key = bytes.Clone(key)
	value = bytes.Clone(value)
	if value == nil {
		value = []byte{}
	}

	i, ok := b.find(key)
	if ok {
		b.items[i].value = value
		return nil
	}
	b.items = slices.Insert(b.items, i, memKV{key: key, value: value})
	return nil
}

func (h *memBucketHandle) Delete(key []byte) error {
	if h.tx.closed {
		return bbolt.ErrTxClosed
	}
	if !h.tx.writable {
		return bbolt.ErrTxNotWritable
	}
	i, ok := h.current().find(key)
	if !ok {
		return nil
	}
	b := h.tx.bucketForWrite(h.name)
	if b == nil {
		return bbolt.ErrBucketNotFound
	}
	h.b = b
	b.items = slices.Delete(b.items, i, i+1)
	return nil
}

func (h *memBucketHandle) Cursor() storageCursor {
	return &memCursor{b: h.current(), pos: -1}
}

func (h *memBucketHandle) Stats() bucketStats {
	b := h.current()
	inuse := b.inuse()
	return bucketStats{
		KeyN:      len(b.items),
		LeafInuse: inuse,
		LeafAlloc: inuse,
	}
}

func (b *memBucket) find(key []byte) (idx int, ok bool) {
	items := b.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

type memCursor struct {
	b   *memBucket
	pos int
}

func (c *memCursor) at() ([]byte, []byte) {
	if c.pos < 0 || c.pos >= len(c.b.items) {
		return nil, nil
	}
	kv := c.b.items[c.pos]
	return kv.key, kv.value
}

func (c *memCursor) First() ([]byte, []byte) {
	c.pos = 0
	return c.at()
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	items := c.b.items
	c.pos = sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, seek) >= 0
	})
	return c.at()
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	if c.pos < len(c.b.items) {
		c.pos++
	}
	return c.at()
}
