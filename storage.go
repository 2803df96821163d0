package scarf

// storage is the ordered key-value engine underneath a DB. Tables are flat
// and addressed by name; collections map onto them by naming convention.
//
// Both backends report failures using bbolt's error values (ErrTxClosed,
// ErrTxNotWritable, ErrBucketNotFound, ErrDatabaseNotOpen), so callers can
// match them the same way regardless of the backend.
type storage interface {
	// BeginTx starts a new transaction. At most one writable transaction
	// exists at a time; BeginTx(true) blocks until the previous one finishes.
	BeginTx(writable bool) (storageTx, error)
	// Close closes the storage.
	Close() error
}

// storageTx represents a storage transaction. Not safe for concurrent use.
type storageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Bucket returns the named table, or nil if it doesn't exist.
	Bucket(name string) storageBucket

	// CreateBucket returns the named table, creating it if needed.
	CreateBucket(name string) (storageBucket, error)

	// DeleteBucket deletes the named table and all of its rows. Returns
	// bbolt.ErrBucketNotFound if it doesn't exist.
	DeleteBucket(name string) error

	// BucketNames returns the names of all tables in ascending order.
	BucketNames() []string

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple times.
	Rollback() error

	// Size returns the database size in bytes as seen by this transaction.
	Size() int64
}

// storageBucket represents a table (sorted key-value collection).
type storageBucket interface {
	// Get retrieves a value by key. Returns nil if not found.
	Get(key []byte) []byte

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key.
	Delete(key []byte) error

	// Cursor returns a cursor for iteration.
	Cursor() storageCursor

	// Stats returns storage-specific bucket statistics.
	// Backends that don't track allocation sizes may return zero values except KeyN.
	Stats() bucketStats
}

type bucketStats struct {
	KeyN        int
	LeafInuse   int64
	LeafAlloc   int64
	BranchAlloc int64
}

func (s bucketStats) TotalAlloc() int64 { return s.BranchAlloc + s.LeafAlloc }

// storageCursor iterates over a sorted table. Keys and values returned are
// only valid for the life of the transaction, and the table must not be
// modified while iterating.
type storageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)
}
