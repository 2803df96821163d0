package scarf

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

const trackTxns = true

// LocationKind tells where a database keeps its state.
type LocationKind int

const (
	InMemory LocationKind = iota
	Filesystem
)

func (k LocationKind) String() string {
	switch k {
	case InMemory:
		return "memory"
	case Filesystem:
		return "filesystem"
	default:
		return fmt.Sprintf("invalid location kind %d", int(k))
	}
}

// Location identifies where durable state lives. Path is only set for
// Filesystem locations.
type Location struct {
	Kind LocationKind `json:"kind" msgpack:"kind"`
	Path string       `json:"path,omitempty" msgpack:"path,omitempty"`
}

// Memory is the location of a volatile in-memory database.
func Memory() Location {
	return Location{Kind: InMemory}
}

// File is the location of a database stored in a single file at path.
func File(path string) Location {
	return Location{Kind: Filesystem, Path: path}
}

func (loc Location) IsInMemory() bool {
	return loc.Kind == InMemory
}

func (loc Location) String() string {
	if loc.Kind == Filesystem {
		return loc.Path
	}
	return ":memory:"
}

type DB struct {
	mu       sync.RWMutex
	store    storage
	bdb      *bbolt.DB
	location Location

	logf              func(format string, args ...any)
	logger            *slog.Logger
	verbose           bool
	strict            bool
	compressThreshold int

	lastSize    atomic.Int64
	ReaderCount atomic.Int64
	WriterCount atomic.Int64
	ReadCount   atomic.Uint64
	WriteCount  atomic.Uint64

	txns     []*txCore
	txnsLock sync.Mutex
}

type Options struct {
	// Logf receives verbose per-operation traces when Verbose is set.
	Logf    func(format string, args ...any)
	Verbose bool

	// Logger receives lifecycle events (open, close, drops, reindexing).
	// Defaults to slog.Default().
	Logger *slog.Logger

	// IsTesting trades durability for speed and makes dangling index rows
	// an error instead of a log line.
	IsTesting bool

	MmapSize int

	// Timeout bounds waiting for the file lock held by another process.
	// Defaults to 10 seconds.
	Timeout time.Duration

	// CompressThreshold is the body size starting from which documents are
	// stored LZ4-compressed. Zero means the default (4 KiB); negative
	// disables compression.
	CompressThreshold int
}

// Open creates or opens a database file at path.
func Open(path string, opt Options) (*DB, error) {
	return OpenLocation(File(path), opt)
}

// OpenInMemory creates a volatile database.
func OpenInMemory(opt Options) (*DB, error) {
	return OpenLocation(Memory(), opt)
}

func OpenLocation(loc Location, opt Options) (*DB, error) {
	db := &DB{
		location:          loc,
		logf:              opt.Logf,
		logger:            opt.Logger,
		verbose:           opt.Verbose,
		strict:            opt.IsTesting,
		compressThreshold: opt.CompressThreshold,
	}
	if db.logf == nil {
		db.logf = func(format string, args ...any) {}
	}
	if db.logger == nil {
		db.logger = slog.Default()
	}
	if db.compressThreshold == 0 {
		db.compressThreshold = defaultCompressThreshold
	}

	switch loc.Kind {
	case InMemory:
		db.store = newMemStorage()
	case Filesystem:
		bopt := &bbolt.Options{}
		*bopt = *bbolt.DefaultOptions
		bopt.Timeout = 10 * time.Second
		if opt.Timeout != 0 {
			bopt.Timeout = opt.Timeout
		}
		if opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
			bopt.InitialMmapSize = 1024 * 1024 * 5
		} else {
			bopt.InitialMmapSize = 1024 * 1024 * 1024
			bopt.FreelistType = bbolt.FreelistMapType
		}
		if opt.MmapSize != 0 {
			bopt.InitialMmapSize = opt.MmapSize
		}

		bdb, err := bbolt.Open(loc.Path, 0666, bopt)
		if err != nil {
			return nil, engineErr("open", err)
		}
		db.bdb = bdb
		db.store = newBoltStorage(bdb)
	default:
		panic(fmt.Errorf("invalid location %v", loc.Kind))
	}

	db.logger.Debug("scarf: opened database", "location", loc.String())
	return db, nil
}

func (db *DB) Location() Location {
	return db.location
}

// Bolt returns the underlying Bolt database, or nil for in-memory databases.
func (db *DB) Bolt() *bbolt.DB {
	return db.bdb
}

// Size returns the database size observed by the most recently finished
// transaction.
func (db *DB) Size() int64 {
	return db.lastSize.Load()
}

// Close closes the underlying storage. For file databases, it waits for
// open transactions to finish.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	err := db.store.Close()
	if err != nil {
		return engineErr("close", err)
	}
	db.logger.Debug("scarf: closed database", "location", db.location.String())
	return nil
}

// Reader begins a read-only transaction over a snapshot of the committed
// state.
func (db *DB) Reader() (*Tx, error) {
	return db.begin(false)
}

// Writer begins a read-write transaction, blocking until any other write
// transaction finishes.
func (db *DB) Writer() (*Tx, error) {
	return db.begin(true)
}

func (db *DB) begin(writable bool) (*Tx, error) {
	op := "reader"
	if writable {
		op = "writer"
	}

	db.mu.RLock()
	stx, err := db.store.BeginTx(writable)
	db.mu.RUnlock()
	if err != nil {
		return nil, engineErr(op, err)
	}

	if writable {
		db.WriterCount.Add(1)
		db.WriteCount.Add(1)
	} else {
		db.ReaderCount.Add(1)
		db.ReadCount.Add(1)
	}

	c := &txCore{
		db:        db,
		stx:       stx,
		writable:  writable,
		strong:    1,
		startTime: time.Now(),
	}
	if trackTxns {
		c.stack = captureStack()
		db.addTx(c)
	}
	return &Tx{core: c}, nil
}

// View runs f in a read-only transaction. Panics inside f are returned as
// errors.
func (db *DB) View(f func(tx *Tx) error) error {
	tx, err := db.Reader()
	if err != nil {
		return err
	}
	defer tx.Release()
	err = safelyCall(f, tx)
	closeErr := tx.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// Update runs f in a write transaction, committing if f returns nil and
// aborting otherwise. Panics inside f are returned as errors.
func (db *DB) Update(f func(tx *Tx) error) error {
	tx, err := db.Writer()
	if err != nil {
		return err
	}
	defer tx.Release()
	err = safelyCall(f, tx)
	if err != nil {
		abortErr := tx.Abort()
		if abortErr != nil {
			db.logf("db: abort after error failed: %v", abortErr)
		}
		return err
	}
	return tx.Commit()
}

// Tables lists all tables present in the store, in ascending name order.
func (db *DB) Tables(tx *Tx) ([]string, error) {
	var names []string
	err := tx.do("tables", false, func(stx storageTx) error {
		names = stx.BucketNames()
		return nil
	})
	return names, err
}

func (db *DB) TableExists(tx *Tx, name string) (bool, error) {
	var found bool
	err := tx.do("table exists", false, func(stx storageTx) error {
		found = stx.Bucket(name) != nil
		return nil
	})
	return found, err
}

// DropTable deletes a table with all of its rows. Returns an
// ErrUnknownTable error if the table does not exist.
func (db *DB) DropTable(tx *Tx, name string) error {
	return tx.do("drop table", true, func(stx storageTx) error {
		return dropTable(db, stx, "drop table", name)
	})
}

func dropTable(db *DB, stx storageTx, op, name string) error {
	err := stx.DeleteBucket(name)
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return unknownTableErr(op, name)
	} else if err != nil {
		return engineErr(op, err)
	}
	db.logger.Info("scarf: dropped table", "table", name)
	return nil
}

func (db *DB) addTx(c *txCore) {
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()
	db.txns = append(db.txns, c)
}

func (db *DB) removeTx(c *txCore) {
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()

	found := -1
	for i, t := range db.txns {
		if t == c {
			found = i
			break
		}
	}
	if found < 0 {
		panic("tx not found in list")
	}

	n := len(db.txns)
	db.txns[found] = db.txns[n-1]
	db.txns[n-1] = nil // ensure it gets collected
	db.txns = db.txns[:n-1]
}

// txFinished is called exactly once per transaction, after its storage
// transaction has been committed or rolled back.
func (db *DB) txFinished(c *txCore, size int64) {
	if size > 0 {
		db.lastSize.Store(size)
	}
	if c.writable {
		db.WriterCount.Add(-1)
	} else {
		db.ReaderCount.Add(-1)
	}
	if trackTxns {
		db.removeTx(c)
	}
}

func (db *DB) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}

	db.txnsLock.Lock()
	txns := slices.Clone(db.txns)
	db.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *txCore) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, c := range txns {
		kind := "read"
		if c.writable {
			kind = "write"
		}
		ms := now.Sub(c.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\n%s, open for %d ms\n", kind, ms)
		} else {
			fmt.Fprintf(&buf, "\n---\n%s, open for %d ms:\n%s", kind, ms, c.stack)
		}
	}

	return buf.String()
}
