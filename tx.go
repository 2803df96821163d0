package scarf

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

// Tx is a handle to a read or write transaction.
//
// Handles can be cloned and passed to other goroutines while the transaction
// is in flight; operations from different handles are serialized. Commit,
// Abort and Close require the calling handle to be the only strong
// reference. Otherwise they fail with ErrSharedOwnership and leave the
// transaction usable, so the caller can retry after the other holders have
// called Release.
//
// A transaction whose last strong handle is released without being
// finalized is rolled back.
type Tx struct {
	core     *txCore
	released atomic.Bool
}

// WeakTx refers to a transaction without keeping it alive or counting as an
// owner at finalization time.
type WeakTx struct {
	core     *txCore
	released atomic.Bool
}

type txCore struct {
	db       *DB
	writable bool

	// mu serializes operations. stx is nil once finalized.
	mu       sync.Mutex
	stx      storageTx
	poisoned string

	refs   sync.Mutex
	strong int
	weak   int

	startTime time.Time
	stack     string

	changeHandler func(chg *Change)
}

func (tx *Tx) DB() *DB {
	return tx.core.db
}

func (tx *Tx) IsWritable() bool {
	return tx.core.writable
}

// IsFinalized returns whether the transaction has been committed, aborted,
// closed or rolled back.
func (tx *Tx) IsFinalized() bool {
	c := tx.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stx == nil
}

// RefCounts returns the current number of strong and weak references.
func (tx *Tx) RefCounts() (strong, weak int) {
	c := tx.core
	c.refs.Lock()
	defer c.refs.Unlock()
	return c.strong, c.weak
}

// OnChange installs a handler notified about every document put or deleted
// within this transaction.
func (tx *Tx) OnChange(f func(chg *Change)) {
	c := tx.core
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changeHandler = f
}

// Clone returns a new strong handle to the same transaction.
func (tx *Tx) Clone() *Tx {
	if tx.released.Load() {
		panic("scarf: Clone of a released transaction handle")
	}
	c := tx.core
	c.refs.Lock()
	defer c.refs.Unlock()
	c.strong++
	return &Tx{core: c}
}

// Release drops this handle's reference. It is safe to call more than once,
// and is a no-op after the handle has finalized the transaction.
func (tx *Tx) Release() {
	if tx.released.Swap(true) {
		return
	}
	c := tx.core
	c.refs.Lock()
	c.strong--
	last := c.strong == 0
	c.refs.Unlock()
	if last {
		c.abandon()
	}
}

// Downgrade returns a weak reference to the transaction. The handle itself
// stays valid.
func (tx *Tx) Downgrade() *WeakTx {
	c := tx.core
	c.refs.Lock()
	defer c.refs.Unlock()
	c.weak++
	return &WeakTx{core: c}
}

// Upgrade returns a new strong handle, or false if the transaction is no
// longer alive.
func (w *WeakTx) Upgrade() (*Tx, bool) {
	if w.released.Load() {
		return nil, false
	}
	c := w.core
	c.refs.Lock()
	defer c.refs.Unlock()
	if c.strong == 0 {
		return nil, false
	}
	c.strong++
	return &Tx{core: c}, true
}

func (w *WeakTx) Release() {
	if w.released.Swap(true) {
		return
	}
	c := w.core
	c.refs.Lock()
	defer c.refs.Unlock()
	c.weak--
}

// Commit makes the changes made in this write transaction durable and
// visible to transactions started afterwards.
func (tx *Tx) Commit() error {
	return tx.finalize("commit", true, true)
}

// Abort discards all changes made in this write transaction.
func (tx *Tx) Abort() error {
	return tx.finalize("abort", true, false)
}

// Close releases a read transaction's snapshot. Closing a write transaction
// aborts it. Close on a handle that has already finalized the transaction
// returns nil, so it can be deferred right after Reader or Writer.
func (tx *Tx) Close() error {
	if tx.released.Load() {
		return nil
	}
	return tx.finalize("close", false, false)
}

func (tx *Tx) finalize(op string, writeOnly, commit bool) error {
	c := tx.core
	if tx.released.Load() {
		return engineErr(op, bbolt.ErrTxClosed)
	}
	if writeOnly && !c.writable {
		return engineErr(op, bbolt.ErrTxNotWritable)
	}

	c.refs.Lock()
	defer c.refs.Unlock()
	if c.strong != 1 {
		return sharedOwnershipErr(op, c.strong, c.weak)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stx := c.stx
	if stx == nil {
		return engineErr(op, bbolt.ErrTxClosed)
	}
	c.stx = nil
	c.strong = 0
	tx.released.Store(true)

	size := stx.Size()
	var err error
	if commit {
		if c.poisoned != "" {
			_ = stx.Rollback()
			err = poisonedErr(op, c.poisoned)
		} else if cerr := stx.Commit(); cerr != nil {
			_ = stx.Rollback()
			err = engineErr(op, cerr)
		}
	} else {
		err = engineErr(op, stx.Rollback())
	}
	c.db.txFinished(c, size)

	if c.db.verbose {
		c.db.logf("db: %s (%s tx, %d ms)", op, c.kind(), time.Since(c.startTime).Milliseconds())
	}
	return err
}

// abandon rolls back a transaction nobody can finalize anymore.
func (c *txCore) abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	stx := c.stx
	if stx == nil {
		return
	}
	c.stx = nil
	size := stx.Size()
	if err := stx.Rollback(); err != nil {
		c.db.logger.Warn("scarf: rollback of abandoned transaction failed", "err", err)
	}
	c.db.txFinished(c, size)
	if c.writable {
		c.db.logger.Warn("scarf: write transaction released without commit or abort, rolled back")
	}
}

func (c *txCore) kind() string {
	if c.writable {
		return "write"
	}
	return "read"
}

// do runs f with exclusive access to the storage transaction. A panic in f
// poisons the transaction: all later operations and Commit fail with
// ErrLockPoisoned, while Abort and Close still roll it back.
func (tx *Tx) do(op string, write bool, f func(stx storageTx) error) error {
	if tx == nil {
		panic("scarf: nil transaction")
	}
	c := tx.core
	if tx.released.Load() {
		return engineErr(op, bbolt.ErrTxClosed)
	}
	if write && !c.writable {
		return engineErr(op, bbolt.ErrTxNotWritable)
	}

	c.mu.Lock()
	if c.poisoned != "" {
		reason := c.poisoned
		c.mu.Unlock()
		return poisonedErr(op, reason)
	}
	if c.stx == nil {
		c.mu.Unlock()
		return engineErr(op, bbolt.ErrTxClosed)
	}

	defer func() {
		if p := recover(); p != nil {
			c.poisoned = fmt.Sprint(p)
			c.mu.Unlock()
			panic(p)
		}
		c.mu.Unlock()
	}()
	return f(c.stx)
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func captureStack() string {
	return string(debug.Stack())
}
