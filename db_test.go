package scarf

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
)

type (
	User struct {
		Key   ID     `msgpack:"k" json:"id"`
		Email string `msgpack:"e" json:"email"`
		Name  string `msgpack:"n" json:"name"`
	}

	Post struct {
		Slug   string   `msgpack:"s"`
		Author AB       `msgpack:"a"`
		Tags   []string `msgpack:"t"`
		Body   string   `msgpack:"b"`
	}

	AB struct {
		A int    `msgpack:"a"`
		B string `msgpack:"b"`
	}

	Counter struct {
		N     int64 `msgpack:"n"`
		Value int   `msgpack:"v"`
	}
)

func (u *User) ID() ID            { return u.Key }
func (*User) IndexKeys() []string { return []string{"email", "name"} }
func (u *User) IndexValues() map[string]any {
	m := map[string]any{"email": u.Email}
	if u.Name != "" {
		m["name"] = u.Name
	}
	return m
}

func (p Post) ID() string        { return p.Slug }
func (Post) IndexKeys() []string { return []string{"author"} }
func (p Post) IndexValues() map[string]any {
	return map[string]any{"author": p.Author}
}

func (c Counter) ID() int64                 { return c.N }
func (Counter) IndexKeys() []string         { return nil }
func (Counter) IndexValues() map[string]any { return nil }

var (
	u1ID = MustParseID("00000000-0000-0000-0000-000000000001")
	u2ID = MustParseID("00000000-0000-0000-0000-000000000002")
	u3ID = MustParseID("00000000-0000-0000-0000-000000000003")
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func TestDB(t *testing.T) {
	backends(t, func(t *testing.T, db *DB) {
		u1 := &User{Key: u1ID, Name: "foo", Email: "foo@example.com"}
		u2 := &User{Key: u2ID, Name: "bar", Email: "bar@example.com"}
		users := CollectionOf[*User, ID](db, "users")

		ensure(db.Update(func(tx *Tx) error {
			ensure(users.Put(tx, u1))
			return users.Put(tx, u2)
		}))

		ensure(db.View(func(tx *Tx) error {
			deepEqual(t, get(t, users, tx, u1ID), u1)
			deepEqual(t, must(users.Lookup(tx, "email", "foo@example.com")), []ID{u1ID})
			deepEqual(t, must(users.Find(tx, "name", "foo")), []*User{u1})

			isempty(t, must(users.Lookup(tx, "name", "fo")))
			isempty(t, must(users.Lookup(tx, "name", "fox")))
			isempty(t, must(users.Lookup(tx, "name", "")))

			deepEqual(t, must(users.All(tx)), []*User{u1, u2})
			deepEqual(t, must(users.Keys(tx)), []ID{u1ID, u2ID})
			deepEqual(t, must(users.Count(tx)), 2)
			return nil
		}))

		ensure(db.Update(func(tx *Tx) error {
			deepEqual(t, must(users.Delete(tx, u1ID)), true)
			isempty(t, must(users.Lookup(tx, "email", "foo@example.com")))
			return nil
		}))
	})
}

// open an in-memory store; put U1 with email a@x.com; commit; look it up by
// key and by index.
func TestDB_UsersByEmail(t *testing.T) {
	db := must(OpenInMemory(Options{IsTesting: true}))
	defer db.Close()
	if !db.Location().IsInMemory() {
		t.Fatalf("Location() = %v, wanted in-memory", db.Location())
	}

	users := CollectionOf[*User, ID](db, "users")
	u := &User{Key: u1ID, Email: "a@x.com"}

	tx := must(db.Writer())
	ensure(users.Put(tx, u))
	ensure(tx.Commit())

	r := must(db.Reader())
	defer r.Close()
	deepEqual(t, get(t, users, r, u1ID), u)
	deepEqual(t, must(users.Lookup(r, "email", "a@x.com")), []ID{u1ID})
	isempty(t, must(users.Lookup(r, "email", "b@x.com")))
}

func TestDB_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	u := &User{Key: u1ID, Name: "foo", Email: "foo@example.com"}

	db := must(Open(path, Options{IsTesting: true}))
	ensure(db.Update(func(tx *Tx) error {
		return CollectionOf[*User, ID](db, "users").Put(tx, u)
	}))
	ensure(db.Close())

	db = must(Open(path, Options{IsTesting: true}))
	defer db.Close()
	deepEqual(t, db.Location(), File(path))

	users := CollectionOf[*User, ID](db, "users")
	ensure(db.View(func(tx *Tx) error {
		deepEqual(t, must(db.Tables(tx)), []string{
			"collections/users",
			"collections/users/index/email",
			"collections/users/index/name",
		})
		deepEqual(t, get(t, users, tx, u1ID), u)
		deepEqual(t, must(users.Lookup(tx, "name", "foo")), []ID{u1ID})
		return nil
	}))
}

func TestDB_OpenFailure(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "x.db"), Options{IsTesting: true})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("Open in a missing directory = %v, wanted ErrIO", err)
	}
	var pe *os.PathError
	if !errors.As(err, &pe) {
		t.Fatalf("Open error %v does not wrap *os.PathError", err)
	}
}

func TestDB_Closed(t *testing.T) {
	backends(t, func(t *testing.T, db *DB) {
		ensure(db.Close())
		_, err := db.Reader()
		if !errors.Is(err, ErrStorageEngine) {
			t.Fatalf("Reader() after Close = %v, wanted ErrStorageEngine", err)
		}
	})
}

func TestDB_DropTable(t *testing.T) {
	backends(t, func(t *testing.T, db *DB) {
		users := CollectionOf[*User, ID](db, "users")
		ensure(db.Update(func(tx *Tx) error {
			return users.Put(tx, &User{Key: u1ID, Email: "a@x.com"})
		}))

		err := db.Update(func(tx *Tx) error {
			return db.DropTable(tx, "nonexistent")
		})
		var e *Error
		if !errors.As(err, &e) || e.Kind != KindUnknownTable || e.Table != "nonexistent" {
			t.Fatalf("DropTable(nonexistent) = %v, wanted unknown table error", err)
		}

		ensure(db.Update(func(tx *Tx) error {
			deepEqual(t, must(db.TableExists(tx, "collections/users/index/email")), true)
			return db.DropTable(tx, "collections/users/index/email")
		}))
		ensure(db.View(func(tx *Tx) error {
			deepEqual(t, must(db.TableExists(tx, "collections/users/index/email")), false)
			deepEqual(t, must(db.Tables(tx)), []string{"collections/users"})
			return nil
		}))
	})
}

func TestDB_ViewAndUpdateRecoverPanics(t *testing.T) {
	backends(t, func(t *testing.T, db *DB) {
		users := CollectionOf[*User, ID](db, "users")
		err := db.Update(func(tx *Tx) error {
			ensure(users.Put(tx, &User{Key: u1ID, Email: "a@x.com"}))
			panic("boom")
		})
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Fatalf("Update with panic = %v, wanted panic error", err)
		}

		wantErr := errors.New("fail")
		err = db.Update(func(tx *Tx) error {
			ensure(users.Put(tx, &User{Key: u2ID, Email: "b@x.com"}))
			return wantErr
		})
		if err != wantErr {
			t.Fatalf("Update = %v, wanted %v", err, wantErr)
		}

		ensure(db.View(func(tx *Tx) error {
			deepEqual(t, must(users.Count(tx)), 0)
			return nil
		}))
		deepEqual(t, db.WriterCount.Load(), int64(0))
		deepEqual(t, db.ReaderCount.Load(), int64(0))
	})
}

func TestDB_DescribeOpenTxns(t *testing.T) {
	db := setupMem(t)
	deepEqual(t, db.DescribeOpenTxns(), "NO OPEN TRANSACTIONS")

	r := must(db.Reader())
	w := must(db.Writer())
	s := db.DescribeOpenTxns()
	if !strings.HasPrefix(s, "2 OPEN TRANSACTIONS:") || !strings.Contains(s, "read") || !strings.Contains(s, "write") {
		t.Fatalf("DescribeOpenTxns() = %q", s)
	}
	ensure(w.Abort())
	ensure(r.Close())
	deepEqual(t, db.DescribeOpenTxns(), "NO OPEN TRANSACTIONS")
	deepEqual(t, db.ReadCount.Load(), uint64(1))
	deepEqual(t, db.WriteCount.Load(), uint64(1))
}

func TestLocation(t *testing.T) {
	deepEqual(t, Memory().String(), ":memory:")
	deepEqual(t, File("/tmp/x.db").String(), "/tmp/x.db")
	deepEqual(t, File("/tmp/x.db").IsInMemory(), false)
	deepEqual(t, InMemory.String(), "memory")
	deepEqual(t, Filesystem.String(), "filesystem")
}

func backends(t *testing.T, f func(t *testing.T, db *DB)) {
	t.Run("bolt", func(t *testing.T) {
		f(t, setup(t))
	})
	t.Run("mem", func(t *testing.T) {
		f(t, setupMem(t))
	})
}

func setup(t testing.TB) *DB {
	t.Helper()
	return setupWith(t, Options{IsTesting: true})
}

func setupWith(t testing.TB, opt Options) *DB {
	t.Helper()

	dbFile := must(os.CreateTemp(t.TempDir(), "db_test_*.db"))
	t.Logf("DB: %s", dbFile.Name())
	dbFile.Close()

	opt.Logf = t.Logf
	db := must(Open(dbFile.Name(), opt))
	t.Cleanup(func() { db.Close() })
	return db
}

func setupMem(t testing.TB) *DB {
	t.Helper()
	db := must(OpenInMemory(Options{IsTesting: true, Verbose: true, Logf: t.Logf}))
	t.Cleanup(func() { db.Close() })
	return db
}

func get[D Document[K], K Key](t testing.TB, c *Collection[D, K], tx *Tx, id K) D {
	t.Helper()
	doc, found, err := c.Get(tx, id)
	if err != nil {
		t.Fatalf("Get(%v) failed: %v", id, err)
	}
	if !found {
		t.Fatalf("Get(%v) found nothing", id)
	}
	return doc
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func contains[T comparable](t testing.TB, a []T, e T) {
	if !slices.Contains(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted it to contain %v", a, e)
	}
}
