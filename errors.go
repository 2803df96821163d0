package scarf

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"syscall"
)

type ErrorKind int

const (
	KindStorageEngine ErrorKind = iota + 1
	KindIO
	KindLockPoisoned
	KindUnknownTable
	KindSharedOwnership
)

// Sentinels matched by errors.Is against any *Error of the corresponding kind.
var (
	ErrStorageEngine   = errors.New("storage engine error")
	ErrIO              = errors.New("filesystem/memory I/O error")
	ErrLockPoisoned    = errors.New("lock poisoned")
	ErrUnknownTable    = errors.New("unknown table")
	ErrSharedOwnership = errors.New("transaction has more than one owner")
)

// Break stops Scan without returning an error.
var Break = errors.New("break")

func (k ErrorKind) sentinel() error {
	switch k {
	case KindStorageEngine:
		return ErrStorageEngine
	case KindIO:
		return ErrIO
	case KindLockPoisoned:
		return ErrLockPoisoned
	case KindUnknownTable:
		return ErrUnknownTable
	case KindSharedOwnership:
		return ErrSharedOwnership
	default:
		return nil
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindStorageEngine:
		return "storage_engine"
	case KindIO:
		return "io"
	case KindLockPoisoned:
		return "lock_poisoned"
	case KindUnknownTable:
		return "unknown_table"
	case KindSharedOwnership:
		return "shared_ownership"
	default:
		return fmt.Sprintf("invalid kind %d", int(k))
	}
}

// Error is the single error type returned by database, transaction and
// collection operations. Engine errors are preserved in Err, so errors.Is
// works against both the kind sentinels and the original engine errors.
type Error struct {
	Kind ErrorKind
	Op   string

	// Table is set for KindUnknownTable.
	Table string

	// Strong and Weak are the reference counts observed for KindSharedOwnership.
	Strong int
	Weak   int

	// Reason is the recovered panic value for KindLockPoisoned.
	Reason string

	Err error
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString("scarf: ")
	if e.Op != "" {
		buf.WriteString(e.Op)
		buf.WriteString(": ")
	}
	switch e.Kind {
	case KindStorageEngine:
		fmt.Fprintf(&buf, "storage engine error: %v", e.Err)
	case KindIO:
		fmt.Fprintf(&buf, "filesystem/memory I/O error: %v", e.Err)
	case KindLockPoisoned:
		fmt.Fprintf(&buf, "transaction lock poisoned by an earlier panic: %s", e.Reason)
	case KindUnknownTable:
		fmt.Fprintf(&buf, "unknown table name %s", e.Table)
	case KindSharedOwnership:
		fmt.Fprintf(&buf, "more than one strong reference to this transaction exists: %d strong, %d weak", e.Strong, e.Weak)
	default:
		fmt.Fprintf(&buf, "%v", e.Err)
	}
	return buf.String()
}

// engineErr classifies an error coming out of the storage engine. Errors that
// are already *Error pass through unchanged.
func engineErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := KindStorageEngine
	if isIOError(err) {
		kind = KindIO
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func isIOError(err error) bool {
	var pe *fs.PathError
	var errno syscall.Errno
	return errors.As(err, &pe) || errors.As(err, &errno) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrShortWrite)
}

func unknownTableErr(op, name string) error {
	return &Error{Kind: KindUnknownTable, Op: op, Table: name}
}

func sharedOwnershipErr(op string, strong, weak int) error {
	return &Error{Kind: KindSharedOwnership, Op: op, Strong: strong, Weak: weak}
}

func poisonedErr(op, reason string) error {
	return &Error{Kind: KindLockPoisoned, Op: op, Reason: reason}
}

// DataError reports stored bytes that cannot be decoded.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// TableError attaches table, index and key context to an error.
type TableError struct {
	Table string
	Index string
	Key   []byte
	Msg   string
	Err   error
}

func tableErrf(table, index string, key []byte, err error, format string, args ...any) error {
	return &TableError{table, index, key, fmt.Sprintf(format, args...), err}
}

func (e *TableError) Unwrap() error {
	return e.Err
}

func (e *TableError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Table)
	if e.Index != "" {
		buf.WriteByte('#')
		buf.WriteString(e.Index)
	}
	if e.Key != nil {
		buf.WriteByte('/')
		buf.WriteString(hexstr(e.Key))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
