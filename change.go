package scarf

import (
	"fmt"
)

type (
	// Change describes a document put or deleted within a transaction.
	Change struct {
		collection string
		op         Op
		rawKey     []byte
		key        any
		doc        any
	}

	Op int
)

const (
	OpNone   Op = 0
	OpPut    Op = 1
	OpDelete Op = 2
)

func (chg *Change) Collection() string {
	return chg.collection
}
func (chg *Change) Op() Op {
	return chg.op
}
func (chg *Change) RawKey() []byte {
	return chg.rawKey
}
func (chg *Change) Key() any {
	return chg.key
}
func (chg *Change) HasDoc() bool {
	return chg.doc != nil
}

// Doc returns the new document for OpPut and the removed one for OpDelete.
func (chg *Change) Doc() any {
	return chg.doc
}

func (chg *Change) String() string {
	return fmt.Sprintf("%v %s/%v", chg.op, chg.collection, chg.key)
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}
