package scarf

import "reflect"

// Document is implemented by every type stored in a collection.
//
// IndexKeys declares the index keys of the type. It is called on the zero
// value of the type, so it must not depend on the receiver.
//
// IndexValues maps index keys to the values of this instance. Values can be
// any msgpack-encodable structure. A key missing from the map contributes
// no index entry; a key not listed in IndexKeys is an error.
//
// Document bodies are encoded with msgpack, so struct tags and custom
// msgpack marshalers apply.
type Document[K Key] interface {
	ID() K
	IndexKeys() []string
	IndexValues() map[string]any
}

// zeroDocument returns a zero D suitable for calling type-level methods.
// For pointer types, that's a pointer to a zero struct rather than nil.
func zeroDocument[D any]() D {
	var d D
	if t := reflect.TypeOf(d); t != nil && t.Kind() == reflect.Pointer {
		d = reflect.New(t.Elem()).Interface().(D)
	}
	return d
}
