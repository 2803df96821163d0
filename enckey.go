package scarf

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"unicode/utf8"
)

// Key is the set of primary key types a collection can be keyed by.
type Key interface {
	~string |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~[16]byte
}

const signBit = uint64(1) << 63

var byteType = reflect.TypeOf((byte)(0))

var keyCodecs sync.Map

type keyCodec struct {
	typ    reflect.Type
	encode func(buf []byte, v reflect.Value) []byte
	decode func(b []byte, v reflect.Value) error
	format func(b []byte) string
}

func keyCodecOf(typ reflect.Type) *keyCodec {
	if c, ok := keyCodecs.Load(typ); ok {
		return c.(*keyCodec)
	}
	c := newKeyCodec(typ)
	actual, _ := keyCodecs.LoadOrStore(typ, c)
	return actual.(*keyCodec)
}

func newKeyCodec(typ reflect.Type) *keyCodec {
	kc := &keyCodec{typ: typ}
	switch typ.Kind() {
	case reflect.String:
		kc.encode = func(buf []byte, v reflect.Value) []byte {
			return appendString(buf, v.String())
		}
		kc.decode = func(b []byte, v reflect.Value) error {
			v.SetString(string(b))
			return nil
		}
		kc.format = func(b []byte) string {
			if !utf8.Valid(b) {
				return hex.EncodeToString(b)
			}
			return strconv.Quote(string(b))
		}
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8:
		kc.encode = func(buf []byte, v reflect.Value) []byte {
			return appendUint64(buf, v.Uint())
		}
		kc.decode = func(b []byte, v reflect.Value) error {
			if len(b) != 8 {
				return fmt.Errorf("invalid uint key length: got %d bytes, wanted %d", len(b), 8)
			}
			value := binary.BigEndian.Uint64(b)
			if v.OverflowUint(value) {
				return fmt.Errorf("uint key %d overflows %v", value, typ)
			}
			v.SetUint(value)
			return nil
		}
		kc.format = func(b []byte) string {
			if len(b) != 8 {
				return hex.EncodeToString(b)
			}
			return strconv.FormatUint(binary.BigEndian.Uint64(b), 10)
		}
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		// flipping the sign bit makes negative keys sort before positive ones
		kc.encode = func(buf []byte, v reflect.Value) []byte {
			return appendUint64(buf, uint64(v.Int())^signBit)
		}
		kc.decode = func(b []byte, v reflect.Value) error {
			if len(b) != 8 {
				return fmt.Errorf("invalid int key length: got %d bytes, wanted %d", len(b), 8)
			}
			value := int64(binary.BigEndian.Uint64(b) ^ signBit)
			if v.OverflowInt(value) {
				return fmt.Errorf("int key %d overflows %v", value, typ)
			}
			v.SetInt(value)
			return nil
		}
		kc.format = func(b []byte) string {
			if len(b) != 8 {
				return hex.EncodeToString(b)
			}
			return strconv.FormatInt(int64(binary.BigEndian.Uint64(b)^signBit), 10)
		}
	case reflect.Array:
		if typ.Elem() != byteType {
			panic(fmt.Errorf("scarf does not know how to encode key type %v", typ))
		}
		n := typ.Len()
		stringer, _ := reflect.New(typ).Elem().Interface().(fmt.Stringer)
		kc.encode = func(buf []byte, v reflect.Value) []byte {
			if !v.CanAddr() {
				a := reflect.New(typ).Elem()
				a.Set(v)
				v = a
			}
			return appendRaw(buf, v.Slice(0, n).Bytes())
		}
		kc.decode = func(b []byte, v reflect.Value) error {
			if len(b) != n {
				return fmt.Errorf("invalid %v key length: got %d bytes, wanted %d", typ, len(b), n)
			}
			copy(v.Slice(0, n).Bytes(), b)
			return nil
		}
		kc.format = func(b []byte) string {
			if stringer != nil && len(b) == n {
				v := reflect.New(typ).Elem()
				copy(v.Slice(0, n).Bytes(), b)
				return v.Interface().(fmt.Stringer).String()
			}
			return hex.EncodeToString(b)
		}
	default:
		panic(fmt.Errorf("scarf does not know how to encode key type %v", typ))
	}
	return kc
}

func encodeKey[K Key](buf []byte, k K) []byte {
	v := reflect.ValueOf(k)
	return keyCodecOf(v.Type()).encode(buf, v)
}

func decodeKey[K Key](raw []byte) (K, error) {
	var k K
	v := reflect.ValueOf(&k).Elem()
	err := keyCodecOf(v.Type()).decode(raw, v)
	if err != nil {
		return k, dataErrf(raw, 0, err, "invalid key")
	}
	return k, nil
}

// keyString renders an encoded primary key of type K for logs and dumps.
func keyString[K Key](raw []byte) string {
	var k K
	return keyCodecOf(reflect.TypeOf(k)).format(raw)
}

func appendString(buf []byte, v string) []byte {
	n := len(v)
	off, buf := grow(buf, n)
	copy(buf[off:], v)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	off, buf := grow(buf, 8)
	binary.BigEndian.PutUint64(buf[off:], v)
	return buf
}
