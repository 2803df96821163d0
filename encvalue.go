package scarf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/pierrec/lz4/v4"
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfCompressionBit0

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1          = vfVerBit0
	vfLZ4           = vfCompressionBit0
	vfSupportedMask = (vfVerMask | vfLZ4)
	vfDefault       = vfVer1

	minValueSize       = 6
	maxValueHeaderSize = binary.MaxVarintLen64 * 6
	maxRawSize         = 1 << 31 // sanity limit for decompression buffers

	defaultCompressThreshold = 4096
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

func (vf valueFlags) compressed() bool {
	return vf&vfLZ4 != 0
}

type value struct {
	Flags    valueFlags
	ModCount uint64
	Checksum uint64
	RawSize  uint64
	Data     []byte
	Index    []byte
}

// ValueMeta describes a stored document without decoding its body.
type ValueMeta struct {
	ModCount   uint64
	Compressed bool
	StoredSize int
	RawSize    int
}

func (vle *value) meta() ValueMeta {
	m := ValueMeta{
		ModCount:   vle.ModCount,
		Compressed: vle.Flags.compressed(),
		StoredSize: len(vle.Data),
		RawSize:    len(vle.Data),
	}
	if m.Compressed {
		m.RawSize = int(vle.RawSize)
	}
	return m
}

// storedData is a document body prepared for storage.
type storedData struct {
	flags    valueFlags
	data     []byte
	rawSize  int
	checksum uint64
}

func prepareData(body []byte, compressThreshold int) storedData {
	sd := storedData{flags: vfDefault, data: body}
	if compressThreshold >= 0 && len(body) >= compressThreshold && len(body) > 0 {
		if compressed, ok := compressBody(body); ok {
			sd.data, sd.rawSize = compressed, len(body)
			sd.flags |= vfLZ4
		}
	}
	sd.checksum = xxhash.Sum64(sd.data)
	return sd
}

// value assembles a stored value. The result is freshly allocated, as the
// storage engine requires values to stay untouched until commit.
func (sd *storedData) value(modCount uint64, index []byte) []byte {
	buf := make([]byte, 0, maxValueHeaderSize+len(sd.data)+len(index))
	buf = reserveValueHeader(buf)
	buf = append(buf, sd.data...)
	indexOff := len(buf)
	buf = append(buf, index...)
	return putValueHeader(buf, sd.flags, modCount, sd.checksum, uint64(sd.rawSize), indexOff)
}

func compressBody(body []byte) ([]byte, bool) {
	dst := make([]byte, lz4.CompressBlockBound(len(body)))
	var hashTable [1 << 16]int
	n, err := lz4.CompressBlock(body, dst, hashTable[:])
	if err != nil || n == 0 || n >= len(body) {
		return nil, false
	}
	return dst[:n], true
}

func reserveValueHeader(buf []byte) []byte {
	if len(buf) != 0 {
		panic("value must be written to an empty buffer")
	}
	return buf[:maxValueHeaderSize]
}

func putValueHeader(buf []byte, flags valueFlags, modCount, checksum, rawSize uint64, indexOff int) []byte {
	if indexOff > len(buf) {
		panic(fmt.Errorf("invalid indexOff=%d", indexOff)) // sanity check
	}
	if (flags &^ vfSupportedMask) != 0 {
		panic(fmt.Errorf("invalid flags %x", flags))
	}
	dataSize := indexOff - maxValueHeaderSize
	indexSize := len(buf) - indexOff

	var off = 0
	off += binary.PutUvarint(buf[off:], uint64(flags))
	off += binary.PutUvarint(buf[off:], modCount)
	off += binary.PutUvarint(buf[off:], checksum)
	off += binary.PutUvarint(buf[off:], rawSize)
	off += binary.PutUvarint(buf[off:], uint64(dataSize))
	off += binary.PutUvarint(buf[off:], uint64(indexSize))
	headerSize := off
	if headerSize > maxValueHeaderSize {
		panic("internal error")
	}
	if headerSize < maxValueHeaderSize {
		// move the header closer to data
		start := maxValueHeaderSize - headerSize
		copy(buf[start:maxValueHeaderSize], buf[:headerSize])
		return buf[start:]
	} else {
		return buf
	}
}

func (vle *value) decode(data []byte) error {
	if len(data) < minValueSize {
		return dataErrf(data, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	d := makeByteDecoder(data)

	v, err := d.Uvarint()
	if err != nil {
		return dataErrf(data, d.Off(), err, "invalid value: bad flags")
	}
	if (v & ^uint64(vfSupportedMask)) != 0 {
		return dataErrf(data, d.Off(), nil, "invalid value: unsupported flags %x", v)
	}
	vle.Flags = valueFlags(v)
	if vle.Flags.ver() != vfVer1 {
		return dataErrf(data, d.Off(), nil, "invalid value: unsupported format version %d", vle.Flags.ver())
	}

	if vle.ModCount, err = d.Uvarint(); err != nil {
		return dataErrf(data, d.Off(), err, "invalid value: bad mod count")
	}
	if vle.Checksum, err = d.Uvarint(); err != nil {
		return dataErrf(data, d.Off(), err, "invalid value: bad checksum")
	}
	if vle.RawSize, err = d.Uvarint(); err != nil {
		return dataErrf(data, d.Off(), err, "invalid value: bad raw size")
	}
	if vle.RawSize > maxRawSize || (vle.RawSize != 0) != vle.Flags.compressed() {
		return dataErrf(data, d.Off(), nil, "invalid value: raw size %d inconsistent with flags %x", vle.RawSize, vle.Flags)
	}
	dataSize, err := d.Uvarint()
	if err != nil {
		return dataErrf(data, d.Off(), err, "invalid value: bad data size")
	}
	indexSize, err := d.Uvarint()
	if err != nil {
		return dataErrf(data, d.Off(), err, "invalid value: bad index size")
	}

	rest := d.Buf
	expectedSize := dataSize + indexSize
	if uint64(len(rest)) != expectedSize || expectedSize < dataSize {
		return dataErrf(data, d.Off(), nil, "invalid value: got %d bytes for data+index, expected %d bytes", len(rest), expectedSize)
	}
	vle.Data, vle.Index = rest[:dataSize], rest[dataSize:]
	return nil
}

// body verifies the checksum and returns the uncompressed document bytes.
func (vle *value) body() ([]byte, error) {
	if sum := xxhash.Sum64(vle.Data); sum != vle.Checksum {
		return nil, dataErrf(vle.Data, 0, nil, "checksum mismatch: stored %016x, computed %016x", vle.Checksum, sum)
	}
	if !vle.Flags.compressed() {
		return vle.Data, nil
	}
	out := make([]byte, vle.RawSize)
	n, err := lz4.UncompressBlock(vle.Data, out)
	if err != nil {
		return nil, dataErrf(vle.Data, 0, err, "failed to decompress")
	}
	if uint64(n) != vle.RawSize {
		return nil, dataErrf(vle.Data, 0, nil, "decompressed %d bytes, expected %d", n, vle.RawSize)
	}
	return out, nil
}

func (vle *value) sameData(sd *storedData) bool {
	return vle.Checksum == sd.checksum && vle.Flags == sd.flags && bytes.Equal(vle.Data, sd.data)
}
