package scarf

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit primary key. IDs sort as unsigned big-endian integers, both
// in memory (Compare) and in storage.
type ID [16]byte

// NewID returns a random (version 4) ID.
func NewID() ID {
	return ID(uuid.New())
}

// NewSequentialID returns a time-ordered (version 7) ID. IDs generated later
// sort after earlier ones, which keeps inserts appending to the end of the
// main table.
func NewSequentialID() ID {
	u, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Errorf("uuid.NewV7: %w", err))
	}
	return ID(u)
}

func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid ID %q: %w", s, err)
	}
	return ID(u), nil
}

func MustParseID(s string) ID {
	return must(ParseID(s))
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// Uint128 returns the high and low halves of the ID.
func (id ID) Uint128() (hi, lo uint64) {
	for _, b := range id[:8] {
		hi = hi<<8 | uint64(b)
	}
	for _, b := range id[8:] {
		lo = lo<<8 | uint64(b)
	}
	return
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	v, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id ID) MarshalBinary() ([]byte, error) {
	return id[:], nil
}

func (id *ID) UnmarshalBinary(b []byte) error {
	if len(b) != len(id) {
		return fmt.Errorf("invalid ID: got %d bytes, wanted %d", len(b), len(id))
	}
	copy(id[:], b)
	return nil
}
