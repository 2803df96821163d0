/*
Package scarf implements typed document collections on top of an embedded,
transactional, ordered key-value store (Bolt on disk, or a snapshotting
in-memory store).

We implement:

1. Collections of documents of one Go type, keyed by a primary key (strings,
integers, or 16-byte values like ID).

2. Secondary indices, declared per document type, allowing lookup of
documents by arbitrary structured values.

3. Transactions that can be shared between goroutines while in flight, but
must be owned by exactly one handle when committed, aborted or closed.

# Technical Details

**Tables.**
Every collection maps onto flat tables named by convention, created lazily on
first write:

	collections/<name>              main table, primary key => value
	collections/<name>/index/<key>  one per declared index key

Reading a table that does not exist yet behaves as reading an empty table.

**Index rows.**
Index values are encoded with canonical msgpack (map entries sorted by
encoded key, compact ints and floats), so equal values always produce equal
bytes. An index row key is a tuple of (encoded index value, encoded primary
key); the row value is empty. For display, encoded index values are rendered
as unpadded base32 using the 0-9a-v alphabet.

**Primary key encoding.**
Strings are stored as-is. Integers are 8 bytes big-endian, with the sign bit
flipped for signed types. 16-byte arrays (ID) are stored as-is, so they sort
as unsigned 128-bit integers.

## Binary encoding

**Value**: value header, then stored data, then encoded index key records.

**Value header**:
1. Flags (uvarint).
2. Modification count (uvarint).
3. Checksum of stored data, xxhash64 (uvarint).
4. Raw data size if compressed, otherwise 0 (uvarint).
5. Stored data size (uvarint).
6. Index size (uvarint).

**Value data**: msgpack of the document, LZ4 block-compressed when large.

**Index key records** (inside a value) record the index rows contributed by
this document, so that stale rows can be deleted when the document is
overwritten or deleted. Format:
1. Number of entries (uvarint).
2. For each entry: index key name (uvarint length + bytes), index row key
(uvarint length + bytes).
*/
package scarf
