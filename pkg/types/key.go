// Package types defines the ordered key values the B+ tree indexes on.
package types

import (
	"encoding/binary"
	"fmt"
)

// KeyType identifies the wire/in-memory representation of a Key so that a
// page can decode the flat byte arrays it persists back into typed keys.
type KeyType uint8

const (
	Int32KeyType KeyType = iota
	StringKeyType
)

// Key is an ordered, fixed- or bounded-width value a B+ tree can compare,
// serialize to its on-page byte representation, and decode back again.
type Key interface {
	// Compare returns <0, 0, or >0 as the key is less than, equal to, or
	// greater than other. Comparing keys of different concrete types panics.
	Compare(other Key) int

	// Bytes returns the fixed-width on-page encoding of this key.
	Bytes() []byte

	// Type reports which concrete key kind this value is.
	Type() KeyType

	String() string
}

// KeySize is the fixed width, in bytes, of a key of the given type as it is
// packed into a B+ tree page slot.
func KeySize(t KeyType) int {
	switch t {
	case Int32KeyType:
		return 4
	case StringKeyType:
		return 32
	default:
		panic(fmt.Sprintf("types: unknown key type %d", t))
	}
}

// DecodeKey reconstructs a Key from its fixed-width on-page bytes.
func DecodeKey(t KeyType, buf []byte) Key {
	switch t {
	case Int32KeyType:
		return Int32Key(int32(binary.LittleEndian.Uint32(buf[:4])))
	case StringKeyType:
		n := 0
		for n < len(buf) && buf[n] != 0 {
			n++
		}
		return StringKey(string(buf[:n]))
	default:
		panic(fmt.Sprintf("types: unknown key type %d", t))
	}
}

// Int32Key is a 32-bit signed integer index key.
type Int32Key int32

func (k Int32Key) Compare(other Key) int {
	o := other.(Int32Key)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

func (k Int32Key) Bytes() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(k))
	return buf
}

func (k Int32Key) Type() KeyType  { return Int32KeyType }
func (k Int32Key) String() string { return fmt.Sprintf("%d", int32(k)) }

// StringKey is a bounded-length string index key, padded/truncated to
// KeySize(StringKeyType) bytes on the page.
type StringKey string

func (k StringKey) Compare(other Key) int {
	o := other.(StringKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

func (k StringKey) Bytes() []byte {
	buf := make([]byte, KeySize(StringKeyType))
	copy(buf, []byte(k))
	return buf
}

func (k StringKey) Type() KeyType  { return StringKeyType }
func (k StringKey) String() string { return string(k) }
