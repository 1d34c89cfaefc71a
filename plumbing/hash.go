package plumbing

import (
	"encoding/hex"
	"sort"
	"strings"
)

// Hash is a raw 20-byte object identifier. The canonical encoding is
// the 40-character lowercase hexadecimal form produced by String.
type Hash [20]byte

// HexSize is the length of an object identifier in its canonical
// hexadecimal encoding.
const HexSize = 40

// ZeroHash is Hash with value zero.
var ZeroHash Hash

// NewHash return a new Hash from a hexadecimal hash representation.
func NewHash(s string) Hash {
	b, _ := hex.DecodeString(s)

	var h Hash
	copy(h[:], b)

	return h
}

// IsZero reports whether the hash has the zero value.
func (h Hash) IsZero() bool {
	var empty Hash
	return h == empty
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsHash returns true if the given string is a valid hexadecimal
// encoding of a Hash.
func IsHash(s string) bool {
	if len(s) != HexSize {
		return false
	}

	_, err := hex.DecodeString(s)
	return err == nil
}

// HashSlice attaches the methods of sort.Interface to []Hash, sorting
// in increasing order.
type HashSlice []Hash

func (p HashSlice) Len() int           { return len(p) }
func (p HashSlice) Less(i, j int) bool { return strings.Compare(p[i].String(), p[j].String()) < 0 }
func (p HashSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// HashesSort sorts a slice of Hashes in increasing order.
func HashesSort(a []Hash) {
	sort.Sort(HashSlice(a))
}
