// Package objectid computes and formats content-addressed artifact
// identifiers.
//
// An ID has the form "<kind>_<base32>", where kind is one of dir, fil, sym,
// gph, blb, and the base32 part is a lowercase, unpadded Crockford encoding
// of a 224-bit (28-byte) hash over an object's canonical serialization.
package objectid

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
)

// Kind identifies the variety of artifact an ID addresses.
type Kind string

const (
	KindDirectory Kind = "dir"
	KindFile      Kind = "fil"
	KindSymlink   Kind = "sym"
	KindGraph     Kind = "gph"
	KindBlob      Kind = "blb"
)

// crockfordAlphabet is Crockford's base32 alphabet, lowercased. The standard
// library's base32.Encoding accepts an arbitrary alphabet, so no third-party
// base32 variant is required.
const crockfordAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var encoding = base32.NewEncoding(crockfordAlphabet).WithPadding(base32.NoPadding)

// ID is a formatted artifact identifier.
type ID string

// Kind returns the kind prefix of id, or "" if id is malformed.
func (id ID) Kind() Kind {
	k, _, ok := strings.Cut(string(id), "_")
	if !ok {
		return ""
	}
	return Kind(k)
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Hash computes the 224-bit digest of data.
func Hash(data []byte) [28]byte {
	return sha256.Sum224(data)
}

// New formats an ID of the given kind over the canonical serialization
// bytes.
func New(kind Kind, canonical []byte) ID {
	sum := Hash(canonical)
	return ID(fmt.Sprintf("%s_%s", kind, encoding.EncodeToString(sum[:])))
}

// NewFromDigest formats an ID directly from a precomputed 28-byte digest,
// used when the digest was computed incrementally (e.g. streamed blobs).
func NewFromDigest(kind Kind, digest [28]byte) ID {
	return ID(fmt.Sprintf("%s_%s", kind, encoding.EncodeToString(digest[:])))
}
