// Package digest defines the content-addressed identity used for all
// filesystem material: a SHA-256 fingerprint plus the byte length of the
// content it covers.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Digest identifies a blob or a directory manifest by content. Two digests
// are equal iff their content is byte-identical.
type Digest struct {
	// Hash is the lowercase hex SHA-256 of the content.
	Hash string
	// SizeBytes is the length of the hashed content.
	SizeBytes int64
}

// Empty is the digest of zero bytes. It is the input digest of a process
// that consumes no files.
var Empty = FromBytes(nil)

// FromBytes hashes content and returns its digest.
func FromBytes(content []byte) Digest {
	sum := sha256.Sum256(content)
	return Digest{
		Hash:      hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(content)),
	}
}

// Parse is the inverse of String. It accepts the "hash/size" form.
func Parse(s string) (Digest, error) {
	hash, sizeStr, ok := strings.Cut(s, "/")
	if !ok {
		return Digest{}, fmt.Errorf("malformed digest %q: expected \"hash/size\"", s)
	}
	if len(hash) != sha256.Size*2 {
		return Digest{}, fmt.Errorf("malformed digest %q: hash must be %d hex characters, got %d", s, sha256.Size*2, len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return Digest{}, fmt.Errorf("malformed digest %q: %w", s, err)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || size < 0 {
		return Digest{}, fmt.Errorf("malformed digest %q: invalid size %q", s, sizeStr)
	}
	return Digest{Hash: hash, SizeBytes: size}, nil
}

// String renders the digest in the canonical "hash/size" form.
func (d Digest) String() string {
	return fmt.Sprintf("%s/%d", d.Hash, d.SizeBytes)
}

// Short returns a truncated hash for log output.
func (d Digest) Short() string {
	if len(d.Hash) < 12 {
		return d.Hash
	}
	return d.Hash[:12]
}

// IsZero reports whether d is the zero value, which is distinct from Empty:
// Empty identifies zero-length content, the zero value identifies nothing.
func (d Digest) IsZero() bool {
	return d == Digest{}
}
