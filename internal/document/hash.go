package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainDocument prefixes document hashes. The version suffix allows the
// algorithm to change without colliding with stored hashes.
const DomainDocument = "thingdir/document/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the content hash of a document. Documents that differ only in
// key order, number spelling or Unicode normalization hash identically.
func Hash(obj Object) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("hash document: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// MustHash is like Hash but panics on error. Use only in tests.
func MustHash(obj Object) string {
	h, err := Hash(obj)
	if err != nil {
		panic(err)
	}
	return h
}
