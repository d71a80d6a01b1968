package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows an encoding migration without collisions.
const (
	DomainNotice   = "gluedb/notice/v1"
	DomainDocument = "gluedb/document/v1"
	DomainChunk    = "gluedb/chunk/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator removes any ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the canonical content hash of v under domain.
func ContentHash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("content hash (%s): %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// ChunkHash combines member notice hashes, in chunk order, into one hash.
func ChunkHash(noticeHashes []string) string {
	canonical, _ := MarshalCanonical(Strings(noticeHashes))
	return hashWithDomain(DomainChunk, canonical)
}

// MustContentHash is like ContentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustContentHash(domain string, v any) string {
	h, err := ContentHash(domain, v)
	if err != nil {
		panic(err)
	}
	return h
}
