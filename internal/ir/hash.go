package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored hashes.
const (
	DomainDocument = "provision/document/v1"
	DomainRules    = "provision/rules/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator removes domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash is the identity used for diff-before-write: two payloads are
// the same document exactly when their content hashes match.
func ContentHash(payload IRObject) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// MustContentHash is like ContentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustContentHash(payload IRObject) string {
	h, err := ContentHash(payload)
	if err != nil {
		panic(err)
	}
	return h
}

// RulesHash fingerprints compiled rule text.
func RulesHash(text string) string {
	return hashWithDomain(DomainRules, []byte(text))
}
