package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEntityETag = "entq/etag/v1"
	DomainCacheKey   = "entq/cache/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ETag computes the concurrency token of an entity from its address and
// canonical body. Any change to a field or tag-mapped value changes the ETag.
func ETag(locator string, body IRObject) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"locator": IRString(locator),
		"body":    body,
	})
	if err != nil {
		return "", fmt.Errorf("ETag: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEntityETag, canonical), nil
}

// CacheKey derives a stable cache key for one version of an entity body.
func CacheKey(locator, etag string) string {
	return hashWithDomain(DomainCacheKey, []byte(locator+"\x00"+etag))
}

// MustETag is like ETag but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustETag(locator string, body IRObject) string {
	etag, err := ETag(locator, body)
	if err != nil {
		panic(err)
	}
	return etag
}
