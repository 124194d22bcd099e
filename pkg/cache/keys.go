package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Header is one name of an ordered header multimap together with its values.
type Header struct {
	Name   string
	Values []string
}

// Key holds the parts of an assembled request that decide cache equivalence.
// Two requests share a cache entry iff all four parts match.
type Key struct {
	URL          string
	Headers      []Header
	Query        string
	ResponseType string
}

// KeyGenerator derives fingerprints from request keys
type KeyGenerator struct {
	// Prefix is prepended to all fingerprints
	Prefix string
}

// DefaultKeyGenerator returns a default key generator
func DefaultKeyGenerator() *KeyGenerator {
	return &KeyGenerator{Prefix: "rest:"}
}

// GenerateKey returns the fingerprint of k.
//
// Every part is length-prefixed before hashing so that no two distinct keys
// can serialize to the same byte string. Header order is kept as given; the
// caller supplies headers in merge order.
func (kg *KeyGenerator) GenerateKey(k Key) string {
	var b strings.Builder
	writePart(&b, k.URL)
	b.WriteString(strconv.Itoa(len(k.Headers)))
	b.WriteByte('|')
	for _, h := range k.Headers {
		writePart(&b, h.Name)
		b.WriteString(strconv.Itoa(len(h.Values)))
		b.WriteByte('|')
		for _, v := range h.Values {
			writePart(&b, v)
		}
	}
	writePart(&b, k.Query)
	writePart(&b, k.ResponseType)

	hash := sha256.Sum256([]byte(b.String()))
	// Truncate to 16 bytes for shorter keys (still 128-bit)
	return kg.Prefix + hex.EncodeToString(hash[:16])
}

func writePart(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// Fingerprint generates a fingerprint using the default key generator
func Fingerprint(url string, headers []Header, query, responseType string) string {
	return DefaultKeyGenerator().GenerateKey(Key{
		URL:          url,
		Headers:      headers,
		Query:        query,
		ResponseType: responseType,
	})
}
