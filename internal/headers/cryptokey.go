// Package headers validates the notification headers accompanying an inbound
// webpush request: TTL, Topic, and the version-specific encryption header set.
// Validation is pure; the package performs no I/O.
package headers

import "strings"

// CryptoKeyHeader is the parsed form of the small key-value mini-syntax
// shared by the Encryption, Encryption-Key and Crypto-Key headers: a
// semicolon- or comma-delimited list of key=value pairs.
//
// Presence of the header with no matching key is distinct from absence of
// the header, so callers parse first and then probe for keys.
type CryptoKeyHeader struct {
	pairs [][2]string
}

// ParseCryptoKey parses a raw header value. It returns nil if any segment is
// not a key=value pair.
func ParseCryptoKey(value string) *CryptoKeyHeader {
	segments := strings.FieldsFunc(value, func(r rune) bool {
		return r == ';' || r == ','
	})

	header := &CryptoKeyHeader{pairs: make([][2]string, 0, len(segments))}
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		key, val, found := strings.Cut(segment, "=")
		if !found {
			return nil
		}
		header.pairs = append(header.pairs, [2]string{strings.TrimSpace(key), strings.TrimSpace(val)})
	}

	return header
}

// Get returns the value of the first pair with the given key.
func (h *CryptoKeyHeader) Get(key string) (string, bool) {
	for _, pair := range h.pairs {
		if pair[0] == key {
			return pair[1], true
		}
	}
	return "", false
}
