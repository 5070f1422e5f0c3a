package headers

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/10allday-services/autopush-endpoint/pkg/push"
)

// validBase64URL matches the URL and Filename safe Base64 alphabet with
// optional trailing '=' padding. Compiled once at startup and shared.
var validBase64URL = regexp.MustCompile(`^[0-9A-Za-z\-_]+=*$`)

const maxTopicLength = 32

// Validate parses and validates the notification headers of an inbound
// request. hasData reports whether the request carries a payload body; the
// encryption rules only apply when it does.
//
// Header name matching is case-insensitive (http.Header canonicalizes).
// On success the returned header set is internally consistent for its
// declared content encoding. On failure no partial result is returned.
func Validate(h http.Header, hasData bool) (*push.NotificationHeaders, error) {
	headers := &push.NotificationHeaders{
		TTL:             parseTTL(h.Get("TTL")),
		Topic:           h.Get("Topic"),
		ContentEncoding: h.Get("Content-Encoding"),
		Encryption:      h.Get("Encryption"),
		EncryptionKey:   h.Get("Encryption-Key"),
		CryptoKey:       h.Get("Crypto-Key"),
	}

	if hasData {
		if err := validateEncryption(headers); err != nil {
			return nil, err
		}
	}

	if headers.TTL != nil && *headers.TTL < 0 {
		return nil, &FieldError{
			Field:   "ttl",
			Code:    CodeTTL,
			Message: "TTL must be greater than 0",
			Params:  map[string]any{"min": 0, "value": *headers.TTL},
		}
	}

	if topic := headers.Topic; topic != "" {
		if len(topic) > maxTopicLength {
			return nil, &FieldError{
				Field:   "topic",
				Code:    CodeTopic,
				Message: "Topic must be no greater than 32 characters",
				Params:  map[string]any{"max": maxTopicLength, "value": topic},
			}
		}
		if !validBase64URL.MatchString(topic) {
			return nil, &FieldError{
				Field:   "topic",
				Code:    CodeTopic,
				Message: "Topic must be URL and Filename safe Base64 alphabet",
				Params:  map[string]any{"value": topic},
			}
		}
	}

	return headers, nil
}

// parseTTL treats a missing or unparsable TTL as absent rather than an
// error. Values above MaxTTL are clamped, never rejected; negative values
// are kept so validation can report them.
func parseTTL(raw string) *int64 {
	ttl, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	if ttl > push.MaxTTL {
		ttl = push.MaxTTL
	}
	return &ttl
}

// validateEncryption dispatches to the rules of the webpush draft named by
// Content-Encoding. The three historical conventions are mutually
// incompatible and must not be conflated.
func validateEncryption(h *push.NotificationHeaders) error {
	switch h.ContentEncoding {
	case "":
		return encryptionErrorf("Missing Content-Encoding header")
	case "aesgcm128":
		return validateDraft01(h)
	case "aesgcm":
		return validateDraft04(h)
	case "aes128gcm":
		return validateDraft06(h)
	default:
		return encryptionErrorf("Unknown Content-Encoding header")
	}
}

// validateDraft01 checks draft-ietf-webpush-encryption-01 (aesgcm128):
// salt in Encryption, dh in Encryption-Key, and no dh in Crypto-Key.
func validateDraft01(h *push.NotificationHeaders) error {
	if err := assertKeyExists("Encryption", h.Encryption, "salt"); err != nil {
		return err
	}
	if err := assertKeyExists("Encryption-Key", h.EncryptionKey, "dh"); err != nil {
		return err
	}
	return assertKeyAbsent("aesgcm128 Crypto-Key", h.CryptoKey, "dh")
}

// validateDraft04 checks draft-ietf-webpush-encryption-04 (aesgcm): salt in
// Encryption, Encryption-Key retired entirely, dh moved to Crypto-Key.
func validateDraft04(h *push.NotificationHeaders) error {
	if err := assertKeyExists("Encryption", h.Encryption, "salt"); err != nil {
		return err
	}
	if h.EncryptionKey != "" {
		return encryptionErrorf("Encryption-Key header is not valid for webpush draft 02 or later")
	}
	if h.CryptoKey != "" {
		return assertKeyExists("Crypto-Key", h.CryptoKey, "dh")
	}
	return nil
}

// validateDraft06 checks draft-ietf-httpbis-encryption-encoding-06
// (aes128gcm). The encryption parameters live in the payload framing, so
// the headers must not carry them.
func validateDraft06(h *push.NotificationHeaders) error {
	if err := assertKeyAbsent("aes128gcm Encryption", h.Encryption, "salt"); err != nil {
		return err
	}
	return assertKeyAbsent("aes128gcm Crypto-Key", h.CryptoKey, "dh")
}

// assertKeyExists requires the header to be present, parseable, and to carry
// key with a base64url value.
func assertKeyExists(name, value, key string) error {
	if value == "" {
		return encryptionErrorf("Missing %s header", name)
	}
	parsed := ParseCryptoKey(value)
	if parsed == nil {
		return encryptionErrorf("Invalid %s header", name)
	}
	item, ok := parsed.Get(key)
	if !ok {
		return encryptionErrorf("Missing %s value in %s header", key, name)
	}
	if !validBase64URL.MatchString(item) {
		return encryptionErrorf("Invalid %s value in %s header", key, name)
	}
	return nil
}

// assertKeyAbsent requires that, if the header is present at all, it does
// not carry key. An absent header always passes.
func assertKeyAbsent(name, value, key string) error {
	if value == "" {
		return nil
	}
	parsed := ParseCryptoKey(value)
	if parsed == nil {
		return encryptionErrorf("Invalid %s header", name)
	}
	if _, ok := parsed.Get(key); ok {
		return encryptionErrorf("Do not include '%s' header in %s header", key, name)
	}
	return nil
}
