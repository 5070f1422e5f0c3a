package headers

import "fmt"

// Stable numeric codes reported alongside field validation failures. Clients
// key automated handling off these, so they never change.
const (
	CodeTopic = "113"
	CodeTTL   = "114"
)

// FieldError is a structured validation failure for a single header field.
// It carries a stable code plus machine-readable params (the violated bound
// and the offending value) for client-side diagnostics.
type FieldError struct {
	Field   string
	Code    string
	Message string
	Params  map[string]any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s header: %s", e.Field, e.Message)
}

// EncryptionError is a violation of the encryption header rules. Unlike
// FieldError it carries only a human-readable message; this subsystem has no
// numeric codes.
type EncryptionError struct {
	Message string
}

func (e *EncryptionError) Error() string {
	return "invalid encryption: " + e.Message
}

func encryptionErrorf(format string, args ...any) *EncryptionError {
	return &EncryptionError{Message: fmt.Sprintf(format, args...)}
}
