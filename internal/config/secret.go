// secret.go -- Secret wraps a sensitive config value so it never prints, logs or marshals.
package config

import (
	"encoding/json"
	"log/slog"
)

const redacted = "*****"

// Secret holds a value that must not appear in logs or dumps. Use Value() at the point of use.
type Secret struct {
	value string
}

// NewSecret wraps value.
func NewSecret(value string) Secret {
	return Secret{value}
}

// Value returns the wrapped value.
func (s Secret) Value() string {
	return s.value
}

// IsZero reports whether no value is set.
func (s Secret) IsZero() bool {
	return s.value == ""
}

func (s Secret) String() string {
	return redacted
}

// GoString keeps %#v from printing the value.
func (s Secret) GoString() string {
	return redacted
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}
