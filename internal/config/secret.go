package config

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString keeps secrets out of logs and JSON dumps. Use Unmask to read
// the value where it is genuinely needed.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return redactedPlaceholder
}

// GoString covers %#v.
func (s SecretString) GoString() string {
	return s.String()
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a value was provided.
func (s SecretString) IsSet() bool {
	return s != ""
}
