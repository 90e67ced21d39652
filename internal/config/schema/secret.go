package schema

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Secret holds a sensitive value (HMAC key, connection string) and masks
// itself whenever it is printed or serialized
type Secret string

// String returns the masked form, safe for logs
func (s Secret) String() string {
	switch n := len(s); {
	case n == 0:
		return ""
	case n <= 4:
		return "****"
	default:
		return string(s[:2]) + "****" + string(s[n-2:])
	}
}

// Value returns the raw value
func (s Secret) Value() string { return string(s) }

// IsEmpty reports whether no value was configured
func (s Secret) IsEmpty() bool { return s == "" }

// MarshalJSON emits the masked form
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads the raw value
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}

// MarshalYAML emits the masked form
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML reads the raw value
func (s *Secret) UnmarshalYAML(node *yaml.Node) error {
	*s = Secret(node.Value)
	return nil
}
