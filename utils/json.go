package utils

import (
	"encoding/json"
)

// Marshal generic struct to JSON
func MarshalToJSON[T any](input T) (string, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

// Unmarshal JSON to generic struct
func UnmarshalFromJSON[T any](data []byte, output *T) error {
	return json.Unmarshal(data, output)
}

// CanonicalJSON serializes v with deterministically ordered object keys.
// Struct field order and platform differences must not change the bytes we
// hash, so the value is round-tripped through an untyped map first
// (encoding/json writes map keys sorted).
func CanonicalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// CanonicalizeJSONString re-encodes a stored JSON string canonically.
// Empty input stays empty so nullable snapshots hash consistently.
func CanonicalizeJSONString(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	var generic interface{}
	if err := json.Unmarshal([]byte(s), &generic); err != nil {
		return "", err
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
