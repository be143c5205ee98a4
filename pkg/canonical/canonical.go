// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic hashing of audit records.
//
// Key features:
// 1. Map keys are sorted lexicographically by UTF-8 bytes.
// 2. HTML escaping is DISABLED (unlike standard json.Marshal).
// 3. Stable number formatting per RFC 8785.
// 4. Absent optional values canonicalize to the JSON null token, which
//    never collides with the empty string "".
package canonical

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ErrUnsupportedType is returned when a value falls outside the JSON value
// domain and therefore has no deterministic canonical form.
var ErrUnsupportedType = errors.New("canonical: unsupported value type")

// Transform returns the RFC 8785 canonical JSON representation of v.
//
// Strategy: marshal to intermediate JSON (standard library, respects json
// tags), then run the JCS transform over the bytes. This keeps struct tag
// handling while overriding key order, escaping and number formatting.
func Transform(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// String returns the canonical form as a string.
func String(v interface{}) (string, error) {
	b, err := Transform(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckValue validates that v lies within the closed JSON value domain:
// string | number | bool | null | map[string]any | []any. Anything else
// (func, chan, complex, custom structs smuggled through an any field) is a
// programmer error and fails deterministically instead of hashing an
// unstable representation.
func CheckValue(v interface{}) error {
	return checkValue(v, 0)
}

// CheckMap validates every value of a structured snapshot map.
func CheckMap(m map[string]interface{}) error {
	for k, v := range m {
		if err := checkValue(v, 0); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return nil
}

const maxValueDepth = 64

func checkValue(v interface{}, depth int) error {
	if depth > maxValueDepth {
		return fmt.Errorf("%w: nesting exceeds %d levels", ErrUnsupportedType, maxValueDepth)
	}
	switch t := v.(type) {
	case nil, bool, string,
		json.Number,
		float32, float64,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case map[string]interface{}:
		for k, elem := range t {
			if err := checkValue(elem, depth+1); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		return nil
	case []interface{}:
		for i, elem := range t {
			if err := checkValue(elem, depth+1); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}
