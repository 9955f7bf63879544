// Package payload classifies raw MQTT payloads into display text, a
// JSON object, or a JSON array of objects. Classification never fails:
// anything that is not one of the two JSON shapes is kept as text.
package payload

import (
	"encoding/json"
	"strings"
)

// Kind identifies which variant of a [Value] is active.
type Kind int

const (
	// KindText is an opaque, lossily decoded UTF-8 string.
	KindText Kind = iota
	// KindObject is a single JSON object.
	KindObject
	// KindObjectArray is a JSON array whose elements are all objects.
	KindObjectArray
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindObject:
		return "object"
	case KindObjectArray:
		return "object_array"
	default:
		return "unknown"
	}
}

// Value is the classified form of one payload. Exactly one variant is
// active. Values are created by [Classify] or the constructors below and
// must not be mutated afterwards; the maps returned by the accessors are
// shared with the Value.
type Value struct {
	kind   Kind
	text   string
	object map[string]any
	array  []map[string]any
}

// Text creates a text value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Object creates an object value.
func Object(m map[string]any) Value {
	return Value{kind: KindObject, object: m}
}

// ObjectArray creates an array-of-objects value. Element order is kept.
func ObjectArray(a []map[string]any) Value {
	return Value{kind: KindObjectArray, array: a}
}

// Kind reports the active variant.
func (v Value) Kind() Kind { return v.kind }

// Text returns the string for a text value.
func (v Value) Text() (string, bool) {
	return v.text, v.kind == KindText
}

// Object returns the mapping for an object value.
func (v Value) Object() (map[string]any, bool) {
	return v.object, v.kind == KindObject
}

// Array returns the elements of an array-of-objects value.
func (v Value) Array() ([]map[string]any, bool) {
	return v.array, v.kind == KindObjectArray
}

// String renders the value for display. JSON variants are re-encoded
// compactly with sorted keys.
func (v Value) String() string {
	if v.kind == KindText {
		return v.text
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// Summary renders a one-line form suitable for a table cell, with
// newlines flattened and the result truncated to limit runes. A limit of
// zero or less disables truncation.
func (v Value) Summary(limit int) string {
	s := strings.ReplaceAll(v.String(), "\n", " ")
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

// MarshalJSON encodes the active variant: a JSON string for text, the
// object or the array otherwise.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindObject:
		if v.object == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.object)
	case KindObjectArray:
		if v.array == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.array)
	default:
		return json.Marshal(v.text)
	}
}
