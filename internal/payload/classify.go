package payload

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode"
)

// Classify turns a raw payload into a [Value]. The attempts are ordered:
// a payload whose first non-whitespace character is '[' is only ever
// tried as an array of objects, everything else only as a single object.
// Any failure yields the lossily decoded text.
func Classify(raw []byte) Value {
	text := Decode(raw)

	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	if trimmed == "" {
		return Text(text)
	}

	if trimmed[0] == '[' {
		var arr []map[string]any
		if err := decodeStrict(text, &arr); err != nil {
			return Text(text)
		}
		// encoding/json decodes a null element into a nil map.
		for _, obj := range arr {
			if obj == nil {
				return Text(text)
			}
		}
		return ObjectArray(arr)
	}

	var obj map[string]any
	if err := decodeStrict(text, &obj); err != nil || obj == nil {
		return Text(text)
	}
	return Object(obj)
}

// Decode returns raw as UTF-8 text, replacing each invalid byte
// sequence with U+FFFD.
func Decode(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

// decodeStrict decodes exactly one JSON document from s into dst,
// keeping numbers as [json.Number] so integers survive unchanged.
// Trailing non-whitespace data is an error.
func decodeStrict(s string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("payload: trailing data after JSON document")
		}
		return err
	}
	return nil
}
