// Package jsonutil wraps github.com/go-json-experiment/json for response
// decoding and artifact encoding.
//
// Artifacts are encoded deterministically (sorted map keys, two-space
// indent) so that repeated runs over the same upstream state produce
// byte-identical files.
package jsonutil

import (
	"fmt"
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// decodeOptions accept what upstream APIs actually send: invalid UTF-8 is
// replaced with U+FFFD and a repeated object key keeps its last value.
var decodeOptions = json.JoinOptions(
	jsontext.AllowInvalidUTF8(true),
	jsontext.AllowDuplicateNames(true),
)

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v, decodeOptions)
}

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalArtifact encodes v for writing to disk: map keys sorted,
// two-space indent, trailing newline.
func MarshalArtifact(v any) ([]byte, error) {
	data, err := json.Marshal(v, json.Deterministic(true), jsontext.WithIndent("  "))
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeObject reads a single JSON object from r. Any other top-level
// value (array, string, null) is an error.
func DecodeObject(r io.Reader) (map[string]any, error) {
	var obj map[string]any
	if err := json.UnmarshalRead(r, &obj, decodeOptions); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected a JSON object, got null")
	}
	return obj, nil
}
