package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var envelopeFields = []string{"key", "server", "timestamp", "signature"}

// CanonicalJSON is the single encoder used for signing, verification and the wire.
//
// Object keys are sorted at every level, HTML escaping is off and there is no
// insignificant whitespace. Values must be JSON-compatible Go values; maps
// decoded from arbitrary input are re-sorted on encode, so two logically equal
// documents produce identical bytes.
func CanonicalJSON(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// normalize round trips v through the generic JSON model so struct field order
// and map types no longer matter. encoding/json sorts map[string]any keys.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	return out, nil
}

func payloadFields(data any) (map[string]any, error) {
	normalized, err := normalize(data)
	if err != nil {
		return nil, err
	}
	fields, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload must encode as a JSON object, got %T", normalized)
	}
	for _, name := range envelopeFields {
		if _, exists := fields[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrReservedField, name)
		}
	}
	return fields, nil
}
