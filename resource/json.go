package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ParseJSON parses a JSON resource document. The root must be an object;
// member order is preserved.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	t, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("parsing JSON: %w", err)
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return Value{}, fmt.Errorf("parsing JSON: root must be an object, got %v", t)
	}

	root, err := decodeObject(dec)
	if err != nil {
		return Value{}, fmt.Errorf("parsing JSON: %w", err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("parsing JSON: unexpected data after root object")
	}
	return root, nil
}

// decodeObject reads members until the closing brace. The opening brace has
// already been consumed.
func decodeObject(dec *json.Decoder) (Value, error) {
	var members []Member
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := kt.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected string key, got %T", kt)
		}

		vt, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		v, err := decodeValue(dec, vt)
		if err != nil {
			return Value{}, fmt.Errorf("key %q: %w", key, err)
		}
		members = append(members, Member{Key: key, Value: v})
	}

	// Closing brace.
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return Node(members...), nil
}

func decodeValue(dec *json.Decoder, t json.Token) (Value, error) {
	switch tok := t.(type) {
	case json.Delim:
		switch tok {
		case '{':
			return decodeObject(dec)
		case '[':
			if err := skipArray(dec); err != nil {
				return Value{}, err
			}
			return Other("array"), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", tok)
	case string:
		return Leaf(tok), nil
	case json.Number:
		return Other("number"), nil
	case bool:
		return Other("boolean"), nil
	case nil:
		return Other("null"), nil
	}
	return Value{}, fmt.Errorf("unexpected token %T", t)
}

// skipArray consumes tokens up to and including the ']' matching an already
// consumed '['.
func skipArray(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := t.(json.Delim); ok {
			switch d {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
	}
	return nil
}
